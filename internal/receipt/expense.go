package receipt

import (
	"fmt"
	"sort"
	"strings"
)

// CreateExpenseRequest describes a new shared expense
type CreateExpenseRequest struct {
	Description  string   `json:"description"`
	PaidBy       string   `json:"paid_by"`
	Participants []string `json:"participants"`
	ReceiptIDs   []string `json:"receipt_ids"`
}

// normalizeParticipants trims names, drops blanks and duplicates, and makes
// sure the payer is included
func normalizeParticipants(paidBy string, participants []string) []string {
	seen := make(map[string]bool, len(participants)+1)
	result := make([]string, 0, len(participants)+1)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		result = append(result, name)
	}
	for _, name := range participants {
		add(name)
	}
	add(paidBy)
	return result
}

// splitEvenly divides total cents between participants. The remainder is
// handed out one cent at a time in participant order, so the shares always
// sum to the total. A negative total hands out negative cents.
func splitEvenly(total int, participants []string) []Share {
	if len(participants) == 0 {
		return []Share{}
	}
	n := len(participants)
	base, remainder := total/n, total%n
	step := 1
	if remainder < 0 {
		remainder, step = -remainder, -1
	}

	shares := make([]Share, n)
	for i, name := range participants {
		amount := base
		if i < remainder {
			amount += step
		}
		shares[i] = Share{Participant: name, Amount: amount}
	}
	return shares
}

// CreateExpense groups receipts into an expense and splits the total
// equally between the participants
func (s *Service) CreateExpense(req CreateExpenseRequest) (*Expense, error) {
	if len(req.ReceiptIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one receipt is required", ErrInvalid)
	}
	paidBy := strings.TrimSpace(req.PaidBy)
	if paidBy == "" {
		return nil, fmt.Errorf("%w: paid_by is required", ErrInvalid)
	}
	participants := normalizeParticipants(paidBy, req.Participants)

	now := s.timeSource.Now()
	id := s.idGenerator.Generate()

	var total int
	seen := make(map[string]bool, len(req.ReceiptIDs))
	receipts := make([]*Receipt, 0, len(req.ReceiptIDs))
	for _, receiptID := range req.ReceiptIDs {
		if seen[receiptID] {
			return nil, fmt.Errorf("%w: receipt %s listed twice", ErrInvalid, receiptID)
		}
		seen[receiptID] = true

		receipt, err := s.db.GetReceipt(receiptID)
		if err != nil {
			return nil, fmt.Errorf("getting receipt %s: %w", receiptID, err)
		}
		if receipt.ExpenseID != "" {
			return nil, fmt.Errorf("%w: receipt %s already belongs to expense %s", ErrConflict, receiptID, receipt.ExpenseID)
		}
		total += receipt.Amount
		receipts = append(receipts, receipt)
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: expense total must be positive", ErrInvalid)
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = receipts[0].Title
	}

	expense := &Expense{
		ID:           id,
		Description:  description,
		PaidBy:       paidBy,
		Participants: participants,
		ReceiptIDs:   req.ReceiptIDs,
		TotalAmount:  total,
		Shares:       splitEvenly(total, participants),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, receipt := range receipts {
		receipt.ExpenseID = id
		receipt.UpdatedAt = now
	}

	if err := s.db.SaveExpenseWithReceipts(expense, receipts); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}

	return expense, nil
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// GetExpenseWithReceipts retrieves an expense with its receipts
func (s *Service) GetExpenseWithReceipts(id string) (*Expense, []*Receipt, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting expense: %w", err)
	}

	receipts := make([]*Receipt, 0, len(expense.ReceiptIDs))
	for _, receiptID := range expense.ReceiptIDs {
		receipt, err := s.db.GetReceipt(receiptID)
		if err != nil {
			return nil, nil, fmt.Errorf("getting receipt %s: %w", receiptID, err)
		}
		receipts = append(receipts, receipt)
	}

	return expense, receipts, nil
}

// ListExpenses returns all expenses, newest first
func (s *Service) ListExpenses() ([]*Expense, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
	return expenses, nil
}

// Balances computes every participant's net position across all expenses,
// sorted by name. The net amounts always sum to zero.
func (s *Service) Balances() ([]Balance, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}

	byName := make(map[string]*Balance)
	get := func(name string) *Balance {
		b, ok := byName[name]
		if !ok {
			b = &Balance{Participant: name}
			byName[name] = b
		}
		return b
	}

	for _, expense := range expenses {
		get(expense.PaidBy).Paid += expense.TotalAmount
		for _, share := range expense.Shares {
			get(share.Participant).Owed += share.Amount
		}
	}

	balances := make([]Balance, 0, len(byName))
	for _, b := range byName {
		b.Net = b.Paid - b.Owed
		balances = append(balances, *b)
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Participant < balances[j].Participant
	})
	return balances, nil
}
