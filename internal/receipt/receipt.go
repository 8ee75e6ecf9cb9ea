package receipt

import "time"

// Item is a line item on a receipt. Amounts are in cents.
type Item struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	UnitPrice   int    `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

// Receipt represents a scanned receipt. Amounts are in cents; Subtotal, Tax
// and ServiceCharge are nil when the receipt did not show them.
type Receipt struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Date          time.Time `json:"date"`
	Amount        int       `json:"amount"`
	Subtotal      *int      `json:"subtotal,omitempty"`
	Tax           *int      `json:"tax,omitempty"`
	ServiceCharge *int      `json:"service_charge,omitempty"`
	Items         []Item    `json:"items"`
	RawText       string    `json:"raw_text,omitempty"`
	Filename      string    `json:"filename,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	ExpenseID     string    `json:"expense_id,omitempty"` // ID of the expense this receipt belongs to
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Share is what one participant owes for an expense, in cents
type Share struct {
	Participant string `json:"participant"`
	Amount      int    `json:"amount"`
}

// Expense is a shared expense made of one or more receipts, paid by one
// participant and split between all participants
type Expense struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	PaidBy       string    `json:"paid_by"`
	Participants []string  `json:"participants"`
	ReceiptIDs   []string  `json:"receipt_ids"`
	TotalAmount  int       `json:"total_amount"` // Total amount in cents
	Shares       []Share   `json:"shares"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Balance is a participant's net position across all expenses in cents.
// Positive means they are owed money.
type Balance struct {
	Participant string `json:"participant"`
	Paid        int    `json:"paid"`
	Owed        int    `json:"owed"`
	Net         int    `json:"net"`
}
