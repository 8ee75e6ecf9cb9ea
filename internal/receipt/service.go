package receipt

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/splitbill/internal/receipttext"
	"github.com/zombor/splitbill/internal/scanning"
)

var (
	// ErrInvalid is returned when a request fails validation
	ErrInvalid = errors.New("invalid request")

	// ErrConflict is returned when a receipt already belongs to an expense
	ErrConflict = errors.New("conflict")

	// ErrScan is returned when the scanner cannot read an uploaded receipt
	ErrScan = errors.New("scanning receipt")
)

// IDGenerator generates unique IDs for receipts, items and expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt and expense operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID IDs and the wall clock
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

const maxFilenameBase = 50

// sanitizeFilename strips special characters and truncates the long names
// phones give photos
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > maxFilenameBase {
		base = base[:maxFilenameBase]
	}
	if base == "" {
		base = "receipt"
	}

	return base + unsafeFilenameChars.ReplaceAllString(ext, "")
}

var (
	centsPerUnit = decimal.New(1, 2)
	maxCents     = decimal.New(1, 15)
)

// toCents converts a currency amount to cents, rounding half away from zero.
// Amounts that do not fit are rejected with ErrInvalid.
func toCents(amount float64) (int, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: amount %v is not a number", ErrInvalid, amount)
	}
	cents := decimal.NewFromFloat(amount).Mul(centsPerUnit).Round(0)
	if cents.Abs().GreaterThan(maxCents) {
		return 0, fmt.Errorf("%w: amount %v is out of range", ErrInvalid, amount)
	}
	return int(cents.IntPart()), nil
}

func optionalCents(amount *float64) (*int, error) {
	if amount == nil {
		return nil, nil
	}
	cents, err := toCents(*amount)
	if err != nil {
		return nil, err
	}
	return &cents, nil
}

// newReceipt converts scanner output into a Receipt. A missing or
// malformed date becomes now.
func (s *Service) newReceipt(data *scanning.ReceiptData, now time.Time) (*Receipt, error) {
	date, err := time.Parse("2006-01-02", data.Date)
	if err != nil {
		date = now
	}

	items := make([]Item, 0, len(data.Items))
	for _, item := range data.Items {
		unitPrice, err := toCents(item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", item.Description, err)
		}
		items = append(items, Item{
			ID:          s.idGenerator.Generate(),
			Description: item.Description,
			UnitPrice:   unitPrice,
			Quantity:    item.Quantity,
		})
	}

	receipt := &Receipt{
		ID:        s.idGenerator.Generate(),
		Title:     data.Title,
		Date:      date,
		Items:     items,
		RawText:   data.RawText,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if receipt.Amount, err = toCents(data.Amount); err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	if receipt.Subtotal, err = optionalCents(data.Subtotal); err != nil {
		return nil, fmt.Errorf("subtotal: %w", err)
	}
	if receipt.Tax, err = optionalCents(data.Tax); err != nil {
		return nil, fmt.Errorf("tax: %w", err)
	}
	if receipt.ServiceCharge, err = optionalCents(data.ServiceCharge); err != nil {
		return nil, fmt.Errorf("service charge: %w", err)
	}
	return receipt, nil
}

// ProcessReceipt stores an uploaded receipt file, scans it and saves the result
func (s *Service) ProcessReceipt(filename string, data []byte, contentType string) (*Receipt, error) {
	now := s.timeSource.Now()
	fileID := s.idGenerator.Generate()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", fileID, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	receiptData, err := s.scanner.ScanReceipt(data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.removeFile(savedPath)
		return nil, fmt.Errorf("%w: %w", ErrScan, err)
	}

	receipt, err := s.newReceipt(receiptData, now)
	if err != nil {
		s.removeFile(savedPath)
		return nil, fmt.Errorf("reading scanned receipt: %w", err)
	}
	receipt.Filename = savedPath
	receipt.ContentType = contentType

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.removeFile(savedPath)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	slog.Info("Receipt processed",
		"id", receipt.ID,
		"items", len(receipt.Items),
		"amount", receipt.Amount,
	)
	return receipt, nil
}

func (s *Service) removeFile(path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Warn("Failed to clean up file", "filename", path, "error", err)
	}
}

// ExtractText runs the receipt text extractor on text that was already
// OCR'd, e.g. on the user's phone
func (s *Service) ExtractText(text string) receipttext.Summary {
	return receipttext.Extract(text)
}

// CreateReceiptFromText extracts a receipt from OCR text and saves it.
// title and date override what is read from the text when non-empty.
func (s *Service) CreateReceiptFromText(title, date, text string) (*Receipt, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: receipt text is required", ErrInvalid)
	}

	now := s.timeSource.Now()
	data := scanning.ParseText(text)
	if title = strings.TrimSpace(title); title != "" {
		data.Title = title
	}
	if date = strings.TrimSpace(date); date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalid)
		}
		data.Date = date
	}

	receipt, err := s.newReceipt(data, now)
	if err != nil {
		return nil, fmt.Errorf("reading receipt text: %w", err)
	}
	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}
	return receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, newest first
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		if receipts[i].Date.Equal(receipts[j].Date) {
			return receipts[i].CreatedAt.After(receipts[j].CreatedAt)
		}
		return receipts[i].Date.After(receipts[j].Date)
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file. Receipts that belong to an
// expense cannot be deleted.
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}
	if receipt.ExpenseID != "" {
		return fmt.Errorf("%w: receipt %s belongs to expense %s", ErrConflict, id, receipt.ExpenseID)
	}

	// The record goes first so a receipt claimed in the meantime keeps its file
	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}

	if receipt.Filename != "" {
		if err := s.storage.Delete(receipt.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
		}
	}
	return nil
}

// GetReceiptFile retrieves the uploaded file for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.Filename == "" {
		return nil, "", fmt.Errorf("receipt %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, receipt.ContentType, nil
}
