package scanning

// ItemData is a single line item read from a receipt
type ItemData struct {
	Description string  `json:"description"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
}

// ReceiptData contains extracted information from a receipt
type ReceiptData struct {
	Title         string     `json:"title"`
	Date          string     `json:"date"` // ISO 8601 format, empty when unknown
	Amount        float64    `json:"amount"`
	Subtotal      *float64   `json:"subtotal,omitempty"`
	Tax           *float64   `json:"tax,omitempty"`
	ServiceCharge *float64   `json:"service_charge,omitempty"`
	Items         []ItemData `json:"items"`
	RawText       string     `json:"raw_text,omitempty"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts metadata
	ScanReceipt(imageData []byte, contentType string) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}
