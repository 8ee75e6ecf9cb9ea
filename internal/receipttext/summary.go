package receipttext

// LineItem is a single purchased entry found on a receipt
type LineItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
}

// Amount returns the unit price multiplied by the quantity
func (l LineItem) Amount() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// Summary is the structured result of extracting a receipt's text.
//
// Subtotal, Tax and ServiceCharge are nil when no matching line was found.
// Total is always set and is 0 when no total line was found.
type Summary struct {
	MerchantName  *string    `json:"merchant_name,omitempty"`
	Date          *string    `json:"date,omitempty"`
	LineItems     []LineItem `json:"line_items"`
	Subtotal      *float64   `json:"subtotal,omitempty"`
	Tax           *float64   `json:"tax,omitempty"`
	ServiceCharge *float64   `json:"service_charge,omitempty"`
	Total         float64    `json:"total"`
	RawText       string     `json:"raw_text"`
}

// ItemsTotal sums the amounts of all line items
func (s Summary) ItemsTotal() float64 {
	var sum float64
	for _, item := range s.LineItems {
		sum += item.Amount()
	}
	return sum
}
