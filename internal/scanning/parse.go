package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zombor/splitbill/internal/receipttext"
)

const unknownTitle = "Unknown Expense"

// dateFormats are tried in order when a scanner returns a non-ISO date
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"02/01/2006",
}

// parseReceiptJSON parses the JSON response from an LLM scanner
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = stripCodeFence(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var data ReceiptData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Date = normalizeDate(data.Date)

	data.Title = strings.TrimSpace(data.Title)
	if data.Title == "" {
		data.Title = unknownTitle
	}

	data.Items = cleanItems(data.Items)

	// Note: amounts stay float64 here; the service converts them to cents
	return &data, nil
}

// parseModelReply reads a vision model's reply. Models asked for JSON
// sometimes transcribe the receipt as plain text instead; such replies go
// through the text extractor when it finds a total or line items.
func parseModelReply(reply string) (*ReceiptData, error) {
	data, jsonErr := parseReceiptJSON(reply)
	if jsonErr == nil {
		return data, nil
	}

	if !strings.Contains(reply, "{") {
		if data := ParseText(reply); data.Amount > 0 || len(data.Items) > 0 {
			return data, nil
		}
	}
	return nil, jsonErr
}

// stripCodeFence removes markdown code fences an LLM may wrap JSON in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// normalizeDate converts a date to YYYY-MM-DD. Missing or unrecognised
// dates come back empty and the caller picks the fallback.
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	for _, format := range dateFormats {
		if d, err := time.Parse(format, date); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// cleanItems drops items without a description or price and defaults the
// quantity to 1
func cleanItems(items []ItemData) []ItemData {
	cleaned := make([]ItemData, 0, len(items))
	for _, item := range items {
		item.Description = strings.TrimSpace(item.Description)
		if item.Description == "" || item.UnitPrice <= 0 {
			continue
		}
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		cleaned = append(cleaned, item)
	}
	return cleaned
}

// ParseText builds ReceiptData from plain OCR text. The title is the
// first line that is neither a summary nor an item line. The date is left
// empty.
func ParseText(text string) *ReceiptData {
	summary := receipttext.Extract(text)

	items := make([]ItemData, 0, len(summary.LineItems))
	for _, item := range summary.LineItems {
		items = append(items, ItemData{
			Description: item.Description,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}

	return &ReceiptData{
		Title:         guessTitle(text),
		Amount:        summary.Total,
		Subtotal:      summary.Subtotal,
		Tax:           summary.Tax,
		ServiceCharge: summary.ServiceCharge,
		Items:         items,
		RawText:       summary.RawText,
	}
}

// guessTitle uses the first line that is neither a summary nor an item
// line, which on most receipts is the merchant header
func guessTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || receipttext.IsSummaryLine(line) || receipttext.IsItemLine(line) {
			continue
		}
		return line
	}
	return unknownTitle
}
