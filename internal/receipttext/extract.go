// Package receipttext turns the raw OCR text of a receipt into line items
// and summary totals.
//
// Extraction never fails. Lines that cannot be classified are skipped, and
// amounts that cannot be parsed fall back to the per-field defaults
// documented on Extract.
package receipttext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// fieldKind identifies which summary field a line contributes to
type fieldKind int

const (
	fieldTotal fieldKind = iota
	fieldSubtotal
	fieldTax
	fieldServiceCharge
)

// labelPattern pairs a summary field with the pattern that recognises it.
// The amount is always capture group 1.
type labelPattern struct {
	kind fieldKind
	re   *regexp.Regexp
}

// amountSuffix matches the separator between a label and its amount (a
// colon, whitespace, or filler words such as "Total" in "Tax Total"),
// an optional currency marker and the amount itself. Signs and thousands
// separators are not part of the grammar.
const amountSuffix = `(?:[:\s]+|total|amount|due|payable)*?(?:RM|MYR)?\s*(\d+\.?\d*)`

// labelPatterns are listed in priority order. Labels may sit inside a
// word ("GrandTotal", "SalesTax"). When several match the same line the one
// whose label starts first wins, so "Subtotal" beats the "total" inside it,
// and ties go to the earlier entry here.
var labelPatterns = []labelPattern{
	{fieldTotal, regexp.MustCompile(`(?i)(?:grand\s+total|total|amount)` + amountSuffix)},
	{fieldSubtotal, regexp.MustCompile(`(?i)sub\s*total` + amountSuffix)},
	{fieldTax, regexp.MustCompile(`(?i)(?:service\s+tax|tax|gst|sst)` + amountSuffix)},
	{fieldServiceCharge, regexp.MustCompile(`(?i)(?:service\s+charge|svc\s*chg)` + amountSuffix)},
}

// itemPattern must match the whole line: description, optional "<n> x"
// quantity, optional currency marker, price.
var itemPattern = regexp.MustCompile(`^(.+?)\s+(?:(\d+)\s*[xX]\s*)?(?i:RM|MYR)?\s*(\d+\.?\d*)$`)

// lineItemNamespace seeds the name-based UUIDs given to line items
var lineItemNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("splitbill:receipttext:line-item"))

const minDescriptionLength = 3

// Extract parses raw OCR text into a Summary.
//
// Each trimmed line is claimed by at most one category. Summary labels
// (total, subtotal, tax, service charge) are tried before the line item
// shape so "Subtotal 45.00" is never read as an item called "Subtotal".
// Later summary lines overwrite earlier ones. An unparsable total resets
// the total to 0; an unparsable subtotal, tax or service charge clears
// that field.
func Extract(rawText string) Summary {
	summary := Summary{
		LineItems: []LineItem{},
		RawText:   rawText,
	}

	for index, line := range strings.Split(rawText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if kind, amount, ok := matchLabel(line); ok {
			applyField(&summary, kind, amount)
			continue
		}

		if item, ok := matchItem(index, line); ok {
			summary.LineItems = append(summary.LineItems, item)
		}
	}

	return summary
}

// IsSummaryLine reports whether a line would be claimed by one of the
// summary labels
func IsSummaryLine(line string) bool {
	_, _, ok := matchLabel(strings.TrimSpace(line))
	return ok
}

// IsItemLine reports whether a line would be accepted as a line item
func IsItemLine(line string) bool {
	line = strings.TrimSpace(line)
	if IsSummaryLine(line) {
		return false
	}
	_, ok := matchItem(0, line)
	return ok
}

// matchLabel finds the summary label that starts earliest in the line and
// returns its amount text
func matchLabel(line string) (fieldKind, string, bool) {
	var (
		bestKind   fieldKind
		bestAmount string
		bestStart  = -1
	)
	for _, p := range labelPatterns {
		loc := p.re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		if bestStart == -1 || loc[0] < bestStart {
			bestKind = p.kind
			bestAmount = line[loc[2]:loc[3]]
			bestStart = loc[0]
		}
	}
	return bestKind, bestAmount, bestStart != -1
}

func applyField(summary *Summary, kind fieldKind, amount string) {
	value, ok := parseAmount(amount)
	switch kind {
	case fieldTotal:
		if !ok {
			value = 0
		}
		summary.Total = value
	case fieldSubtotal:
		summary.Subtotal = optional(value, ok)
	case fieldTax:
		summary.Tax = optional(value, ok)
	case fieldServiceCharge:
		summary.ServiceCharge = optional(value, ok)
	}
}

// matchItem applies the line item shape and the acceptance rules
func matchItem(index int, line string) (LineItem, bool) {
	m := itemPattern.FindStringSubmatch(line)
	if m == nil {
		return LineItem{}, false
	}

	description := strings.TrimSpace(m[1])
	if utf8.RuneCountInString(description) < minDescriptionLength {
		return LineItem{}, false
	}
	lower := strings.ToLower(description)
	if strings.Contains(lower, "total") || strings.Contains(lower, "tax") {
		return LineItem{}, false
	}

	price, ok := parseAmount(m[3])
	if !ok || price <= 0 {
		return LineItem{}, false
	}

	return LineItem{
		ID:          lineItemID(index, line),
		Description: description,
		UnitPrice:   price,
		Quantity:    parseQuantity(m[2]),
	}, true
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseQuantity defaults to 1 when the quantity is missing, unparsable or
// not positive
func parseQuantity(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func optional(value float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &value
}

// lineItemID derives a stable identifier from the line's position and text
// so repeated extraction of the same text yields the same IDs
func lineItemID(index int, line string) string {
	return uuid.NewSHA1(lineItemNamespace, []byte(fmt.Sprintf("%d:%s", index, line))).String()
}
