package scanning

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Scanner interface using local Tesseract OCR and
// the receipt text extractor. It needs no network access.
type Tesseract struct {
	languages []string
}

// NewTesseract creates a new Tesseract Scanner instance.
// languages is a "+" separated list of Tesseract language codes, e.g. "eng+msa".
func NewTesseract(languages string) (*Tesseract, error) {
	if strings.TrimSpace(languages) == "" {
		languages = "eng"
	}
	var langs []string
	for _, lang := range strings.Split(languages, "+") {
		if lang = strings.TrimSpace(lang); lang != "" {
			langs = append(langs, lang)
		}
	}
	return &Tesseract{languages: langs}, nil
}

// ScanReceipt runs OCR on the receipt and extracts line items and totals
func (t *Tesseract) ScanReceipt(imageData []byte, contentType string) (*ReceiptData, error) {
	ocrImage, err := prepareOCRImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	text, err := t.recognize(ocrImage)
	if err != nil {
		return nil, err
	}

	return ParseText(text), nil
}

func (t *Tesseract) recognize(png []byte) (string, error) {
	// A client is not safe for concurrent use, so each scan gets its own
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("setting tesseract language: %w", err)
	}
	// Receipts are a single column of text
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_COLUMN); err != nil {
		return "", fmt.Errorf("setting page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("setting image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return text, nil
}

// Close closes the Tesseract scanner (no-op, clients are per scan)
func (t *Tesseract) Close() error {
	return nil
}
