package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/docuflow/docuflow/internal/core/domain"
)

var pdfMagic = []byte("%PDF-")

// Extractor is the generic OCR-class adapter: it recovers plain text and
// page structure from a PDF without interpreting the business content.
// Typed field extraction is left to the adapters later in the chain.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() domain.ProcessorType {
	return domain.ProcessorPDFText
}

func (e *Extractor) Extract(_ context.Context, content []byte, _ domain.DocType) (domain.Extraction, error) {
	text, pages, err := Text(content)
	if err != nil {
		return domain.Extraction{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Extraction{}, domain.PermanentError("pdf text", fmt.Errorf("document contains no extractable text"))
	}

	return domain.Extraction{
		Fields: map[string]any{
			"text":  text,
			"pages": pages,
		},
		FieldConfidences: map[string]float64{
			"text": textConfidence(text, pages),
		},
		Processor: domain.ProcessorPDFText,
	}, nil
}

// Text extracts the concatenated plain text of every page. It also serves
// the adapters that run regex heuristics over PDF content.
func Text(content []byte) (string, int, error) {
	if IsPDF(content) {
		return pdfText(content)
	}
	if !utf8.Valid(content) {
		return "", 0, domain.PermanentError("pdf text", fmt.Errorf("unsupported binary content"))
	}
	return string(content), 1, nil
}

func IsPDF(content []byte) bool {
	return bytes.HasPrefix(content, pdfMagic)
}

func pdfText(content []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, domain.PermanentError("open pdf", err)
	}

	numPages := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not ruin the document.
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), numPages, nil
}

// textConfidence scores OCR quality from text density: sparse pages usually
// mean a scanned image the text layer cannot represent.
func textConfidence(text string, pages int) float64 {
	if pages <= 0 {
		pages = 1
	}
	perPage := float64(len(text)) / float64(pages)
	switch {
	case perPage >= 800:
		return 0.75
	case perPage >= 200:
		return 0.6
	default:
		return 0.4
	}
}
