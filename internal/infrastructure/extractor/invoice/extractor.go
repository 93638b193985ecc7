package invoice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/formparser"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/pdftext"
)

// Extractor pulls the standard invoice fields out of text or PDF invoices
// with layout-tolerant patterns. It knows nothing about other document
// families and reports a permanent error for them so the chain advances.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() domain.ProcessorType {
	return domain.ProcessorInvoice
}

type fieldPattern struct {
	field      string
	confidence float64
	patterns   []*regexp.Regexp
}

var invoiceFields = []fieldPattern{
	{
		field:      "invoice_number",
		confidence: 0.95,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)invoice\s*(?:number|no\.?|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{2,24})`),
		},
	},
	{
		field:      "invoice_date",
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)invoice\s*date\s*[:]?\s*(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})`),
			regexp.MustCompile(`(?i)\bdate\s*[:]\s*(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})`),
		},
	},
	{
		field:      "due_date",
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)due\s*(?:date|by)\s*[:]?\s*(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})`),
		},
	},
	{
		field:      "vendor_name",
		confidence: 0.7,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:from|vendor|remit\s+to)\s*[:]\s*([A-Za-z][A-Za-z0-9 .,&'-]{2,60})`),
		},
	},
	{
		field:      "total_amount",
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:total\s+due|amount\s+due|total\s+amount|balance\s+due|total)\s*[:]?\s*([\$€£]?\s*[\d,]+(?:\.\d{2})?)`),
		},
	},
}

func (e *Extractor) Extract(_ context.Context, content []byte, docType domain.DocType) (domain.Extraction, error) {
	if docType.Known() && docType != domain.DocTypeInvoice {
		return domain.Extraction{}, domain.PermanentError("invoice extract", fmt.Errorf("unsupported document type %s", docType))
	}

	text, _, err := pdftext.Text(content)
	if err != nil {
		return domain.Extraction{}, err
	}

	fields := make(map[string]any)
	confidences := make(map[string]float64)
	for _, fp := range invoiceFields {
		for _, pattern := range fp.patterns {
			match := pattern.FindStringSubmatch(text)
			if match == nil {
				continue
			}
			fields[fp.field] = formparser.ParseValue(match[1])
			confidences[fp.field] = fp.confidence
			break
		}
	}

	if len(fields) == 0 {
		return domain.Extraction{}, domain.PermanentError("invoice extract", fmt.Errorf("no invoice fields recognized"))
	}
	if _, ok := fields["vendor_name"]; ok {
		if s, isString := fields["vendor_name"].(string); isString {
			fields["vendor_name"] = strings.TrimRight(s, " .,")
		}
	}

	return domain.Extraction{
		Fields:           fields,
		FieldConfidences: confidences,
		Processor:        domain.ProcessorInvoice,
	}, nil
}
