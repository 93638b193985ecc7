package formparser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/pdftext"
)

// Extractor parses form-like documents: two-column CSV files and text (or
// PDF text) laid out as "Label: value" lines. It is the cheap first hop of
// most adapter chains.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() domain.ProcessorType {
	return domain.ProcessorFormParser
}

func (e *Extractor) Extract(_ context.Context, content []byte, _ domain.DocType) (domain.Extraction, error) {
	if looksLikeCSV(content) {
		return extractCSV(content)
	}

	text, _, err := pdftext.Text(content)
	if err != nil {
		return domain.Extraction{}, err
	}
	return extractKeyValueLines(text)
}

func looksLikeCSV(content []byte) bool {
	if pdftext.IsPDF(content) {
		return false
	}
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	firstLine, _, _ := strings.Cut(string(head), "\n")
	return strings.Count(firstLine, ",") >= 1 && !strings.Contains(firstLine, ": ")
}

func extractCSV(content []byte) (domain.Extraction, error) {
	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Extraction{}, domain.PermanentError("parse csv", err)
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return domain.Extraction{}, domain.PermanentError("parse csv", fmt.Errorf("empty csv document"))
	}

	fields := make(map[string]any)
	confidences := make(map[string]float64)

	if twoColumnLayout(records) {
		for _, record := range records {
			name := NormalizeFieldName(record[0])
			if name == "" {
				continue
			}
			fields[name] = ParseValue(strings.TrimSpace(record[1]))
			confidences[name] = 0.92
		}
	} else if len(records) >= 2 {
		// Header row plus first data row.
		header := records[0]
		row := records[1]
		for i, cell := range header {
			if i >= len(row) {
				break
			}
			name := NormalizeFieldName(cell)
			if name == "" {
				continue
			}
			fields[name] = ParseValue(strings.TrimSpace(row[i]))
			confidences[name] = 0.88
		}
	}

	if len(fields) == 0 {
		return domain.Extraction{}, domain.PermanentError("parse csv", fmt.Errorf("no usable rows"))
	}
	return domain.Extraction{
		Fields:           fields,
		FieldConfidences: confidences,
		Processor:        domain.ProcessorFormParser,
	}, nil
}

func twoColumnLayout(records [][]string) bool {
	if len(records) < 2 {
		return false
	}
	for _, record := range records {
		if len(record) != 2 {
			return false
		}
	}
	return true
}

var keyValueLine = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 /()&._-]{1,60}?)\s*[:=]\s+(.+?)\s*$`)

func extractKeyValueLines(text string) (domain.Extraction, error) {
	fields := make(map[string]any)
	confidences := make(map[string]float64)

	for _, line := range strings.Split(text, "\n") {
		match := keyValueLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		name := NormalizeFieldName(match[1])
		if name == "" || len(name) > 64 {
			continue
		}
		if _, seen := fields[name]; seen {
			continue
		}
		value := ParseValue(match[2])
		fields[name] = value
		if _, numeric := value.(float64); numeric {
			confidences[name] = 0.85
		} else {
			confidences[name] = 0.75
		}
	}

	if len(fields) == 0 {
		return domain.Extraction{}, domain.PermanentError("parse form text", fmt.Errorf("no key/value pairs found"))
	}
	return domain.Extraction{
		Fields:           fields,
		FieldConfidences: confidences,
		Processor:        domain.ProcessorFormParser,
	}, nil
}

var nonFieldChars = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeFieldName converts a document label into the snake_case field
// names the validation rules expect.
func NormalizeFieldName(label string) string {
	name := strings.ToLower(strings.TrimSpace(label))
	name = nonFieldChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

var numericValue = regexp.MustCompile(`^[\$€£]?\s*-?[\d,]+(\.\d+)?%?$`)

// ParseValue coerces currency and numeric strings to float64 and leaves
// everything else as trimmed text.
func ParseValue(raw string) any {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	if numericValue.MatchString(value) {
		clean := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", "%", "", " ", "").Replace(value)
		if n, err := strconv.ParseFloat(clean, 64); err == nil {
			return n
		}
	}
	return value
}
