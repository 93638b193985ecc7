package spreadsheet

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/formparser"
)

// Extractor reads xlsx workbooks. Financial reporting sheets arrive in two
// shapes: a label/value column pair, or a header row with one data row per
// period; both map onto the flat field layout the evaluator expects.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() domain.ProcessorType {
	return domain.ProcessorSpreadsheet
}

func (e *Extractor) Extract(_ context.Context, content []byte, _ domain.DocType) (domain.Extraction, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return domain.Extraction{}, domain.PermanentError("open workbook", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return domain.Extraction{}, domain.PermanentError("open workbook", fmt.Errorf("workbook has no sheets"))
	}

	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return domain.Extraction{}, domain.PermanentError("read sheet", err)
	}

	fields, confidences := parseRows(rows)
	if len(fields) == 0 {
		return domain.Extraction{}, domain.PermanentError("read sheet", fmt.Errorf("sheet %q has no usable rows", sheets[0]))
	}
	return domain.Extraction{
		Fields:           fields,
		FieldConfidences: confidences,
		Processor:        domain.ProcessorSpreadsheet,
	}, nil
}

func parseRows(rows [][]string) (map[string]any, map[string]float64) {
	fields := make(map[string]any)
	confidences := make(map[string]float64)

	if labelValueLayout(rows) {
		for _, row := range rows {
			if len(row) < 2 {
				continue
			}
			name := formparser.NormalizeFieldName(row[0])
			if name == "" {
				continue
			}
			fields[name] = formparser.ParseValue(row[1])
			confidences[name] = 0.95
		}
		return fields, confidences
	}

	if len(rows) >= 2 {
		header := rows[0]
		data := rows[1]
		for i, cell := range header {
			if i >= len(data) {
				break
			}
			name := formparser.NormalizeFieldName(cell)
			if name == "" {
				continue
			}
			fields[name] = formparser.ParseValue(data[i])
			confidences[name] = 0.9
		}
	}
	return fields, confidences
}

// labelValueLayout detects sheets where column A is a label and column B a
// value for most populated rows.
func labelValueLayout(rows [][]string) bool {
	pairs := 0
	for _, row := range rows {
		if len(row) >= 2 && row[0] != "" && row[1] != "" && len(row) <= 3 {
			pairs++
		}
	}
	return pairs >= 2 && pairs >= len(rows)/2
}
