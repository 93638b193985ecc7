package spreadsheet

import (
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/docuflow/docuflow/internal/core/domain"
)

func workbookBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestExtractLabelValueSheet(t *testing.T) {
	content := workbookBytes(t, [][]any{
		{"Total AR", "842100"},
		{"Eligible AR", "790000"},
		{"AR Advance Rate", "85"},
	})

	extraction, err := New().Extract(context.Background(), content, domain.DocTypeBorrowingBase)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if got := extraction.Fields["eligible_ar"]; got != 790000.0 {
		t.Fatalf("expected eligible_ar 790000, got %v", got)
	}
	if extraction.FieldConfidences["eligible_ar"] != 0.95 {
		t.Fatalf("expected label/value confidence 0.95, got %v", extraction.FieldConfidences["eligible_ar"])
	}
	if extraction.Processor != domain.ProcessorSpreadsheet {
		t.Fatalf("expected spreadsheet processor, got %s", extraction.Processor)
	}
}

func TestExtractHeaderRowSheet(t *testing.T) {
	content := workbookBytes(t, [][]any{
		{"Revenue", "Net Income", "Period End Date", "Notes"},
		{"1200000", "135000", "2026-06-30", "unaudited"},
	})

	extraction, err := New().Extract(context.Background(), content, domain.DocTypeQuarterlyFinancials)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if got := extraction.Fields["revenue"]; got != 1200000.0 {
		t.Fatalf("expected revenue 1200000, got %v", got)
	}
	if got := extraction.Fields["period_end_date"]; got != "2026-06-30" {
		t.Fatalf("expected period_end_date 2026-06-30, got %v", got)
	}
	if extraction.FieldConfidences["net_income"] != 0.9 {
		t.Fatalf("expected header-row confidence 0.9, got %v", extraction.FieldConfidences["net_income"])
	}
}

func TestExtractRejectsNonWorkbookContent(t *testing.T) {
	_, err := New().Extract(context.Background(), []byte("not a zip archive"), domain.DocTypeBorrowingBase)
	if err == nil {
		t.Fatalf("expected error for non-xlsx content")
	}
	if !domain.IsKind(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
