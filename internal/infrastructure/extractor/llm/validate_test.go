package llm

import (
	"strings"
	"testing"

	"github.com/docuflow/docuflow/internal/core/domain"
)

func TestValidateOutputAcceptsWellFormedExtraction(t *testing.T) {
	payload := []byte(`{
		"fields": {"total_amount": 12480.50, "vendor_name": "Acme", "paid": false, "po_number": null},
		"confidences": {"total_amount": 0.9, "vendor_name": 0.7}
	}`)
	if err := ValidateOutput(payload); err != nil {
		t.Fatalf("expected valid output, got %v", err)
	}
}

func TestValidateOutputRequiresFields(t *testing.T) {
	if err := ValidateOutput([]byte(`{"confidences": {"a": 0.5}}`)); err == nil {
		t.Fatalf("expected error when fields object is missing")
	}
}

func TestValidateOutputRejectsNestedFieldValues(t *testing.T) {
	payload := []byte(`{"fields": {"line_items": [{"qty": 2}]}}`)
	if err := ValidateOutput(payload); err == nil {
		t.Fatalf("expected error for non-scalar field value")
	}
}

func TestValidateOutputRejectsConfidenceOutOfRange(t *testing.T) {
	payload := []byte(`{"fields": {"a": 1}, "confidences": {"a": 1.5}}`)
	if err := ValidateOutput(payload); err == nil {
		t.Fatalf("expected error for confidence above 1")
	}
}

func TestValidateOutputRejectsUnknownTopLevelKeys(t *testing.T) {
	payload := []byte(`{"fields": {"a": 1}, "commentary": "looks fine"}`)
	if err := ValidateOutput(payload); err == nil {
		t.Fatalf("expected error for extra top-level key")
	}
}

func TestExtractJSONObjectTrimsProse(t *testing.T) {
	raw := "Sure, here is the extraction:\n{\"fields\": {\"a\": 1}}\nLet me know if you need more."
	if got := extractJSONObject(raw); got != `{"fields": {"a": 1}}` {
		t.Fatalf("expected wrapped json to be trimmed, got %q", got)
	}
}

func TestBuildExtractionPromptListsRequiredFields(t *testing.T) {
	prompt := buildExtractionPrompt("Invoice Number: INV-1", domain.DocTypeInvoice)

	if !strings.Contains(prompt, "Document type: invoice") {
		t.Fatalf("expected document type in prompt")
	}
	if !strings.Contains(prompt, "Required fields:") || !strings.Contains(prompt, "total_amount") {
		t.Fatalf("expected required field inventory in prompt")
	}
	if !strings.Contains(prompt, "Invoice Number: INV-1") {
		t.Fatalf("expected document text in prompt")
	}
}

func TestBuildExtractionPromptTruncatesLongDocuments(t *testing.T) {
	long := strings.Repeat("x", 50000)
	prompt := buildExtractionPrompt(long, domain.DocTypeUnknown)
	if len(prompt) > 13000 {
		t.Fatalf("expected prompt to be truncated, got %d chars", len(prompt))
	}
}
