package pdftext

import (
	"context"
	"strings"
	"testing"

	"github.com/docuflow/docuflow/internal/core/domain"
)

func TestExtractPlainTextPassthrough(t *testing.T) {
	content := []byte("Borrower: Meridian Foods LLC\n" + strings.Repeat("ledger line with enough density to score well\n", 30))

	extraction, err := New().Extract(context.Background(), content, domain.DocTypeUnknown)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	text, ok := extraction.Fields["text"].(string)
	if !ok || !strings.Contains(text, "Meridian Foods") {
		t.Fatalf("expected passthrough text, got %v", extraction.Fields["text"])
	}
	if extraction.Fields["pages"] != 1 {
		t.Fatalf("expected single page for plain text, got %v", extraction.Fields["pages"])
	}
	if extraction.FieldConfidences["text"] != 0.75 {
		t.Fatalf("expected dense-text confidence 0.75, got %v", extraction.FieldConfidences["text"])
	}
}

func TestExtractRejectsEmptyText(t *testing.T) {
	_, err := New().Extract(context.Background(), []byte("   \n  \n"), domain.DocTypeUnknown)
	if err == nil {
		t.Fatalf("expected error for blank document")
	}
	if !domain.IsKind(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestTextRejectsBinaryContent(t *testing.T) {
	_, _, err := Text([]byte{0xff, 0xfe, 0x00, 0x81, 0x90})
	if err == nil {
		t.Fatalf("expected error for non-utf8 binary content")
	}
	if !domain.IsKind(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n...")) {
		t.Fatalf("expected pdf magic to be detected")
	}
	if IsPDF([]byte("plain text")) {
		t.Fatalf("expected plain text to not be detected as pdf")
	}
}

func TestTextConfidenceBands(t *testing.T) {
	if got := textConfidence(strings.Repeat("a", 1000), 1); got != 0.75 {
		t.Fatalf("expected 0.75 for dense page, got %v", got)
	}
	if got := textConfidence(strings.Repeat("a", 300), 1); got != 0.6 {
		t.Fatalf("expected 0.6 for medium page, got %v", got)
	}
	if got := textConfidence("short", 1); got != 0.4 {
		t.Fatalf("expected 0.4 for sparse page, got %v", got)
	}
}
