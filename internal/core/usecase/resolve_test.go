package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

func reviewDocWithException(category domain.ExceptionCategory, field string) (*docRepoFake, *excRepoFake) {
	doc := pendingInvoice()
	doc.Status = domain.StatusNeedsReview
	doc.ExtractedData = map[string]any{"invoice_number": "INV-100"}
	repo := newDocRepoFake(doc)

	exc := &excRepoFake{created: []domain.Exception{{
		ID:         "exc-1",
		DocumentID: doc.ID,
		Category:   category,
		FieldName:  field,
		Priority:   domain.PriorityHigh,
		Status:     domain.ExceptionOpen,
		CreatedAt:  time.Now().UTC(),
	}}}
	return repo, exc
}

func TestResolveAppliesCorrectionAndReleasesDocument(t *testing.T) {
	repo, exc := reviewDocWithException(domain.CategoryMissingField, "total_amount")
	uc := NewResolveExceptionUseCase(exc, repo, NewAuditRecorder(nil, testLogger()), testLogger())

	corrected := "1250.50"
	result, err := uc.Resolve(context.Background(), "exc-1", ports.ResolveRequest{
		CorrectedValue: &corrected,
		Notes:          "read from source document",
		ResolvedBy:     "analyst",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if result.Status != domain.ExceptionResolved {
		t.Fatalf("exception status = %s, want resolved", result.Status)
	}
	if result.Resolution == nil || result.Resolution.ResolvedBy != "analyst" {
		t.Fatalf("resolution not recorded: %+v", result.Resolution)
	}

	doc := repo.get("doc-1")
	if got := doc.ExtractedData["total_amount"]; got != 1250.50 {
		t.Fatalf("corrected value = %v, want 1250.50 as number", got)
	}
	if got := doc.FieldConfidences["total_amount"]; got != 1.0 {
		t.Fatalf("corrected field confidence = %v, want 1.0", got)
	}
	if doc.Confidence != 1.0 {
		t.Fatalf("aggregate confidence = %v, want recompute to 1.0", doc.Confidence)
	}
	if doc.Status != domain.StatusProcessed {
		t.Fatalf("document status = %s, want processed after last exception closed", doc.Status)
	}
}

func TestResolveCorrectionRecomputesAggregateFromWeakestField(t *testing.T) {
	repo, exc := reviewDocWithException(domain.CategoryLowConfidence, "total_amount")
	stored := repo.get("doc-1")
	stored.ExtractedData = map[string]any{"invoice_number": "INV-100", "total_amount": float64(900)}
	stored.FieldConfidences = map[string]float64{"invoice_number": 0.91, "total_amount": 0.40}
	stored.Confidence = 0.40
	repo.docs["doc-1"] = stored

	uc := NewResolveExceptionUseCase(exc, repo, NewAuditRecorder(nil, testLogger()), testLogger())
	corrected := "1250.50"
	if _, err := uc.Resolve(context.Background(), "exc-1", ports.ResolveRequest{
		CorrectedValue: &corrected,
		ResolvedBy:     "analyst",
	}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	doc := repo.get("doc-1")
	if got := doc.FieldConfidences["total_amount"]; got != 1.0 {
		t.Fatalf("corrected field confidence = %v, want 1.0", got)
	}
	if doc.Confidence != 0.91 {
		t.Fatalf("aggregate confidence = %v, want the remaining weakest field's 0.91", doc.Confidence)
	}
}

func TestResolveAlreadyResolvedIsNoOp(t *testing.T) {
	repo, exc := reviewDocWithException(domain.CategoryLowConfidence, "")
	exc.created[0].Status = domain.ExceptionResolved
	original := domain.Resolution{ResolvedBy: "first-reviewer", ResolvedAt: time.Now().UTC()}
	exc.created[0].Resolution = &original

	uc := NewResolveExceptionUseCase(exc, repo, NewAuditRecorder(nil, testLogger()), testLogger())
	result, err := uc.Resolve(context.Background(), "exc-1", ports.ResolveRequest{ResolvedBy: "second-reviewer"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Status != domain.ExceptionResolved {
		t.Fatalf("terminal status changed to %s", result.Status)
	}
	if result.Resolution.ResolvedBy != "first-reviewer" {
		t.Fatalf("resolution overwritten: %+v", result.Resolution)
	}
}

func TestResolveIgnoredExceptionIsConflict(t *testing.T) {
	repo, exc := reviewDocWithException(domain.CategoryLowConfidence, "")
	exc.created[0].Status = domain.ExceptionIgnored

	uc := NewResolveExceptionUseCase(exc, repo, NewAuditRecorder(nil, testLogger()), testLogger())
	_, err := uc.Resolve(context.Background(), "exc-1", ports.ResolveRequest{ResolvedBy: "analyst"})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict resolving an ignored exception, got %v", err)
	}
}

func TestIgnoreClosesWithoutCorrection(t *testing.T) {
	repo, exc := reviewDocWithException(domain.CategoryLowConfidence, "")
	uc := NewResolveExceptionUseCase(exc, repo, NewAuditRecorder(nil, testLogger()), testLogger())

	result, err := uc.Ignore(context.Background(), "exc-1", "false positive", "analyst")
	if err != nil {
		t.Fatalf("Ignore() error = %v", err)
	}
	if result.Status != domain.ExceptionIgnored {
		t.Fatalf("status = %s, want ignored", result.Status)
	}
	if got := repo.get("doc-1").ExtractedData["total_amount"]; got != nil {
		t.Fatalf("ignore must not write corrections, got %v", got)
	}
	if got := repo.get("doc-1").Status; got != domain.StatusNeedsReview {
		t.Fatalf("ignoring the last exception released the document, status = %s", got)
	}
}

func TestIgnoreRecordsAuditWithoutReleasingDocument(t *testing.T) {
	repo, exc := reviewDocWithException(domain.CategoryLowConfidence, "")
	auditRepo := &auditRepoFake{}
	uc := NewResolveExceptionUseCase(exc, repo, NewAuditRecorder(auditRepo, testLogger()), testLogger())

	if _, err := uc.Ignore(context.Background(), "exc-1", "false positive", "analyst"); err != nil {
		t.Fatalf("Ignore() error = %v", err)
	}

	actions := auditRepo.actions()
	if len(actions) != 1 || actions[0] != domain.AuditExceptionIgnored {
		t.Fatalf("audit actions = %v, want [exception_ignored]", actions)
	}
	if got := repo.get("doc-1").Status; got != domain.StatusNeedsReview {
		t.Fatalf("document status = %s, want needs_review after ignore", got)
	}
}

func TestDocumentStaysInReviewWhileExceptionsRemain(t *testing.T) {
	repo, exc := reviewDocWithException(domain.CategoryMissingField, "total_amount")
	exc.created = append(exc.created, domain.Exception{
		ID:         "exc-2",
		DocumentID: "doc-1",
		Category:   domain.CategoryLowConfidence,
		Status:     domain.ExceptionOpen,
	})

	uc := NewResolveExceptionUseCase(exc, repo, NewAuditRecorder(nil, testLogger()), testLogger())
	if _, err := uc.Ignore(context.Background(), "exc-1", "n/a", "analyst"); err != nil {
		t.Fatalf("Ignore() error = %v", err)
	}

	if got := repo.get("doc-1").Status; got != domain.StatusNeedsReview {
		t.Fatalf("document released with open exceptions remaining, status = %s", got)
	}
}

func TestBulkResolveReportsPartialFailure(t *testing.T) {
	repo, exc := reviewDocWithException(domain.CategoryLowConfidence, "")
	uc := NewResolveExceptionUseCase(exc, repo, NewAuditRecorder(nil, testLogger()), testLogger())

	result, err := uc.BulkResolve(context.Background(), []string{"exc-1", "missing-1", "missing-2"}, "batch close", "lead")
	if err != nil {
		t.Fatalf("BulkResolve() error = %v", err)
	}

	if result.TotalRequested != 3 {
		t.Fatalf("total = %d, want 3", result.TotalRequested)
	}
	if result.ResolvedCount != 1 {
		t.Fatalf("resolved = %d, want 1", result.ResolvedCount)
	}
	if len(result.FailedIDs) != 2 {
		t.Fatalf("failed ids = %v, want both missing ids", result.FailedIDs)
	}
}

func TestBulkResolveSkipsIgnoredException(t *testing.T) {
	repo, exc := reviewDocWithException(domain.CategoryLowConfidence, "")
	exc.created = append(exc.created,
		domain.Exception{ID: "exc-2", DocumentID: "doc-1", Category: domain.CategoryLowConfidence, Status: domain.ExceptionIgnored},
		domain.Exception{ID: "exc-3", DocumentID: "doc-1", Category: domain.CategoryLowConfidence, Status: domain.ExceptionOpen},
	)

	uc := NewResolveExceptionUseCase(exc, repo, NewAuditRecorder(nil, testLogger()), testLogger())
	result, err := uc.BulkResolve(context.Background(), []string{"exc-1", "exc-2", "exc-3"}, "batch close", "lead")
	if err != nil {
		t.Fatalf("BulkResolve() error = %v", err)
	}
	if result.ResolvedCount != 2 {
		t.Fatalf("resolved = %d, want 2", result.ResolvedCount)
	}
	if len(result.FailedIDs) != 1 || result.FailedIDs[0] != "exc-2" {
		t.Fatalf("failed ids = %v, want [exc-2]", result.FailedIDs)
	}
}
