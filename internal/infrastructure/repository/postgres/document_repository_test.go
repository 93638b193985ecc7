package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/docuflow/docuflow/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, storage_path, original_filename").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimProcessingReportsLostRace(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", int64(2), string(domain.StatusProcessing), sqlmock.AnyArg(),
			string(domain.StatusPending), string(domain.StatusFailed)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimProcessing(context.Background(), "doc-1", 2)
	if err != nil {
		t.Fatalf("ClaimProcessing() error = %v", err)
	}
	if claimed {
		t.Fatalf("expected claim to fail for stale generation")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimProcessingSucceeds(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", int64(1), string(domain.StatusProcessing), sqlmock.AnyArg(),
			string(domain.StatusPending), string(domain.StatusFailed)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ClaimProcessing(context.Background(), "doc-1", 1)
	if err != nil {
		t.Fatalf("ClaimProcessing() error = %v", err)
	}
	if !claimed {
		t.Fatalf("expected claim to succeed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFinalizeAttemptRefusesStaleGeneration(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          "doc-1",
		Status:      domain.StatusProcessed,
		DocType:     domain.DocTypeInvoice,
		Generation:  1,
		ProcessedAt: &now,
	}
	applied, err := repo.FinalizeAttempt(context.Background(), doc)
	if err != nil {
		t.Fatalf("FinalizeAttempt() error = %v", err)
	}
	if applied {
		t.Fatalf("expected finalize to be rejected")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStoragePathRefusesStaleGeneration(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", int64(1), "complete/doc-1.pdf", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.UpdateStoragePath(context.Background(), "doc-1", 1, "complete/doc-1.pdf")
	if err != nil {
		t.Fatalf("UpdateStoragePath() error = %v", err)
	}
	if applied {
		t.Fatalf("expected update to be rejected for stale generation")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReprocessRejectsNonTerminalDocument(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("UPDATE documents").
		WillReturnError(sql.ErrNoRows)

	rows := sqlmock.NewRows([]string{
		"id", "storage_path", "original_filename", "mime_type", "file_size_bytes", "doc_type", "status",
		"extracted_data", "field_confidences", "confidence", "processor_used", "processing_time_ms",
		"processing_error", "retry_count", "generation", "uploaded_by", "created_at", "processed_at", "updated_at",
	}).AddRow(
		"doc-1", "inbox/doc-1.pdf", "doc.pdf", "application/pdf", int64(10), "invoice", "processing",
		nil, nil, 0.0, "", int64(0), "", 0, int64(1), "", time.Now(), nil, time.Now(),
	)
	mock.ExpectQuery("SELECT id, storage_path, original_filename").
		WithArgs("doc-1").
		WillReturnRows(rows)

	_, err := repo.Reprocess(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListAppliesFiltersAndPagination(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents WHERE status = \$1`).
		WithArgs(string(domain.StatusNeedsReview)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	rows := sqlmock.NewRows([]string{
		"id", "storage_path", "original_filename", "mime_type", "file_size_bytes", "doc_type", "status",
		"extracted_data", "field_confidences", "confidence", "processor_used", "processing_time_ms",
		"processing_error", "retry_count", "generation", "uploaded_by", "created_at", "processed_at", "updated_at",
	}).AddRow(
		"doc-1", "inbox/doc-1.pdf", "doc.pdf", "application/pdf", int64(10), "invoice", "needs_review",
		[]byte(`{"total_amount": 100}`), []byte(`{"total_amount": 0.5}`), 0.5, "invoice_parser", int64(40),
		"", 0, int64(1), "", time.Now(), nil, time.Now(),
	)
	mock.ExpectQuery("SELECT id, storage_path, original_filename").
		WithArgs(string(domain.StatusNeedsReview), 25, 25).
		WillReturnRows(rows)

	docs, total, err := repo.List(context.Background(), domain.DocumentFilter{
		Status: domain.StatusNeedsReview,
		Page:   domain.Page{Number: 2, Size: 25},
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	if len(docs) != 1 || docs[0].ID != "doc-1" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if docs[0].ExtractedData["total_amount"] != float64(100) {
		t.Fatalf("extracted_data not decoded: %+v", docs[0].ExtractedData)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
