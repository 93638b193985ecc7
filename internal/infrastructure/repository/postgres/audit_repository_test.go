package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/docuflow/docuflow/internal/core/domain"
)

func newAuditRepoWithMock(t *testing.T) (*AuditRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &AuditRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestAuditRecordInsertsEntry(t *testing.T) {
	repo, mock, done := newAuditRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs("audit-1", "doc-1", string(domain.AuditDocumentProcessed), "system",
			[]byte(`{"confidence":0.95}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Record(context.Background(), domain.AuditEntry{
		ID:         "audit-1",
		DocumentID: "doc-1",
		Action:     domain.AuditDocumentProcessed,
		Actor:      "system",
		Details:    map[string]any{"confidence": 0.95},
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAuditListByDocumentDecodesDetails(t *testing.T) {
	repo, mock, done := newAuditRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_log`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	rows := sqlmock.NewRows([]string{"id", "document_id", "action", "actor", "details", "created_at"}).
		AddRow("audit-2", "doc-1", "document_processed", "system", []byte(`{"confidence":0.95}`), time.Now()).
		AddRow("audit-1", "doc-1", "document_uploaded", "analyst", nil, time.Now())
	mock.ExpectQuery("SELECT id, document_id, action, actor, details, created_at").
		WithArgs("doc-1", 50, 0).
		WillReturnRows(rows)

	entries, total, err := repo.ListByDocument(context.Background(), "doc-1", domain.Page{Number: 1, Size: 50})
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Action != domain.AuditDocumentProcessed {
		t.Fatalf("action = %s, want document_processed", entries[0].Action)
	}
	if entries[0].Details["confidence"] != 0.95 {
		t.Fatalf("details not decoded: %+v", entries[0].Details)
	}
	if entries[1].Details != nil {
		t.Fatalf("expected nil details, got %+v", entries[1].Details)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
