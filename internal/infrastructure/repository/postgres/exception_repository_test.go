package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/docuflow/docuflow/internal/core/domain"
)

func newExceptionRepoWithMock(t *testing.T) (*ExceptionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ExceptionRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestExceptionGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newExceptionRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, document_id, category").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrExceptionNotFound) {
		t.Fatalf("expected ErrExceptionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFinalizeSkipsAlreadyClosedException(t *testing.T) {
	repo, mock, done := newExceptionRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE exceptions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.Finalize(context.Background(), "exc-1", domain.ExceptionResolved, domain.Resolution{
		ResolvedBy: "analyst",
		ResolvedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if applied {
		t.Fatalf("expected finalize to be skipped for closed exception")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateBatchInsertsAllRows(t *testing.T) {
	repo, mock, done := newExceptionRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO exceptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO exceptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	err := repo.CreateBatch(context.Background(), []domain.Exception{
		{ID: "exc-1", DocumentID: "doc-1", Category: domain.CategoryMissingField,
			Reason: "required field absent", FieldName: "account_number",
			Priority: domain.PriorityHigh, Status: domain.ExceptionOpen, CreatedAt: now, UpdatedAt: now},
		{ID: "exc-2", DocumentID: "doc-1", Category: domain.CategoryLowConfidence,
			Reason: "confidence below threshold", Priority: domain.PriorityMedium,
			Status: domain.ExceptionOpen, CreatedAt: now, UpdatedAt: now},
	})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateBatchEmptyIsNoOp(t *testing.T) {
	repo, mock, done := newExceptionRepoWithMock(t)
	defer done()

	if err := repo.CreateBatch(context.Background(), nil); err != nil {
		t.Fatalf("CreateBatch(nil) error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
