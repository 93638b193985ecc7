package ports

import (
	"context"
	"io"

	"github.com/docuflow/docuflow/internal/core/domain"
)

// DocumentIngestor is the inbound contract for getting documents into the
// pipeline, either by direct upload or from an object-store notification.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType, uploadedBy string, body io.Reader) (*domain.Document, error)
	RegisterObject(ctx context.Context, notification domain.StorageNotification) (*domain.Document, bool, error)
}

// DocumentProcessor consumes ingestion events and drives the extraction
// state machine for one document end-to-end.
type DocumentProcessor interface {
	ProcessEvent(ctx context.Context, event domain.IngestionEvent) error
}

// ResolveRequest carries one exception resolution.
type ResolveRequest struct {
	CorrectedValue *string
	Notes          string
	ResolvedBy     string
}

// ExceptionResolver is the inbound contract for the exception workflow.
type ExceptionResolver interface {
	Resolve(ctx context.Context, exceptionID string, req ResolveRequest) (*domain.Exception, error)
	Ignore(ctx context.Context, exceptionID, reason, resolvedBy string) (*domain.Exception, error)
	BulkResolve(ctx context.Context, exceptionIDs []string, notes, resolvedBy string) (domain.BulkResolveResult, error)
}
