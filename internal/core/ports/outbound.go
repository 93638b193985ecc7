package ports

import (
	"context"
	"io"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
)

// DocumentRepository persists and reads document state. All mutations of an
// in-flight attempt are single-row conditional updates keyed by
// (id, generation, expected prior status); the boolean result reports
// whether the row was actually claimed, so callers can detect lost races
// and stale generations without locks.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByStoragePath(ctx context.Context, storagePath string) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, int64, error)

	ClaimProcessing(ctx context.Context, id string, generation int64) (bool, error)
	FinalizeAttempt(ctx context.Context, doc *domain.Document) (bool, error)
	RecordFailure(ctx context.Context, id string, generation int64, errMessage string, retryCount int) (bool, error)
	Reprocess(ctx context.Context, id string) (*domain.Document, error)
	UpdateStoragePath(ctx context.Context, id string, generation int64, storagePath string) (bool, error)

	UpdateReview(ctx context.Context, id string, patch DocumentPatch) (*domain.Document, error)
	SaveCorrection(ctx context.Context, id string, generation int64, fields map[string]any, fieldConfidences map[string]float64, confidence float64, status domain.DocumentStatus) (bool, error)
	Delete(ctx context.Context, id string) error

	DashboardMetrics(ctx context.Context, since time.Time) (domain.DocumentMetrics, error)
	Trends(ctx context.Context, since time.Time, granularity string) ([]domain.TrendPoint, error)
}

// DocumentPatch carries the limited manual edits allowed over the API.
// Nil fields are left untouched.
type DocumentPatch struct {
	DocType       *domain.DocType
	Status        *domain.DocumentStatus
	ExtractedData map[string]any
	ReviewedBy    *string
}

// ExceptionRepository persists the exception audit trail. Exceptions are
// never deleted; Finalize refuses documents already in a terminal status.
type ExceptionRepository interface {
	CreateBatch(ctx context.Context, exceptions []domain.Exception) error
	GetByID(ctx context.Context, id string) (*domain.Exception, error)
	List(ctx context.Context, filter domain.ExceptionFilter) ([]domain.Exception, int64, error)
	UpdateTriage(ctx context.Context, id string, status *domain.ExceptionStatus, priority *domain.ExceptionPriority) (*domain.Exception, error)
	Finalize(ctx context.Context, id string, status domain.ExceptionStatus, res domain.Resolution) (bool, error)
	CountOpen(ctx context.Context, documentID string) (int, error)
	Metrics(ctx context.Context, since time.Time) (domain.ExceptionMetrics, error)
}

// DeadLetterRepository retains exhausted ingestion events for inspection.
type DeadLetterRepository interface {
	Create(ctx context.Context, entry *domain.DeadLetterEntry) error
	List(ctx context.Context, page domain.Page) ([]domain.DeadLetterEntry, int64, error)
}

// AuditRepository stores the append-only audit trail.
type AuditRepository interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
	ListByDocument(ctx context.Context, documentID string, page domain.Page) ([]domain.AuditEntry, int64, error)
}

// SettingsRepository reads and writes the persisted processing settings.
type SettingsRepository interface {
	Get(ctx context.Context) (domain.ProcessingSettings, error)
	Save(ctx context.Context, settings domain.ProcessingSettings) error
}

// ObjectStorage stores source documents and supports the inbox layout.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Move(ctx context.Context, key, toPrefix string) (string, error)
	ListInbox(ctx context.Context) ([]domain.StorageNotification, error)
}

// MessageQueue carries ingestion events and terminal-state notifications.
// Delivery is at-least-once; consumers must be idempotent.
type MessageQueue interface {
	PublishIngestion(ctx context.Context, event domain.IngestionEvent) error
	PublishIngestionAfter(ctx context.Context, event domain.IngestionEvent, delay time.Duration) error
	SubscribeIngestion(ctx context.Context, workers int, handler func(context.Context, domain.IngestionEvent) error) error
	PublishProcessed(ctx context.Context, event domain.ProcessedEvent) error
	PublishDeadLetter(ctx context.Context, entry domain.DeadLetterEntry) error
}

// ExtractionAdapter is one capability in the extraction chain. Adapters are
// stateless; retry and timeout policy belongs to the processing router.
type ExtractionAdapter interface {
	Name() domain.ProcessorType
	Extract(ctx context.Context, content []byte, docType domain.DocType) (domain.Extraction, error)
}
