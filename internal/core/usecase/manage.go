package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

// ManageDocumentsUseCase backs the read and administrative API surface:
// listing, review edits, reprocessing, metrics, and settings.
type ManageDocumentsUseCase struct {
	documents   ports.DocumentRepository
	exceptions  ports.ExceptionRepository
	deadLetters ports.DeadLetterRepository
	settings    ports.SettingsRepository
	queue       ports.MessageQueue
	auditLog    ports.AuditRepository
	audit       *AuditRecorder
	logger      *slog.Logger
}

func NewManageDocumentsUseCase(
	documents ports.DocumentRepository,
	exceptions ports.ExceptionRepository,
	deadLetters ports.DeadLetterRepository,
	settings ports.SettingsRepository,
	queue ports.MessageQueue,
	auditLog ports.AuditRepository,
	audit *AuditRecorder,
	logger *slog.Logger,
) *ManageDocumentsUseCase {
	return &ManageDocumentsUseCase{
		documents:   documents,
		exceptions:  exceptions,
		deadLetters: deadLetters,
		settings:    settings,
		queue:       queue,
		auditLog:    auditLog,
		audit:       audit,
		logger:      logger,
	}
}

func (uc *ManageDocumentsUseCase) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return uc.documents.GetByID(ctx, id)
}

func (uc *ManageDocumentsUseCase) ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, int64, error) {
	return uc.documents.List(ctx, filter)
}

// UpdateReview applies manual edits from the review UI. Status changes are
// checked against the lifecycle transition table.
func (uc *ManageDocumentsUseCase) UpdateReview(ctx context.Context, id string, patch ports.DocumentPatch) (*domain.Document, error) {
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, domain.WrapError(domain.ErrInvalidInput, "update review",
				fmt.Errorf("unknown status %q", string(*patch.Status)))
		}
		doc, err := uc.documents.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.Status != *patch.Status && !domain.CanTransition(doc.Status, *patch.Status) {
			return nil, domain.WrapError(domain.ErrConflict, "update review",
				fmt.Errorf("cannot move document from %s to %s", doc.Status, *patch.Status))
		}
	}
	if patch.DocType != nil && !patch.DocType.Known() && *patch.DocType != domain.DocTypeOther {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update review",
			fmt.Errorf("unknown document type %q", string(*patch.DocType)))
	}
	return uc.documents.UpdateReview(ctx, id, patch)
}

// Reprocess resets a terminal document and enqueues a fresh attempt under
// the bumped generation.
func (uc *ManageDocumentsUseCase) Reprocess(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := uc.documents.Reprocess(ctx, id)
	if err != nil {
		return nil, err
	}

	event := domain.IngestionEvent{
		DocumentID:    doc.ID,
		StoragePath:   doc.StoragePath,
		DocGeneration: doc.Generation,
		Attempt:       1,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := uc.queue.PublishIngestion(ctx, event); err != nil {
		return nil, fmt.Errorf("publish reprocess event: %w", err)
	}

	uc.audit.Record(ctx, doc.ID, domain.AuditDocumentReprocessed, "", map[string]any{
		"generation": doc.Generation,
	})
	uc.logger.Info("document queued for reprocessing", "document_id", doc.ID, "generation", doc.Generation)
	return doc, nil
}

func (uc *ManageDocumentsUseCase) DeleteDocument(ctx context.Context, id string) error {
	if err := uc.documents.Delete(ctx, id); err != nil {
		return err
	}
	uc.audit.Record(ctx, id, domain.AuditDocumentDeleted, "", nil)
	return nil
}

// DocumentAudit returns the recorded audit trail for one document, newest
// first.
func (uc *ManageDocumentsUseCase) DocumentAudit(ctx context.Context, id string, page domain.Page) ([]domain.AuditEntry, int64, error) {
	if _, err := uc.documents.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return uc.auditLog.ListByDocument(ctx, id, page)
}

func (uc *ManageDocumentsUseCase) GetException(ctx context.Context, id string) (*domain.Exception, error) {
	return uc.exceptions.GetByID(ctx, id)
}

func (uc *ManageDocumentsUseCase) ListExceptions(ctx context.Context, filter domain.ExceptionFilter) ([]domain.Exception, int64, error) {
	return uc.exceptions.List(ctx, filter)
}

// TriageException moves an exception between non-terminal workflow states
// or adjusts its priority.
func (uc *ManageDocumentsUseCase) TriageException(ctx context.Context, id string, status *domain.ExceptionStatus, priority *domain.ExceptionPriority) (*domain.Exception, error) {
	if status != nil {
		if !status.Valid() {
			return nil, domain.WrapError(domain.ErrInvalidInput, "triage exception",
				fmt.Errorf("unknown status %q", string(*status)))
		}
		if status.Terminal() {
			return nil, domain.WrapError(domain.ErrInvalidInput, "triage exception",
				fmt.Errorf("use the resolve or ignore endpoint to close an exception"))
		}
	}
	return uc.exceptions.UpdateTriage(ctx, id, status, priority)
}

func (uc *ManageDocumentsUseCase) ListDeadLetters(ctx context.Context, page domain.Page) ([]domain.DeadLetterEntry, int64, error) {
	return uc.deadLetters.List(ctx, page)
}

// Dashboard is the combined metrics payload for the operations view.
type Dashboard struct {
	Documents  domain.DocumentMetrics  `json:"documents"`
	Exceptions domain.ExceptionMetrics `json:"exceptions"`
	Since      time.Time               `json:"since"`
}

func (uc *ManageDocumentsUseCase) DashboardMetrics(ctx context.Context, since time.Time) (Dashboard, error) {
	docMetrics, err := uc.documents.DashboardMetrics(ctx, since)
	if err != nil {
		return Dashboard{}, fmt.Errorf("document metrics: %w", err)
	}
	excMetrics, err := uc.exceptions.Metrics(ctx, since)
	if err != nil {
		return Dashboard{}, fmt.Errorf("exception metrics: %w", err)
	}
	return Dashboard{Documents: docMetrics, Exceptions: excMetrics, Since: since}, nil
}

func (uc *ManageDocumentsUseCase) Trends(ctx context.Context, since time.Time, granularity string) ([]domain.TrendPoint, error) {
	return uc.documents.Trends(ctx, since, granularity)
}

func (uc *ManageDocumentsUseCase) GetSettings(ctx context.Context) (domain.ProcessingSettings, error) {
	return uc.settings.Get(ctx)
}

func (uc *ManageDocumentsUseCase) UpdateSettings(ctx context.Context, settings domain.ProcessingSettings) (domain.ProcessingSettings, error) {
	if settings.ConfidenceThreshold < 0 || settings.ConfidenceThreshold > 1 {
		return domain.ProcessingSettings{}, domain.WrapError(domain.ErrInvalidInput, "update settings",
			fmt.Errorf("confidence threshold %g is outside [0, 1]", settings.ConfidenceThreshold))
	}
	settings = settings.Normalize()
	if err := uc.settings.Save(ctx, settings); err != nil {
		return domain.ProcessingSettings{}, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}
