package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	audit   *AuditRecorder
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	audit *AuditRecorder,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		audit:   audit,
	}
}

// Upload stores a directly-uploaded document and enqueues its first
// processing attempt. Uploads bypass the inbox prefix so the watcher never
// sees them.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType, uploadedBy string,
	body io.Reader,
) (*domain.Document, error) {
	id := uuid.NewString()
	storageKey := fmt.Sprintf("uploads/%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:               id,
		StoragePath:      storageKey,
		OriginalFilename: filename,
		MimeType:         mimeType,
		DocType:          domain.DetectDocType(filename, mimeType, nil),
		Status:           domain.StatusPending,
		Generation:       1,
		UploadedBy:       uploadedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.publishFirstAttempt(ctx, doc, now.UnixNano()); err != nil {
		return nil, err
	}
	uc.audit.Record(ctx, doc.ID, domain.AuditDocumentUploaded, uploadedBy, map[string]any{
		"filename": filename,
		"source":   "upload",
	})
	return doc, nil
}

// RegisterObject records an object-store notification as a document and
// enqueues processing. A notification for an already-registered storage
// path is a no-op, which makes redelivered notifications and overlapping
// watcher polls safe. The boolean reports whether a new document was
// created.
func (uc *IngestDocumentUseCase) RegisterObject(ctx context.Context, notification domain.StorageNotification) (*domain.Document, bool, error) {
	existing, err := uc.repo.GetByStoragePath(ctx, notification.ObjectPath)
	if err == nil {
		return existing, false, nil
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return nil, false, fmt.Errorf("check existing document: %w", err)
	}

	now := time.Now().UTC()
	filename := filepath.Base(notification.ObjectPath)
	doc := &domain.Document{
		ID:               uuid.NewString(),
		StoragePath:      notification.ObjectPath,
		OriginalFilename: filename,
		MimeType:         notification.ContentType,
		FileSizeBytes:    notification.Size,
		DocType:          domain.DetectDocType(filename, notification.ContentType, nil),
		Status:           domain.StatusPending,
		Generation:       1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		if domain.IsKind(err, domain.ErrConflict) {
			// Lost a race with a concurrent registration of the same object.
			existing, getErr := uc.repo.GetByStoragePath(ctx, notification.ObjectPath)
			if getErr != nil {
				return nil, false, fmt.Errorf("reload raced document: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.publishFirstAttempt(ctx, doc, notification.Generation); err != nil {
		return nil, false, err
	}
	uc.audit.Record(ctx, doc.ID, domain.AuditDocumentUploaded, "", map[string]any{
		"filename": filename,
		"source":   "watcher",
	})
	return doc, true, nil
}

func (uc *IngestDocumentUseCase) publishFirstAttempt(ctx context.Context, doc *domain.Document, objectGeneration int64) error {
	event := domain.IngestionEvent{
		DocumentID:       doc.ID,
		StoragePath:      doc.StoragePath,
		ObjectGeneration: objectGeneration,
		DocGeneration:    doc.Generation,
		Attempt:          1,
		EnqueuedAt:       time.Now().UTC(),
	}
	if err := uc.queue.PublishIngestion(ctx, event); err != nil {
		return fmt.Errorf("publish ingestion event: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
