package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

// AuditRecorder writes audit trail entries best-effort: a failed write is
// logged and never fails the operation being audited. A nil recorder is a
// no-op, which keeps tests that do not care about the trail small.
type AuditRecorder struct {
	repo   ports.AuditRepository
	logger *slog.Logger
}

func NewAuditRecorder(repo ports.AuditRepository, logger *slog.Logger) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{repo: repo, logger: logger}
}

func (a *AuditRecorder) Record(ctx context.Context, documentID string, action domain.AuditAction, actor string, details map[string]any) {
	if a == nil || a.repo == nil {
		return
	}
	if actor == "" {
		actor = "system"
	}
	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Action:     action,
		Actor:      actor,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.repo.Record(ctx, entry); err != nil {
		a.logger.Error("audit record failed",
			"action", string(action), "document_id", documentID, "error", err)
	}
}
