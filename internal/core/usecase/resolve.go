package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

// ResolveExceptionUseCase runs the manual review workflow. Resolving and
// ignoring are idempotent against re-submission of the same terminal state;
// closing into the other terminal state is a conflict.
type ResolveExceptionUseCase struct {
	exceptions ports.ExceptionRepository
	documents  ports.DocumentRepository
	audit      *AuditRecorder
	logger     *slog.Logger
}

func NewResolveExceptionUseCase(
	exceptions ports.ExceptionRepository,
	documents ports.DocumentRepository,
	audit *AuditRecorder,
	logger *slog.Logger,
) *ResolveExceptionUseCase {
	return &ResolveExceptionUseCase{
		exceptions: exceptions,
		documents:  documents,
		audit:      audit,
		logger:     logger,
	}
}

func (uc *ResolveExceptionUseCase) Resolve(ctx context.Context, exceptionID string, req ports.ResolveRequest) (*domain.Exception, error) {
	return uc.close(ctx, exceptionID, domain.ExceptionResolved, domain.Resolution{
		CorrectedValue: req.CorrectedValue,
		Notes:          req.Notes,
		ResolvedBy:     req.ResolvedBy,
		ResolvedAt:     time.Now().UTC(),
	})
}

func (uc *ResolveExceptionUseCase) Ignore(ctx context.Context, exceptionID, reason, resolvedBy string) (*domain.Exception, error) {
	return uc.close(ctx, exceptionID, domain.ExceptionIgnored, domain.Resolution{
		Notes:      reason,
		ResolvedBy: resolvedBy,
		ResolvedAt: time.Now().UTC(),
	})
}

func (uc *ResolveExceptionUseCase) close(ctx context.Context, exceptionID string, status domain.ExceptionStatus, res domain.Resolution) (*domain.Exception, error) {
	exc, err := uc.exceptions.GetByID(ctx, exceptionID)
	if err != nil {
		return nil, err
	}
	if exc.Status.Terminal() {
		if exc.Status == status {
			return exc, nil
		}
		return nil, domain.WrapError(domain.ErrConflict, "close exception",
			fmt.Errorf("exception %s is already %s", exceptionID, exc.Status))
	}

	applied, err := uc.exceptions.Finalize(ctx, exceptionID, status, res)
	if err != nil {
		return nil, fmt.Errorf("finalize exception: %w", err)
	}
	if !applied {
		// Raced with another reviewer; the stored terminal record wins.
		stored, err := uc.exceptions.GetByID(ctx, exceptionID)
		if err != nil {
			return nil, err
		}
		if stored.Status == status {
			return stored, nil
		}
		return nil, domain.WrapError(domain.ErrConflict, "close exception",
			fmt.Errorf("exception %s is already %s", exceptionID, stored.Status))
	}

	action := domain.AuditExceptionIgnored
	if status == domain.ExceptionResolved {
		action = domain.AuditExceptionResolved
		if res.CorrectedValue != nil && exc.FieldScoped() {
			if err := uc.applyCorrection(ctx, exc, *res.CorrectedValue); err != nil {
				uc.logger.Error("apply correction failed",
					"exception_id", exceptionID, "document_id", exc.DocumentID, "error", err)
			}
		}
		// Ignoring an exception leaves the document in review; only a
		// resolution can release it.
		if err := uc.maybeReleaseDocument(ctx, exc.DocumentID); err != nil {
			uc.logger.Error("release document failed",
				"exception_id", exceptionID, "document_id", exc.DocumentID, "error", err)
		}
	}

	uc.audit.Record(ctx, exc.DocumentID, action, res.ResolvedBy, map[string]any{
		"exception_id": exceptionID,
		"category":     string(exc.Category),
	})

	return uc.exceptions.GetByID(ctx, exceptionID)
}

// applyCorrection writes the reviewer's value into the document's extracted
// data with full confidence for that field.
func (uc *ResolveExceptionUseCase) applyCorrection(ctx context.Context, exc *domain.Exception, corrected string) error {
	doc, err := uc.documents.GetByID(ctx, exc.DocumentID)
	if err != nil {
		return err
	}

	fields := doc.ExtractedData
	if fields == nil {
		fields = make(map[string]any)
	}
	fields[exc.FieldName] = coerceCorrectedValue(corrected)

	confidences := doc.FieldConfidences
	if confidences == nil {
		confidences = make(map[string]float64)
	}
	confidences[exc.FieldName] = 1.0
	confidence := AggregateConfidence(doc.DocType, fields, confidences)

	applied, err := uc.documents.SaveCorrection(ctx, doc.ID, doc.Generation, fields, confidences, confidence, doc.Status)
	if err != nil {
		return fmt.Errorf("save correction: %w", err)
	}
	if !applied {
		return domain.WrapError(domain.ErrStaleGeneration, "save correction",
			fmt.Errorf("document %s was reprocessed during review", doc.ID))
	}
	return nil
}

// maybeReleaseDocument promotes a needs_review document to processed once
// its last open exception is closed.
func (uc *ResolveExceptionUseCase) maybeReleaseDocument(ctx context.Context, documentID string) error {
	open, err := uc.exceptions.CountOpen(ctx, documentID)
	if err != nil {
		return fmt.Errorf("count open exceptions: %w", err)
	}
	if open > 0 {
		return nil
	}

	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != domain.StatusNeedsReview {
		return nil
	}

	status := domain.StatusProcessed
	if _, err := uc.documents.UpdateReview(ctx, documentID, ports.DocumentPatch{Status: &status}); err != nil {
		return fmt.Errorf("promote document: %w", err)
	}
	uc.logger.Info("document released from review", "document_id", documentID)
	return nil
}

// BulkResolve closes a batch best-effort; individual failures are reported
// per id instead of failing the batch.
func (uc *ResolveExceptionUseCase) BulkResolve(ctx context.Context, exceptionIDs []string, notes, resolvedBy string) (domain.BulkResolveResult, error) {
	result := domain.BulkResolveResult{TotalRequested: len(exceptionIDs)}
	for _, id := range exceptionIDs {
		_, err := uc.Resolve(ctx, id, ports.ResolveRequest{Notes: notes, ResolvedBy: resolvedBy})
		if err != nil {
			result.FailedIDs = append(result.FailedIDs, id)
			uc.logger.Warn("bulk resolve item failed", "exception_id", id, "error", err)
			continue
		}
		result.ResolvedCount++
	}
	return result, nil
}

// coerceCorrectedValue keeps corrected numerics numeric so validation rules
// keep working after a correction.
func coerceCorrectedValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
