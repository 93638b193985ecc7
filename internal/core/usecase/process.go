package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

// RetryPolicy bounds how often a transient processing failure is retried
// before the event is dead-lettered.
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		MinDelay:    10 * time.Second,
		MaxDelay:    600 * time.Second,
	}
}

// Backoff returns the delay before the given attempt number is retried,
// doubling from MinDelay and capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.MinDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// StoragePrefixes is the object layout the router maintains: inbox objects
// move to the complete prefix once extracted. Failed documents keep their
// object in place so a later reprocess can re-read it.
type StoragePrefixes struct {
	Inbox    string
	Complete string
}

// ProcessDocumentUseCase drives one ingestion event through the extraction
// state machine: claim the document, run the adapter chain, score the
// result, and either finalize or schedule a retry.
type ProcessDocumentUseCase struct {
	repo        ports.DocumentRepository
	exceptions  ports.ExceptionRepository
	deadLetters ports.DeadLetterRepository
	settings    ports.SettingsRepository
	storage     ports.ObjectStorage
	queue       ports.MessageQueue
	chains      *ChainSelector
	evaluator   *ConfidenceEvaluator
	retry       RetryPolicy
	prefixes    StoragePrefixes
	audit       *AuditRecorder
	logger      *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	exceptions ports.ExceptionRepository,
	deadLetters ports.DeadLetterRepository,
	settings ports.SettingsRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	chains *ChainSelector,
	evaluator *ConfidenceEvaluator,
	retry RetryPolicy,
	prefixes StoragePrefixes,
	audit *AuditRecorder,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:        repo,
		exceptions:  exceptions,
		deadLetters: deadLetters,
		settings:    settings,
		storage:     storage,
		queue:       queue,
		chains:      chains,
		evaluator:   evaluator,
		retry:       retry,
		prefixes:    prefixes,
		audit:       audit,
		logger:      logger,
	}
}

// ProcessEvent handles one delivery of an ingestion event. Returning nil
// acknowledges the event; duplicates, stale generations, and exhausted
// retries are all acknowledged so the queue does not redeliver them.
func (uc *ProcessDocumentUseCase) ProcessEvent(ctx context.Context, event domain.IngestionEvent) error {
	doc, err := uc.repo.GetByID(ctx, event.DocumentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			uc.logger.Warn("dropping event for unknown document", "document_id", event.DocumentID)
			return nil
		}
		return fmt.Errorf("load document: %w", err)
	}

	if doc.Generation != event.DocGeneration {
		uc.logger.Debug("dropping stale event",
			"document_id", doc.ID, "event_generation", event.DocGeneration, "generation", doc.Generation)
		return nil
	}
	if doc.Status == domain.StatusProcessed || doc.Status == domain.StatusNeedsReview {
		// Duplicate delivery after the attempt already finished.
		return nil
	}

	claimed, err := uc.repo.ClaimProcessing(ctx, doc.ID, event.DocGeneration)
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		uc.logger.Debug("claim lost, dropping event", "document_id", doc.ID)
		return nil
	}

	settings, err := uc.settings.Get(ctx)
	if err != nil {
		uc.logger.Warn("settings unavailable, using defaults", "error", err)
		settings = domain.DefaultProcessingSettings()
	}

	start := time.Now()
	extraction, eval, docType, attemptErr := uc.runAttempt(ctx, doc, settings)
	elapsed := time.Since(start)

	if attemptErr != nil {
		if domain.IsKind(attemptErr, domain.ErrTemporary) {
			return uc.scheduleRetry(ctx, doc, event, attemptErr)
		}
		return uc.finalizePermanentFailure(ctx, doc, attemptErr, elapsed)
	}
	return uc.finalizeExtraction(ctx, doc, docType, extraction, eval, elapsed)
}

// runAttempt reads the object and walks the adapter chain. A transient
// adapter error is retried in place up to the settings budget; a permanent
// one advances to the next adapter. A successful extraction whose aggregate
// confidence misses the threshold also advances, keeping the best-scoring
// result so far; the first adapter to clear the threshold wins outright.
func (uc *ProcessDocumentUseCase) runAttempt(ctx context.Context, doc *domain.Document, settings domain.ProcessingSettings) (domain.Extraction, Evaluation, domain.DocType, error) {
	content, err := uc.readObject(ctx, doc.StoragePath)
	if err != nil {
		return domain.Extraction{}, Evaluation{}, doc.DocType, domain.TransientError("read object", err)
	}

	docType := doc.DocType
	if !docType.Known() {
		docType = domain.DetectDocType(doc.OriginalFilename, doc.MimeType, content)
	}

	chain := uc.chains.ChainFor(docType, doc.OriginalFilename)
	if len(chain) == 0 {
		return domain.Extraction{}, Evaluation{}, docType, domain.PermanentError("select chain", errors.New("no extraction adapter available"))
	}

	var (
		best     domain.Extraction
		bestEval Evaluation
		haveBest bool
		lastErr  error
	)
	sawTransient := false
	for i, adapter := range chain {
		extraction, err := uc.runAdapter(ctx, adapter, content, docType, settings.MaxAdapterRetries)
		if err != nil {
			lastErr = err
			if domain.IsKind(err, domain.ErrTemporary) {
				sawTransient = true
			}
			uc.logger.Info("adapter failed, advancing chain",
				"document_id", doc.ID, "adapter", string(adapter.Name()), "error", err)
			continue
		}

		eval := uc.evaluator.Evaluate(docType, extraction, settings)
		if eval.Confidence >= settings.ConfidenceThreshold {
			return extraction, eval, docType, nil
		}
		if !haveBest || eval.Confidence > bestEval.Confidence {
			best, bestEval, haveBest = extraction, eval, true
		}
		if i < len(chain)-1 {
			uc.logger.Info("confidence below threshold, escalating to next adapter",
				"document_id", doc.ID, "adapter", string(adapter.Name()), "confidence", eval.Confidence)
			uc.audit.Record(ctx, doc.ID, domain.AuditExtractionFallback, "", map[string]any{
				"adapter":    string(adapter.Name()),
				"confidence": eval.Confidence,
			})
		}
	}

	// Nothing cleared the threshold; the best shortfall is still a result
	// and its exceptions are the ones worth persisting.
	if haveBest {
		return best, bestEval, docType, nil
	}
	if sawTransient {
		return domain.Extraction{}, Evaluation{}, docType, domain.TransientError("extraction chain", lastErr)
	}
	return domain.Extraction{}, Evaluation{}, docType, domain.PermanentError("extraction chain", lastErr)
}

func (uc *ProcessDocumentUseCase) runAdapter(ctx context.Context, adapter ports.ExtractionAdapter, content []byte, docType domain.DocType, maxRetries int) (domain.Extraction, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		extraction, err := adapter.Extract(ctx, content, docType)
		if err == nil {
			return extraction, nil
		}
		lastErr = err
		if !domain.IsKind(err, domain.ErrTemporary) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return domain.Extraction{}, lastErr
}

func (uc *ProcessDocumentUseCase) readObject(ctx context.Context, key string) ([]byte, error) {
	r, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return content, nil
}

func (uc *ProcessDocumentUseCase) finalizeExtraction(ctx context.Context, doc *domain.Document, docType domain.DocType, extraction domain.Extraction, eval Evaluation, elapsed time.Duration) error {
	now := time.Now().UTC()

	doc.DocType = docType
	doc.Status = eval.Status
	doc.ExtractedData = extraction.Fields
	doc.FieldConfidences = extraction.FieldConfidences
	doc.Confidence = eval.Confidence
	doc.ProcessorUsed = extraction.Processor
	doc.ProcessingTimeMS = elapsed.Milliseconds()
	doc.ProcessingError = ""
	doc.ProcessedAt = &now

	applied, err := uc.repo.FinalizeAttempt(ctx, doc)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if !applied {
		// A stale-generation loser must leave no trace; the object stays
		// put for the newer generation's attempt to read.
		uc.logger.Info("finalize rejected, document was reprocessed concurrently", "document_id", doc.ID)
		return nil
	}

	// The object moves only after the conditional update applied, so a
	// stale worker racing a reprocess cannot strand the inbox object.
	priorPath := doc.StoragePath
	uc.relocateObject(ctx, doc, uc.prefixes.Complete)
	if doc.StoragePath != priorPath {
		if _, err := uc.repo.UpdateStoragePath(ctx, doc.ID, doc.Generation, doc.StoragePath); err != nil {
			uc.logger.Error("persist relocated path failed", "document_id", doc.ID, "error", err)
		}
	}

	if eval.Status == domain.StatusNeedsReview {
		exceptions := ExceptionsFromIssues(doc.ID, eval.Issues, now)
		if err := uc.exceptions.CreateBatch(ctx, exceptions); err != nil {
			uc.logger.Error("create exceptions failed", "document_id", doc.ID, "error", err)
		}
	}

	uc.publishTerminal(ctx, doc)
	uc.audit.Record(ctx, doc.ID, domain.AuditDocumentProcessed, "", map[string]any{
		"status":             string(doc.Status),
		"confidence":         doc.Confidence,
		"processor":          string(doc.ProcessorUsed),
		"processing_time_ms": doc.ProcessingTimeMS,
	})
	uc.logger.Info("document processed",
		"document_id", doc.ID, "status", string(doc.Status),
		"doc_type", string(doc.DocType), "confidence", doc.Confidence,
		"processor", string(doc.ProcessorUsed), "duration_ms", doc.ProcessingTimeMS)
	return nil
}

// finalizePermanentFailure ends the attempt without retrying: the content
// itself is unusable, so re-reading it cannot help.
func (uc *ProcessDocumentUseCase) finalizePermanentFailure(ctx context.Context, doc *domain.Document, attemptErr error, elapsed time.Duration) error {
	applied, err := uc.repo.RecordFailure(ctx, doc.ID, doc.Generation, attemptErr.Error(), doc.RetryCount)
	if err != nil {
		return fmt.Errorf("record permanent failure: %w", err)
	}
	if !applied {
		return nil
	}

	now := time.Now().UTC()
	exc := []domain.Exception{{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Category:   domain.CategoryProcessingFailure,
		Reason:     fmt.Sprintf("extraction failed: %v", attemptErr),
		Priority:   domain.PriorityCritical,
		Status:     domain.ExceptionOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}}
	if err := uc.exceptions.CreateBatch(ctx, exc); err != nil {
		uc.logger.Error("create failure exception failed", "document_id", doc.ID, "error", err)
	}

	doc.Status = domain.StatusFailed
	uc.publishTerminal(ctx, doc)
	uc.audit.Record(ctx, doc.ID, domain.AuditDocumentFailed, "", map[string]any{
		"error": attemptErr.Error(),
	})
	uc.logger.Warn("document failed permanently",
		"document_id", doc.ID, "error", attemptErr, "duration_ms", elapsed.Milliseconds())
	return nil
}

func (uc *ProcessDocumentUseCase) scheduleRetry(ctx context.Context, doc *domain.Document, event domain.IngestionEvent, attemptErr error) error {
	retryCount := doc.RetryCount + 1
	if _, err := uc.repo.RecordFailure(ctx, doc.ID, doc.Generation, attemptErr.Error(), retryCount); err != nil {
		return fmt.Errorf("record transient failure: %w", err)
	}

	if event.Attempt >= uc.retry.MaxAttempts {
		return uc.deadLetter(ctx, doc, event, attemptErr)
	}

	next := event
	next.Attempt++
	next.EnqueuedAt = time.Now().UTC()
	delay := uc.retry.Backoff(event.Attempt)
	if err := uc.queue.PublishIngestionAfter(ctx, next, delay); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}

	uc.logger.Warn("attempt failed, retry scheduled",
		"document_id", doc.ID, "attempt", event.Attempt, "delay", delay.String(), "error", attemptErr)
	return nil
}

func (uc *ProcessDocumentUseCase) deadLetter(ctx context.Context, doc *domain.Document, event domain.IngestionEvent, attemptErr error) error {
	entry := domain.DeadLetterEntry{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		StoragePath: doc.StoragePath,
		Event:       event,
		Attempts:    event.Attempt,
		LastError:   attemptErr.Error(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.deadLetters.Create(ctx, &entry); err != nil {
		return fmt.Errorf("store dead letter: %w", err)
	}
	if err := uc.queue.PublishDeadLetter(ctx, entry); err != nil {
		uc.logger.Error("publish dead letter failed", "document_id", doc.ID, "error", err)
	}

	doc.Status = domain.StatusFailed
	uc.publishTerminal(ctx, doc)
	uc.audit.Record(ctx, doc.ID, domain.AuditDocumentFailed, "", map[string]any{
		"error":    attemptErr.Error(),
		"attempts": event.Attempt,
	})
	uc.logger.Error("retry budget exhausted, event dead-lettered",
		"document_id", doc.ID, "attempts", event.Attempt, "error", attemptErr)
	return nil
}

// relocateObject moves inbox objects to a terminal prefix. Uploads and
// already-moved objects are left alone.
func (uc *ProcessDocumentUseCase) relocateObject(ctx context.Context, doc *domain.Document, toPrefix string) {
	if uc.prefixes.Inbox == "" || !strings.HasPrefix(doc.StoragePath, uc.prefixes.Inbox+"/") {
		return
	}
	newKey, err := uc.storage.Move(ctx, doc.StoragePath, toPrefix)
	if err != nil {
		uc.logger.Error("move object failed", "document_id", doc.ID, "from", doc.StoragePath, "error", err)
		return
	}
	doc.StoragePath = newKey
}

func (uc *ProcessDocumentUseCase) publishTerminal(ctx context.Context, doc *domain.Document) {
	event := domain.ProcessedEvent{
		DocumentID:  doc.ID,
		Status:      doc.Status,
		Generation:  doc.Generation,
		PublishedAt: time.Now().UTC(),
	}
	if err := uc.queue.PublishProcessed(ctx, event); err != nil {
		uc.logger.Error("publish processed event failed", "document_id", doc.ID, "error", err)
	}
}
