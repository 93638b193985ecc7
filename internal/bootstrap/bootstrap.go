package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuflow/docuflow/internal/config"
	"github.com/docuflow/docuflow/internal/core/ports"
	"github.com/docuflow/docuflow/internal/core/usecase"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/formparser"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/invoice"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/llm"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/pdftext"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/spreadsheet"
	"github.com/docuflow/docuflow/internal/infrastructure/queue/nats"
	"github.com/docuflow/docuflow/internal/infrastructure/repository/postgres"
	"github.com/docuflow/docuflow/internal/infrastructure/resilience"
	"github.com/docuflow/docuflow/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   *nats.Queue
	Storage ports.ObjectStorage

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	ManageUC  *usecase.ManageDocumentsUseCase
	ResolveUC ports.ExceptionResolver

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	documents := postgres.NewDocumentRepository(db)
	exceptions := postgres.NewExceptionRepository(db)
	deadLetters := postgres.NewDeadLetterRepository(db)
	settings := postgres.NewSettingsRepository(db)
	auditLog := postgres.NewAuditRepository(db)

	if err := documents.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure documents schema: %w", err)
	}
	if err := exceptions.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure exceptions schema: %w", err)
	}
	if err := deadLetters.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure dead letter schema: %w", err)
	}
	if err := settings.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure settings schema: %w", err)
	}
	if err := auditLog.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath, cfg.InboxPrefix)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
		Ingest:     cfg.IngestSubject,
		Processed:  cfg.ProcessedSubject,
		DeadLetter: cfg.DeadLetterSubject,
	}, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	llmClient := llm.NewClient(
		cfg.LLMURL,
		cfg.LLMModel,
		cfg.LLMTimeout,
		resilience.NewExecutor(resilience.DefaultConfig()),
	)

	chains := usecase.NewChainSelector(
		pdftext.New(),
		formparser.New(),
		invoice.New(),
		spreadsheet.New(),
		llm.NewExtractor(llmClient),
	)

	retry := usecase.RetryPolicy{
		MaxAttempts: cfg.QueueMaxAttempts,
		MinDelay:    cfg.QueueRetryMinDelay,
		MaxDelay:    cfg.QueueRetryMaxDelay,
	}
	if retry.MaxAttempts <= 0 {
		retry = usecase.DefaultRetryPolicy()
	}

	audit := usecase.NewAuditRecorder(auditLog, logger)

	ingestUC := usecase.NewIngestDocumentUseCase(documents, storage, queue, audit)
	processUC := usecase.NewProcessDocumentUseCase(
		documents,
		exceptions,
		deadLetters,
		settings,
		storage,
		queue,
		chains,
		usecase.NewConfidenceEvaluator(),
		retry,
		usecase.StoragePrefixes{
			Inbox:    cfg.InboxPrefix,
			Complete: cfg.CompletePrefix,
		},
		audit,
		logger,
	)
	manageUC := usecase.NewManageDocumentsUseCase(documents, exceptions, deadLetters, settings, queue, auditLog, audit, logger)
	resolveUC := usecase.NewResolveExceptionUseCase(exceptions, documents, audit, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:   queue,
		Storage: storage,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		ManageUC:  manageUC,
		ResolveUC: resolveUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
