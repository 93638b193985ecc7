package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docuflow/docuflow/internal/bootstrap"
	"github.com/docuflow/docuflow/internal/config"
	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/infrastructure/watcher"
	"github.com/docuflow/docuflow/internal/observability/logging"
	"github.com/docuflow/docuflow/internal/observability/metrics"
)

const serviceName = "docuflow-worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	inboxWatcher := watcher.New(app.Storage, app.IngestUC, cfg.WatcherInterval, logger)
	inboxWatcher.PollOnce(ctx)
	go inboxWatcher.Run(ctx)

	log.Printf("worker subscribed to %s", cfg.IngestSubject)
	err = app.Queue.SubscribeIngestion(ctx, cfg.WorkerCount, func(handlerCtx context.Context, event domain.IngestionEvent) error {
		workerMetrics.ObserveQueueLag(serviceName, time.Since(event.EnqueuedAt))
		workerMetrics.StartDocument()
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.ProcessTimeout)
		defer cancel()
		processErr := app.ProcessUC.ProcessEvent(processCtx, event)

		status := "success"
		if processErr != nil {
			status = "error"
		}
		workerMetrics.FinishDocument(serviceName, status, time.Since(start))
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
