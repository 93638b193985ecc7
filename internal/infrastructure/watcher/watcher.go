package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/docuflow/docuflow/internal/core/ports"
)

// Watcher polls the object store inbox and registers new objects with the
// ingestion pipeline. Registration is idempotent, so seeing the same object
// on consecutive polls (or from two watcher replicas) is harmless.
type Watcher struct {
	storage  ports.ObjectStorage
	ingestor ports.DocumentIngestor
	interval time.Duration
	logger   *slog.Logger

	// pendingSizes tracks object sizes between polls so an object is only
	// registered once its size has been stable for one full interval.
	pendingSizes map[string]int64
}

func New(storage ports.ObjectStorage, ingestor ports.DocumentIngestor, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watcher{
		storage:      storage,
		ingestor:     ingestor,
		interval:     interval,
		logger:       logger,
		pendingSizes: make(map[string]int64),
	}
}

// Run polls until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	notifications, err := w.storage.ListInbox(ctx)
	if err != nil {
		w.logger.Error("inbox poll failed", "error", err)
		return
	}

	seen := make(map[string]struct{}, len(notifications))
	for _, n := range notifications {
		seen[n.ObjectPath] = struct{}{}

		last, known := w.pendingSizes[n.ObjectPath]
		if !known || last != n.Size {
			w.pendingSizes[n.ObjectPath] = n.Size
			continue
		}

		doc, created, err := w.ingestor.RegisterObject(ctx, n)
		if err != nil {
			w.logger.Error("register inbox object failed", "object", n.ObjectPath, "error", err)
			continue
		}
		if created {
			w.logger.Info("inbox object registered",
				"object", n.ObjectPath, "document_id", doc.ID, "size", n.Size)
		}
	}

	for path := range w.pendingSizes {
		if _, ok := seen[path]; !ok {
			delete(w.pendingSizes, path)
		}
	}
}

// PollOnce drives a single poll cycle. Used by tests and the worker's
// initial sweep at startup.
func (w *Watcher) PollOnce(ctx context.Context) {
	w.poll(ctx)
}
