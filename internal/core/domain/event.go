package domain

import "time"

// IngestionEvent is the at-least-once message driving one processing attempt.
// Consumers deduplicate on (StoragePath, ObjectGeneration) against the
// document store; DocGeneration disambiguates reprocess requests.
type IngestionEvent struct {
	DocumentID       string    `json:"document_id"`
	StoragePath      string    `json:"storage_path"`
	ObjectGeneration int64     `json:"object_generation"`
	DocGeneration    int64     `json:"doc_generation"`
	Attempt          int       `json:"attempt"`
	EnqueuedAt       time.Time `json:"enqueued_at"`

	// NotBefore delays a retried event: consumers that see it early must
	// redeliver instead of processing. Zero means deliver immediately.
	NotBefore time.Time `json:"not_before"`
}

// StorageNotification is the finalize notification consumed from the object
// store collaborator for objects created under the inbox prefix.
type StorageNotification struct {
	Bucket      string
	ObjectPath  string
	Generation  int64
	Size        int64
	ContentType string
}

// ProcessedEvent is published for downstream consumers once a document
// reaches a terminal state.
type ProcessedEvent struct {
	DocumentID  string         `json:"document_id"`
	Status      DocumentStatus `json:"status"`
	Generation  int64          `json:"generation"`
	PublishedAt time.Time      `json:"published_at"`
}

// DeadLetterEntry records an ingestion event that exhausted its retry
// budget. Entries are retained for manual inspection and never dropped.
type DeadLetterEntry struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	StoragePath string         `json:"storage_path"`
	Event       IngestionEvent `json:"event"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error"`
	CreatedAt   time.Time      `json:"created_at"`
}
