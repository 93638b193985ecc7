package domain

import "time"

// AuditAction names one kind of recorded system or reviewer action.
type AuditAction string

const (
	AuditDocumentUploaded    AuditAction = "document_uploaded"
	AuditDocumentProcessed   AuditAction = "document_processed"
	AuditDocumentFailed      AuditAction = "document_failed"
	AuditDocumentReprocessed AuditAction = "document_reprocessed"
	AuditDocumentDeleted     AuditAction = "document_deleted"
	AuditExtractionFallback  AuditAction = "extraction_fallback"
	AuditExceptionResolved   AuditAction = "exception_resolved"
	AuditExceptionIgnored    AuditAction = "exception_ignored"
)

// AuditEntry is one row of the append-only audit trail. Entries are never
// updated or deleted; DocumentID may be empty for system-level actions.
type AuditEntry struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id,omitempty"`
	Action     AuditAction    `json:"action"`
	Actor      string         `json:"actor"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
