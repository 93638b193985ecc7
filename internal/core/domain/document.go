package domain

import "time"

type DocumentStatus string

const (
	StatusPending     DocumentStatus = "pending"
	StatusProcessing  DocumentStatus = "processing"
	StatusProcessed   DocumentStatus = "processed"
	StatusNeedsReview DocumentStatus = "needs_review"
	StatusFailed      DocumentStatus = "failed"
)

// statusTransitions is the validated transition table for the document
// lifecycle. Reprocessing (terminal state back to pending) is handled
// separately because it must bump the processing generation.
var statusTransitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:     {StatusProcessing},
	StatusProcessing:  {StatusProcessed, StatusNeedsReview, StatusFailed},
	StatusFailed:      {StatusProcessing},
	StatusNeedsReview: {StatusProcessed},
	StatusProcessed:   {},
}

func (s DocumentStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal reports whether the status ends a processing attempt.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusProcessed, StatusNeedsReview, StatusFailed:
		return true
	default:
		return false
	}
}

func CanTransition(from, to DocumentStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ProcessorType string

const (
	ProcessorFormParser  ProcessorType = "form_parser"
	ProcessorInvoice     ProcessorType = "invoice_parser"
	ProcessorSpreadsheet ProcessorType = "spreadsheet"
	ProcessorPDFText     ProcessorType = "pdf_text"
	ProcessorLLM         ProcessorType = "llm"
	ProcessorManual      ProcessorType = "manual"
)

// Document is one uploaded file tracked through the pipeline.
type Document struct {
	ID               string             `json:"id"`
	StoragePath      string             `json:"storage_path"`
	OriginalFilename string             `json:"original_filename"`
	MimeType         string             `json:"mime_type,omitempty"`
	FileSizeBytes    int64              `json:"file_size_bytes,omitempty"`
	DocType          DocType            `json:"doc_type"`
	Status           DocumentStatus     `json:"status"`
	ExtractedData    map[string]any     `json:"extracted_data,omitempty"`
	FieldConfidences map[string]float64 `json:"field_confidences,omitempty"`
	Confidence       float64            `json:"confidence"`
	ProcessorUsed    ProcessorType      `json:"processor_used,omitempty"`
	ProcessingTimeMS int64              `json:"processing_time_ms,omitempty"`
	ProcessingError  string             `json:"processing_error,omitempty"`
	RetryCount       int                `json:"retry_count"`
	Generation       int64              `json:"generation"`
	UploadedBy       string             `json:"uploaded_by,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	ProcessedAt      *time.Time         `json:"processed_at,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}
