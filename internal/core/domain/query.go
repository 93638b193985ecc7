package domain

import "time"

// Page carries offset pagination. PageSize is clamped by the repositories.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

type DocumentFilter struct {
	Status   DocumentStatus
	DocType  DocType
	Search   string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     Page
}

type ExceptionFilter struct {
	Status     ExceptionStatus
	Category   ExceptionCategory
	Priority   ExceptionPriority
	DocumentID string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       Page
}

// DocumentMetrics aggregates the dashboard counters computed from the
// document store.
type DocumentMetrics struct {
	TotalDocuments      int64            `json:"total_documents"`
	ByStatus            map[string]int64 `json:"documents_by_status"`
	ByType              map[string]int64 `json:"documents_by_type"`
	ProcessorUsage      map[string]int64 `json:"processor_usage"`
	AvgConfidence       float64          `json:"avg_confidence"`
	AvgProcessingTimeMS float64          `json:"avg_processing_time_ms"`
	AutomationRate      float64          `json:"automation_rate"`
}

type ExceptionMetrics struct {
	TotalExceptions        int64            `json:"total_exceptions"`
	ByStatus               map[string]int64 `json:"exceptions_by_status"`
	ByCategory             map[string]int64 `json:"exceptions_by_category"`
	ByPriority             map[string]int64 `json:"exceptions_by_priority"`
	AvgResolutionTimeHours float64          `json:"avg_resolution_time_hours"`
	AutoResolvedCount      int64            `json:"auto_resolved_count"`
}

// TrendPoint is one bucket of the time-series returned by the trends
// endpoint.
type TrendPoint struct {
	Bucket         time.Time `json:"bucket"`
	Documents      int64     `json:"documents"`
	Processed      int64     `json:"processed"`
	NeedsReview    int64     `json:"needs_review"`
	Failed         int64     `json:"failed"`
	ExceptionsOpen int64     `json:"exceptions_opened"`
}

// BulkResolveResult reports the per-id outcome of a best-effort batch
// resolve. The batch never fails as a whole.
type BulkResolveResult struct {
	ResolvedCount  int      `json:"resolved_count"`
	FailedIDs      []string `json:"failed_ids"`
	TotalRequested int      `json:"total_requested"`
}
