package domain

import "time"

type ExceptionStatus string

const (
	ExceptionOpen     ExceptionStatus = "open"
	ExceptionInReview ExceptionStatus = "in_review"
	ExceptionResolved ExceptionStatus = "resolved"
	ExceptionIgnored  ExceptionStatus = "ignored"
)

func (s ExceptionStatus) Terminal() bool {
	return s == ExceptionResolved || s == ExceptionIgnored
}

var exceptionTransitions = map[ExceptionStatus][]ExceptionStatus{
	ExceptionOpen:     {ExceptionInReview, ExceptionResolved, ExceptionIgnored},
	ExceptionInReview: {ExceptionResolved, ExceptionIgnored},
	ExceptionResolved: {},
	ExceptionIgnored:  {},
}

func (s ExceptionStatus) Valid() bool {
	_, ok := exceptionTransitions[s]
	return ok
}

func CanTransitionException(from, to ExceptionStatus) bool {
	for _, next := range exceptionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ExceptionCategory string

const (
	CategoryValidationError   ExceptionCategory = "validation_error"
	CategoryExtractionError   ExceptionCategory = "extraction_error"
	CategoryLowConfidence     ExceptionCategory = "low_confidence"
	CategoryMissingField      ExceptionCategory = "missing_field"
	CategoryInvalidFormat     ExceptionCategory = "invalid_format"
	CategoryBusinessRule      ExceptionCategory = "business_rule"
	CategoryCrossField        ExceptionCategory = "cross_field"
	CategoryUnknownDocType    ExceptionCategory = "unknown_doc_type"
	CategoryProcessingFailure ExceptionCategory = "processing_failure"
	CategoryOther             ExceptionCategory = "other"
)

type ExceptionPriority string

const (
	PriorityLow      ExceptionPriority = "low"
	PriorityMedium   ExceptionPriority = "medium"
	PriorityHigh     ExceptionPriority = "high"
	PriorityCritical ExceptionPriority = "critical"
)

// Rank orders priorities for sorting, critical first.
func (p ExceptionPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Resolution is the audit record attached once an exception leaves the
// open/in_review states. It is never mutated afterwards.
type Resolution struct {
	CorrectedValue *string   `json:"corrected_value,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	ResolvedBy     string    `json:"resolved_by"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// Exception is one detected data-quality anomaly tied to a document,
// optionally scoped to a single extracted field. Exceptions are append-only:
// a terminal exception is never reopened, follow-up work creates a new one.
type Exception struct {
	ID                  string            `json:"id"`
	DocumentID          string            `json:"document_id"`
	Category            ExceptionCategory `json:"category"`
	Reason              string            `json:"reason"`
	FieldName           string            `json:"field_name,omitempty"`
	ExpectedValue       string            `json:"expected_value,omitempty"`
	ActualValue         string            `json:"actual_value,omitempty"`
	Priority            ExceptionPriority `json:"priority"`
	Status              ExceptionStatus   `json:"status"`
	AutoResolvable      bool              `json:"auto_resolvable"`
	SuggestedResolution map[string]any    `json:"suggested_resolution,omitempty"`
	Resolution          *Resolution       `json:"resolution,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// FieldScoped reports whether the exception targets a single extracted field
// rather than the document as a whole.
func (e *Exception) FieldScoped() bool {
	return e.FieldName != ""
}
