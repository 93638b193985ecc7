package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/core/domain"
)

// Evaluation is the verdict on one extraction attempt: the aggregate
// confidence, the terminal status it implies, and the exceptions that a
// needs_review outcome should open.
type Evaluation struct {
	Confidence float64
	Status     domain.DocumentStatus
	Issues     []domain.ValidationIssue
}

// ConfidenceEvaluator scores an extraction against the rule set of its
// document type.
//
// The aggregate is the minimum confidence over the type's required fields;
// a single weak or absent field forces review no matter how strong the
// rest of the extraction is. Types without a rule set use the minimum over
// all extracted fields. An aggregate exactly at the threshold passes.
type ConfidenceEvaluator struct{}

func NewConfidenceEvaluator() *ConfidenceEvaluator {
	return &ConfidenceEvaluator{}
}

func (e *ConfidenceEvaluator) Evaluate(docType domain.DocType, extraction domain.Extraction, settings domain.ProcessingSettings) Evaluation {
	var issues []domain.ValidationIssue

	confidence := AggregateConfidence(docType, extraction.Fields, extraction.FieldConfidences)

	if rules, hasRules := domain.RulesFor(docType); hasRules {
		for _, field := range rules.RequiredFields {
			if value, present := extraction.Fields[field]; !present || value == nil {
				issues = append(issues, domain.ValidationIssue{
					Field:    field,
					Category: domain.CategoryMissingField,
					Priority: domain.PriorityHigh,
					Message:  fmt.Sprintf("required field %q was not extracted", field),
					Expected: "present",
					Actual:   "missing",
				})
			}
		}
	}

	issues = append(issues, domain.Validate(extraction.Fields, docType)...)

	if !docType.Known() {
		issues = append(issues, domain.ValidationIssue{
			Category: domain.CategoryUnknownDocType,
			Priority: domain.PriorityMedium,
			Message:  "document type could not be determined",
		})
	}

	// Low-confidence exceptions are only raised when no validation error
	// already forces review; a rule failure is the more actionable signal.
	if confidence < settings.ConfidenceThreshold && !hasBlockingIssue(issues, settings) {
		issues = append(issues, lowConfidenceIssues(extraction.FieldConfidences, confidence, settings.ConfidenceThreshold)...)
	}

	status := domain.StatusProcessed
	if confidence < settings.ConfidenceThreshold || hasBlockingIssue(issues, settings) {
		status = domain.StatusNeedsReview
	}

	return Evaluation{
		Confidence: confidence,
		Status:     status,
		Issues:     issues,
	}
}

// AggregateConfidence applies the scoring rule: the minimum confidence over
// the type's required fields, 0 when any required field is absent. Types
// without a rule set use the minimum over all extracted fields.
func AggregateConfidence(docType domain.DocType, fields map[string]any, fieldConfidences map[string]float64) float64 {
	confidence := 1.0
	if rules, hasRules := domain.RulesFor(docType); hasRules {
		for _, field := range rules.RequiredFields {
			value, present := fields[field]
			if !present || value == nil {
				return 0
			}
			if c, ok := fieldConfidences[field]; ok && c < confidence {
				confidence = c
			}
		}
		return confidence
	}

	if len(fieldConfidences) == 0 {
		return 0
	}
	for _, c := range fieldConfidences {
		if c < confidence {
			confidence = c
		}
	}
	return confidence
}

func hasBlockingIssue(issues []domain.ValidationIssue, settings domain.ProcessingSettings) bool {
	for _, issue := range issues {
		if issue.Warning && !settings.StrictValidation {
			continue
		}
		return true
	}
	return false
}

// lowConfidenceIssues flags each weakly-scored field. A field close to the
// threshold is a low-priority nudge; further away it is a real review item.
func lowConfidenceIssues(fieldConfidences map[string]float64, aggregate, threshold float64) []domain.ValidationIssue {
	var out []domain.ValidationIssue
	for field, c := range fieldConfidences {
		if c >= threshold {
			continue
		}
		priority := domain.PriorityMedium
		if threshold-c <= 0.1 {
			priority = domain.PriorityLow
		}
		out = append(out, domain.ValidationIssue{
			Field:    field,
			Category: domain.CategoryLowConfidence,
			Priority: priority,
			Message:  fmt.Sprintf("field %q confidence %.2f is below the %.2f threshold", field, c, threshold),
			Expected: fmt.Sprintf(">= %.2f", threshold),
			Actual:   fmt.Sprintf("%.2f", c),
		})
	}
	if len(out) == 0 {
		out = append(out, domain.ValidationIssue{
			Category: domain.CategoryLowConfidence,
			Priority: domain.PriorityMedium,
			Message: fmt.Sprintf("aggregate confidence %.2f is below the %.2f threshold",
				aggregate, threshold),
			Expected: fmt.Sprintf(">= %.2f", threshold),
			Actual:   fmt.Sprintf("%.2f", aggregate),
		})
	}
	return out
}

// ExceptionsFromIssues materializes validation issues as open exceptions
// for a document.
func ExceptionsFromIssues(documentID string, issues []domain.ValidationIssue, now time.Time) []domain.Exception {
	out := make([]domain.Exception, 0, len(issues))
	for _, issue := range issues {
		out = append(out, domain.Exception{
			ID:            uuid.NewString(),
			DocumentID:    documentID,
			Category:      issue.Category,
			Reason:        issue.Message,
			FieldName:     issue.Field,
			ExpectedValue: issue.Expected,
			ActualValue:   issue.Actual,
			Priority:      issue.Priority,
			Status:        domain.ExceptionOpen,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out
}
