package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldRuleType enumerates the supported single-field checks.
type FieldRuleType string

const (
	RulePositiveNumber FieldRuleType = "positive_number"
	RuleNonNegative    FieldRuleType = "non_negative"
	RuleNumber         FieldRuleType = "number"
	RulePercentage     FieldRuleType = "percentage"
	RuleDate           FieldRuleType = "date"
)

type FieldRule struct {
	Field      string
	Type       FieldRuleType
	Min        float64
	Max        float64
	MaxAgeDays int
	Priority   ExceptionPriority
}

// CrossFieldRule is a named predicate over the extracted field map. The
// predicate returns true when the document satisfies the rule; rules whose
// operands are absent are skipped, not failed.
type CrossFieldRule struct {
	Name     string
	Message  string
	Priority ExceptionPriority
	Check    func(fields map[string]any) (ok bool, applicable bool)
}

// RuleSet bundles everything the confidence evaluator needs for one
// document type.
type RuleSet struct {
	RequiredFields  []string
	FieldRules      []FieldRule
	CrossFieldRules []CrossFieldRule
}

// ValidationIssue is one rule failure destined to become an Exception.
type ValidationIssue struct {
	Field    string
	Category ExceptionCategory
	Priority ExceptionPriority
	Message  string
	Expected string
	Actual   string
	Warning  bool
}

// ruleSets keys validation behavior by document type. Types without an
// entry fall back to generic validation (non-empty extraction only).
var ruleSets = map[DocType]RuleSet{
	DocTypeMonthlyFinancials:   financialsRules(),
	DocTypeQuarterlyFinancials: financialsRules(),
	DocTypeCovenantCompliance: {
		RequiredFields: []string{"reporting_period", "overall_compliance"},
		FieldRules: []FieldRule{
			{Field: "leverage_ratio", Type: RulePositiveNumber, Priority: PriorityHigh},
			{Field: "interest_coverage_ratio", Type: RulePositiveNumber, Priority: PriorityHigh},
			{Field: "reporting_period", Type: RuleDate, MaxAgeDays: 120, Priority: PriorityMedium},
		},
		CrossFieldRules: []CrossFieldRule{
			{
				Name:     "leverage_within_covenant",
				Message:  "leverage ratio exceeds leverage covenant",
				Priority: PriorityHigh,
				Check: func(fields map[string]any) (bool, bool) {
					ratio, ok1 := NumericField(fields, "leverage_ratio")
					covenant, ok2 := NumericField(fields, "leverage_covenant")
					if !ok1 || !ok2 {
						return false, false
					}
					return ratio <= covenant, true
				},
			},
		},
	},
	DocTypeBorrowingBase: {
		RequiredFields: []string{"certificate_date", "eligible_ar", "total_availability"},
		FieldRules: []FieldRule{
			{Field: "eligible_ar", Type: RuleNonNegative, Priority: PriorityHigh},
			{Field: "eligible_inventory", Type: RuleNonNegative, Priority: PriorityMedium},
			{Field: "ar_advance_rate", Type: RulePercentage, Min: 0, Max: 95, Priority: PriorityMedium},
			{Field: "inventory_advance_rate", Type: RulePercentage, Min: 0, Max: 70, Priority: PriorityMedium},
		},
		CrossFieldRules: []CrossFieldRule{
			{
				Name:     "eligible_ar_within_gross",
				Message:  "eligible AR cannot exceed gross AR",
				Priority: PriorityHigh,
				Check: func(fields map[string]any) (bool, bool) {
					eligible, ok1 := NumericField(fields, "eligible_ar")
					gross, ok2 := NumericField(fields, "gross_accounts_receivable")
					if !ok1 || !ok2 {
						return false, false
					}
					return eligible <= gross, true
				},
			},
			{
				Name:     "availability_non_negative",
				Message:  "total availability cannot be negative",
				Priority: PriorityCritical,
				Check: func(fields map[string]any) (bool, bool) {
					avail, ok := NumericField(fields, "total_availability")
					if !ok {
						return false, false
					}
					return avail >= 0, true
				},
			},
		},
	},
	DocTypeCapitalCall: {
		RequiredFields: []string{"notice_date", "due_date", "call_amount"},
		FieldRules: []FieldRule{
			{Field: "call_amount", Type: RulePositiveNumber, Priority: PriorityHigh},
		},
		CrossFieldRules: []CrossFieldRule{
			{
				Name:     "due_after_notice",
				Message:  "due date must be after notice date",
				Priority: PriorityHigh,
				Check: func(fields map[string]any) (bool, bool) {
					due, ok1 := DateField(fields, "due_date")
					notice, ok2 := DateField(fields, "notice_date")
					if !ok1 || !ok2 {
						return false, false
					}
					return due.After(notice), true
				},
			},
		},
	},
	DocTypeInvoice: {
		RequiredFields: []string{"invoice_number", "total_amount"},
		FieldRules: []FieldRule{
			{Field: "total_amount", Type: RulePositiveNumber, Priority: PriorityHigh},
			{Field: "invoice_date", Type: RuleDate, Priority: PriorityLow},
		},
	},
}

func financialsRules() RuleSet {
	return RuleSet{
		RequiredFields: []string{"period_end_date", "revenue"},
		FieldRules: []FieldRule{
			{Field: "revenue", Type: RulePositiveNumber, Priority: PriorityHigh},
			{Field: "ebitda", Type: RuleNumber, Priority: PriorityMedium},
			{Field: "gross_margin", Type: RulePercentage, Min: 0, Max: 100, Priority: PriorityMedium},
			{Field: "ebitda_margin", Type: RulePercentage, Min: -100, Max: 100, Priority: PriorityLow},
			{Field: "period_end_date", Type: RuleDate, MaxAgeDays: 180, Priority: PriorityMedium},
		},
		CrossFieldRules: []CrossFieldRule{
			{
				Name:     "gross_profit_within_revenue",
				Message:  "gross profit cannot exceed revenue",
				Priority: PriorityHigh,
				Check: func(fields map[string]any) (bool, bool) {
					gp, ok1 := NumericField(fields, "gross_profit")
					rev, ok2 := NumericField(fields, "revenue")
					if !ok1 || !ok2 {
						return false, false
					}
					return gp <= rev, true
				},
			},
		},
	}
}

// RulesFor returns the rule set for a document type and whether one exists.
func RulesFor(docType DocType) (RuleSet, bool) {
	rs, ok := ruleSets[docType]
	return rs, ok
}

// Validate applies the rule set for docType to extracted fields. Required
// field presence is scored by the confidence evaluator, not here; Validate
// covers format, range, and cross-field semantics.
func Validate(fields map[string]any, docType DocType) []ValidationIssue {
	rs, ok := RulesFor(docType)
	if !ok {
		return validateGeneric(fields)
	}

	var issues []ValidationIssue
	for _, rule := range rs.FieldRules {
		if issue := applyFieldRule(fields, rule); issue != nil {
			issues = append(issues, *issue)
		}
	}
	for _, rule := range rs.CrossFieldRules {
		ok, applicable := rule.Check(fields)
		if !applicable || ok {
			continue
		}
		issues = append(issues, ValidationIssue{
			Field:    "",
			Category: CategoryCrossField,
			Priority: rule.Priority,
			Message:  rule.Message,
		})
	}
	return issues
}

func applyFieldRule(fields map[string]any, rule FieldRule) *ValidationIssue {
	value, present := fields[rule.Field]
	if !present || value == nil {
		// Absence is handled by the required-field check.
		return nil
	}

	switch rule.Type {
	case RulePositiveNumber:
		n, ok := NumericField(fields, rule.Field)
		if !ok || n <= 0 {
			return fieldIssue(rule, CategoryValidationError, "must be a positive number", "positive number", value)
		}
	case RuleNonNegative:
		n, ok := NumericField(fields, rule.Field)
		if !ok || n < 0 {
			return fieldIssue(rule, CategoryValidationError, "cannot be negative", "non-negative number", value)
		}
	case RuleNumber:
		if _, ok := NumericField(fields, rule.Field); !ok {
			return fieldIssue(rule, CategoryInvalidFormat, "must be a number", "number", value)
		}
	case RulePercentage:
		n, ok := NumericField(fields, rule.Field)
		if !ok {
			return fieldIssue(rule, CategoryInvalidFormat, "must be a percentage", "percentage", value)
		}
		if n < rule.Min || n > rule.Max {
			return fieldIssue(rule, CategoryValidationError,
				fmt.Sprintf("must be between %g%% and %g%%", rule.Min, rule.Max),
				fmt.Sprintf("%g-%g", rule.Min, rule.Max), value)
		}
	case RuleDate:
		parsed, ok := DateField(fields, rule.Field)
		if !ok {
			return fieldIssue(rule, CategoryInvalidFormat, "is not a valid date", "date (YYYY-MM-DD)", value)
		}
		if rule.MaxAgeDays > 0 {
			age := int(time.Since(parsed).Hours() / 24)
			if age > rule.MaxAgeDays {
				return fieldIssue(rule, CategoryValidationError,
					fmt.Sprintf("is older than %d days", rule.MaxAgeDays),
					fmt.Sprintf("within %d days", rule.MaxAgeDays),
					fmt.Sprintf("%d days old", age))
			}
		}
	}
	return nil
}

func fieldIssue(rule FieldRule, category ExceptionCategory, message, expected string, actual any) *ValidationIssue {
	return &ValidationIssue{
		Field:    rule.Field,
		Category: category,
		Priority: rule.Priority,
		Message:  fmt.Sprintf("field %q %s", rule.Field, message),
		Expected: expected,
		Actual:   fmt.Sprintf("%v", actual),
		Warning:  rule.Priority == PriorityLow,
	}
}

func validateGeneric(fields map[string]any) []ValidationIssue {
	empty := true
	for _, v := range fields {
		if v != nil {
			empty = false
			break
		}
	}
	if !empty {
		return nil
	}
	return []ValidationIssue{{
		Category: CategoryExtractionError,
		Priority: PriorityCritical,
		Message:  "no data could be extracted from the document",
	}}
}

// NumericField coerces a field value to float64. Extraction adapters and
// JSON round-trips produce a mix of float64, int, and numeric strings.
func NumericField(fields map[string]any, name string) (float64, bool) {
	value, ok := fields[name]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// DateField parses a field value using the date layouts seen in source
// documents.
func DateField(fields map[string]any, name string) (time.Time, bool) {
	value, ok := fields[name]
	if !ok || value == nil {
		return time.Time{}, false
	}
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	layouts := []string{
		"2006-01-02",
		"01/02/2006",
		"02/01/2006",
		"2006/01/02",
		"01-02-2006",
		"02-01-2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
