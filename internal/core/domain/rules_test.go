package domain

import (
	"testing"
	"time"
)

func TestValidatePassesCleanInvoice(t *testing.T) {
	fields := map[string]any{
		"invoice_number": "INV-2041",
		"total_amount":   1250.50,
		"invoice_date":   "2026-07-14",
	}
	if issues := Validate(fields, DocTypeInvoice); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidateFlagsNonPositiveAmount(t *testing.T) {
	issues := Validate(map[string]any{
		"invoice_number": "INV-2041",
		"total_amount":   -12.0,
	}, DocTypeInvoice)

	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}
	issue := issues[0]
	if issue.Field != "total_amount" || issue.Category != CategoryValidationError {
		t.Fatalf("unexpected issue %+v", issue)
	}
	if issue.Priority != PriorityHigh || issue.Warning {
		t.Fatalf("expected non-warning high priority, got %+v", issue)
	}
}

func TestValidateFlagsBadDateAsWarning(t *testing.T) {
	issues := Validate(map[string]any{
		"invoice_number": "INV-2041",
		"total_amount":   100.0,
		"invoice_date":   "sometime in july",
	}, DocTypeInvoice)

	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}
	if issues[0].Category != CategoryInvalidFormat || !issues[0].Warning {
		t.Fatalf("expected invalid format warning, got %+v", issues[0])
	}
}

func TestValidateFlagsStaleReportingPeriod(t *testing.T) {
	old := time.Now().AddDate(-1, 0, 0).Format("2006-01-02")
	issues := Validate(map[string]any{
		"period_end_date": old,
		"revenue":         100000.0,
	}, DocTypeQuarterlyFinancials)

	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}
	if issues[0].Field != "period_end_date" || issues[0].Category != CategoryValidationError {
		t.Fatalf("unexpected issue %+v", issues[0])
	}
}

func TestValidatePercentageRange(t *testing.T) {
	issues := Validate(map[string]any{
		"certificate_date":   "2026-07-31",
		"eligible_ar":        500000.0,
		"total_availability": 420000.0,
		"ar_advance_rate":    98.0,
	}, DocTypeBorrowingBase)

	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}
	if issues[0].Field != "ar_advance_rate" {
		t.Fatalf("expected ar_advance_rate issue, got %+v", issues[0])
	}
}

func TestValidateCrossFieldRule(t *testing.T) {
	issues := Validate(map[string]any{
		"certificate_date":          "2026-07-31",
		"eligible_ar":               900000.0,
		"gross_accounts_receivable": 800000.0,
		"total_availability":        420000.0,
	}, DocTypeBorrowingBase)

	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}
	if issues[0].Category != CategoryCrossField || issues[0].Priority != PriorityHigh {
		t.Fatalf("expected high priority cross-field issue, got %+v", issues[0])
	}
}

func TestValidateSkipsCrossFieldRuleWithMissingOperands(t *testing.T) {
	issues := Validate(map[string]any{
		"certificate_date":   "2026-07-31",
		"eligible_ar":        900000.0,
		"total_availability": 420000.0,
	}, DocTypeBorrowingBase)

	if len(issues) != 0 {
		t.Fatalf("expected rule with absent operands to be skipped, got %+v", issues)
	}
}

func TestValidateGenericFlagsEmptyExtraction(t *testing.T) {
	issues := Validate(map[string]any{"note": nil}, DocTypeOther)
	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}
	if issues[0].Category != CategoryExtractionError || issues[0].Priority != PriorityCritical {
		t.Fatalf("expected critical extraction error, got %+v", issues[0])
	}

	if issues := Validate(map[string]any{"note": "text"}, DocTypeOther); len(issues) != 0 {
		t.Fatalf("expected non-empty generic extraction to pass, got %+v", issues)
	}
}

func TestNumericFieldCoercions(t *testing.T) {
	fields := map[string]any{
		"float":  12.5,
		"int":    7,
		"string": " 1250.50 ",
		"text":   "not a number",
	}

	if n, ok := NumericField(fields, "float"); !ok || n != 12.5 {
		t.Fatalf("float coercion failed: %v %v", n, ok)
	}
	if n, ok := NumericField(fields, "int"); !ok || n != 7 {
		t.Fatalf("int coercion failed: %v %v", n, ok)
	}
	if n, ok := NumericField(fields, "string"); !ok || n != 1250.50 {
		t.Fatalf("string coercion failed: %v %v", n, ok)
	}
	if _, ok := NumericField(fields, "text"); ok {
		t.Fatalf("expected text to fail coercion")
	}
	if _, ok := NumericField(fields, "missing"); ok {
		t.Fatalf("expected missing field to fail coercion")
	}
}

func TestDateFieldLayouts(t *testing.T) {
	for _, raw := range []string{"2026-07-14", "07/14/2026", "2026/07/14"} {
		if _, ok := DateField(map[string]any{"d": raw}, "d"); !ok {
			t.Errorf("expected %q to parse", raw)
		}
	}
	if _, ok := DateField(map[string]any{"d": "mid july"}, "d"); ok {
		t.Fatalf("expected prose date to fail")
	}
}
