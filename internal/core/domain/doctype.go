package domain

// DocType categorizes the business content of an uploaded document. The set
// mirrors the document families handled by the review dashboard.
type DocType string

const (
	DocTypeMonthlyFinancials   DocType = "monthly_financials"
	DocTypeQuarterlyFinancials DocType = "quarterly_financials"
	DocTypeAnnualFinancials    DocType = "annual_financials"
	DocTypeCovenantCompliance  DocType = "covenant_compliance"
	DocTypeBorrowingBase       DocType = "borrowing_base"
	DocTypeARAging             DocType = "ar_aging"
	DocTypeInventoryReport     DocType = "inventory_report"
	DocTypeCapitalCall         DocType = "capital_call"
	DocTypeDistributionNotice  DocType = "distribution_notice"
	DocTypeNAVStatement        DocType = "nav_statement"
	DocTypeBankStatement       DocType = "bank_statement"
	DocTypeInsuranceCert       DocType = "insurance_certificate"
	DocTypeInvoice             DocType = "invoice"
	DocTypeOther               DocType = "other"
	DocTypeUnknown             DocType = "unknown"
)

func (t DocType) Known() bool {
	return t != "" && t != DocTypeUnknown
}
