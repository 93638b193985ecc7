package domain

import (
	"bytes"
	"regexp"
	"strings"
)

// filenamePatterns map filename fragments to document types. First match
// wins in iteration order of the slice, so the more specific patterns come
// first.
var filenamePatterns = []struct {
	docType  DocType
	patterns []*regexp.Regexp
}{
	{DocTypeMonthlyFinancials, compilePatterns(`monthly.*financial`, `financials.*\d{4}[-_]\d{2}`)},
	{DocTypeQuarterlyFinancials, compilePatterns(`quarterly.*financial`, `q[1-4].*financial`)},
	{DocTypeAnnualFinancials, compilePatterns(`annual.*financial`, `audited.*financial`, `fy\d{4}`)},
	{DocTypeCovenantCompliance, compilePatterns(`covenant`, `compliance.*cert`)},
	{DocTypeBorrowingBase, compilePatterns(`bbc`, `borrowing.*base`, `bb.*cert`)},
	{DocTypeARAging, compilePatterns(`aging`, `ar.*schedule`, `receivables`)},
	{DocTypeInventoryReport, compilePatterns(`inventory`)},
	{DocTypeCapitalCall, compilePatterns(`capital.*call`, `call.*notice`, `drawdown`)},
	{DocTypeDistributionNotice, compilePatterns(`distribution`, `dist.*notice`)},
	{DocTypeNAVStatement, compilePatterns(`nav`, `net.*asset`)},
	{DocTypeInvoice, compilePatterns(`invoice`, `bill`)},
	{DocTypeBankStatement, compilePatterns(`bank.*statement`, `account.*statement`)},
	{DocTypeInsuranceCert, compilePatterns(`insurance`, `coi`, `certificate.*insurance`)},
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

// DetectDocType classifies a document from filename, mime type, and content
// signature heuristics. It returns DocTypeUnknown when nothing matches; the
// caller degrades to the generic adapter chain in that case.
func DetectDocType(filename, mimeType string, content []byte) DocType {
	lower := strings.ToLower(filename)
	for _, entry := range filenamePatterns {
		for _, pattern := range entry.patterns {
			if pattern.MatchString(lower) {
				return entry.docType
			}
		}
	}

	// Content sniffing catches invoices delivered with opaque names.
	if looksLikeInvoice(content) {
		return DocTypeInvoice
	}

	switch {
	case strings.Contains(mimeType, "spreadsheet"), strings.Contains(mimeType, "ms-excel"):
		return DocTypeOther
	case mimeType == "text/csv" && strings.HasSuffix(lower, ".csv"):
		return DocTypeOther
	}
	return DocTypeUnknown
}

var invoiceMarkers = [][]byte{
	[]byte("invoice number"),
	[]byte("invoice #"),
	[]byte("remit to"),
	[]byte("amount due"),
}

func looksLikeInvoice(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	head := bytes.ToLower(content)
	if len(head) > 4096 {
		head = head[:4096]
	}
	for _, marker := range invoiceMarkers {
		if bytes.Contains(head, marker) {
			return true
		}
	}
	return false
}
