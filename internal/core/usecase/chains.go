package usecase

import (
	"path/filepath"
	"strings"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/core/ports"
)

// ChainSelector picks the ordered list of extraction adapters to try for a
// document. Earlier adapters are cheaper and more precise; the chain ends
// with the LLM fallback, which can read anything but is slow and less
// trustworthy.
type ChainSelector struct {
	adapters map[domain.ProcessorType]ports.ExtractionAdapter
}

func NewChainSelector(adapters ...ports.ExtractionAdapter) *ChainSelector {
	byName := make(map[domain.ProcessorType]ports.ExtractionAdapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &ChainSelector{adapters: byName}
}

func (s *ChainSelector) ChainFor(docType domain.DocType, filename string) []ports.ExtractionAdapter {
	return s.resolve(s.names(docType, filename))
}

func (s *ChainSelector) names(docType domain.DocType, filename string) []domain.ProcessorType {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".xlsx", ".xlsm", ".xls":
		return []domain.ProcessorType{domain.ProcessorSpreadsheet, domain.ProcessorLLM}
	case ".csv":
		return []domain.ProcessorType{domain.ProcessorFormParser, domain.ProcessorLLM}
	}

	if docType == domain.DocTypeInvoice {
		return []domain.ProcessorType{domain.ProcessorInvoice, domain.ProcessorFormParser, domain.ProcessorLLM}
	}
	if docType.Known() {
		return []domain.ProcessorType{domain.ProcessorFormParser, domain.ProcessorPDFText, domain.ProcessorLLM}
	}
	return []domain.ProcessorType{domain.ProcessorPDFText, domain.ProcessorLLM}
}

func (s *ChainSelector) resolve(names []domain.ProcessorType) []ports.ExtractionAdapter {
	out := make([]ports.ExtractionAdapter, 0, len(names))
	for _, name := range names {
		if a, ok := s.adapters[name]; ok {
			out = append(out, a)
		}
	}
	return out
}
