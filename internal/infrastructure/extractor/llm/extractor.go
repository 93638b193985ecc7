package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/infrastructure/extractor/pdftext"
)

// Extractor is the LLM-assisted fallback at the end of every adapter
// chain. It sends recovered document text to the model with a field
// inventory derived from the document type's rule set and validates the
// model's JSON answer against a schema before trusting it.
type Extractor struct {
	client *Client
}

func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

func (e *Extractor) Name() domain.ProcessorType {
	return domain.ProcessorLLM
}

type llmResult struct {
	Fields      map[string]any     `json:"fields"`
	Confidences map[string]float64 `json:"confidences"`
}

func (e *Extractor) Extract(ctx context.Context, content []byte, docType domain.DocType) (domain.Extraction, error) {
	text, _, err := pdftext.Text(content)
	if err != nil {
		return domain.Extraction{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Extraction{}, domain.PermanentError("llm extract", fmt.Errorf("no text available for extraction"))
	}

	raw, err := e.client.GenerateJSON(ctx, buildExtractionPrompt(text, docType))
	if err != nil {
		if IsTransient(err) {
			return domain.Extraction{}, domain.TransientError("llm extract", err)
		}
		return domain.Extraction{}, domain.PermanentError("llm extract", err)
	}

	payload := []byte(extractJSONObject(raw))
	if err := ValidateOutput(payload); err != nil {
		return domain.Extraction{}, domain.PermanentError("llm extract", err)
	}

	var result llmResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.Extraction{}, domain.PermanentError("llm extract", fmt.Errorf("parse model json: %w", err))
	}

	confidences := result.Confidences
	if confidences == nil {
		confidences = make(map[string]float64)
	}
	for name := range result.Fields {
		if _, ok := confidences[name]; !ok {
			// The model omitted a score; treat the field as uncertain.
			confidences[name] = 0.5
		}
	}

	return domain.Extraction{
		Fields:           result.Fields,
		FieldConfidences: confidences,
		Processor:        domain.ProcessorLLM,
	}, nil
}

func buildExtractionPrompt(text string, docType domain.DocType) string {
	const maxChars = 12000
	if len(text) > maxChars {
		text = text[:maxChars]
	}

	var sb strings.Builder
	sb.WriteString("You extract structured data from financial documents.\n")
	if docType.Known() {
		sb.WriteString(fmt.Sprintf("Document type: %s.\n", docType))
	}
	if rules, ok := domain.RulesFor(docType); ok && len(rules.RequiredFields) > 0 {
		sb.WriteString("Required fields: ")
		sb.WriteString(strings.Join(rules.RequiredFields, ", "))
		sb.WriteString(".\n")
	}
	sb.WriteString(`Respond with a single JSON object of the form
{"fields": {"field_name": value, ...}, "confidences": {"field_name": 0.0-1.0, ...}}.
Use snake_case field names, ISO dates (YYYY-MM-DD), plain numbers without
currency symbols, and omit fields you cannot find.

Document text:
`)
	sb.WriteString(text)
	return sb.String()
}
