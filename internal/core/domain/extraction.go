package domain

// Extraction is the typed output of one extraction adapter run.
type Extraction struct {
	Fields           map[string]any
	FieldConfidences map[string]float64
	Processor        ProcessorType
}

// ProcessingSettings are the persisted runtime knobs consumed by the router.
// They are read at the start of each processing attempt; changes apply to
// new attempts only.
type ProcessingSettings struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	StrictValidation    bool    `json:"strict_validation"`
	MaxAdapterRetries   int     `json:"max_adapter_retries"`
}

func DefaultProcessingSettings() ProcessingSettings {
	return ProcessingSettings{
		ConfidenceThreshold: 0.85,
		StrictValidation:    false,
		MaxAdapterRetries:   2,
	}
}

func (s ProcessingSettings) Normalize() ProcessingSettings {
	out := s
	def := DefaultProcessingSettings()
	if out.ConfidenceThreshold <= 0 || out.ConfidenceThreshold > 1 {
		out.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if out.MaxAdapterRetries < 0 {
		out.MaxAdapterRetries = def.MaxAdapterRetries
	}
	return out
}
