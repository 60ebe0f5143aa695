package extraction

import (
	"context"
	"errors"

	"freightcall-platform/internal/transcripts"
)

// Extractor turns a finished transcript into structured CRM data. Core and
// template passes are separate calls so a template failure never takes the
// core result down with it.
//
// No LLM SDK calls outside extraction adapters.
type Extractor interface {
	// ModelTag identifies the backing model, e.g. "openai:gpt-4o-mini".
	// Persisted as the source of core fields.
	ModelTag() string

	Extract(ctx context.Context, req CoreRequest) (CoreExtraction, error)
	ExtractFields(ctx context.Context, req TemplateRequest) ([]TemplateFieldResult, error)
}

var ErrExtractionFailure = errors.New("extraction: provider failure")

type CoreRequest struct {
	TranscriptText string
	Utterances     []transcripts.Utterance
	RoleMap        map[string]string

	// Optional hints surfaced to the model.
	CustomerNameHint string
	CallTypeHint     string
}

// CoreExtraction is the fixed CRM attribute set produced by the core pass.
type CoreExtraction struct {
	Summary            string   `json:"summary"`
	KeyPoints          []string `json:"key_points"`
	NextSteps          []string `json:"next_steps"`
	PainPoints         []string `json:"pain_points"`
	Requirements       []string `json:"requirements"`
	Budget             string   `json:"budget"`
	Timeline           string   `json:"timeline"`
	DecisionMaker      string   `json:"decision_maker"`
	ProductInterest    string   `json:"product_interest"`
	Competitors        []string `json:"competitors"`
	Objections         []string `json:"objections"`
	BuyingSignals      []string `json:"buying_signals"`
	CallOutcome        string   `json:"call_outcome"`
	QualificationScore int      `json:"qualification_score"`
	UrgencyLevel       string   `json:"urgency_level"`

	// Sentiment is finalized onto the call record, not stored as a field.
	Sentiment string `json:"sentiment"`

	Raw RawExtraction `json:"raw"`
}

// RawExtraction carries secondary attributes the model reports verbatim.
type RawExtraction struct {
	CustomerCompany       string `json:"customer_company"`
	Industry              string `json:"industry"`
	CompanySize           string `json:"company_size"`
	CurrentSolution       string `json:"current_solution"`
	TechnicalRequirements string `json:"technical_requirements"`
}

type TemplateRequest struct {
	TranscriptText string
	Utterances     []transcripts.Utterance
	RoleMap        map[string]string
	FieldDefs      []FieldDef
}

type FieldDef struct {
	ID   string
	Name string
	Type string
}

type TemplateFieldResult struct {
	FieldID   string
	FieldName string
	Value     any
	// Confidence 0 means the model reported none; callers apply a default.
	Confidence float64
}
