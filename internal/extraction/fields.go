package extraction

import (
	"encoding/json"
	"time"

	"freightcall-platform/internal/calls"

	"github.com/google/uuid"
)

// CoreConfidence is the fixed confidence assigned to every core field.
const CoreConfidence = 0.9

// TemplateDefaultConfidence applies when the template pass reports none.
const TemplateDefaultConfidence = 0.85

// CoreFields flattens a core extraction into the fixed 20-row field set.
// Field names and order are stable across runs so replace semantics keep
// the set identical for identical input.
func CoreFields(callID, source string, ex CoreExtraction, now time.Time) []calls.ExtractedField {
	entries := []struct {
		name  string
		value any
		typ   calls.FieldType
	}{
		{"summary", ex.Summary, calls.FieldTypeText},
		{"keyPoints", ex.KeyPoints, calls.FieldTypeJSON},
		{"nextSteps", ex.NextSteps, calls.FieldTypeJSON},
		{"painPoints", ex.PainPoints, calls.FieldTypeJSON},
		{"requirements", ex.Requirements, calls.FieldTypeJSON},
		{"budget", ex.Budget, calls.FieldTypeText},
		{"timeline", ex.Timeline, calls.FieldTypeText},
		{"decisionMaker", ex.DecisionMaker, calls.FieldTypeText},
		{"productInterest", ex.ProductInterest, calls.FieldTypeText},
		{"competitors", ex.Competitors, calls.FieldTypeJSON},
		{"objections", ex.Objections, calls.FieldTypeJSON},
		{"buyingSignals", ex.BuyingSignals, calls.FieldTypeJSON},
		{"callOutcome", ex.CallOutcome, calls.FieldTypeText},
		{"qualificationScore", ex.QualificationScore, calls.FieldTypeNumber},
		{"urgencyLevel", ex.UrgencyLevel, calls.FieldTypeText},
		{"rawCustomerCompany", ex.Raw.CustomerCompany, calls.FieldTypeText},
		{"rawIndustry", ex.Raw.Industry, calls.FieldTypeText},
		{"rawCompanySize", ex.Raw.CompanySize, calls.FieldTypeText},
		{"rawCurrentSolution", ex.Raw.CurrentSolution, calls.FieldTypeText},
		{"rawTechnicalRequirements", ex.Raw.TechnicalRequirements, calls.FieldTypeText},
	}

	fields := make([]calls.ExtractedField, 0, len(entries))
	for _, e := range entries {
		fields = append(fields, calls.ExtractedField{
			ID:              uuid.NewString(),
			CallID:          callID,
			FieldName:       e.name,
			FieldValue:      encodeValue(e.value),
			FieldType:       e.typ,
			ConfidenceScore: CoreConfidence,
			Source:          source,
			CreatedAt:       now,
		})
	}
	return fields
}

// TemplateFields converts template-pass results into field rows. The
// declared type comes from the template definition, falling back to text
// for results the template no longer defines.
func TemplateFields(callID string, defs []FieldDef, results []TemplateFieldResult, now time.Time) []calls.ExtractedField {
	types := make(map[string]calls.FieldType, len(defs))
	ids := make(map[string]string, len(defs))
	for _, d := range defs {
		types[d.Name] = calls.FieldType(d.Type)
		ids[d.Name] = d.ID
	}

	fields := make([]calls.ExtractedField, 0, len(results))
	for _, r := range results {
		typ, ok := types[r.FieldName]
		if !ok || typ == "" {
			typ = calls.FieldTypeText
		}
		fieldID := r.FieldID
		if fieldID == "" {
			fieldID = ids[r.FieldName]
		}
		conf := r.Confidence
		if conf == 0 {
			conf = TemplateDefaultConfidence
		}
		fields = append(fields, calls.ExtractedField{
			ID:              uuid.NewString(),
			CallID:          callID,
			TemplateFieldID: fieldID,
			FieldName:       r.FieldName,
			FieldValue:      encodeValue(r.Value),
			FieldType:       typ,
			ConfidenceScore: conf,
			Source:          calls.SourceTemplate,
			CreatedAt:       now,
		})
	}
	return fields
}

func encodeValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
