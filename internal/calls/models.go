package calls

import "time"

// Call represents one uploaded recording and its processing state.
//
// Multi-tenant invariant: OrgID is required on every row.
//
// Processing invariant: status and progress only move forward within one
// run attempt. Terminal states (completed, failed) are left only by a new
// trigger, which bumps RunAttempt and resets progress. The orchestrator is
// the only writer once a run starts.
type Call struct {
	ID     string `json:"id" db:"id"`
	OrgID  string `json:"org_id" db:"org_id"`
	UserID string `json:"user_id" db:"user_id"`

	// AudioURL points at the stored recording. Empty means not yet uploaded;
	// processing a call without audio fails fast.
	AudioURL string `json:"audio_url,omitempty" db:"audio_url"`

	Status             CallStatus `json:"status" db:"status"`
	ProcessingProgress int        `json:"processing_progress" db:"processing_progress"`
	ProcessingMessage  string     `json:"processing_message,omitempty" db:"processing_message"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`

	// RunAttempt increments on every accepted trigger. It scopes progress
	// monotonicity and the usage-metering idempotency key.
	RunAttempt int `json:"run_attempt" db:"run_attempt"`

	// Optional pre-transcription clip window, in seconds.
	TrimStartSec *float64 `json:"trim_start_sec,omitempty" db:"trim_start_sec"`
	TrimEndSec   *float64 `json:"trim_end_sec,omitempty" db:"trim_end_sec"`

	// TemplateID references an optional custom extraction template.
	TemplateID string `json:"template_id,omitempty" db:"template_id"`

	// Filled at finalization.
	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	Sentiment       string `json:"sentiment,omitempty" db:"sentiment"`
	CustomerCompany string `json:"customer_company,omitempty" db:"customer_company"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

type CallStatus string

const (
	CallStatusUploaded     CallStatus = "uploaded"
	CallStatusProcessing   CallStatus = "processing"
	CallStatusTranscribing CallStatus = "transcribing"
	CallStatusExtracting   CallStatus = "extracting"
	CallStatusCompleted    CallStatus = "completed"
	CallStatusFailed       CallStatus = "failed"
)

// IsTerminal reports whether a status ends a run.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusFailed
}

// CanTrigger reports whether a (re-)trigger is accepted from this status.
// Terminal states and uploaded accept a trigger; triggering mid-run is
// rejected to prevent overlapping runs on one call.
func (s CallStatus) CanTrigger() bool {
	return s == CallStatusUploaded || s.IsTerminal()
}

// ExtractedField is one named CRM attribute produced by an extraction pass.
//
// Field names are unique per call for core fields; template fields are
// additionally scoped by TemplateFieldID. Re-running extraction deletes all
// existing fields for the call first (replace, not merge).
type ExtractedField struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// TemplateFieldID is set only for template-sourced fields.
	TemplateFieldID string `json:"template_field_id,omitempty" db:"template_field_id"`

	FieldName string `json:"field_name" db:"field_name"`
	// FieldValue is JSON-encoded so list and scalar values share a column.
	FieldValue string    `json:"field_value" db:"field_value"`
	FieldType  FieldType `json:"field_type" db:"field_type"`

	ConfidenceScore float64 `json:"confidence_score" db:"confidence_score"`

	// Source identifies which extractor produced the row: the core model tag
	// (e.g. "openai:gpt-4o-mini") or SourceTemplate.
	Source string `json:"source" db:"source"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeJSON   FieldType = "json"
	FieldTypeNumber FieldType = "number"
	FieldTypeSelect FieldType = "select"
	FieldTypeCustom FieldType = "custom"
)

// SourceTemplate tags fields produced by the template extraction pass.
const SourceTemplate = "template"
