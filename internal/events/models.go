package events

import "time"

// Event is an immutable, append-only processing trail record. Every
// pipeline stage transition and skip leaves one, so a degraded run can be
// explained after the fact.
//
// Invariants:
// - Events are never updated or deleted.
// - org_id is required for tenancy isolation.
// - Event recording is best-effort; failures must not abort a run.

type Event struct {
	ID     string `json:"id" db:"id"`
	OrgID  string `json:"org_id" db:"org_id"`
	CallID string `json:"call_id" db:"call_id"`

	Type EventType `json:"type" db:"type"`

	// Stage names the pipeline stage the event belongs to.
	Stage string `json:"stage,omitempty" db:"stage"`

	// RunAttempt ties the event to one processing run of the call.
	RunAttempt int `json:"run_attempt" db:"run_attempt"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeStageStarted    EventType = "stage_started"
	EventTypeStageCompleted  EventType = "stage_completed"
	EventTypeTemplateSkipped EventType = "template_skipped"
	EventTypeRunFailed       EventType = "run_failed"
	EventTypeRunCompleted    EventType = "run_completed"
)
