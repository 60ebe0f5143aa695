package usage

import "time"

// Record is one append-only usage ledger entry.
//
// Billing invariants:
// - The ledger is append-only (immutable).
// - One entry per (org_id, idempotency_key); recording the same run twice
//   returns the existing entry instead of inserting a second one.
// - org_id is required and enforced in all queries.

type Record struct {
	ID     string `json:"id" db:"id"`
	OrgID  string `json:"org_id" db:"org_id"`
	CallID string `json:"call_id" db:"call_id"`

	// RunAttempt is the processing run the entry bills for.
	RunAttempt int `json:"run_attempt" db:"run_attempt"`

	// Metric identifies the billed unit, e.g. "transcription_minutes".
	Metric string `json:"metric" db:"metric"`

	// Minutes is the ceiling of the transcribed audio duration.
	Minutes int `json:"minutes" db:"minutes"`

	CostMinor int64  `json:"cost_minor" db:"cost_minor"`
	Currency  string `json:"currency" db:"currency"`

	// IdempotencyKey is call_id:run_attempt; re-running a failed call bumps
	// the attempt and bills again, replaying the same attempt does not.
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	// Metadata is optional JSON for billing context.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
