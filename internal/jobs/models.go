package jobs

import "time"

// Job is one durable unit of background work. Jobs survive restarts; the
// dispatcher claims pending rows and runs them on a worker pool.
type Job struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	Kind JobKind `json:"kind" db:"kind"`

	// Payload is kind-specific JSON, e.g. {"call_id": "...", "run_attempt": 2}.
	Payload string `json:"payload" db:"payload"`

	Status JobStatus `json:"status" db:"status"`

	// Attempts counts claim cycles, for ops visibility only. Processing
	// retries stay a human decision; the dispatcher never re-runs a
	// finished job.
	Attempts int `json:"attempts" db:"attempts"`

	LastError string `json:"last_error,omitempty" db:"last_error"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	DoneAt    *time.Time `json:"done_at,omitempty" db:"done_at"`
}

type JobKind string

const (
	KindProcessCall JobKind = "process_call"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ProcessCallPayload is the payload for KindProcessCall jobs. RunAttempt
// pins the job to the attempt claimed at trigger time; the processor drops
// jobs whose attempt has been superseded.
type ProcessCallPayload struct {
	CallID     string `json:"call_id"`
	RunAttempt int    `json:"run_attempt"`
}
