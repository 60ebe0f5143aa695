package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("calls: not found")
	// ErrRunInFlight is returned when a trigger races an active run.
	ErrRunInFlight = errors.New("calls: run already in flight")
)

// Store is the persistence contract for calls and their extracted fields.
//
// All reads are org-scoped except the run-lifecycle methods, which operate
// on a call the orchestrator already owns for the duration of an attempt.
type Store interface {
	Create(ctx context.Context, c Call) (Call, error)
	Get(ctx context.Context, orgID, callID string) (Call, error)

	// BeginRun transitions uploaded|failed|completed -> processing with a
	// compare-and-swap, bumping RunAttempt and resetting progress/error.
	// An in-flight status yields ErrRunInFlight.
	BeginRun(ctx context.Context, callID string) (Call, error)

	// UpdateProgress writes status/progress/message for an attempt.
	// Writes for a stale attempt, or with a lower progress value in the
	// same attempt and status, are dropped (last-write-wins, monotonic).
	UpdateProgress(ctx context.Context, callID string, attempt int, status CallStatus, progress int, message string) error

	MarkFailed(ctx context.Context, callID string, attempt int, errMsg string) error

	// Finalize completes an attempt: status completed, progress 100,
	// duration/sentiment/company overrides, processed_at.
	Finalize(ctx context.Context, callID string, attempt int, durationSeconds int, sentiment, customerCompany string, processedAt time.Time) error

	// ReplaceFields deletes every existing field row for the call and
	// inserts the given set atomically.
	ReplaceFields(ctx context.Context, callID string, fields []ExtractedField) error
	// AppendFields inserts rows without touching existing ones (template pass).
	AppendFields(ctx context.Context, callID string, fields []ExtractedField) error
	ListFields(ctx context.Context, callID string) ([]ExtractedField, error)

	// SweepStale fails in-flight runs that have not progressed since before
	// the cutoff, so they become re-triggerable. Returns affected call ids.
	SweepStale(ctx context.Context, cutoff time.Time) ([]string, error)
}
