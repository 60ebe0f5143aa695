package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for processing events.
//
// It MUST be append-only.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

var ErrInvalidEvent = errors.New("events: invalid event")

// Service records the processing trail. Callers treat recording as
// best-effort; the orchestrator logs append errors and keeps going.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("events: repository not configured")
	}
	if e.OrgID == "" || e.CallID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) StageStarted(ctx context.Context, orgID, callID string, attempt int, stage string) error {
	return s.Append(ctx, Event{
		OrgID: orgID, CallID: callID, RunAttempt: attempt,
		Type: EventTypeStageStarted, Stage: stage,
	})
}

func (s *Service) StageCompleted(ctx context.Context, orgID, callID string, attempt int, stage string) error {
	return s.Append(ctx, Event{
		OrgID: orgID, CallID: callID, RunAttempt: attempt,
		Type: EventTypeStageCompleted, Stage: stage,
	})
}

func (s *Service) TemplateSkipped(ctx context.Context, orgID, callID string, attempt int, reason string) error {
	return s.Append(ctx, Event{
		OrgID: orgID, CallID: callID, RunAttempt: attempt,
		Type: EventTypeTemplateSkipped, Stage: "template_extraction", Message: reason,
	})
}

func (s *Service) RunFailed(ctx context.Context, orgID, callID string, attempt int, stage, message string) error {
	return s.Append(ctx, Event{
		OrgID: orgID, CallID: callID, RunAttempt: attempt,
		Type: EventTypeRunFailed, Stage: stage, Message: message,
	})
}

func (s *Service) RunCompleted(ctx context.Context, orgID, callID string, attempt int) error {
	return s.Append(ctx, Event{
		OrgID: orgID, CallID: callID, RunAttempt: attempt,
		Type: EventTypeRunCompleted,
	})
}
