package recording

import (
	"context"
	"fmt"
	"log/slog"

	"freightcall-platform/internal/calls"
	"freightcall-platform/internal/jobs"

	"github.com/google/uuid"
)

// Submitter enqueues a processing job for a newly created call.
type Submitter interface {
	Submit(ctx context.Context, orgID, callID string, runAttempt int) (jobs.Job, error)
}

// Trigger claims a run attempt on a call.
type Trigger interface {
	Trigger(ctx context.Context, orgID, callID string) (calls.Call, error)
}

// Intake turns a verified recording webhook into a call row and a queued
// processing run.
type Intake struct {
	calls     calls.Store
	trigger   Trigger
	submitter Submitter
	logger    *slog.Logger
}

func NewIntake(store calls.Store, trigger Trigger, submitter Submitter, logger *slog.Logger) *Intake {
	return &Intake{calls: store, trigger: trigger, submitter: submitter, logger: logger}
}

// Accept creates the call and queues processing. The call row survives
// queueing failures: an untriggered call stays `uploaded`, and a claimed
// run whose job cannot be queued is marked `failed` so it can be triggered
// again instead of sitting in `processing` until the stale-run sweep.
func (i *Intake) Accept(ctx context.Context, p InboundRecording) (calls.Call, error) {
	if err := p.Validate(); err != nil {
		return calls.Call{}, err
	}

	c, err := i.calls.Create(ctx, calls.Call{
		ID:           uuid.NewString(),
		OrgID:        p.OrgID,
		UserID:       p.UserID,
		AudioURL:     p.RecordingURL,
		Status:       calls.CallStatusUploaded,
		TemplateID:   p.TemplateID,
		TrimStartSec: p.TrimStartSec,
		TrimEndSec:   p.TrimEndSec,
	})
	if err != nil {
		return calls.Call{}, fmt.Errorf("create call: %w", err)
	}

	claimed, err := i.trigger.Trigger(ctx, c.OrgID, c.ID)
	if err != nil {
		i.logger.WarnContext(ctx, "recording accepted but not triggered",
			"call_id", c.ID, "external_id", p.ExternalID, "error", err)
		return c, nil
	}

	if _, err := i.submitter.Submit(ctx, claimed.OrgID, claimed.ID, claimed.RunAttempt); err != nil {
		i.logger.ErrorContext(ctx, "processing job not queued",
			"call_id", claimed.ID, "error", err)
		if markErr := i.calls.MarkFailed(ctx, claimed.ID, claimed.RunAttempt, "processing job not queued"); markErr != nil {
			i.logger.ErrorContext(ctx, "claim release failed", "call_id", claimed.ID, "error", markErr)
		} else {
			claimed.Status = calls.CallStatusFailed
		}
		return claimed, nil
	}

	i.logger.InfoContext(ctx, "recording accepted",
		"call_id", claimed.ID, "org_id", claimed.OrgID, "external_id", p.ExternalID)
	return claimed, nil
}
