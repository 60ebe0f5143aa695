package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freightcall-platform/internal/pricing"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument = errors.New("usage: invalid argument")
	ErrDuplicateEntry  = errors.New("usage: duplicate ledger entry")
)

// Service meters completed processing runs.
//
// Billing invariants:
// - One ledger entry per run attempt; replays return the existing entry.
// - Cost is computed once, at recording time, from the then-effective rate.
type Service struct {
	repo    Repository
	pricing *pricing.Service
	clock   func() time.Time
}

func NewService(repo Repository, pricingSvc *pricing.Service) *Service {
	return &Service{repo: repo, pricing: pricingSvc, clock: time.Now}
}

func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

type RecordRunRequest struct {
	OrgID      string
	CallID     string
	RunAttempt int

	// AudioDurationMs is the transcribed audio length from the provider.
	AudioDurationMs int64

	Metadata string
}

// IdempotencyKey scopes billing to one run attempt of one call.
func IdempotencyKey(callID string, runAttempt int) string {
	return fmt.Sprintf("%s:%d", callID, runAttempt)
}

// RecordRun appends a transcription-minutes entry for a completed run.
// The returned bool reports whether an existing entry was replayed.
func (s *Service) RecordRun(ctx context.Context, req RecordRunRequest) (Record, bool, error) {
	if req.OrgID == "" || req.CallID == "" {
		return Record{}, false, ErrInvalidArgument
	}
	if req.RunAttempt <= 0 {
		return Record{}, false, ErrInvalidArgument
	}
	if req.AudioDurationMs < 0 {
		return Record{}, false, ErrInvalidArgument
	}

	key := IdempotencyKey(req.CallID, req.RunAttempt)

	if existing, ok, err := s.repo.FindByIdempotency(ctx, req.OrgID, key); err != nil {
		return Record{}, false, err
	} else if ok {
		return existing, true, nil
	}

	now := s.clock().UTC()
	cost, err := s.pricing.CalculateTranscriptionCost(ctx, pricing.TranscriptionCostRequest{
		OrgID:           req.OrgID,
		AudioDurationMs: req.AudioDurationMs,
		At:              now,
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("price run: %w", err)
	}

	rec := Record{
		ID:             uuid.NewString(),
		OrgID:          req.OrgID,
		CallID:         req.CallID,
		RunAttempt:     req.RunAttempt,
		Metric:         cost.Metric,
		Minutes:        cost.BillableMinutes,
		CostMinor:      cost.TotalMinor,
		Currency:       cost.Currency,
		IdempotencyKey: key,
		Metadata:       req.Metadata,
		CreatedAt:      now,
	}

	err = s.repo.Insert(ctx, rec)
	if errors.Is(err, ErrDuplicateEntry) {
		// Lost a race with a concurrent recorder; the winner's row stands.
		existing, ok, ferr := s.repo.FindByIdempotency(ctx, req.OrgID, key)
		if ferr != nil {
			return Record{}, false, ferr
		}
		if ok {
			return existing, true, nil
		}
		return Record{}, false, err
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, false, nil
}

// Spend sums ledger cost for an org over [from, to).
func (s *Service) Spend(ctx context.Context, orgID string, from, to time.Time) (int64, string, error) {
	if orgID == "" {
		return 0, "", ErrInvalidArgument
	}
	recs, err := s.repo.ListByOrg(ctx, orgID, from, to)
	if err != nil {
		return 0, "", err
	}
	var total int64
	currency := ""
	for _, r := range recs {
		total += r.CostMinor
		currency = r.Currency
	}
	return total, currency, nil
}
