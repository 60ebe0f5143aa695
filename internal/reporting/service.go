package reporting

import (
	"context"
	"errors"
	"time"

	"freightcall-platform/internal/calls"
	"freightcall-platform/internal/usage"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce org filtering.
// - Implementations should query immutable sources when possible (usage
//   ledger, processing events, call records).

type Repository interface {
	ListCalls(ctx context.Context, orgID string, from, to time.Time) ([]calls.Call, error)
	ListUsage(ctx context.Context, orgID string, from, to time.Time) ([]usage.Record, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) ProcessingSummary(ctx context.Context, req ProcessingSummaryRequest) (ProcessingSummary, error) {
	if req.OrgID == "" {
		return ProcessingSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return ProcessingSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ProcessingSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.OrgID, req.Range.From, req.Range.To)
	if err != nil {
		return ProcessingSummary{}, err
	}

	out := ProcessingSummary{OrgID: req.OrgID}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalRunAttempts += c.RunAttempt
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
			out.TotalDurationSeconds += c.DurationSeconds
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusUploaded:
			out.UntriggeredCalls++
		case calls.CallStatusProcessing, calls.CallStatusTranscribing, calls.CallStatusExtracting:
			out.InFlightCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	return out, nil
}

func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	if req.OrgID == "" {
		return SpendSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return SpendSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SpendSummary{}, errors.New("reporting: repository not configured")
	}

	recs, err := s.repo.ListUsage(ctx, req.OrgID, req.Range.From, req.Range.To)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{OrgID: req.OrgID, Currency: req.Currency}
	for _, r := range recs {
		if out.Currency == "" {
			out.Currency = r.Currency
		}
		if req.Currency != "" && r.Currency != req.Currency {
			continue
		}
		out.TotalCostMinor += r.CostMinor
		out.TotalMinutes += r.Minutes
		out.BilledRuns++
	}
	return out, nil
}
