package pricing

import (
	"context"
	"errors"
	"time"

	"freightcall-platform/internal/config"
)

// Service resolves org-scoped transcription rates and computes run costs.
//
// Contract:
// - Repository lookups plus pure calculation; no provider SDK calls.
// - A missing org rate falls back to the platform rate from configuration,
//   so metering never fails for lack of a pricing row.
type Service struct {
	repo     RateRepository
	fallback config.UsageConfig
	clock    func() time.Time
}

func NewService(repo RateRepository, fallback config.UsageConfig) *Service {
	return &Service{repo: repo, fallback: fallback, clock: time.Now}
}

func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

type TranscriptionCostRequest struct {
	OrgID string

	// AudioDurationMs is the transcribed audio length in milliseconds.
	AudioDurationMs int64

	// At determines which effective pricing to use. If zero, service clock
	// is used.
	At time.Time
}

type TranscriptionCost struct {
	OrgID    string
	Metric   string
	Currency string

	BillableMinutes    int
	RatePerMinuteMinor int64
	TotalMinor         int64
}

var ErrInvalidPricingReq = errors.New("pricing: invalid request")

// CalculateTranscriptionCost bills ceiling minutes of audio at the org's
// effective rate.
func (s *Service) CalculateTranscriptionCost(ctx context.Context, req TranscriptionCostRequest) (TranscriptionCost, error) {
	if req.OrgID == "" {
		return TranscriptionCost{}, ErrInvalidPricingReq
	}
	if req.AudioDurationMs < 0 {
		return TranscriptionCost{}, ErrInvalidPricingReq
	}

	at := req.At
	if at.IsZero() {
		at = s.clock().UTC()
	}

	rate := s.fallback.RatePerMinuteMinor
	currency := s.fallback.Currency
	if s.repo != nil {
		mp, ok, err := s.repo.FindMinutePricing(ctx, req.OrgID, MetricTranscriptionMinutes, at)
		if err != nil {
			return TranscriptionCost{}, err
		}
		if ok {
			rate = mp.RatePerMinuteMinor
			currency = mp.Currency
		}
	}

	minutes := BillableMinutesFromMs(req.AudioDurationMs)

	return TranscriptionCost{
		OrgID:              req.OrgID,
		Metric:             MetricTranscriptionMinutes,
		Currency:           currency,
		BillableMinutes:    minutes,
		RatePerMinuteMinor: rate,
		TotalMinor:         rate * int64(minutes),
	}, nil
}

// RateRepository abstracts pricing persistence.
// Implementation can be Postgres, cached, etc.
type RateRepository interface {
	FindMinutePricing(ctx context.Context, orgID, metric string, at time.Time) (MinutePricing, bool, error)
}

// BillableMinutesFromMs rounds audio duration up to started minutes.
func BillableMinutesFromMs(ms int64) int {
	if ms <= 0 {
		return 0
	}
	return int((ms + 59_999) / 60_000)
}
