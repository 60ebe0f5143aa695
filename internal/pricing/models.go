package pricing

import "time"

// Pricing rows are tenant-scoped (org_id required everywhere). Amounts are
// expressed in minor units (e.g., cents) using int64.

// MinutePricing defines the per-minute charge for a usage metric (only
// transcription_minutes today). A missing row falls back to the platform
// rate from configuration.
type MinutePricing struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	// Metric identifies what is being billed, e.g. "transcription_minutes".
	Metric string `json:"metric" db:"metric"`

	Currency string `json:"currency" db:"currency"`

	// RatePerMinuteMinor is the price per started minute.
	RatePerMinuteMinor int64 `json:"rate_per_minute_minor" db:"rate_per_minute_minor"`

	// Effective window for pricing.
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	Status PricingStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type PricingStatus string

const (
	PricingStatusActive   PricingStatus = "active"
	PricingStatusInactive PricingStatus = "inactive"
)

// MetricTranscriptionMinutes is the only metered metric today.
const MetricTranscriptionMinutes = "transcription_minutes"
