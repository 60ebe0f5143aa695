package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ProcessingSummaryRequest requests aggregated pipeline metrics.
// Tenancy isolation: OrgID is required.

type ProcessingSummaryRequest struct {
	OrgID string    `json:"org_id"`
	Range TimeRange `json:"range"`
}

type ProcessingSummary struct {
	OrgID string `json:"org_id"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	InFlightCalls   int `json:"in_flight_calls"`
	UntriggeredCalls int `json:"untriggered_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// TotalRunAttempts counts processing attempts, including retries.
	TotalRunAttempts int `json:"total_run_attempts"`
}

// SpendSummaryRequest requests aggregated spend metrics. Spend is derived
// from immutable usage ledger entries scoped to the org.

type SpendSummaryRequest struct {
	OrgID    string    `json:"org_id"`
	Range    TimeRange `json:"range"`
	Currency string    `json:"currency,omitempty"`
}

type SpendSummary struct {
	OrgID    string `json:"org_id"`
	Currency string `json:"currency"`

	TotalCostMinor int64 `json:"total_cost_minor"`
	TotalMinutes   int   `json:"total_minutes"`
	BilledRuns     int   `json:"billed_runs"`
}
