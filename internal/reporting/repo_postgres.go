package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"freightcall-platform/internal/calls"
	"freightcall-platform/internal/usage"
)

// PostgresRepo reads the calls and usage_records tables directly. Reporting
// is read-only; it never mutates pipeline state.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListCalls(ctx context.Context, orgID string, from, to time.Time) ([]calls.Call, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, status, run_attempt, duration_seconds, created_at
		FROM calls
		WHERE org_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`,
		orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calls for reporting: %w", err)
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		var c calls.Call
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Status, &c.RunAttempt, &c.DurationSeconds, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListUsage(ctx context.Context, orgID string, from, to time.Time) ([]usage.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, call_id, run_attempt, metric, minutes, cost_minor, currency, created_at
		FROM usage_records
		WHERE org_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`,
		orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list usage for reporting: %w", err)
	}
	defer rows.Close()

	var out []usage.Record
	for rows.Next() {
		var rec usage.Record
		if err := rows.Scan(&rec.ID, &rec.OrgID, &rec.CallID, &rec.RunAttempt, &rec.Metric,
			&rec.Minutes, &rec.CostMinor, &rec.Currency, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
