package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresRepo reads the minute_pricing table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) FindMinutePricing(ctx context.Context, orgID, metric string, at time.Time) (MinutePricing, bool, error) {
	const q = `
SELECT id, org_id, metric, currency, rate_per_minute_minor,
       effective_from, effective_to, status, created_at, updated_at
FROM minute_pricing
WHERE org_id = $1 AND metric = $2 AND status = 'active'
  AND effective_from <= $3
  AND (effective_to IS NULL OR effective_to > $3)
ORDER BY effective_from DESC
LIMIT 1`

	var p MinutePricing
	err := r.db.QueryRowContext(ctx, q, orgID, metric, at).Scan(
		&p.ID, &p.OrgID, &p.Metric, &p.Currency, &p.RatePerMinuteMinor,
		&p.EffectiveFrom, &p.EffectiveTo, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return MinutePricing{}, false, nil
	}
	if err != nil {
		return MinutePricing{}, false, fmt.Errorf("find minute pricing: %w", err)
	}
	return p, true, nil
}
