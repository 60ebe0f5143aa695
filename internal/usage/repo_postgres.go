package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepo persists the ledger in usage_records. The table carries a
// UNIQUE (org_id, idempotency_key) constraint; Insert surfaces a violation
// as ErrDuplicateEntry so the service can fall back to the existing row.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_records
			(id, org_id, call_id, run_attempt, metric, minutes,
			 cost_minor, currency, idempotency_key, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.OrgID, rec.CallID, rec.RunAttempt, rec.Metric, rec.Minutes,
		rec.CostMinor, rec.Currency, rec.IdempotencyKey, rec.Metadata, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

const recordColumns = `id, org_id, call_id, run_attempt, metric, minutes,
cost_minor, currency, idempotency_key, metadata, created_at`

func (r *PostgresRepo) FindByIdempotency(ctx context.Context, orgID, key string) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM usage_records WHERE org_id = $1 AND idempotency_key = $2`,
		orgID, key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("find usage record: %w", err)
	}
	return rec, true, nil
}

func (r *PostgresRepo) ListByOrg(ctx context.Context, orgID string, from, to time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM usage_records
		WHERE org_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`,
		orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.OrgID, &rec.CallID, &rec.RunAttempt, &rec.Metric, &rec.Minutes,
		&rec.CostMinor, &rec.Currency, &rec.IdempotencyKey, &rec.Metadata, &rec.CreatedAt,
	)
	return rec, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
