package events

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends to the processing_events table. The table carries
// an INSERT-only policy; no Update/Delete statements exist here.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_events
			(id, org_id, call_id, type, stage, run_attempt, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.OrgID, e.CallID, e.Type, e.Stage, e.RunAttempt, e.Message, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append processing event: %w", err)
	}
	return nil
}
