package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"freightcall-platform/pkg/utils"

	"github.com/google/uuid"
)

// PostgresStore persists calls and extracted fields.
//
// Expected tables: calls, extracted_fields.
// The CAS in BeginRun and the monotonic guard in UpdateProgress are
// expressed in SQL so concurrent triggers and out-of-order progress
// callbacks resolve at the database, not in application memory.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, c Call) (Call, error) {
	now := s.clock().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CallStatusUploaded
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	const q = `
INSERT INTO calls (
  id, org_id, user_id, audio_url, status, processing_progress, processing_message,
  error_message, run_attempt, trim_start_sec, trim_end_sec, template_id,
  duration_seconds, sentiment, customer_company, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)
`
	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.OrgID, c.UserID, c.AudioURL, c.Status, c.ProcessingProgress, c.ProcessingMessage,
		c.ErrorMessage, c.RunAttempt, c.TrimStartSec, c.TrimEndSec, nullableString(c.TemplateID),
		c.DurationSeconds, c.Sentiment, c.CustomerCompany, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	return c, nil
}

const callColumns = `
id, org_id, user_id, audio_url, status, processing_progress, processing_message,
error_message, run_attempt, trim_start_sec, trim_end_sec, COALESCE(template_id, ''),
duration_seconds, sentiment, customer_company, created_at, updated_at, processed_at
`

func scanCall(row *sql.Row) (Call, error) {
	var c Call
	err := row.Scan(
		&c.ID, &c.OrgID, &c.UserID, &c.AudioURL, &c.Status, &c.ProcessingProgress, &c.ProcessingMessage,
		&c.ErrorMessage, &c.RunAttempt, &c.TrimStartSec, &c.TrimEndSec, &c.TemplateID,
		&c.DurationSeconds, &c.Sentiment, &c.CustomerCompany, &c.CreatedAt, &c.UpdatedAt, &c.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

func (s *PostgresStore) Get(ctx context.Context, orgID, callID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	args := []any{callID}
	if orgID != "" {
		q += ` AND org_id = $2`
		args = append(args, orgID)
	}
	return scanCall(s.db.QueryRowContext(ctx, q, args...))
}

func (s *PostgresStore) BeginRun(ctx context.Context, callID string) (Call, error) {
	now := s.clock().UTC()

	q := `
UPDATE calls
SET status = 'processing',
    run_attempt = run_attempt + 1,
    processing_progress = 0,
    processing_message = '',
    error_message = '',
    updated_at = $2
WHERE id = $1 AND status IN ('uploaded', 'failed', 'completed')
RETURNING ` + callColumns
	c, err := scanCall(s.db.QueryRowContext(ctx, q, callID, now))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Call{}, err
	}

	// CAS missed: distinguish a missing call from an in-flight run.
	if _, getErr := s.Get(ctx, "", callID); getErr != nil {
		return Call{}, getErr
	}
	return Call{}, ErrRunInFlight
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, callID string, attempt int, status CallStatus, progress int, message string) error {
	const q = `
UPDATE calls
SET status = $3, processing_progress = $4, processing_message = $5, updated_at = $6
WHERE id = $1 AND run_attempt = $2 AND processing_progress <= $4
`
	// Zero rows affected means a stale attempt or an out-of-order callback;
	// both are dropped silently.
	_, err := s.db.ExecContext(ctx, q, callID, attempt, status, progress, message, s.clock().UTC())
	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, callID string, attempt int, errMsg string) error {
	const q = `
UPDATE calls
SET status = 'failed', error_message = $3, updated_at = $4
WHERE id = $1 AND run_attempt = $2
`
	_, err := s.db.ExecContext(ctx, q, callID, attempt, errMsg, s.clock().UTC())
	return err
}

func (s *PostgresStore) Finalize(ctx context.Context, callID string, attempt int, durationSeconds int, sentiment, customerCompany string, processedAt time.Time) error {
	const q = `
UPDATE calls
SET status = 'completed',
    processing_progress = 100,
    processing_message = 'Processing complete.',
    duration_seconds = $3,
    sentiment = CASE WHEN $4 <> '' THEN $4 ELSE sentiment END,
    customer_company = CASE WHEN $5 <> '' THEN $5 ELSE customer_company END,
    processed_at = $6,
    updated_at = $7
WHERE id = $1 AND run_attempt = $2
`
	_, err := s.db.ExecContext(ctx, q, callID, attempt, durationSeconds, sentiment, customerCompany, processedAt, s.clock().UTC())
	return err
}

func (s *PostgresStore) ReplaceFields(ctx context.Context, callID string, fields []ExtractedField) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_fields WHERE call_id = $1`, callID); err != nil {
			return err
		}
		return insertFields(ctx, tx, callID, fields, s.clock().UTC())
	})
}

func (s *PostgresStore) AppendFields(ctx context.Context, callID string, fields []ExtractedField) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return insertFields(ctx, tx, callID, fields, s.clock().UTC())
	})
}

func insertFields(ctx context.Context, tx *sql.Tx, callID string, fields []ExtractedField, now time.Time) error {
	const q = `
INSERT INTO extracted_fields (
  id, call_id, template_field_id, field_name, field_value, field_type, confidence_score, source, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	for _, f := range fields {
		id := f.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, q,
			id, callID, nullableString(f.TemplateFieldID), f.FieldName, f.FieldValue,
			f.FieldType, f.ConfidenceScore, f.Source, now,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ListFields(ctx context.Context, callID string) ([]ExtractedField, error) {
	const q = `
SELECT id, call_id, COALESCE(template_field_id, ''), field_name, field_value, field_type, confidence_score, source, created_at
FROM extracted_fields
WHERE call_id = $1
ORDER BY created_at, field_name
`
	rows, err := s.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExtractedField
	for rows.Next() {
		var f ExtractedField
		if err := rows.Scan(&f.ID, &f.CallID, &f.TemplateFieldID, &f.FieldName, &f.FieldValue, &f.FieldType, &f.ConfidenceScore, &f.Source, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SweepStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	const q = `
UPDATE calls
SET status = 'failed', error_message = 'processing run stalled and was swept', updated_at = $2
WHERE status IN ('processing', 'transcribing', 'extracting') AND updated_at < $1
RETURNING id
`
	rows, err := s.db.QueryContext(ctx, q, cutoff, s.clock().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
