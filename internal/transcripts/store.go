package transcripts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"freightcall-platform/pkg/utils"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("transcripts: not found")

// Store persists transcripts, one per call.
type Store interface {
	// Replace deletes any prior transcript for the call and inserts t.
	Replace(ctx context.Context, t Transcript) (Transcript, error)
	GetByCall(ctx context.Context, callID string) (Transcript, error)
	// DeleteByCall removes the transcript for a call, if present.
	DeleteByCall(ctx context.Context, callID string) error
}

// MemoryStore is an in-memory Store for tests and early development.
type MemoryStore struct {
	mu     sync.Mutex
	byCall map[string]Transcript
	clock  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byCall: map[string]Transcript{}, clock: time.Now}
}

func (s *MemoryStore) Replace(ctx context.Context, t Transcript) (Transcript, error) {
	if t.CallID == "" {
		return Transcript{}, errors.New("transcripts: call_id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = s.clock().UTC()
	s.byCall[t.CallID] = t
	return t, nil
}

func (s *MemoryStore) GetByCall(ctx context.Context, callID string) (Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byCall[callID]
	if !ok {
		return Transcript{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) DeleteByCall(ctx context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byCall, callID)
	return nil
}

// PostgresStore persists transcripts in the transcripts table.
// Utterances and speaker roles are stored as JSONB columns.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Replace(ctx context.Context, t Transcript) (Transcript, error) {
	if t.CallID == "" {
		return Transcript{}, errors.New("transcripts: call_id required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = s.clock().UTC()

	utterances, err := json.Marshal(t.Utterances)
	if err != nil {
		return Transcript{}, err
	}
	roles, err := json.Marshal(t.SpeakerRoles)
	if err != nil {
		return Transcript{}, err
	}

	err = utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE call_id = $1`, t.CallID); err != nil {
			return err
		}
		const q = `
INSERT INTO transcripts (
  id, call_id, full_text, utterances, speaker_roles, avg_confidence,
  audio_duration_seconds, word_count, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
		_, err := tx.ExecContext(ctx, q,
			t.ID, t.CallID, t.FullText, utterances, roles, t.AvgConfidence,
			t.AudioDurationSeconds, t.WordCount, t.CreatedAt,
		)
		return err
	})
	if err != nil {
		return Transcript{}, err
	}
	return t, nil
}

func (s *PostgresStore) GetByCall(ctx context.Context, callID string) (Transcript, error) {
	const q = `
SELECT id, call_id, full_text, utterances, speaker_roles, avg_confidence,
       audio_duration_seconds, word_count, created_at
FROM transcripts
WHERE call_id = $1
`
	var t Transcript
	var utterances, roles []byte
	err := s.db.QueryRowContext(ctx, q, callID).Scan(
		&t.ID, &t.CallID, &t.FullText, &utterances, &roles, &t.AvgConfidence,
		&t.AudioDurationSeconds, &t.WordCount, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transcript{}, ErrNotFound
		}
		return Transcript{}, err
	}
	if err := json.Unmarshal(utterances, &t.Utterances); err != nil {
		return Transcript{}, err
	}
	if err := json.Unmarshal(roles, &t.SpeakerRoles); err != nil {
		return Transcript{}, err
	}
	return t, nil
}

func (s *PostgresStore) DeleteByCall(ctx context.Context, callID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE call_id = $1`, callID)
	return err
}
