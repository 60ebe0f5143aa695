package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNoPendingJobs = errors.New("jobs: no pending jobs")

// Store is the durable queue contract. Claim must hand each pending job to
// exactly one worker.
type Store interface {
	Enqueue(ctx context.Context, j Job) (Job, error)
	// Claim atomically moves the oldest pending job to running.
	Claim(ctx context.Context) (Job, error)
	// Requeue returns a claimed job to pending, e.g. when the org's
	// concurrency slot is unavailable.
	Requeue(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// MemoryStore is the in-memory queue used by tests.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  []Job
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clock: time.Now}
}

func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Enqueue(_ context.Context, j Job) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	j.Status = JobStatusPending
	j.CreatedAt = now
	j.UpdatedAt = now
	s.jobs = append(s.jobs, j)
	return j, nil
}

func (s *MemoryStore) Claim(_ context.Context) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].Status != JobStatusPending {
			continue
		}
		now := s.clock().UTC()
		s.jobs[i].Status = JobStatusRunning
		s.jobs[i].Attempts++
		s.jobs[i].StartedAt = &now
		s.jobs[i].UpdatedAt = now
		return s.jobs[i], nil
	}
	return Job{}, ErrNoPendingJobs
}

func (s *MemoryStore) Requeue(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID != jobID {
			continue
		}
		s.jobs[i].Status = JobStatusPending
		s.jobs[i].StartedAt = nil
		s.jobs[i].UpdatedAt = s.clock().UTC()
		return nil
	}
	return fmt.Errorf("jobs: job %s not found", jobID)
}

func (s *MemoryStore) MarkCompleted(_ context.Context, jobID string) error {
	return s.finish(jobID, JobStatusCompleted, "")
}

func (s *MemoryStore) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	return s.finish(jobID, JobStatusFailed, errMsg)
}

func (s *MemoryStore) finish(jobID string, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID != jobID {
			continue
		}
		now := s.clock().UTC()
		s.jobs[i].Status = status
		s.jobs[i].LastError = errMsg
		s.jobs[i].DoneAt = &now
		s.jobs[i].UpdatedAt = now
		return nil
	}
	return fmt.Errorf("jobs: job %s not found", jobID)
}

// Jobs returns a snapshot for assertions.
func (s *MemoryStore) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// PostgresStore persists the queue in the jobs table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Enqueue(ctx context.Context, j Job) (Job, error) {
	now := time.Now().UTC()
	j.Status = JobStatusPending
	j.CreatedAt = now
	j.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, org_id, kind, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
		j.ID, j.OrgID, j.Kind, j.Payload, j.Status, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return j, nil
}

// Claim uses SKIP LOCKED so concurrent dispatchers never double-claim.
func (s *PostgresStore) Claim(ctx context.Context) (Job, error) {
	const q = `
UPDATE jobs
SET status = 'running', attempts = attempts + 1,
    started_at = now(), updated_at = now()
WHERE id = (
  SELECT id FROM jobs
  WHERE status = 'pending'
  ORDER BY created_at
  FOR UPDATE SKIP LOCKED
  LIMIT 1
)
RETURNING id, org_id, kind, payload, status, attempts,
          COALESCE(last_error, ''), created_at, updated_at, started_at, done_at`

	var j Job
	err := s.db.QueryRowContext(ctx, q).Scan(
		&j.ID, &j.OrgID, &j.Kind, &j.Payload, &j.Status, &j.Attempts,
		&j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.DoneAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNoPendingJobs
	}
	if err != nil {
		return Job{}, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) Requeue(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'pending', started_at = NULL, updated_at = now()
		WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', done_at = now(), updated_at = now()
		WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', last_error = $2, done_at = now(), updated_at = now()
		WHERE id = $1`, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}
