package calls

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and early development.
// It mirrors the Postgres implementation's CAS and monotonicity rules.
type MemoryStore struct {
	mu     sync.Mutex
	calls  map[string]Call
	fields map[string][]ExtractedField // call_id -> rows

	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:  map[string]Call{},
		fields: map[string][]ExtractedField{},
		clock:  time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Create(ctx context.Context, c Call) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CallStatusUploaded
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	s.calls[c.ID] = c
	return c, nil
}

func (s *MemoryStore) Get(ctx context.Context, orgID, callID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok || (orgID != "" && c.OrgID != orgID) {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) BeginRun(ctx context.Context, callID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	if !c.Status.CanTrigger() {
		return Call{}, ErrRunInFlight
	}

	c.Status = CallStatusProcessing
	c.RunAttempt++
	c.ProcessingProgress = 0
	c.ProcessingMessage = ""
	c.ErrorMessage = ""
	c.UpdatedAt = s.clock().UTC()
	s.calls[callID] = c
	return c, nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, callID string, attempt int, status CallStatus, progress int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return ErrNotFound
	}
	if c.RunAttempt != attempt {
		// Stale writer from a previous attempt.
		return nil
	}
	if progress < c.ProcessingProgress {
		// Out-of-order progress callback; keep the later value.
		return nil
	}

	c.Status = status
	c.ProcessingProgress = progress
	c.ProcessingMessage = message
	c.UpdatedAt = s.clock().UTC()
	s.calls[callID] = c
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, callID string, attempt int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return ErrNotFound
	}
	if c.RunAttempt != attempt {
		return nil
	}

	c.Status = CallStatusFailed
	c.ErrorMessage = errMsg
	c.UpdatedAt = s.clock().UTC()
	s.calls[callID] = c
	return nil
}

func (s *MemoryStore) Finalize(ctx context.Context, callID string, attempt int, durationSeconds int, sentiment, customerCompany string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return ErrNotFound
	}
	if c.RunAttempt != attempt {
		return nil
	}

	c.Status = CallStatusCompleted
	c.ProcessingProgress = 100
	c.ProcessingMessage = "Processing complete."
	c.DurationSeconds = durationSeconds
	if sentiment != "" {
		c.Sentiment = sentiment
	}
	if customerCompany != "" {
		c.CustomerCompany = customerCompany
	}
	c.ProcessedAt = &processedAt
	c.UpdatedAt = s.clock().UTC()
	s.calls[callID] = c
	return nil
}

func (s *MemoryStore) ReplaceFields(ctx context.Context, callID string, fields []ExtractedField) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	out := make([]ExtractedField, 0, len(fields))
	for _, f := range fields {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.CallID = callID
		f.CreatedAt = now
		out = append(out, f)
	}
	s.fields[callID] = out
	return nil
}

func (s *MemoryStore) AppendFields(ctx context.Context, callID string, fields []ExtractedField) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	for _, f := range fields {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.CallID = callID
		f.CreatedAt = now
		s.fields[callID] = append(s.fields[callID], f)
	}
	return nil
}

func (s *MemoryStore) ListFields(ctx context.Context, callID string) ([]ExtractedField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.fields[callID]
	out := make([]ExtractedField, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *MemoryStore) SweepStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []string
	for id, c := range s.calls {
		if c.Status.IsTerminal() || c.Status == CallStatusUploaded {
			continue
		}
		if c.UpdatedAt.Before(cutoff) {
			c.Status = CallStatusFailed
			c.ErrorMessage = "processing run stalled and was swept"
			c.UpdatedAt = s.clock().UTC()
			s.calls[id] = c
			swept = append(swept, id)
		}
	}
	return swept, nil
}
