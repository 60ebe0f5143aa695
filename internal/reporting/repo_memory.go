package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"freightcall-platform/internal/calls"
	"freightcall-platform/internal/usage"
)

// MemoryRepo is a simple in-memory reporting repository for tests and
// early development. It enforces org isolation on reads.

type MemoryRepo struct {
	mu sync.Mutex

	Calls []calls.Call
	Usage []usage.Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, orgID string, from, to time.Time) ([]calls.Call, error) {
	if orgID == "" {
		return nil, errors.New("org_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, c := range r.Calls {
		if c.OrgID != orgID {
			continue
		}
		if !c.CreatedAt.IsZero() {
			if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) ListUsage(ctx context.Context, orgID string, from, to time.Time) ([]usage.Record, error) {
	if orgID == "" {
		return nil, errors.New("org_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]usage.Record, 0)
	for _, rec := range r.Usage {
		if rec.OrgID != orgID {
			continue
		}
		if !rec.CreatedAt.IsZero() {
			if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
