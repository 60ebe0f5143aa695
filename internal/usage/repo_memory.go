package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory ledger useful for tests.

type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
	byKey   map[string]int // org_id + "\x00" + idempotency_key -> index
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byKey: make(map[string]int)}
}

func keyOf(orgID, key string) string { return orgID + "\x00" + key }

func (r *MemoryRepo) Insert(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyOf(rec.OrgID, rec.IdempotencyKey)
	if _, exists := r.byKey[k]; exists {
		return ErrDuplicateEntry
	}
	r.byKey[k] = len(r.records)
	r.records = append(r.records, rec)
	return nil
}

func (r *MemoryRepo) FindByIdempotency(_ context.Context, orgID, key string) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byKey[keyOf(orgID, key)]
	if !ok {
		return Record{}, false, nil
	}
	return r.records[idx], true, nil
}

func (r *MemoryRepo) ListByOrg(_ context.Context, orgID string, from, to time.Time) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.OrgID != orgID {
			continue
		}
		if !from.IsZero() && rec.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !rec.CreatedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
