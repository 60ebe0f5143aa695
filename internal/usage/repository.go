package usage

import (
	"context"
	"time"
)

// Repository is the persistence contract for the usage ledger.
//
// Insert MUST be atomic with the idempotency check; concurrent inserts of
// the same (org_id, idempotency_key) must yield exactly one row.
type Repository interface {
	Insert(ctx context.Context, r Record) error
	FindByIdempotency(ctx context.Context, orgID, key string) (Record, bool, error)
	ListByOrg(ctx context.Context, orgID string, from, to time.Time) ([]Record, error)
}
