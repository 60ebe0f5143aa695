package auth

import (
	"context"
	"database/sql"
	"sync"
)

// MembershipStore answers organization-membership questions.
//
// The pipeline uses it to decide whether a call's user may read an
// extraction template owned by an organization. Implementations must be
// safe for concurrent use.
type MembershipStore interface {
	IsMember(ctx context.Context, userID, orgID string) (bool, error)
}

// MemoryMembershipStore is an in-memory membership store for tests and
// early development.
type MemoryMembershipStore struct {
	mu      sync.Mutex
	members map[string]map[string]bool // user_id -> org_id -> member
}

func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{members: map[string]map[string]bool{}}
}

func (s *MemoryMembershipStore) Add(userID, orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[userID] == nil {
		s.members[userID] = map[string]bool{}
	}
	s.members[userID][orgID] = true
}

func (s *MemoryMembershipStore) IsMember(ctx context.Context, userID, orgID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[userID][orgID], nil
}

// PostgresMembershipStore reads the org_members table.
type PostgresMembershipStore struct {
	db *sql.DB
}

func NewPostgresMembershipStore(db *sql.DB) *PostgresMembershipStore {
	return &PostgresMembershipStore{db: db}
}

func (s *PostgresMembershipStore) IsMember(ctx context.Context, userID, orgID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM org_members WHERE user_id = $1 AND org_id = $2
)
`
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, userID, orgID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
