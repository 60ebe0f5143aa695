package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Multi-tenant invariant: OrgID must be present for all non-admin activity.
// Template access beyond the caller's own rows is decided server-side via the
// membership store, never from token contents alone.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	OrgID     string    `json:"org_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
