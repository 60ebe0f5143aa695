package auth

import (
	"context"
	"fmt"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxOrgID
	ctxRole
)

// WithIdentity stamps the verified caller onto ctx. Downstream code reads
// it back with UserID, OrgID and Role rather than trusting request input.
func WithIdentity(ctx context.Context, userID, orgID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxOrgID, orgID)
	return context.WithValue(ctx, ctxRole, role)
}

func UserID(ctx context.Context) (string, error) { return fromCtx(ctx, ctxUserID, "user_id") }

func OrgID(ctx context.Context) (string, error) { return fromCtx(ctx, ctxOrgID, "org_id") }

func Role(ctx context.Context) (string, error) { return fromCtx(ctx, ctxRole, "role") }

func fromCtx(ctx context.Context, key ctxKey, name string) (string, error) {
	if s, ok := ctx.Value(key).(string); ok && s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%s not in context", name)
}
