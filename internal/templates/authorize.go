package templates

import (
	"context"
	"errors"
	"fmt"

	"freightcall-platform/internal/auth"
)

var (
	ErrUnauthorized = errors.New("templates: user not authorized for template")
	ErrEmpty        = errors.New("templates: template has no fields")
)

// Authorizer resolves a template for a pipeline run and enforces access.
type Authorizer struct {
	store       Store
	memberships auth.MembershipStore
}

func NewAuthorizer(store Store, memberships auth.MembershipStore) *Authorizer {
	return &Authorizer{store: store, memberships: memberships}
}

// Resolve loads the template and its fields for userID, in guard order:
// existence, then access, then non-emptiness. Access requires ownership or
// membership in the template's org. A template must never be used by a
// caller who fails these checks.
func (a *Authorizer) Resolve(ctx context.Context, userID, templateID string) (Template, []TemplateField, error) {
	t, err := a.store.Get(ctx, templateID)
	if err != nil {
		return Template{}, nil, err
	}

	authorized := t.UserID == userID
	if !authorized && t.OrgID != "" {
		member, err := a.memberships.IsMember(ctx, userID, t.OrgID)
		if err != nil {
			return Template{}, nil, fmt.Errorf("membership check: %w", err)
		}
		authorized = member
	}
	if !authorized {
		return Template{}, nil, ErrUnauthorized
	}

	fields, err := a.store.Fields(ctx, templateID)
	if err != nil {
		return Template{}, nil, err
	}
	if len(fields) == 0 {
		return Template{}, nil, ErrEmpty
	}
	return t, fields, nil
}
