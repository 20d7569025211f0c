// Package auth authenticates operators of the control API with signed
// tokens and scopes them to a suite and, optionally, one office.
package auth

import (
	"context"
	"errors"
	"slices"
)

// RoleApprover may approve and deny actions. Every other route only needs a
// valid token.
const RoleApprover = "approver"

var ErrNoPrincipal = errors.New("no principal in context")

// Principal is the authenticated caller. An empty OfficeID grants every
// office of the suite.
type Principal struct {
	ID       string   `json:"id"`
	SuiteID  string   `json:"suite_id"`
	OfficeID string   `json:"office_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// CanAccess reports whether p may act on the given tenant scope. Unscoped
// resources belong to nobody.
func (p *Principal) CanAccess(suiteID, officeID string) bool {
	if p == nil || p.SuiteID == "" || suiteID != p.SuiteID {
		return false
	}
	return p.OfficeID == "" || officeID == p.OfficeID
}

// HasRole reports whether p carries role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal attached by the middleware.
func GetPrincipal(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, ErrNoPrincipal
	}
	return p, nil
}
