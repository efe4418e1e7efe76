package adminactions

import (
	"context"
	"fmt"
)

// Role is a principal's access level.
type Role string

const (
	// RoleViewer may run read-only actions such as diagnostics.
	RoleViewer Role = "viewer"
	// RoleOperator may run every non-privileged action.
	RoleOperator Role = "operator"
	// RoleAdmin may run every action, including forced state overrides.
	RoleAdmin Role = "admin"
)

// ParseRole maps a string to a Role. Unknown values are viewers.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleOperator:
		return RoleOperator
	default:
		return RoleViewer
	}
}

// Satisfies reports whether r grants at least the required role.
func (r Role) Satisfies(required Role) bool {
	rank := map[Role]int{RoleViewer: 0, RoleOperator: 1, RoleAdmin: 2}
	have, ok := rank[r]
	if !ok {
		have = 0
	}
	return have >= rank[required]
}

// Principal is the caller of an action.
type Principal struct {
	User    string   `json:"user"`
	Groups  []string `json:"groups,omitempty"`
	Role    Role     `json:"role"`
	Project string   `json:"project,omitempty"`
}

// Authorizer decides whether a principal may run an action. Denials wrap
// ErrForbidden.
type Authorizer interface {
	Authorize(ctx context.Context, p Principal, desc *Descriptor) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, p Principal, desc *Descriptor) error

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, p Principal, desc *Descriptor) error {
	return f(ctx, p, desc)
}

// RequiredRole returns the minimum role for an action.
func RequiredRole(desc *Descriptor) Role {
	switch {
	case desc.Privileged:
		return RoleAdmin
	case desc.ReadOnly:
		return RoleViewer
	default:
		return RoleOperator
	}
}

// RoleAuthorizer authorizes by comparing the principal's role with the
// action's required role.
type RoleAuthorizer struct{}

var _ Authorizer = RoleAuthorizer{}

// Authorize implements Authorizer.
func (RoleAuthorizer) Authorize(_ context.Context, p Principal, desc *Descriptor) error {
	required := RequiredRole(desc)
	if !p.Role.Satisfies(required) {
		return fmt.Errorf("%w: %s requires role %s, %q has %s", ErrForbidden, desc.Name, required, p.User, p.Role)
	}
	return nil
}
