package adminactions

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

// DefaultPolicy mirrors RoleAuthorizer and is used when no policy file is
// configured.
//
//go:embed policy/default.rego
var DefaultPolicy string

// PolicyQuery is the rule every policy must define.
const PolicyQuery = "data.adminactions.authz.allow"

// OPAAuthorizer evaluates a Rego policy for each request. The policy receives
//
//	input.principal: {user, groups, role}
//	input.action:    {name, privileged, read_only, bypass_guard}
//
// and must define a boolean data.adminactions.authz.allow.
type OPAAuthorizer struct {
	query rego.PreparedEvalQuery
}

var _ Authorizer = (*OPAAuthorizer)(nil)

// NewOPAAuthorizer compiles policy source.
func NewOPAAuthorizer(ctx context.Context, name, source string) (*OPAAuthorizer, error) {
	q, err := rego.New(
		rego.Query(PolicyQuery),
		rego.Module(name, source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authorization policy %s: %w", name, err)
	}
	return &OPAAuthorizer{query: q}, nil
}

// LoadOPAAuthorizer compiles the policy at path, or DefaultPolicy when path
// is empty.
func LoadOPAAuthorizer(ctx context.Context, path string) (*OPAAuthorizer, error) {
	if path == "" {
		return NewOPAAuthorizer(ctx, "default.rego", DefaultPolicy)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorization policy: %w", err)
	}
	return NewOPAAuthorizer(ctx, path, string(src))
}

// Authorize implements Authorizer. Evaluation errors deny the request.
func (a *OPAAuthorizer) Authorize(ctx context.Context, p Principal, desc *Descriptor) error {
	groups := p.Groups
	if groups == nil {
		groups = []string{}
	}
	input := map[string]any{
		"principal": map[string]any{
			"user":   p.User,
			"groups": groups,
			"role":   string(p.Role),
		},
		"action": map[string]any{
			"name":         string(desc.Name),
			"privileged":   desc.Privileged,
			"read_only":    desc.ReadOnly,
			"bypass_guard": desc.BypassGuard,
		},
	}
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("%w: policy evaluation failed: %v", ErrForbidden, err)
	}
	if !rs.Allowed() {
		return fmt.Errorf("%w: policy denied %s for %q", ErrForbidden, desc.Name, p.User)
	}
	return nil
}
