package adminactions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleOperator, ParseRole("operator"))
	assert.Equal(t, RoleViewer, ParseRole("viewer"))
	assert.Equal(t, RoleViewer, ParseRole("root"))
	assert.Equal(t, RoleViewer, ParseRole(""))
}

func TestRequiredRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, RequiredRole(mustLookup(t, ActionResetState)))
	assert.Equal(t, RoleViewer, RequiredRole(mustLookup(t, ActionDiagnostics)))
	assert.Equal(t, RoleOperator, RequiredRole(mustLookup(t, ActionPause)))
}

// authorizers returns the built-in authorizers, which must agree.
func authorizers(t *testing.T) map[string]Authorizer {
	t.Helper()
	opa, err := LoadOPAAuthorizer(context.Background(), "")
	require.NoError(t, err)
	return map[string]Authorizer{"role": RoleAuthorizer{}, "opa": opa}
}

func TestAuthorizers_Matrix(t *testing.T) {
	reg := NewDefaultRegistry()
	roles := []Role{RoleViewer, RoleOperator, RoleAdmin}

	for name, a := range authorizers(t) {
		t.Run(name, func(t *testing.T) {
			for _, d := range reg.Descriptors() {
				for _, r := range roles {
					err := a.Authorize(context.Background(), Principal{User: "u", Role: r}, d)
					if r.Satisfies(RequiredRole(d)) {
						assert.NoError(t, err, "%s as %s", d.Name, r)
					} else {
						assert.ErrorIs(t, err, ErrForbidden, "%s as %s", d.Name, r)
					}
				}
			}
		})
	}
}

func TestOPAAuthorizer_CustomPolicy(t *testing.T) {
	policy := `package adminactions.authz

default allow := false

allow if {
	"oncall" in input.principal.groups
	input.action.name != "os-resetState"
}
`
	path := filepath.Join(t.TempDir(), "oncall.rego")
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))

	a, err := LoadOPAAuthorizer(context.Background(), path)
	require.NoError(t, err)

	oncall := Principal{User: "pat", Groups: []string{"oncall"}, Role: RoleViewer}
	assert.NoError(t, a.Authorize(context.Background(), oncall, mustLookup(t, ActionLiveMigrate)))
	assert.ErrorIs(t, a.Authorize(context.Background(), oncall, mustLookup(t, ActionResetState)), ErrForbidden)
	assert.ErrorIs(t, a.Authorize(context.Background(), Principal{User: "sam", Role: RoleAdmin}, mustLookup(t, ActionPause)), ErrForbidden)
}

func TestOPAAuthorizer_Errors(t *testing.T) {
	_, err := NewOPAAuthorizer(context.Background(), "broken.rego", "package adminactions.authz\nallow if {")
	assert.Error(t, err)

	_, err = LoadOPAAuthorizer(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}
