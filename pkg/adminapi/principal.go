package adminapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
)

// Headers read by the default principal extractor. In production they are
// set by an authenticating proxy; the role header is for development.
const (
	UserHeader    = "X-Remote-User"
	GroupHeader   = "X-Remote-Group"
	RoleHeader    = "X-User-Role"
	ProjectHeader = "X-Project-Id"
)

// AnonymousUser is the user name of requests without X-Remote-User.
const AnonymousUser = "anonymous"

// PrincipalExtractor derives the caller of a request.
type PrincipalExtractor func(r *http.Request) adminactions.Principal

type principalCtxKey struct{}

// WithPrincipal returns a new context with the given principal attached.
func WithPrincipal(ctx context.Context, p adminactions.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the principal stored by PrincipalMiddleware.
func PrincipalFromContext(ctx context.Context) (adminactions.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(adminactions.Principal)
	return p, ok
}

// DefaultPrincipalExtractor reads X-Remote-User, the comma-separated
// X-Remote-Group, X-User-Role and X-Project-Id. Missing or unknown roles are
// viewers.
func DefaultPrincipalExtractor(r *http.Request) adminactions.Principal {
	return adminactions.Principal{
		User:    remoteUser(r),
		Groups:  remoteGroups(r),
		Role:    adminactions.ParseRole(strings.TrimSpace(strings.ToLower(r.Header.Get(RoleHeader)))),
		Project: strings.TrimSpace(r.Header.Get(ProjectHeader)),
	}
}

func remoteUser(r *http.Request) string {
	user := strings.TrimSpace(r.Header.Get(UserHeader))
	if user == "" {
		return AnonymousUser
	}
	return user
}

func remoteGroups(r *http.Request) []string {
	var groups []string
	for _, g := range strings.Split(r.Header.Get(GroupHeader), ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// PrincipalMiddleware resolves the principal once per request and stores it
// in the request context.
func PrincipalMiddleware(extractor PrincipalExtractor) func(http.Handler) http.Handler {
	if extractor == nil {
		extractor = DefaultPrincipalExtractor
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithPrincipal(r.Context(), extractor(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose principal does not hold role with 403.
// It must run after PrincipalMiddleware.
func RequireRole(role adminactions.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFromContext(r.Context())
			if !p.Role.Satisfies(role) {
				writeError(w, http.StatusForbidden, adminactions.KindForbidden, "Policy doesn't allow this action to be performed.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
