package adminapi

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
)

// JWTPrincipalConfig configures the JWT-based principal extractor.
type JWTPrincipalConfig struct {
	// RoleClaim is the claim path holding the role, a string or an array of
	// strings. Dot-notation selects nested claims ("realm_access.roles").
	// Default: "role"
	RoleClaim string

	// UserClaim names the user. Default: "sub"
	UserClaim string

	// GroupsClaim holds the caller's groups. Default: "groups"
	GroupsClaim string

	// ProjectClaim holds the caller's project. Default: "project_id"
	ProjectClaim string

	// AdminRoleValue and OperatorRoleValue are the claim values mapped to the
	// admin and operator roles. Anything else is a viewer.
	// Defaults: "admin", "operator"
	AdminRoleValue    string
	OperatorRoleValue string

	// PublicKeyPath is a PEM-encoded RSA public key for RS256 verification.
	// If empty, tokens are parsed but NOT verified (trusted proxy mode).
	PublicKeyPath string

	// Issuer and Audience are validated when set.
	Issuer   string
	Audience string

	Logger *slog.Logger
}

// NewJWTPrincipalExtractor creates a PrincipalExtractor reading
// "Authorization: Bearer <token>". Requests without a usable token are
// anonymous viewers.
func NewJWTPrincipalExtractor(cfg JWTPrincipalConfig) (PrincipalExtractor, error) {
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	if cfg.UserClaim == "" {
		cfg.UserClaim = "sub"
	}
	if cfg.GroupsClaim == "" {
		cfg.GroupsClaim = "groups"
	}
	if cfg.ProjectClaim == "" {
		cfg.ProjectClaim = "project_id"
	}
	if cfg.AdminRoleValue == "" {
		cfg.AdminRoleValue = string(adminactions.RoleAdmin)
	}
	if cfg.OperatorRoleValue == "" {
		cfg.OperatorRoleValue = string(adminactions.RoleOperator)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var publicKey *rsa.PublicKey
	if cfg.PublicKeyPath != "" {
		key, err := loadRSAPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		publicKey = key
		cfg.Logger.Info("JWT principal extractor: using RS256 verification", "keyPath", cfg.PublicKeyPath)
	} else {
		cfg.Logger.Warn("JWT principal extractor: no public key configured, tokens parsed without verification (trusted proxy mode)")
	}

	return func(r *http.Request) adminactions.Principal {
		anonymous := adminactions.Principal{User: AnonymousUser, Role: adminactions.RoleViewer}

		token := extractBearerToken(r)
		if token == "" {
			return anonymous
		}
		claims, err := parseJWTClaims(token, publicKey, cfg)
		if err != nil {
			cfg.Logger.Debug("JWT parse failed, treating caller as anonymous", "error", err)
			return anonymous
		}

		p := adminactions.Principal{
			User:   AnonymousUser,
			Groups: claimStrings(lookupClaim(claims, cfg.GroupsClaim)),
			Role:   roleFromClaim(lookupClaim(claims, cfg.RoleClaim), cfg),
		}
		if user, ok := lookupClaim(claims, cfg.UserClaim).(string); ok && user != "" {
			p.User = user
		}
		if project, ok := lookupClaim(claims, cfg.ProjectClaim).(string); ok {
			p.Project = project
		}
		return p
	}, nil
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key from %s: %w", path, err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from %s", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA (got %T)", parsed)
	}
	return rsaKey, nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseJWTClaims(tokenString string, publicKey *rsa.PublicKey, cfg JWTPrincipalConfig) (jwt.MapClaims, error) {
	var opts []jwt.ParserOption
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var (
		token *jwt.Token
		err   error
	)
	if publicKey != nil {
		token, err = jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return publicKey, nil
		}, opts...)
	} else {
		token, _, err = jwt.NewParser(opts...).ParseUnverified(tokenString, jwt.MapClaims{})
	}
	if err != nil {
		return nil, fmt.Errorf("JWT parse error: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	return claims, nil
}

// lookupClaim follows a dot-separated path through nested claims.
func lookupClaim(claims jwt.MapClaims, path string) any {
	var current any = map[string]any(claims)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		if current, ok = m[part]; !ok {
			return nil
		}
	}
	return current
}

func claimStrings(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// roleFromClaim returns the highest role named by the claim.
func roleFromClaim(v any, cfg JWTPrincipalConfig) adminactions.Role {
	role := adminactions.RoleViewer
	for _, s := range claimStrings(v) {
		switch {
		case strings.EqualFold(s, cfg.AdminRoleValue):
			return adminactions.RoleAdmin
		case strings.EqualFold(s, cfg.OperatorRoleValue):
			role = adminactions.RoleOperator
		}
	}
	return role
}
