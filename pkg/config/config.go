// Package config loads admin-gateway configuration.
//
// Configuration is read, in increasing precedence, from defaults, an
// optional YAML file, ADMIN_GATEWAY_* environment variables and bound
// command-line flags. Nested keys map to environment variables by replacing
// dots with underscores: database.dsn becomes ADMIN_GATEWAY_DATABASE_DSN.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "ADMIN_GATEWAY"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Authz    AuthzConfig    `mapstructure:"authz"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Compute  ComputeConfig  `mapstructure:"compute"`
	History  HistoryConfig  `mapstructure:"history"`

	// FixturesPath seeds hosts and instances at startup when set.
	FixturesPath string `mapstructure:"fixtures_path"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" validate:"required"`
	BaseURL         string        `mapstructure:"base_url" validate:"omitempty,url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the gorm dialector.
type DatabaseConfig struct {
	Type         string `mapstructure:"type" validate:"oneof=sqlite postgres mysql"`
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	// MigrationLock serializes schema migrations across replicas.
	MigrationLock bool `mapstructure:"migration_lock"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// AuthConfig selects how callers are identified.
type AuthConfig struct {
	// Mode is "header" (X-Remote-User, X-Remote-Group, X-User-Role) or
	// "jwt" (Authorization: Bearer).
	Mode string    `mapstructure:"mode" validate:"oneof=header jwt"`
	JWT  JWTConfig `mapstructure:"jwt"`
}

// JWTConfig configures bearer token parsing.
type JWTConfig struct {
	RoleClaim         string `mapstructure:"role_claim"`
	UserClaim         string `mapstructure:"user_claim"`
	GroupsClaim       string `mapstructure:"groups_claim"`
	ProjectClaim      string `mapstructure:"project_claim"`
	AdminRoleValue    string `mapstructure:"admin_role_value"`
	OperatorRoleValue string `mapstructure:"operator_role_value"`
	PublicKeyPath     string `mapstructure:"public_key_path"`
	Issuer            string `mapstructure:"issuer"`
	Audience          string `mapstructure:"audience"`
}

// AuthzConfig selects the authorizer.
type AuthzConfig struct {
	// Mode is "role" (built-in role ladder) or "opa" (Rego policy).
	Mode string `mapstructure:"mode" validate:"oneof=role opa"`
	// PolicyPath is the Rego file for opa mode. Empty uses the built-in policy.
	PolicyPath string `mapstructure:"policy_path"`
}

// GatewayConfig tunes request handling.
type GatewayConfig struct {
	DelegationTimeout time.Duration `mapstructure:"delegation_timeout" validate:"gt=0"`
}

// ComputeConfig configures the reference orchestration subsystem.
type ComputeConfig struct {
	DiagnosticsSupported bool          `mapstructure:"diagnostics_supported"`
	MetadataItemsQuota   int           `mapstructure:"metadata_items_quota" validate:"gte=0"`
	ConductorWorkers     int           `mapstructure:"conductor_workers" validate:"gte=1"`
	ConductorQueue       int           `mapstructure:"conductor_queue" validate:"gte=1"`
	TaskDelay            time.Duration `mapstructure:"task_delay" validate:"gte=0"`
}

// HistoryConfig controls instance action history retention.
type HistoryConfig struct {
	// RetentionDays of zero keeps history forever.
	RetentionDays   int           `mapstructure:"retention_days" validate:"gte=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8774")
	v.SetDefault("server.base_url", "http://localhost:8774/v2")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "file:admin-gateway.db?_pragma=busy_timeout(5000)")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.migration_lock", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("auth.mode", "header")
	v.SetDefault("auth.jwt.role_claim", "role")
	v.SetDefault("auth.jwt.user_claim", "sub")
	v.SetDefault("auth.jwt.groups_claim", "groups")
	v.SetDefault("auth.jwt.project_claim", "project_id")
	v.SetDefault("auth.jwt.admin_role_value", "admin")
	v.SetDefault("auth.jwt.operator_role_value", "operator")
	v.SetDefault("auth.jwt.public_key_path", "")
	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.audience", "")

	v.SetDefault("authz.mode", "role")
	v.SetDefault("authz.policy_path", "")

	v.SetDefault("gateway.delegation_timeout", "30s")

	v.SetDefault("compute.diagnostics_supported", true)
	v.SetDefault("compute.metadata_items_quota", 128)
	v.SetDefault("compute.conductor_workers", 4)
	v.SetDefault("compute.conductor_queue", 256)
	v.SetDefault("compute.task_delay", "2s")

	v.SetDefault("history.retention_days", 90)
	v.SetDefault("history.cleanup_interval", "24h")

	v.SetDefault("fixtures_path", "")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration. path names a YAML file; when empty,
// admin-gateway.yaml is searched in the working directory and
// /etc/admin-gateway and is optional. flags, when non-nil, override every
// other source for the flags the user set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("admin-gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/admin-gateway")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"listen":             "server.listen",
	"base-url":           "server.base_url",
	"db-type":            "database.type",
	"db-dsn":             "database.dsn",
	"log-level":          "log.level",
	"auth-mode":          "auth.mode",
	"authz-mode":         "authz.mode",
	"policy":             "authz.policy_path",
	"delegation-timeout": "gateway.delegation_timeout",
	"fixtures":           "fixtures_path",
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("listen", "", "HTTP listen address")
	fs.String("base-url", "", "public base URL used in Location headers")
	fs.String("db-type", "", "database type: sqlite, postgres or mysql")
	fs.String("db-dsn", "", "database DSN")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("auth-mode", "", "caller identification: header or jwt")
	fs.String("authz-mode", "", "authorizer: role or opa")
	fs.String("policy", "", "Rego policy file for --authz-mode=opa")
	fs.Duration("delegation-timeout", 0, "bound on fetching and delegating per request")
	fs.String("fixtures", "", "YAML file of hosts and instances to seed")
}

// bindFlags binds only the flags that exist in fs, so commands may register
// a subset.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) && len(vErrs) > 0 {
			fe := vErrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Authz.PolicyPath != "" && c.Authz.Mode != "opa" {
		return fmt.Errorf("invalid config: authz.policy_path requires authz.mode=opa")
	}
	return nil
}
