// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/crudkit/core/defaults"
	"github.com/artpar/crudkit/core/normalize"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Resources     ResourcesConfig     `yaml:"resources"`
	Defaults      DefaultsConfig      `yaml:"defaults"`
	Locale        LocaleConfig        `yaml:"locale"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Audit         AuditConfig         `yaml:"audit"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // only "sqlite"
	DSN    string `yaml:"dsn"`
}

// ResourcesConfig locates the resource definitions.
type ResourcesConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultsConfig holds the process-wide operation defaults. Resources
// override them per operation.
type DefaultsConfig struct {
	Strategy    string `yaml:"strategy"` // "preload", "eager_load" or "includes"
	PageSize    int    `yaml:"page_size"`
	MaxPageSize int    `yaml:"max_page_size"` // 0 means no cap
}

// LocaleConfig configures parsing of locale formatted dates.
type LocaleConfig struct {
	Tag       string `yaml:"tag"`       // BCP 47 tag, e.g. "nl" or "en-GB"
	Precision string `yaml:"precision"` // "day", "hour", "minute", "second" or "subsecond"
	Timezone  string `yaml:"timezone"`
}

// AuthorizationConfig selects the authorizer.
type AuthorizationConfig struct {
	// Mode is "permissive" (allow everything) or "owner" (resources naming
	// an owner field are restricted to their owners).
	Mode       string   `yaml:"mode"`
	AdminRoles []string `yaml:"admin_roles,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// AuditConfig configures the change log.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Retention     time.Duration `yaml:"retention"` // 0 keeps everything
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML. ${VAR} references are expanded
// and CRUDKIT_* environment variables override file values.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	CRUDKIT_DATABASE_DRIVER   - Database driver (default: sqlite)
//	CRUDKIT_DATABASE_DSN      - Database path (default: crudkit.db)
//	CRUDKIT_RESOURCES_DIR     - Resource definitions directory (default: resources)
//	CRUDKIT_DEFAULT_STRATEGY  - Association loading strategy (default: preload)
//	CRUDKIT_PAGE_SIZE         - Default page size (default: 25)
//	CRUDKIT_MAX_PAGE_SIZE     - Page size cap (default: none)
//	CRUDKIT_LOCALE            - Date locale (default: en)
//	CRUDKIT_LOCALE_PRECISION  - Datetime precision (default: second)
//	CRUDKIT_LOCALE_TIMEZONE   - Timezone of dates without offset (default: UTC)
//	CRUDKIT_AUTH_MODE         - permissive or owner (default: permissive)
//	CRUDKIT_AUTH_ADMIN_ROLES  - Comma separated roles that bypass owner rules
//	CRUDKIT_LOG_LEVEL         - Log level: debug, info, warn, error (default: info)
//	CRUDKIT_LOG_FORMAT        - Log format: json or console (default: json)
//	CRUDKIT_METRICS_ENABLED   - Record Prometheus metrics (default: false)
//	CRUDKIT_METRICS_NAMESPACE - Metric namespace (default: crudkit)
//	CRUDKIT_AUDIT_ENABLED     - Record a change log (default: false)
//	CRUDKIT_AUDIT_RETENTION   - Age after which entries are pruned, e.g. 720h
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies CRUDKIT_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Database configuration
	if v := os.Getenv("CRUDKIT_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CRUDKIT_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("CRUDKIT_RESOURCES_DIR"); v != "" {
		cfg.Resources.Dir = v
	}

	// Operation defaults
	if v := os.Getenv("CRUDKIT_DEFAULT_STRATEGY"); v != "" {
		cfg.Defaults.Strategy = v
	}
	if v := os.Getenv("CRUDKIT_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.PageSize = n
		}
	}
	if v := os.Getenv("CRUDKIT_MAX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.MaxPageSize = n
		}
	}

	// Locale configuration
	if v := os.Getenv("CRUDKIT_LOCALE"); v != "" {
		cfg.Locale.Tag = v
	}
	if v := os.Getenv("CRUDKIT_LOCALE_PRECISION"); v != "" {
		cfg.Locale.Precision = v
	}
	if v := os.Getenv("CRUDKIT_LOCALE_TIMEZONE"); v != "" {
		cfg.Locale.Timezone = v
	}

	// Authorization configuration
	if v := os.Getenv("CRUDKIT_AUTH_MODE"); v != "" {
		cfg.Authorization.Mode = v
	}
	if v := os.Getenv("CRUDKIT_AUTH_ADMIN_ROLES"); v != "" {
		cfg.Authorization.AdminRoles = splitList(v)
	}

	// Logging configuration
	if v := os.Getenv("CRUDKIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CRUDKIT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("CRUDKIT_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("CRUDKIT_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}

	// Audit configuration
	if v := os.Getenv("CRUDKIT_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = parseBool(v)
	}
	if v := os.Getenv("CRUDKIT_AUDIT_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Audit.Retention = d
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "crudkit.db"
	}

	if cfg.Resources.Dir == "" {
		cfg.Resources.Dir = "resources"
	}

	if cfg.Defaults.Strategy == "" {
		cfg.Defaults.Strategy = "preload"
	}
	if cfg.Defaults.PageSize == 0 {
		cfg.Defaults.PageSize = 25
	}

	if cfg.Locale.Tag == "" {
		cfg.Locale.Tag = "en"
	}
	if cfg.Locale.Precision == "" {
		cfg.Locale.Precision = "second"
	}
	if cfg.Locale.Timezone == "" {
		cfg.Locale.Timezone = "UTC"
	}

	if cfg.Authorization.Mode == "" {
		cfg.Authorization.Mode = "permissive"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "crudkit"
	}

	if cfg.Audit.BatchSize == 0 {
		cfg.Audit.BatchSize = 100
	}
	if cfg.Audit.FlushInterval == 0 {
		cfg.Audit.FlushInterval = time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	if _, err := defaults.ParseStrategy(cfg.Defaults.Strategy); err != nil {
		return fmt.Errorf("defaults.strategy: %w", err)
	}
	if cfg.Defaults.PageSize < 0 {
		return fmt.Errorf("defaults.page_size must not be negative")
	}
	if cfg.Defaults.MaxPageSize < 0 {
		return fmt.Errorf("defaults.max_page_size must not be negative")
	}
	if cfg.Defaults.MaxPageSize > 0 && cfg.Defaults.PageSize > cfg.Defaults.MaxPageSize {
		return fmt.Errorf("defaults.page_size %d exceeds defaults.max_page_size %d",
			cfg.Defaults.PageSize, cfg.Defaults.MaxPageSize)
	}

	if _, err := language.Parse(cfg.Locale.Tag); err != nil {
		return fmt.Errorf("locale.tag: %w", err)
	}
	if _, err := normalize.ParsePrecision(cfg.Locale.Precision); err != nil {
		return fmt.Errorf("locale.precision: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Locale.Timezone); err != nil {
		return fmt.Errorf("locale.timezone: %w", err)
	}

	validAuthModes := map[string]bool{"permissive": true, "owner": true}
	if !validAuthModes[cfg.Authorization.Mode] {
		return fmt.Errorf("authorization.mode must be 'permissive' or 'owner', got %q", cfg.Authorization.Mode)
	}

	if cfg.Audit.BatchSize < 0 || cfg.Audit.FlushInterval < 0 || cfg.Audit.Retention < 0 {
		return fmt.Errorf("audit settings must not be negative")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
