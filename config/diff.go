package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Change is a setting whose value differs between two configurations.
type Change struct {
	Field      string
	Old        string
	New        string
	Reloadable bool
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %q -> %q", c.Field, c.Old, c.New)
}

// setting describes one configuration field. Reloadable settings have a
// copy function that moves the value from src to dst.
type setting struct {
	path string
	get  func(*Config) string
	copy func(dst, src *Config)
}

var settings = []setting{
	{"defaults.strategy", func(c *Config) string { return c.Defaults.Strategy },
		func(dst, src *Config) { dst.Defaults.Strategy = src.Defaults.Strategy }},
	{"defaults.page_size", func(c *Config) string { return strconv.Itoa(c.Defaults.PageSize) },
		func(dst, src *Config) { dst.Defaults.PageSize = src.Defaults.PageSize }},
	{"defaults.max_page_size", func(c *Config) string { return strconv.Itoa(c.Defaults.MaxPageSize) },
		func(dst, src *Config) { dst.Defaults.MaxPageSize = src.Defaults.MaxPageSize }},
	{"logging.level", func(c *Config) string { return c.Logging.Level },
		func(dst, src *Config) { dst.Logging.Level = src.Logging.Level }},

	{"database.driver", func(c *Config) string { return c.Database.Driver }, nil},
	{"database.dsn", func(c *Config) string { return c.Database.DSN }, nil},
	{"resources.dir", func(c *Config) string { return c.Resources.Dir }, nil},
	{"locale.tag", func(c *Config) string { return c.Locale.Tag }, nil},
	{"locale.precision", func(c *Config) string { return c.Locale.Precision }, nil},
	{"locale.timezone", func(c *Config) string { return c.Locale.Timezone }, nil},
	{"authorization.mode", func(c *Config) string { return c.Authorization.Mode }, nil},
	{"authorization.admin_roles", func(c *Config) string { return strings.Join(c.Authorization.AdminRoles, ",") }, nil},
	{"logging.format", func(c *Config) string { return c.Logging.Format }, nil},
	{"metrics.enabled", func(c *Config) string { return strconv.FormatBool(c.Metrics.Enabled) }, nil},
	{"metrics.namespace", func(c *Config) string { return c.Metrics.Namespace }, nil},
	{"audit.enabled", func(c *Config) string { return strconv.FormatBool(c.Audit.Enabled) }, nil},
	{"audit.batch_size", func(c *Config) string { return strconv.Itoa(c.Audit.BatchSize) }, nil},
	{"audit.flush_interval", func(c *Config) string { return c.Audit.FlushInterval.String() }, nil},
	{"audit.retention", func(c *Config) string { return c.Audit.Retention.String() }, nil},
}

// Diff lists the settings that differ between old and new, in a stable
// order.
func Diff(old, new *Config) []Change {
	var changes []Change
	for _, s := range settings {
		o, n := s.get(old), s.get(new)
		if o != n {
			changes = append(changes, Change{Field: s.path, Old: o, New: n, Reloadable: s.copy != nil})
		}
	}
	return changes
}

// mergeReloadable returns a copy of base carrying the reloadable settings
// of next.
func mergeReloadable(base, next *Config) *Config {
	merged := *base
	merged.Authorization.AdminRoles = append([]string(nil), base.Authorization.AdminRoles...)
	for _, s := range settings {
		if s.copy != nil {
			s.copy(&merged, next)
		}
	}
	return &merged
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return settingPaths(true)
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return settingPaths(false)
}

func settingPaths(reloadable bool) []string {
	var paths []string
	for _, s := range settings {
		if (s.copy != nil) == reloadable {
			paths = append(paths, s.path)
		}
	}
	return paths
}
