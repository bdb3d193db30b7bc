// Package bootstrap wires configuration, storage and the resource runtime
// into a running application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/artpar/crudkit/config"
	"github.com/artpar/crudkit/core/audit"
	"github.com/artpar/crudkit/core/authz"
	"github.com/artpar/crudkit/core/defaults"
	"github.com/artpar/crudkit/core/events"
	"github.com/artpar/crudkit/core/metrics"
	"github.com/artpar/crudkit/core/normalize"
	"github.com/artpar/crudkit/core/paginate"
	"github.com/artpar/crudkit/core/registry"
	"github.com/artpar/crudkit/core/runtime"
	"github.com/artpar/crudkit/core/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// Authorization modes.
const (
	AuthModePermissive = "permissive"
	AuthModeOwner      = "owner"
)

// App is the assembled application.
type App struct {
	Logger   zerolog.Logger
	// Config is the configuration the app started with.
	Config   *config.Config
	Registry *registry.Registry
	Store    *storage.SQLiteStore
	Runtime  *runtime.Runtime
	Metrics  *metrics.Collector

	// Audit is the change log. Nil when auditing is disabled.
	Audit *audit.SQLiteStore

	// Gatherer exposes the metrics registry. Nil when metrics are disabled.
	Gatherer prometheus.Gatherer

	holder   *config.Holder
	enforcer *authz.Enforcer
	unsub    func()
	unaudit  func()
}

// Options configures New.
type Options struct {
	// ConfigPath is the configuration file. When empty or missing the
	// configuration comes from the environment alone.
	ConfigPath string

	// LogOutput receives log lines. Defaults to stderr so command output
	// stays clean.
	LogOutput io.Writer

	// Logger overrides the logger built from the configuration.
	Logger *zerolog.Logger
}

// New loads the configuration, opens the store and loads the resource
// definitions.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadWithFallback(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		out := opts.LogOutput
		if out == nil {
			out = os.Stderr
		}
		logger = NewLogger(out, cfg.Logging.Level, cfg.Logging.Format)
	}

	a := &App{
		Logger:   logger,
		Config:   cfg,
		Registry: registry.New(),
	}

	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			if a.holder, err = config.NewHolder(opts.ConfigPath, logger); err != nil {
				return nil, err
			}
			a.Config = a.holder.Get()
		}
	}

	a.Store, err = storage.NewSQLiteStore(a.Config.Database.DSN, a.Registry, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := a.initRuntime(ctx); err != nil {
		if a.Audit != nil {
			a.Audit.Close()
		}
		a.Store.Close()
		return nil, err
	}

	if a.holder != nil {
		a.holder.OnChange(a.apply)
		a.holder.OnReload(a.Metrics.Reloaded)
	}

	logger.Debug().
		Str("database", a.Config.Database.DSN).
		Strs("resources", a.Runtime.Resources()).
		Str("strategy", string(a.Runtime.DefaultStrategy())).
		Msg("application ready")

	return a, nil
}

func (a *App) initRuntime(ctx context.Context) error {
	cfg := a.Config

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		a.Metrics = metrics.New(cfg.Metrics.Namespace, reg)
		a.Gatherer = reg
	}

	parser, err := newParser(cfg.Locale)
	if err != nil {
		return err
	}

	strategy, err := defaults.ParseStrategy(cfg.Defaults.Strategy)
	if err != nil {
		return err
	}

	var authorizer authz.Authorizer = authz.Permissive{}
	if cfg.Authorization.Mode == AuthModeOwner {
		a.enforcer = authz.NewEnforcer(a.Logger)
		a.enforcer.Fallback(authz.Policy{Rules: []authz.Rule{authz.AlwaysAllow()}})
		authorizer = a.enforcer
	}

	a.Runtime, err = runtime.New(a.Store, runtime.Config{
		Registry:        a.Registry,
		Authorizer:      authorizer,
		Paginator:       paginate.New(cfg.Defaults.PageSize, cfg.Defaults.MaxPageSize),
		Parser:          parser,
		Metrics:         a.Metrics,
		Events:          events.NewBus(a.Logger),
		DefaultStrategy: strategy,
		Logger:          a.Logger,
	})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}

	if err := RegisterHooks(a.Runtime, a.Logger); err != nil {
		return err
	}

	if err := a.loadResources(ctx); err != nil {
		return err
	}

	if err := a.initAudit(ctx); err != nil {
		return err
	}

	a.unsub = a.Runtime.Events().Subscribe("*", func(_ context.Context, e events.Event) error {
		a.Logger.Debug().
			Str("event", e.Name).
			Str("resource", e.Resource).
			Strs("changed", e.Changed).
			Msg("event")
		return nil
	})

	return nil
}

// initAudit opens the change log and prunes entries past the retention.
func (a *App) initAudit(ctx context.Context) error {
	cfg := a.Config.Audit
	if !cfg.Enabled {
		return nil
	}

	log, err := audit.NewSQLiteStore(a.Store.DB(), audit.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Logger:        a.Logger.With().Str("component", "audit").Logger(),
	})
	if err != nil {
		return err
	}
	a.Audit = log

	if cfg.Retention > 0 {
		n, err := log.Delete(ctx, time.Now().Add(-cfg.Retention))
		if err != nil {
			return fmt.Errorf("prune audit log: %w", err)
		}
		if n > 0 {
			a.Logger.Info().Int64("entries", n).Dur("retention", cfg.Retention).Msg("pruned audit log")
		}
	}

	a.unaudit = audit.Subscribe(a.Runtime.Events(), log)
	return nil
}

func (a *App) loadResources(ctx context.Context) error {
	dir := a.Config.Resources.Dir
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		a.Logger.Warn().Str("dir", dir).Msg("resource directory not found, no resources loaded")
		return nil
	}

	if err := a.Runtime.LoadResourcesFromDir(ctx, dir); err != nil {
		return fmt.Errorf("load resources from %s: %w", dir, err)
	}

	if a.enforcer != nil {
		for _, res := range a.Registry.List() {
			a.enforcer.RegisterOwned(res.Source, a.Config.Authorization.AdminRoles...)
		}
	}
	return nil
}

func newParser(cfg config.LocaleConfig) (*normalize.LocaleParser, error) {
	precision, err := normalize.ParsePrecision(cfg.Precision)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("locale timezone: %w", err)
	}
	parser, err := normalize.NewLocaleParser(cfg.Tag,
		normalize.WithPrecision(precision),
		normalize.WithLocation(loc),
	)
	if err != nil {
		return nil, fmt.Errorf("create temporal parser: %w", err)
	}
	return parser, nil
}

// Watch starts hot reloading of the configuration file. Only the
// reloadable fields take effect; see config.ReloadableFields.
func (a *App) Watch() error {
	if a.holder == nil {
		return nil
	}

	if err := a.holder.WatchFile(); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	a.holder.WatchSignals()
	return nil
}

// Reloadable reports whether the configuration came from a file that
// Reload and Watch can re-read.
func (a *App) Reloadable() bool {
	return a.holder != nil
}

// Reload re-reads the configuration file and applies its reloadable
// fields. It does nothing when the configuration came from the environment.
func (a *App) Reload() error {
	if a.holder == nil {
		return nil
	}
	return a.holder.Reload()
}

// apply installs the reloadable parts of a new configuration.
func (a *App) apply(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := a.Runtime.SetDefaultStrategy(defaults.Strategy(cfg.Defaults.Strategy)); err != nil {
		a.Logger.Error().Err(err).Msg("keeping previous loading strategy")
	}

	a.Runtime.SetPaginator(paginate.New(cfg.Defaults.PageSize, cfg.Defaults.MaxPageSize))
}

// Close stops watching, writes pending audit entries and closes the store.
func (a *App) Close() error {
	if a.holder != nil {
		a.holder.Stop()
	}
	if a.unsub != nil {
		a.unsub()
	}
	a.Runtime.Events().Wait()
	if a.unaudit != nil {
		a.unaudit()
	}
	if a.Audit != nil {
		a.Audit.Close()
	}
	return a.Store.Close()
}

// NewLogger creates a logger writing to w. Unknown levels fall back to
// info.
func NewLogger(w io.Writer, levelStr, format string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "console" {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(w).With().Timestamp().Logger()
}
