// Package runtime runs the seven resource operations (list, show, new,
// create, edit, update, destroy) as pipelines of query-shaping and
// mutation stages. Each stage reads its configuration from the call-time
// options or, when they are absent, from the resource's registered
// defaults.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/crudkit/core/authz"
	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/defaults"
	"github.com/artpar/crudkit/core/events"
	"github.com/artpar/crudkit/core/metrics"
	"github.com/artpar/crudkit/core/normalize"
	"github.com/artpar/crudkit/core/paginate"
	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/registry"
	"github.com/artpar/crudkit/core/schema"
	"github.com/artpar/crudkit/core/search"
	"github.com/artpar/crudkit/core/storage"
	"github.com/rs/zerolog"
)

// Runtime holds the loaded resources and the collaborators their
// operations use.
type Runtime struct {
	mu sync.RWMutex

	// registry manages resource registration and association lookup
	registry *registry.Registry

	// store persists records
	store storage.Engine

	resources map[string]*Resource

	authorizer authz.Authorizer
	searcher   search.Searcher
	paginator  paginate.Paginator
	normalizer *normalize.Normalizer
	metrics    *metrics.Collector

	// strategy is the process-wide association loading strategy
	strategy defaults.Strategy

	// hooks dispatcher
	hooks *HookDispatcher

	// functions registry for "call:" hooks
	functions *FunctionRegistry

	// events bus for lifecycle events and "emit:" hooks
	events *events.Bus

	logger zerolog.Logger
}

// Config configures the runtime. Nil collaborators get working defaults.
type Config struct {
	// Registry holds resource definitions. The store's catalog should be
	// the same registry.
	Registry *registry.Registry

	// Authorizer defaults to authz.Permissive.
	Authorizer authz.Authorizer

	// Searcher defaults to the predicate searcher.
	Searcher search.Searcher

	// Paginator defaults to offset pagination with the default page size.
	Paginator paginate.Paginator

	// Parser parses locale formatted dates. Defaults to English.
	Parser normalize.TemporalParser

	// Metrics is optional.
	Metrics *metrics.Collector

	// Events defaults to a new bus.
	Events *events.Bus

	// DefaultStrategy is used when a resource registers no loading
	// strategy. Defaults to preload.
	DefaultStrategy defaults.Strategy

	// Logger for the runtime and the hook system.
	Logger zerolog.Logger
}

// Migrator creates tables for resources. The runtime creates a table for
// each loaded resource when its store implements it.
type Migrator interface {
	CreateTable(ctx context.Context, mod convention.Derived) error
}

// New creates a runtime over store.
func New(store storage.Engine, config Config) (*Runtime, error) {
	r := &Runtime{
		registry:   config.Registry,
		store:      store,
		resources:  make(map[string]*Resource),
		authorizer: config.Authorizer,
		searcher:   config.Searcher,
		paginator:  config.Paginator,
		metrics:    config.Metrics,
		strategy:   config.DefaultStrategy,
		hooks:      NewHookDispatcher(),
		functions:  NewFunctionRegistry(),
		events:     config.Events,
		logger:     config.Logger,
	}

	if r.registry == nil {
		r.registry = registry.New()
	}
	if r.authorizer == nil {
		r.authorizer = authz.Permissive{}
	}
	if r.searcher == nil {
		r.searcher = search.New(r.registry, r.logger)
	}
	if r.paginator == nil {
		r.paginator = paginate.New(0, 0)
	}
	if r.events == nil {
		r.events = events.NewBus(r.logger)
	}
	if r.strategy == "" {
		r.strategy = defaults.StrategyPreload
	}
	if _, err := defaults.ParseStrategy(string(r.strategy)); err != nil {
		return nil, err
	}

	parser := config.Parser
	if parser == nil {
		p, err := normalize.NewLocaleParser("en")
		if err != nil {
			return nil, fmt.Errorf("create temporal parser: %w", err)
		}
		parser = p
	}
	r.normalizer = normalize.New(parser)

	return r, nil
}

// LoadResource registers a resource definition, creates its table and
// returns its handle. Scopes, defaults and hooks declared in the definition
// are compiled here, so a bad definition fails when it is loaded.
func (r *Runtime) LoadResource(ctx context.Context, res schema.Resource) (*Resource, error) {
	if err := schema.Validate(res); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	derived, err := r.registry.Register(res)
	if err != nil {
		return nil, fmt.Errorf("register resource %q: %w", res.Name, err)
	}

	handle, err := r.prepare(ctx, derived)
	if err != nil {
		_ = r.registry.Unregister(res.Name)
		return nil, err
	}
	r.resources[res.Name] = handle

	r.logger.Debug().
		Str("resource", res.Name).
		Str("table", derived.Table).
		Int("scopes", len(handle.scopes)).
		Msg("loaded resource")

	return handle, nil
}

func (r *Runtime) prepare(ctx context.Context, derived convention.Derived) (*Resource, error) {
	res := derived.Source
	handle := newResource(r, derived)

	for name, scope := range res.Scopes {
		fn, err := convention.CompileScope(name, scope)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", res.Name, err)
		}
		handle.scopes[name] = fn
	}

	if err := handle.defaults.Load(res.Defaults); err != nil {
		return nil, fmt.Errorf("resource %q defaults: %w", res.Name, err)
	}

	if m, ok := r.store.(Migrator); ok {
		if err := m.CreateTable(ctx, derived); err != nil {
			return nil, fmt.Errorf("create table for %q: %w", res.Name, err)
		}
	}

	if err := r.registerHooks(res); err != nil {
		return nil, fmt.Errorf("resource %q: %w", res.Name, err)
	}

	return handle, nil
}

// LoadResourcesFromDir loads every definition in dir and checks that all
// associations resolve.
func (r *Runtime) LoadResourcesFromDir(ctx context.Context, dir string) error {
	resources, err := schema.ParseDir(dir)
	if err != nil {
		return fmt.Errorf("parse resources: %w", err)
	}

	for _, res := range resources {
		if _, err := r.LoadResource(ctx, res); err != nil {
			return err
		}
	}

	return r.registry.Check()
}

// Resource returns the handle of a loaded resource.
func (r *Runtime) Resource(name string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[name]
	return res, ok
}

// Resources returns the names of the loaded resources, sorted.
func (r *Runtime) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry returns the resource registry.
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}

// Store returns the persistence engine.
func (r *Runtime) Store() storage.Engine {
	return r.store
}

// Events returns the event bus.
func (r *Runtime) Events() *events.Bus {
	return r.events
}

// Functions returns the function registry.
func (r *Runtime) Functions() *FunctionRegistry {
	return r.functions
}

// RegisterFunction registers a callable function for "call:" hooks.
func (r *Runtime) RegisterFunction(fn Function) error {
	return r.functions.Register(fn)
}

// OnHook registers a hook handler on the runtime.
func (r *Runtime) OnHook(resource string, op schema.Operation, phase string, handler HookHandler) {
	r.hooks.OnHook(resource, op, phase, handler)
}

// SetDefaultStrategy replaces the process-wide loading strategy.
func (r *Runtime) SetDefaultStrategy(s defaults.Strategy) error {
	if _, err := defaults.ParseStrategy(string(s)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = s
	return nil
}

// DefaultStrategy returns the process-wide loading strategy.
func (r *Runtime) DefaultStrategy() defaults.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// SetPaginator replaces the paginator, for example after the page size
// configuration changed.
func (r *Runtime) SetPaginator(p paginate.Paginator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paginator = p
}

// Paginator returns the paginator.
func (r *Runtime) Paginator() paginate.Paginator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paginator
}

// normalizationSchema returns the normalizer schema of a resource.
func (r *Runtime) normalizationSchema(name string) (*normalize.Schema, error) {
	return r.registry.NormalizationSchema(name)
}

// query returns a fresh query over a resource.
func (r *Runtime) query(name string) *query.Query {
	return r.store.Query(name)
}
