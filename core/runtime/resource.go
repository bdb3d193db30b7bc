package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/defaults"
	"github.com/artpar/crudkit/core/paginate"
	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/record"
)

// Predicate is a named condition on an invocation, used by conditional
// defaults such as {distinct: {if: has_search}}.
type Predicate func(inv *Invocation) (bool, error)

// Resource is the handle of a loaded resource. Its operations run the
// stage pipelines; its defaults, scopes, predicates and stages may be
// extended while the resource is being set up.
type Resource struct {
	rt       *Runtime
	def      convention.Derived
	defaults *defaults.Registry

	mu         sync.RWMutex
	scopes     map[string]query.ScopeFunc
	predicates map[string]Predicate
	stages     Stages
}

func newResource(rt *Runtime, def convention.Derived) *Resource {
	return &Resource{
		rt:         rt,
		def:        def,
		defaults:   defaults.NewRegistry(),
		scopes:     make(map[string]query.ScopeFunc),
		predicates: make(map[string]Predicate),
		stages:     DefaultStages(),
	}
}

// Name returns the resource name.
func (r *Resource) Name() string { return r.def.Name }

// Definition returns the derived resource definition.
func (r *Resource) Definition() convention.Derived { return r.def }

// Defaults returns the resource's defaults registry.
func (r *Resource) Defaults() *defaults.Registry { return r.defaults }

// DefineScope registers a named scope, replacing a declared one of the
// same name.
func (r *Resource) DefineScope(name string, fn query.ScopeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes[name] = fn
}

// DefinePredicate registers a named predicate.
func (r *Resource) DefinePredicate(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[name] = p
}

func (r *Resource) scope(name string) (query.ScopeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.scopes[name]
	return fn, ok
}

func (r *Resource) predicate(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[name]
	return p, ok
}

// Stages returns the resource's stages. Wrap a stage by keeping the
// returned function and calling it from the replacement:
//
//	st := albums.Stages()
//	base := st.Order
//	st.Order = func(inv *Invocation, q *query.Query) (*query.Query, error) {
//		q, err := base(inv, q)
//		if err != nil {
//			return nil, err
//		}
//		return q.Order(query.Order{Field: "id"}), nil
//	}
//	albums.SetStages(st)
func (r *Resource) Stages() Stages {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stages
}

// SetStages replaces the resource's stages. Nil stages use the default.
func (r *Resource) SetStages(s Stages) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = s.withDefaults()
}

// All executes a list query.
func (r *Resource) All(ctx context.Context, q *query.Query) ([]*record.Record, error) {
	if q.Resource() != r.Name() {
		return nil, fmt.Errorf("query over %q run on resource %q", q.Resource(), r.Name())
	}
	return r.rt.store.All(ctx, q)
}

// Page counts the records a list query matches and describes the page
// it is limited to.
func (r *Resource) Page(ctx context.Context, q *query.Query) (paginate.Page, error) {
	total, err := r.rt.store.Count(ctx, q)
	if err != nil {
		return paginate.Page{}, fmt.Errorf("count %s: %w", r.Name(), err)
	}
	return paginate.Of(q, total), nil
}
