package runtime

import (
	"fmt"

	"github.com/artpar/crudkit/core/authz"
	"github.com/artpar/crudkit/core/defaults"
	"github.com/artpar/crudkit/core/query"
)

// QueryStage shapes the working query of list.
type QueryStage func(inv *Invocation, q *query.Query) (*query.Query, error)

// RecordStage acts on the working record.
type RecordStage func(inv *Invocation) error

// AttributeStage rewrites submitted attributes.
type AttributeStage func(inv *Invocation, attrs map[string]any) (map[string]any, error)

// WriteStage persists the working record. It returns false when the
// record was rejected with errors attached.
type WriteStage func(inv *Invocation) (bool, error)

// Stages are the steps the operations are built from.
//
// list:          AuthorizeScope, Search, Scopes, Order, Includes, Select,
// Distinct, Paginate.
// show, edit:    Fetch, Authorize, Project.
// new, create:   Defaults, Normalize, Build, Authorize, Save (create only).
// update:        Fetch, Authorize, Normalize, Save.
// destroy:       Fetch, Authorize, Destroy.
type Stages struct {
	AuthorizeScope QueryStage
	Search         QueryStage
	Scopes         QueryStage
	Order          QueryStage
	Includes       QueryStage
	Select         QueryStage
	Distinct       QueryStage
	Paginate       QueryStage

	// Fetch loads the record named by Options.Key with its includes.
	Fetch RecordStage

	// Authorize checks the principal against the working record.
	Authorize RecordStage

	// Project drops the attributes the select aspect excludes.
	Project RecordStage

	// Defaults merges default attribute values under the submitted ones.
	Defaults AttributeStage

	// Normalize coerces locale formatted values.
	Normalize AttributeStage

	// Build creates the working record from the attributes.
	Build RecordStage

	Save    WriteStage
	Destroy WriteStage
}

// DefaultStages returns the built-in stages.
func DefaultStages() Stages {
	return Stages{
		AuthorizeScope: authorizeScope,
		Search:         applySearch,
		Scopes:         applyScopes,
		Order:          applyOrder,
		Includes:       applyIncludes,
		Select:         applySelect,
		Distinct:       applyDistinct,
		Paginate:       applyPaginate,
		Fetch:          fetch,
		Authorize:      authorize,
		Project:        project,
		Defaults:       mergeDefaults,
		Normalize:      normalizeAttributes,
		Build:          build,
		Save:           save,
		Destroy:        destroy,
	}
}

func (s Stages) withDefaults() Stages {
	d := DefaultStages()
	pick := func(stage, fallback QueryStage) QueryStage {
		if stage == nil {
			return fallback
		}
		return stage
	}
	s.AuthorizeScope = pick(s.AuthorizeScope, d.AuthorizeScope)
	s.Search = pick(s.Search, d.Search)
	s.Scopes = pick(s.Scopes, d.Scopes)
	s.Order = pick(s.Order, d.Order)
	s.Includes = pick(s.Includes, d.Includes)
	s.Select = pick(s.Select, d.Select)
	s.Distinct = pick(s.Distinct, d.Distinct)
	s.Paginate = pick(s.Paginate, d.Paginate)

	if s.Fetch == nil {
		s.Fetch = d.Fetch
	}
	if s.Authorize == nil {
		s.Authorize = d.Authorize
	}
	if s.Project == nil {
		s.Project = d.Project
	}
	if s.Defaults == nil {
		s.Defaults = d.Defaults
	}
	if s.Normalize == nil {
		s.Normalize = d.Normalize
	}
	if s.Build == nil {
		s.Build = d.Build
	}
	if s.Save == nil {
		s.Save = d.Save
	}
	if s.Destroy == nil {
		s.Destroy = d.Destroy
	}
	return s
}

func authorizeScope(inv *Invocation, q *query.Query) (*query.Query, error) {
	return inv.resource.rt.authorizer.Scope(inv.ctx, inv.Principal, q), nil
}

func applySearch(inv *Invocation, q *query.Query) (*query.Query, error) {
	if len(inv.Options.Search) == 0 {
		return q, nil
	}
	return inv.resource.rt.searcher.Filter(q, inv.Options.Search), nil
}

func applyScopes(inv *Invocation, q *query.Query) (*query.Query, error) {
	for _, s := range defaults.NormalizeScopes(inv.option(defaults.Scopes), inv) {
		fn, ok := inv.resource.scope(s.Name)
		if !ok {
			return nil, fmt.Errorf("resource %q: unknown scope %q", inv.resource.Name(), s.Name)
		}
		next, err := fn(q, s.Args...)
		if err != nil {
			return nil, err
		}
		q = next
	}
	return q, nil
}

// applyOrder appends the resolved ordering. The search sort is used when
// no ordering is resolved.
func applyOrder(inv *Invocation, q *query.Query) (*query.Query, error) {
	orders, err := query.OrdersFrom(inv.option(defaults.Order))
	if err != nil {
		return nil, fmt.Errorf("resource %q order: %w", inv.resource.Name(), err)
	}
	if len(orders) == 0 && len(inv.Options.Search) > 0 {
		orders = inv.resource.rt.searcher.Sorts(inv.Options.Search)
	}
	if len(orders) == 0 {
		return q, nil
	}
	return q.Order(orders...), nil
}

func applyIncludes(inv *Invocation, q *query.Query) (*query.Query, error) {
	preloads, err := inv.preloads()
	if err != nil || len(preloads) == 0 {
		return q, err
	}
	return q.Preload(preloads...), nil
}

func applySelect(inv *Invocation, q *query.Query) (*query.Query, error) {
	cols, err := inv.columns()
	if err != nil || len(cols) == 0 {
		return q, err
	}
	return q.Select(cols...), nil
}

func applyDistinct(inv *Invocation, q *query.Query) (*query.Query, error) {
	on, err := inv.resource.defaults.ResolveDistinct(inv.Operation(), inv)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", inv.resource.Name(), err)
	}
	if !on {
		return q, nil
	}
	return q.Distinct(true), nil
}

func applyPaginate(inv *Invocation, q *query.Query) (*query.Query, error) {
	if inv.Options.Unpaginated {
		return q, nil
	}
	p := inv.resource.rt.Paginator()
	size := inv.Options.PerPage
	if size <= 0 {
		size = inv.resource.defaults.ResolvePageSize(inv.Operation(), inv, p.DefaultPageSize())
	}
	return p.Paginate(q, inv.Options.Page, size), nil
}

func fetch(inv *Invocation) error {
	q := inv.resource.rt.query(inv.resource.Name())
	preloads, err := inv.preloads()
	if err != nil {
		return err
	}
	if len(preloads) > 0 {
		q = q.Preload(preloads...)
	}

	rec, err := inv.resource.rt.store.Find(inv.ctx, q, inv.Options.Key)
	if err != nil {
		return err
	}
	inv.Record = rec
	return nil
}

func authorize(inv *Invocation) error {
	return inv.resource.rt.authorizer.Check(inv.ctx, inv.Principal, inv.Record, authz.ActionFor(inv.op))
}

func project(inv *Invocation) error {
	cols, err := inv.columns()
	if err != nil {
		return err
	}
	inv.Record.Restrict(cols)
	return nil
}

func mergeDefaults(inv *Invocation, attrs map[string]any) (map[string]any, error) {
	merged, err := inv.resource.defaults.ResolveAttributes(inv.Operation(), inv, attrs)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", inv.resource.Name(), err)
	}
	return merged, nil
}

func normalizeAttributes(inv *Invocation, attrs map[string]any) (map[string]any, error) {
	s, err := inv.resource.rt.normalizationSchema(inv.resource.Name())
	if err != nil {
		return nil, err
	}
	return inv.resource.rt.normalizer.Normalize(attrs, s), nil
}

func build(inv *Invocation) error {
	rec, err := inv.resource.rt.store.Build(inv.resource.Name(), inv.Attributes)
	if err != nil {
		return err
	}
	inv.Record = rec
	return nil
}

func save(inv *Invocation) (bool, error) {
	return inv.resource.rt.store.Save(inv.ctx, inv.Record)
}

func destroy(inv *Invocation) (bool, error) {
	return inv.resource.rt.store.Destroy(inv.ctx, inv.Record)
}
