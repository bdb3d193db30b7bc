package storage

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/normalize"
	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/record"
)

// nestedPayload is the nested attributes for one association.
type nestedPayload struct {
	key   string
	assoc convention.DerivedAssociation
	value any
}

// takeNested removes nested attribute payloads from r. They are put back
// if the transaction rolls back.
func takeNested(mod convention.Derived, r *record.Record, w *txn) []nestedPayload {
	var out []nestedPayload
	for key := range r.Attributes() {
		a, ok := mod.NestedAssociation(key)
		if !ok {
			continue
		}
		v, _ := r.Take(key)
		out = append(out, nestedPayload{key: key, assoc: a, value: v})
		w.onRollback(func() { r.Set(key, v) })
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// entries flattens a nested payload into attribute maps. Collections may
// be a list or a map indexed by position.
func entries(p nestedPayload) ([]map[string]any, error) {
	invalid := fmt.Errorf("%s: nested attributes must be %s", p.key, shape(p.assoc))

	if !p.assoc.Collection() {
		if p.value == nil {
			return nil, nil
		}
		m, ok := p.value.(map[string]any)
		if !ok {
			return nil, invalid
		}
		return []map[string]any{m}, nil
	}

	switch v := p.value.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, invalid
			}
			out = append(out, m)
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return positionLess(keys[i], keys[j]) })
		out := make([]map[string]any, 0, len(v))
		for _, k := range keys {
			m, ok := v[k].(map[string]any)
			if !ok {
				return nil, invalid
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, invalid
	}
}

func shape(a convention.DerivedAssociation) string {
	if a.Collection() {
		return "a list of objects"
	}
	return "an object"
}

// positionLess orders numeric keys numerically, then the rest lexically.
func positionLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}

// writeNested creates, updates or removes the records in one nested
// payload. Failures on a child are attached to owner under the
// association name.
func (s *SQLiteStore) writeNested(ctx context.Context, w *txn, mod convention.Derived, owner *record.Record, p nestedPayload) (bool, error) {
	target, err := s.resource(p.assoc.Target)
	if err != nil {
		return false, fmt.Errorf("%s.%s: %w", mod.Name, p.assoc.Name, err)
	}
	items, err := entries(p)
	if err != nil {
		return false, err
	}

	for _, item := range items {
		remove := normalize.RemovalFlag(item)
		attrs := maps.Clone(item)
		delete(attrs, "_destroy")
		delete(attrs, "_delete")
		id, _ := attrs[record.IDField]
		delete(attrs, record.IDField)

		if id == nil || id == "" {
			if remove {
				continue
			}
			child := build(target, attrs)
			if !p.assoc.OwnsKey() {
				child.Set(p.assoc.ForeignKey, owner.ID())
			}
			ok, err := s.save(ctx, w, target, child)
			if err != nil {
				return false, err
			}
			if !ok {
				propagate(owner, p.assoc.Name, child)
				return false, nil
			}
			if p.assoc.OwnsKey() {
				setKey(w, owner, p.assoc.ForeignKey, child.ID())
			}
			continue
		}

		child, err := s.find(ctx, w, s.ownedBy(p.assoc, owner), id)
		if err != nil {
			return false, fmt.Errorf("%s.%s: %w", mod.Name, p.assoc.Name, err)
		}

		var ok bool
		if remove {
			ok, err = s.destroy(ctx, w, target, child)
			if ok && p.assoc.OwnsKey() {
				setKey(w, owner, p.assoc.ForeignKey, nil)
			}
		} else {
			child.Assign(attrs)
			ok, err = s.save(ctx, w, target, child)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			propagate(owner, p.assoc.Name, child)
			return false, nil
		}
	}
	return true, nil
}

// ownedBy scopes the target of a to the records owner may reference.
func (s *SQLiteStore) ownedBy(a convention.DerivedAssociation, owner *record.Record) *query.Query {
	q := query.New(a.Target)
	if a.OwnsKey() {
		return q.WhereEq(record.IDField, owner.Get(a.ForeignKey))
	}
	return q.WhereEq(a.ForeignKey, owner.ID())
}

func setKey(w *txn, r *record.Record, name string, v any) {
	prev, had := r.Get(name), r.Has(name)
	r.Set(name, v)
	w.onRollback(func() { restore(r, name, prev, had) })
}

// propagate copies child errors to owner, prefixed with the association.
func propagate(owner *record.Record, assoc string, child *record.Record) {
	for _, e := range child.Errors().All() {
		field := assoc + "." + e.Field
		if e.Field == record.Base {
			field = assoc
		}
		owner.Errors().Add(field, e.Code, e.Message)
	}
}
