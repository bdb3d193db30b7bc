package storage

import (
	"context"
	"fmt"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/record"
)

// preload loads the requested associations of records with one query per
// association and level. Every strategy runs as a batched IN query; the
// requested strategy is only traced.
func (s *SQLiteStore) preload(ctx context.Context, ex queryer, mod convention.Derived, records []*record.Record, preloads []query.Preload) error {
	if len(records) == 0 {
		return nil
	}

	for _, p := range preloads {
		a, ok := mod.Association(p.Name)
		if !ok {
			return fmt.Errorf("unknown association %q on %s", p.Name, mod.Name)
		}
		target, err := s.resource(a.Target)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", mod.Name, a.Name, err)
		}

		s.logger.Debug().
			Str("resource", mod.Name).
			Str("association", a.Name).
			Str("strategy", p.Strategy).
			Int("owners", len(records)).
			Msg("preload")

		if a.OwnsKey() {
			err = s.preloadOwner(ctx, ex, a, target, records, p.Nested)
		} else {
			err = s.preloadOwned(ctx, ex, a, target, records, p.Nested)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// preloadOwner loads a belongs_to association.
func (s *SQLiteStore) preloadOwner(ctx context.Context, ex queryer, a convention.DerivedAssociation, target convention.Derived, records []*record.Record, nested []query.Preload) error {
	keys := distinct(records, func(r *record.Record) any { return r.Get(a.ForeignKey) })

	byID := map[string]*record.Record{}
	if len(keys) > 0 {
		q := query.New(target.Name).
			Where(query.Condition{Field: record.IDField, Op: query.In, Value: keys}).
			Preload(nested...)
		found, err := s.all(ctx, ex, q)
		if err != nil {
			return err
		}
		for _, r := range found {
			byID[fmt.Sprint(r.ID())] = r
		}
	}

	for _, r := range records {
		var owner *record.Record
		if k := r.Get(a.ForeignKey); k != nil {
			owner = byID[fmt.Sprint(k)]
		}
		r.SetAssociation(a.Name, owner)
	}
	return nil
}

// preloadOwned loads a has_one or has_many association.
func (s *SQLiteStore) preloadOwned(ctx context.Context, ex queryer, a convention.DerivedAssociation, target convention.Derived, records []*record.Record, nested []query.Preload) error {
	ids := distinct(records, func(r *record.Record) any { return r.ID() })

	q := query.New(target.Name).
		Where(query.Condition{Field: a.ForeignKey, Op: query.In, Value: ids}).
		Order(query.Order{Field: "created_at"}, query.Order{Field: record.IDField}).
		Preload(nested...)
	found, err := s.all(ctx, ex, q)
	if err != nil {
		return err
	}

	byOwner := map[string][]*record.Record{}
	for _, child := range found {
		k := fmt.Sprint(child.Get(a.ForeignKey))
		byOwner[k] = append(byOwner[k], child)
	}

	for _, r := range records {
		children := byOwner[fmt.Sprint(r.ID())]
		if a.Collection() {
			if children == nil {
				children = []*record.Record{}
			}
			r.SetAssociation(a.Name, children)
			continue
		}
		var one *record.Record
		if len(children) > 0 {
			one = children[0]
		}
		r.SetAssociation(a.Name, one)
	}
	return nil
}

// distinct collects the non-nil keys of records in first-seen order.
func distinct(records []*record.Record, key func(*record.Record) any) []any {
	seen := map[string]bool{}
	var out []any
	for _, r := range records {
		k := key(r)
		if k == nil {
			continue
		}
		s := fmt.Sprint(k)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, k)
	}
	return out
}
