// Package search turns a search specification into query conditions.
//
// A specification maps "<attribute>_<predicate>" to a value, for example
// {"title_cont": "blue", "year_gteq": 1970, "s": "year desc"}. An attribute
// may name a field of an associated resource as "<association>_<field>".
// Blank values and keys that match no attribute or predicate are ignored.
package search

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/query"
	"github.com/rs/zerolog"
)

// SortKey holds the sort specification.
const SortKey = "s"

// Searcher applies search specifications.
type Searcher interface {
	// Filter narrows q by the conditions in spec.
	Filter(q *query.Query, spec map[string]any) *query.Query

	// Sorts returns the orderings requested by spec.
	Sorts(spec map[string]any) []query.Order
}

// Catalog resolves resource names to derived definitions.
type Catalog interface {
	Get(name string) (convention.Derived, bool)
}

type predicate struct {
	suffix string
	op     query.Op
	value  func(any) any
}

// predicates are tried longest suffix first so "_not_eq" wins over "_eq".
var predicates = func() []predicate {
	identity := func(v any) any { return v }
	like := func(prefix, suffix string) func(any) any {
		return func(v any) any { return prefix + query.EscapeLike(fmt.Sprint(v)) + suffix }
	}
	ps := []predicate{
		{"_eq", query.Eq, identity},
		{"_not_eq", query.NotEq, identity},
		{"_gt", query.Gt, identity},
		{"_gteq", query.Gteq, identity},
		{"_lt", query.Lt, identity},
		{"_lteq", query.Lteq, identity},
		{"_in", query.In, identity},
		{"_not_in", query.NotIn, identity},
		{"_cont", query.Like, like("%", "%")},
		{"_start", query.Like, like("", "%")},
		{"_end", query.Like, like("%", "")},
		{"_null", query.Null, truthy},
		{"_present", query.NotNull, truthy},
	}
	sort.SliceStable(ps, func(i, j int) bool { return len(ps[i].suffix) > len(ps[j].suffix) })
	return ps
}()

// Predicates is the default Searcher.
type Predicates struct {
	catalog Catalog
	logger  zerolog.Logger
}

// New creates a Searcher resolving attributes through catalog.
func New(catalog Catalog, logger zerolog.Logger) *Predicates {
	return &Predicates{catalog: catalog, logger: logger}
}

// Filter applies every recognized condition in spec, in sorted key order.
func (s *Predicates) Filter(q *query.Query, spec map[string]any) *query.Query {
	mod, ok := s.catalog.Get(q.Resource())
	if !ok {
		return q
	}

	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == SortKey {
			continue
		}
		value := spec[key]
		if blank(value) {
			continue
		}
		cond, ok := s.condition(mod, key, value)
		if !ok {
			s.logger.Debug().Str("resource", mod.Name).Str("condition", key).Msg("ignoring unknown search condition")
			continue
		}
		q = q.Where(cond)
	}
	return q
}

func (s *Predicates) condition(mod convention.Derived, key string, value any) (query.Condition, bool) {
	for _, p := range predicates {
		attr, found := strings.CutSuffix(key, p.suffix)
		if !found {
			continue
		}
		field, ok := s.attribute(mod, attr)
		if !ok {
			continue
		}
		return query.Condition{Field: field, Op: p.op, Value: p.value(value)}, true
	}
	return query.Condition{}, false
}

// attribute resolves a field name or "<association>_<field>" to a column
// reference.
func (s *Predicates) attribute(mod convention.Derived, attr string) (string, bool) {
	if _, ok := mod.Field(attr); ok {
		return attr, true
	}
	for _, a := range mod.Associations {
		field, found := strings.CutPrefix(attr, a.Name+"_")
		if !found {
			continue
		}
		target, ok := s.catalog.Get(a.Target)
		if !ok {
			continue
		}
		if _, ok := target.Field(field); ok {
			return a.Name + "." + field, true
		}
	}
	return "", false
}

// Sorts returns the orderings under the "s" key. Invalid terms are
// dropped.
func (s *Predicates) Sorts(spec map[string]any) []query.Order {
	v, ok := spec[SortKey]
	if !ok || blank(v) {
		return nil
	}
	orders, err := query.OrdersFrom(v)
	if err != nil {
		s.logger.Debug().Err(err).Msg("ignoring invalid search sort")
		return nil
	}
	return orders
}

func blank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func truthy(v any) any {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "t", "yes", "on":
			return true
		}
		return false
	default:
		return fmt.Sprint(v) == "1"
	}
}
