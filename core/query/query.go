// Package query provides an immutable query description for a resource.
// Every builder method returns a new Query; a Query is never modified after
// it is created, so pipeline stages can hand it on freely. Execution belongs
// to the storage engine.
package query

import (
	"fmt"
	"slices"
	"strings"
)

// Op is a comparison operator.
type Op string

const (
	Eq      Op = "eq"
	NotEq   Op = "not_eq"
	Gt      Op = "gt"
	Gteq    Op = "gteq"
	Lt      Op = "lt"
	Lteq    Op = "lteq"
	In      Op = "in"
	NotIn   Op = "not_in"
	Like    Op = "like"
	Null    Op = "null"
	NotNull Op = "not_null"
)

// Condition restricts the rows a query returns. Conditions are combined
// with AND.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// String renders the condition for logs.
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

// Order sorts by one field.
type Order struct {
	Field string
	Desc  bool
}

// String renders the order as "field asc|desc".
func (o Order) String() string {
	if o.Desc {
		return o.Field + " desc"
	}
	return o.Field + " asc"
}

// Preload requests an association to be loaded with the results.
type Preload struct {
	Name     string
	Nested   []Preload
	Strategy string
}

// Query describes a read of one resource.
type Query struct {
	resource   string
	conditions []Condition
	orders     []Order
	preloads   []Preload
	columns    []string
	distinct   bool
	limit      int
	offset     int
	scopes     []string
}

// New creates an unrestricted query over resource.
func New(resource string) *Query {
	return &Query{resource: resource}
}

func (q *Query) clone() *Query {
	c := *q
	c.conditions = slices.Clone(q.conditions)
	c.orders = slices.Clone(q.orders)
	c.preloads = slices.Clone(q.preloads)
	c.columns = slices.Clone(q.columns)
	c.scopes = slices.Clone(q.scopes)
	return &c
}

// Resource returns the queried resource name.
func (q *Query) Resource() string { return q.resource }

// Where adds conditions.
func (q *Query) Where(conds ...Condition) *Query {
	c := q.clone()
	c.conditions = append(c.conditions, conds...)
	return c
}

// WhereEq adds an equality condition.
func (q *Query) WhereEq(field string, value any) *Query {
	return q.Where(Condition{Field: field, Op: Eq, Value: value})
}

// Order appends orderings after the existing ones.
func (q *Query) Order(orders ...Order) *Query {
	c := q.clone()
	c.orders = append(c.orders, orders...)
	return c
}

// Reorder replaces all orderings.
func (q *Query) Reorder(orders ...Order) *Query {
	c := q.clone()
	c.orders = slices.Clone(orders)
	return c
}

// Preload requests associations to be loaded.
func (q *Query) Preload(preloads ...Preload) *Query {
	c := q.clone()
	c.preloads = append(c.preloads, preloads...)
	return c
}

// Select restricts the returned columns. Selecting nothing restores all
// columns.
func (q *Query) Select(columns ...string) *Query {
	c := q.clone()
	c.columns = slices.Clone(columns)
	return c
}

// Distinct toggles duplicate row elimination.
func (q *Query) Distinct(on bool) *Query {
	c := q.clone()
	c.distinct = on
	return c
}

// Limit caps the number of rows. Zero or less removes the cap.
func (q *Query) Limit(n int) *Query {
	c := q.clone()
	c.limit = max(n, 0)
	return c
}

// Offset skips rows.
func (q *Query) Offset(n int) *Query {
	c := q.clone()
	c.offset = max(n, 0)
	return c
}

// Scoped records that a named scope was applied.
func (q *Query) Scoped(name string) *Query {
	c := q.clone()
	c.scopes = append(c.scopes, name)
	return c
}

// Unbounded returns the query without limit, offset and ordering, as used
// for counting.
func (q *Query) Unbounded() *Query {
	c := q.clone()
	c.limit, c.offset, c.orders = 0, 0, nil
	return c
}

func (q *Query) Conditions() []Condition { return slices.Clone(q.conditions) }
func (q *Query) Orders() []Order         { return slices.Clone(q.orders) }
func (q *Query) Preloads() []Preload     { return slices.Clone(q.preloads) }
func (q *Query) Columns() []string       { return slices.Clone(q.columns) }
func (q *Query) IsDistinct() bool        { return q.distinct }
func (q *Query) Scopes() []string        { return slices.Clone(q.scopes) }

// Bounds returns limit and offset. A zero limit means no limit.
func (q *Query) Bounds() (limit, offset int) { return q.limit, q.offset }

// String renders the query for logs.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString(q.resource)
	for i, c := range q.conditions {
		if i == 0 {
			b.WriteString(" where ")
		} else {
			b.WriteString(" and ")
		}
		b.WriteString(c.String())
	}
	if len(q.orders) > 0 {
		parts := make([]string, len(q.orders))
		for i, o := range q.orders {
			parts[i] = o.String()
		}
		b.WriteString(" order " + strings.Join(parts, ", "))
	}
	if q.limit > 0 {
		fmt.Fprintf(&b, " limit %d offset %d", q.limit, q.offset)
	}
	return b.String()
}

// ScopeFunc applies a named scope to a query.
type ScopeFunc func(q *Query, args ...any) (*Query, error)

// EscapeLike escapes LIKE wildcards in s. Stores match with a backslash
// escape character.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
