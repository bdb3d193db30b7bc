package storage

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/query"
)

// ErrUnknownColumn is returned when a query names a column the resource
// does not have.
var ErrUnknownColumn = errors.New("unknown column")

// sqlBuilder renders queries against one resource.
type sqlBuilder struct {
	catalog Catalog
	mod     convention.Derived
}

// selectColumns returns the selected columns. A restricted selection
// always includes id and the keys needed by requested preloads.
func (b sqlBuilder) selectColumns(q *query.Query) ([]convention.DerivedField, error) {
	cols := q.Columns()
	if len(cols) == 0 {
		return b.mod.Fields, nil
	}

	want := map[string]bool{"id": true}
	for _, c := range cols {
		if _, ok := b.mod.Field(c); !ok {
			return nil, fmt.Errorf("%w %q on %s", ErrUnknownColumn, c, b.mod.Name)
		}
		want[c] = true
	}
	for _, p := range q.Preloads() {
		if a, ok := b.mod.Association(p.Name); ok && a.OwnsKey() {
			want[a.ForeignKey] = true
		}
	}

	var fields []convention.DerivedField
	for _, f := range b.mod.Fields {
		if want[f.Name] {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// selectSQL renders a SELECT for q.
func (b sqlBuilder) selectSQL(q *query.Query) (string, []any, []convention.DerivedField, error) {
	fields, err := b.selectColumns(q)
	if err != nil {
		return "", nil, nil, err
	}

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = b.mod.Table + "." + f.Name
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.IsDistinct() {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(" FROM " + b.mod.Table)

	where, args, err := b.whereSQL(q.Conditions())
	if err != nil {
		return "", nil, nil, err
	}
	sb.WriteString(where)

	if orders := q.Orders(); len(orders) > 0 {
		terms := make([]string, len(orders))
		for i, o := range orders {
			expr, err := b.orderExpr(o.Field)
			if err != nil {
				return "", nil, nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms[i] = expr + " " + dir
		}
		sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}

	limit, offset := q.Bounds()
	switch {
	case limit > 0:
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", limit, offset)
	case offset > 0:
		fmt.Fprintf(&sb, " LIMIT -1 OFFSET %d", offset)
	}

	return sb.String(), args, fields, nil
}

// countSQL renders a COUNT over the unbounded query.
func (b sqlBuilder) countSQL(q *query.Query) (string, []any, error) {
	inner, args, _, err := b.selectSQL(q.Unbounded())
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM (" + inner + ")", args, nil
}

func (b sqlBuilder) whereSQL(conds []query.Condition) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(conds))
	var args []any
	for _, c := range conds {
		expr, cargs, err := b.conditionSQL(c)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, expr)
		args = append(args, cargs...)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// conditionSQL renders one condition. A field qualified by an association
// ("artist.name") becomes a subquery on the associated table.
func (b sqlBuilder) conditionSQL(c query.Condition) (string, []any, error) {
	assocName, field, qualified := strings.Cut(c.Field, ".")
	if !qualified {
		f, ok := b.mod.Field(c.Field)
		if !ok {
			return "", nil, fmt.Errorf("%w %q on %s", ErrUnknownColumn, c.Field, b.mod.Name)
		}
		return comparison(b.mod.Table+"."+f.Name, f, c.Op, c.Value)
	}

	a, target, err := b.associated(assocName)
	if err != nil {
		return "", nil, err
	}
	f, ok := target.Field(field)
	if !ok {
		return "", nil, fmt.Errorf("%w %q on %s", ErrUnknownColumn, field, target.Name)
	}
	inner, args, err := comparison(target.Table+"."+f.Name, f, c.Op, c.Value)
	if err != nil {
		return "", nil, err
	}
	if a.OwnsKey() {
		return fmt.Sprintf("%s.%s IN (SELECT id FROM %s WHERE %s)", b.mod.Table, a.ForeignKey, target.Table, inner), args, nil
	}
	return fmt.Sprintf("%s.id IN (SELECT %s FROM %s WHERE %s)", b.mod.Table, a.ForeignKey, target.Table, inner), args, nil
}

func (b sqlBuilder) orderExpr(name string) (string, error) {
	assocName, field, qualified := strings.Cut(name, ".")
	if !qualified {
		if _, ok := b.mod.Field(name); !ok {
			return "", fmt.Errorf("%w %q on %s", ErrUnknownColumn, name, b.mod.Name)
		}
		return b.mod.Table + "." + name, nil
	}

	a, target, err := b.associated(assocName)
	if err != nil {
		return "", err
	}
	if !a.OwnsKey() {
		return "", fmt.Errorf("cannot order %s by %s: not a belongs_to association", b.mod.Name, name)
	}
	if _, ok := target.Field(field); !ok {
		return "", fmt.Errorf("%w %q on %s", ErrUnknownColumn, field, target.Name)
	}
	return fmt.Sprintf("(SELECT %s.%s FROM %s WHERE %s.id = %s.%s)",
		target.Table, field, target.Table, target.Table, b.mod.Table, a.ForeignKey), nil
}

func (b sqlBuilder) associated(name string) (convention.DerivedAssociation, convention.Derived, error) {
	a, ok := b.mod.Association(name)
	if !ok {
		return a, convention.Derived{}, fmt.Errorf("unknown association %q on %s", name, b.mod.Name)
	}
	target, ok := b.catalog.Get(a.Target)
	if !ok {
		return a, target, fmt.Errorf("association %s.%s: resource %q not registered", b.mod.Name, name, a.Target)
	}
	return a, target, nil
}

func comparison(col string, f convention.DerivedField, op query.Op, value any) (string, []any, error) {
	switch op {
	case query.Eq, "":
		if value == nil {
			return col + " IS NULL", nil, nil
		}
		return col + " = ?", []any{convertValue(value, f)}, nil
	case query.NotEq:
		if value == nil {
			return col + " IS NOT NULL", nil, nil
		}
		return col + " <> ?", []any{convertValue(value, f)}, nil
	case query.Gt:
		return col + " > ?", []any{convertValue(value, f)}, nil
	case query.Gteq:
		return col + " >= ?", []any{convertValue(value, f)}, nil
	case query.Lt:
		return col + " < ?", []any{convertValue(value, f)}, nil
	case query.Lteq:
		return col + " <= ?", []any{convertValue(value, f)}, nil
	case query.Like:
		return col + ` LIKE ? ESCAPE '\'`, []any{fmt.Sprint(value)}, nil
	case query.Null:
		if value == false {
			return col + " IS NOT NULL", nil, nil
		}
		return col + " IS NULL", nil, nil
	case query.NotNull:
		if value == false {
			return col + " IS NULL", nil, nil
		}
		return col + " IS NOT NULL", nil, nil
	case query.In, query.NotIn:
		items := listOf(value)
		if len(items) == 0 {
			if op == query.In {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}
		args := make([]any, len(items))
		for i, item := range items {
			args[i] = convertValue(item, f)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", ")
		not := ""
		if op == query.NotIn {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sIN (%s)", col, not, placeholders), args, nil
	default:
		return "", nil, fmt.Errorf("unsupported operator %q", op)
	}
}

// listOf flattens a slice value; a scalar is a one-element list.
func listOf(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		return slices.Clone(val)
	case string, []byte:
		return []any{val}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
