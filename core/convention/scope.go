package convention

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/schema"
)

// CompileScope turns a declared scope into a query.ScopeFunc. "$N" values
// in where conditions are bound to the Nth argument when the scope runs.
func CompileScope(name string, s schema.Scope) (query.ScopeFunc, error) {
	orders, err := query.ParseOrder(s.Order)
	if err != nil {
		return nil, fmt.Errorf("scope %q: %w", name, err)
	}

	fields := make([]string, 0, len(s.Where))
	for f := range s.Where {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var templates []query.Condition
	for _, field := range fields {
		switch cond := s.Where[field].(type) {
		case map[string]any:
			ops := make([]string, 0, len(cond))
			for op := range cond {
				ops = append(ops, op)
			}
			sort.Strings(ops)
			for _, op := range ops {
				templates = append(templates, query.Condition{Field: field, Op: query.Op(op), Value: cond[op]})
			}
		default:
			templates = append(templates, query.Condition{Field: field, Op: query.Eq, Value: cond})
		}
	}

	return func(q *query.Query, args ...any) (*query.Query, error) {
		conds := make([]query.Condition, len(templates))
		for i, c := range templates {
			v, err := bind(c.Value, args)
			if err != nil {
				return nil, fmt.Errorf("scope %q: %w", name, err)
			}
			c.Value = v
			conds[i] = c
		}
		return q.Where(conds...).Order(orders...).Scoped(name), nil
	}, nil
}

// bind replaces "$N" placeholders with arguments.
func bind(v any, args []any) (any, error) {
	switch val := v.(type) {
	case string:
		n, ok := placeholder(val)
		if !ok {
			return val, nil
		}
		if n > len(args) {
			return nil, fmt.Errorf("missing argument $%d", n)
		}
		return args[n-1], nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			b, err := bind(item, args)
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return out, nil
	default:
		return v, nil
	}
}

func placeholder(s string) (int, bool) {
	rest, ok := strings.CutPrefix(s, "$")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
