package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidOrder is returned for malformed ordering input.
var ErrInvalidOrder = errors.New("invalid order")

// ParseOrder parses "year desc, title" into orderings. Direction defaults
// to ascending.
func ParseOrder(s string) ([]Order, error) {
	var orders []Order
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		o, err := parseTerm(part)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func parseTerm(term string) (Order, error) {
	fields := strings.Fields(term)
	if len(fields) == 0 || len(fields) > 2 {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidOrder, term)
	}
	if !IsIdentifier(fields[0]) {
		return Order{}, fmt.Errorf("%w: field %q", ErrInvalidOrder, fields[0])
	}
	o := Order{Field: fields[0]}
	if len(fields) == 2 {
		desc, err := parseDirection(fields[1])
		if err != nil {
			return Order{}, err
		}
		o.Desc = desc
	}
	return o, nil
}

func parseDirection(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "asc", "":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, fmt.Errorf("%w: direction %q", ErrInvalidOrder, s)
	}
}

// OrdersFrom converts an order option or default into orderings. It
// accepts a string, an Order, []Order, []string, []any of those, and a
// field to direction map (applied in sorted field order). Definitions parsed
// from YAML arrive as []any of one-entry maps, which keeps written order.
func OrdersFrom(v any) ([]Order, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseOrder(val)
	case Order:
		return []Order{val}, nil
	case []Order:
		return val, nil
	case []string:
		return OrdersFrom(strings.Join(val, ","))
	case []any:
		var out []Order
		for _, item := range val {
			orders, err := OrdersFrom(item)
			if err != nil {
				return nil, err
			}
			out = append(out, orders...)
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Order, 0, len(keys))
		for _, k := range keys {
			dir, _ := val[k].(string)
			o, err := parseTerm(strings.TrimSpace(k + " " + dir))
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}
		return out, nil
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, dir := range val {
			m[fmt.Sprint(k)] = dir
		}
		return OrdersFrom(m)
	default:
		return nil, fmt.Errorf("%w: unsupported value %T", ErrInvalidOrder, v)
	}
}

// IsIdentifier reports whether s is a plain column name, optionally
// qualified by one association name ("artist.name").
func IsIdentifier(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for i, c := range p {
			letter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
			if i == 0 && !letter {
				return false
			}
			if !letter && !(c >= '0' && c <= '9') {
				return false
			}
		}
	}
	return true
}
