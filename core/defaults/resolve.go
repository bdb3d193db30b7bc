package defaults

import (
	"fmt"
	"reflect"
	"strconv"
)

// Override applies the call-time override rule used by includes, select,
// order and scopes: a present option is used verbatim, even when empty, and
// the registry is only consulted when the option is absent. A nil slice or
// map is absent; []string{} is present.
func (r *Registry) Override(aspect Aspect, op string, inst Instance, option any) any {
	if !absent(option) {
		return option
	}
	v, _ := r.Resolve(aspect, op, inst)
	return v
}

func absent(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

// ResolveAttributes merges the default attribute values for op under the
// call-time attributes. The merge is one level deep: a key present in call
// wins, every other default key is added.
func (r *Registry) ResolveAttributes(op string, inst Instance, call map[string]any) (map[string]any, error) {
	raw, found := r.Resolve(Attributes, op, inst)
	if !found || raw == nil {
		return MergeAttributes(call, nil), nil
	}

	defs, ok := toStringMap(raw)
	if !ok {
		return nil, fmt.Errorf("default attributes for %q: expected a map, got %T", op, raw)
	}
	return MergeAttributes(call, defs), nil
}

// MergeAttributes returns defs overlaid with call. Neither input is
// modified.
func MergeAttributes(call, defs map[string]any) map[string]any {
	out := make(map[string]any, len(call)+len(defs))
	for k, v := range defs {
		out[k] = v
	}
	for k, v := range call {
		out[k] = v
	}
	return out
}

// ResolveDistinct evaluates the uniqueness policy for op. Unset means
// false.
func (r *Registry) ResolveDistinct(op string, inst Instance) (bool, error) {
	raw, found := r.Resolve(Distinct, op, inst)
	if !found {
		return false, nil
	}
	p, err := ParsePolicy(raw)
	if err != nil {
		return false, fmt.Errorf("distinct policy for %q: %w", op, err)
	}
	return p.Evaluate(inst)
}

// ResolveStrategy returns the loading strategy for op. When neither op nor
// All has one, fallback (the process-wide default) is returned.
func (r *Registry) ResolveStrategy(op string, inst Instance, fallback Strategy) (Strategy, error) {
	raw, _ := r.Resolve(LoadStrategy, op, inst)
	switch v := raw.(type) {
	case nil:
		return fallback, nil
	case Strategy:
		if v == "" {
			return fallback, nil
		}
		return v, nil
	case string:
		if v == "" {
			return fallback, nil
		}
		return ParseStrategy(v)
	default:
		return "", fmt.Errorf("loading strategy for %q: unsupported value %T", op, raw)
	}
}

// ResolvePageSize returns the page size for op, or fallback when none is
// registered or the registered value is not a positive number.
func (r *Registry) ResolvePageSize(op string, inst Instance, fallback int) int {
	raw, found := r.Resolve(PageSize, op, inst)
	if !found {
		return fallback
	}
	if n, ok := ToInt(raw); ok && n > 0 {
		return n
	}
	return fallback
}

// ToInt converts the numeric shapes found in configuration to int.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
