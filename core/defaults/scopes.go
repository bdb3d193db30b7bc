package defaults

import (
	"reflect"
	"sort"
)

// maxDeferredDepth bounds how many deferred values may yield further
// deferred values while normalizing a single configuration value.
const maxDeferredDepth = 16

// Scope is one named scope with its arguments.
type Scope struct {
	Name string
	Args []any
}

// NormalizeScopes flattens a scopes configuration into an ordered list.
//
// Accepted shapes are a scope name, a map of name to argument, a Scope, or
// any sequence mixing those. Arguments are always a list: a scalar argument
// becomes a one-element list and a missing argument an empty one. Deferred
// values are evaluated against inst and their result normalized in turn; a
// deferred value yielding nothing contributes nothing. Map entries are
// taken in key order since Go maps carry no declaration order; use a
// sequence of single-entry maps when order matters. Resource definitions
// loaded from YAML are decoded that way.
func NormalizeScopes(v any, inst Instance) []Scope {
	var out []Scope
	appendScopes(&out, v, inst, 0)
	return out
}

func appendScopes(out *[]Scope, v any, inst Instance, depth int) {
	switch val := v.(type) {
	case nil:
		return
	case Value:
		if val.IsZero() {
			return
		}
		if val.Kind() == KindDeferred {
			appendDeferred(out, val.Eval(inst), inst, depth)
			return
		}
		appendScopes(out, val.Eval(inst), inst, depth)
	case Func:
		appendDeferred(out, val(inst), inst, depth)
	case func(Instance) any:
		appendDeferred(out, val(inst), inst, depth)
	case string:
		if val != "" {
			*out = append(*out, Scope{Name: val, Args: []any{}})
		}
	case Scope:
		if val.Name == "" {
			return
		}
		args := val.Args
		if args == nil {
			args = []any{}
		}
		*out = append(*out, Scope{Name: val.Name, Args: args})
	case []Scope:
		for _, s := range val {
			appendScopes(out, s, inst, depth)
		}
	case []string:
		for _, s := range val {
			appendScopes(out, s, inst, depth)
		}
	case []any:
		for _, item := range val {
			appendScopes(out, item, inst, depth)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "" {
				continue
			}
			*out = append(*out, Scope{Name: k, Args: ScopeArgs(val[k])})
		}
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			if ks, ok := k.(string); ok {
				m[ks] = item
			}
		}
		appendScopes(out, m, inst, depth)
	}
}

// appendDeferred normalizes the result of a deferred value. Nothing ends
// the recursion; so does exceeding maxDeferredDepth.
func appendDeferred(out *[]Scope, result any, inst Instance, depth int) {
	if isEmpty(result) || depth >= maxDeferredDepth {
		return
	}
	appendScopes(out, result, inst, depth+1)
}

// ScopeArgs materializes a scope argument as a list.
func ScopeArgs(v any) []any {
	if v == nil {
		return []any{}
	}
	if args, ok := v.([]any); ok {
		out := make([]any, len(args))
		copy(out, args)
		return out
	}

	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// isEmpty reports whether v is nil, an empty string, or an empty
// collection.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// IsEmpty reports whether a resolved value means "apply nothing".
func IsEmpty(v any) bool {
	return isEmpty(v)
}
