// Package params converts call-time options and submitted attributes into
// plain attribute maps.
//
// Keys are folded to strings at every level. Form values use nested
// bracket keys: "album[tracks_attributes][0][title]" becomes
// {"album": {"tracks_attributes": {"0": {"title": ...}}}} and "tags[]"
// collects every value into a list.
package params

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrMalformed is returned for attributes of an unsupported shape.
var ErrMalformed = errors.New("malformed attributes")

// Permitted is a parameter object that can expose its permitted values.
type Permitted interface {
	ToMap() map[string]any
}

// Ingest returns v as a map with string keys throughout. A nil v is an
// empty map.
func Ingest(v any) (map[string]any, error) {
	switch val := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return foldMap(val), nil
	case map[any]any:
		return foldAnyMap(val), nil
	case url.Values:
		return FromForm(val)
	case Permitted:
		return Ingest(val.ToMap())
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformed, v)
	}
}

// Root returns the map nested under key, or m itself when key is absent.
// Forms usually submit attributes under the resource name.
func Root(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok {
		return m, nil
	}
	inner, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, not an object", ErrMalformed, key, v)
	}
	return inner, nil
}

func fold(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return foldMap(val)
	case map[any]any:
		return foldAnyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fold(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = foldMap(item)
		}
		return out
	default:
		return v
	}
}

func foldMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fold(v)
	}
	return out
}

func foldAnyMap(m map[any]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[fmt.Sprint(k)] = fold(v)
	}
	return out
}

// FromForm decodes bracketed form keys into nested maps. Keys are applied
// in sorted order; for a repeated key without "[]" the last value wins.
func FromForm(form url.Values) (map[string]any, error) {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := map[string]any{}
	for _, key := range keys {
		path, list, err := splitKey(key)
		if err != nil {
			return nil, err
		}
		values := form[key]
		if len(values) == 0 {
			continue
		}

		var value any = values[len(values)-1]
		if list {
			items := make([]any, len(values))
			for i, s := range values {
				items[i] = s
			}
			value = items
		}
		if err := assign(out, path, value, key); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// splitKey splits "a[b][c]" into [a b c]. A trailing "[]" marks a list.
func splitKey(key string) (path []string, list bool, err error) {
	head, rest, nested := strings.Cut(key, "[")
	if head == "" {
		return nil, false, fmt.Errorf("%w: form key %q", ErrMalformed, key)
	}
	path = append(path, head)
	if !nested {
		return path, false, nil
	}

	rest = "[" + rest
	for rest != "" {
		if rest[0] != '[' {
			return nil, false, fmt.Errorf("%w: form key %q", ErrMalformed, key)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, false, fmt.Errorf("%w: form key %q", ErrMalformed, key)
		}
		seg := rest[1:end]
		rest = rest[end+1:]
		if seg == "" {
			if rest != "" {
				return nil, false, fmt.Errorf("%w: form key %q: [] must be last", ErrMalformed, key)
			}
			return path, true, nil
		}
		path = append(path, seg)
	}
	return path, false, nil
}

func assign(m map[string]any, path []string, value any, key string) error {
	for _, seg := range path[:len(path)-1] {
		next, ok := m[seg]
		if !ok {
			child := map[string]any{}
			m[seg] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: form key %q conflicts with a value", ErrMalformed, key)
		}
		m = child
	}

	last := path[len(path)-1]
	if _, isMap := m[last].(map[string]any); isMap {
		return fmt.Errorf("%w: form key %q conflicts with nested keys", ErrMalformed, key)
	}
	m[last] = value
	return nil
}
