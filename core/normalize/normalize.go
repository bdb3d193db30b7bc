package normalize

import (
	"strings"
	"time"
)

// TemporalParser parses locale formatted dates and times.
type TemporalParser interface {
	// Parse returns the parsed value and true, or false when s is not a
	// date (or date-time) in the parser's locale.
	Parse(s string, kind Kind) (time.Time, bool)
}

// Normalizer rewrites attribute payloads against a Schema.
type Normalizer struct {
	parser TemporalParser
}

// New creates a normalizer. A nil parser leaves date fields untouched.
func New(parser TemporalParser) *Normalizer {
	return &Normalizer{parser: parser}
}

// Normalize returns a copy of payload with date, datetime, decimal and
// float values coerced and nested association payloads normalized. It
// never fails: values that cannot be coerced, and keys the schema does
// not know, are carried through unchanged. Normalizing an already
// normalized payload returns an equal payload.
func (n *Normalizer) Normalize(payload map[string]any, s *Schema) map[string]any {
	if payload == nil {
		return nil
	}

	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if rel, ok := s.Association(key); ok {
			out[key] = n.nested(value, rel)
			continue
		}
		out[key] = n.Value(value, s.Field(key))
	}
	return out
}

// Value coerces a single value by kind.
func (n *Normalizer) Value(v any, kind Kind) any {
	switch kind {
	case Date, DateTime:
		s, ok := v.(string)
		if !ok || n.parser == nil || strings.TrimSpace(s) == "" {
			return v
		}
		if t, ok := n.parser.Parse(s, kind); ok {
			return t
		}
		return v
	case Decimal, Float:
		s, ok := v.(string)
		if !ok {
			return v
		}
		return DecimalSeparator(s)
	default:
		return v
	}
}

func (n *Normalizer) nested(v any, rel Relation) any {
	switch rel.Arity {
	case One:
		if m, ok := v.(map[string]any); ok {
			return n.Normalize(m, rel.Schema)
		}
		return v
	case Many:
		switch items := v.(type) {
		case []any:
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = n.element(item, rel.Schema)
			}
			return out
		case []map[string]any:
			out := make([]map[string]any, len(items))
			for i, item := range items {
				if IsRemoval(item) {
					out[i] = item
					continue
				}
				out[i] = n.Normalize(item, rel.Schema)
			}
			return out
		case map[string]any:
			// Form submissions index collection entries by position.
			out := make(map[string]any, len(items))
			for k, item := range items {
				out[k] = n.element(item, rel.Schema)
			}
			return out
		}
		return v
	default:
		return v
	}
}

func (n *Normalizer) element(item any, s *Schema) any {
	m, ok := item.(map[string]any)
	if !ok || IsRemoval(m) {
		return item
	}
	return n.Normalize(m, s)
}

// removalKeys are the flags that mark a nested entry for removal.
var removalKeys = []string{"_destroy", "_delete"}

// IsRemoval reports whether m only identifies a nested record and marks it
// for removal.
func IsRemoval(m map[string]any) bool {
	flagged := false
	for k, v := range m {
		switch k {
		case "id":
		case "_destroy", "_delete":
			flagged = flagged || isTruthyFlag(v)
		default:
			return false
		}
	}
	return flagged
}

// RemovalFlag returns the removal flag of a nested entry, if any.
func RemovalFlag(m map[string]any) bool {
	for _, k := range removalKeys {
		if isTruthyFlag(m[k]) {
			return true
		}
	}
	return false
}

func isTruthyFlag(v any) bool {
	switch f := v.(type) {
	case bool:
		return f
	case string:
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "1", "true", "t", "yes", "on":
			return true
		}
	case int:
		return f == 1
	case int64:
		return f == 1
	case float64:
		return f == 1
	}
	return false
}

// DecimalSeparator replaces a locale decimal comma with a period. Only a
// string with exactly one comma and no period is rewritten; anything else
// is ambiguous and returned unchanged.
func DecimalSeparator(s string) string {
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}
