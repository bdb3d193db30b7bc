// Package normalize rewrites submitted attribute payloads so they can be
// assigned to a record: locale formatted dates and decimals are coerced by
// the kind of the field they target, and nested association payloads are
// normalized recursively against the associated resource's schema.
package normalize

import "strings"

// Kind is the normalization-relevant kind of a field.
type Kind uint8

const (
	// Other fields are passed through.
	Other Kind = iota

	// Date fields are parsed to a time.Time at midnight.
	Date

	// DateTime fields are parsed to a time.Time.
	DateTime

	// Decimal fields get locale decimal separators normalized.
	Decimal

	// Float fields get locale decimal separators normalized.
	Float
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Date:
		return "date"
	case DateTime:
		return "datetime"
	case Decimal:
		return "decimal"
	case Float:
		return "float"
	default:
		return "other"
	}
}

// Arity says whether an association holds one record or many.
type Arity uint8

const (
	// One is a single-record association.
	One Arity = iota

	// Many is a collection association.
	Many
)

// NestedSuffix marks a nested association payload key, as in
// "tracks_attributes".
const NestedSuffix = "_attributes"

// Relation describes a nested association payload.
type Relation struct {
	Arity  Arity
	Schema *Schema
}

// Schema lists the field kinds and associations of one resource.
type Schema struct {
	Fields       map[string]Kind
	Associations map[string]Relation
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{
		Fields:       make(map[string]Kind),
		Associations: make(map[string]Relation),
	}
}

// Field returns the kind of the named field. Unknown fields are Other.
func (s *Schema) Field(name string) Kind {
	if s == nil {
		return Other
	}
	return s.Fields[name]
}

// Association resolves a payload key to an association. Both the bare
// association name and its "_attributes" form are recognized.
func (s *Schema) Association(key string) (Relation, bool) {
	if s == nil {
		return Relation{}, false
	}
	if rel, ok := s.Associations[key]; ok {
		return rel, true
	}
	if name, ok := strings.CutSuffix(key, NestedSuffix); ok && name != "" {
		rel, ok := s.Associations[name]
		return rel, ok
	}
	return Relation{}, false
}

// IsAssociationKey reports whether key has the nested payload form.
func IsAssociationKey(key string) bool {
	return strings.HasSuffix(key, NestedSuffix) && len(key) > len(NestedSuffix)
}
