// Package convention derives defaults from minimal resource definitions.
// It applies naming conventions, implicit fields and association keys.
package convention

import (
	"sort"

	"github.com/artpar/crudkit/core/normalize"
	"github.com/artpar/crudkit/core/schema"
	"github.com/go-openapi/inflect"
)

// Derived contains all derived information from a resource definition.
// This is the fully-expanded form used by storage and the runtime.
type Derived struct {
	// Source is the original resource definition.
	Source schema.Resource

	// Name is the resource name.
	Name string

	// Plural is the plural form of the resource name.
	Plural string

	// Table is the database table name.
	Table string

	// Fields contains all fields: id, the declared fields sorted by name,
	// then created_at and updated_at.
	Fields []DerivedField

	// Associations sorted by name.
	Associations []DerivedAssociation

	// Lookups are field names that can be used to find records.
	Lookups []string
}

// DerivedField is a fully-derived field with all defaults applied.
type DerivedField struct {
	Name string

	Type schema.FieldType

	// SQLType is the SQL column type.
	SQLType string

	Unique   bool
	Required bool
	Lookup   bool

	// Hidden fields are never rendered.
	Hidden bool

	Default any

	// Values for enum fields.
	Values []string

	// Ref target for reference fields.
	Ref string

	// Implicit indicates this is an auto-generated field.
	Implicit bool

	Constraints []schema.Constraint

	Description string
}

// DerivedAssociation is an association with its target and key resolved.
type DerivedAssociation struct {
	Name string
	Kind schema.AssociationKind

	// Target is the associated resource name.
	Target string

	// ForeignKey is the key column: on the owner's table for belongs_to,
	// on the target's table otherwise.
	ForeignKey string

	Dependent schema.Dependent
	Nested    bool
}

// Collection reports whether the association holds many records.
func (a DerivedAssociation) Collection() bool {
	return a.Kind == schema.HasMany
}

// OwnsKey reports whether the foreign key lives on the owner's table.
func (a DerivedAssociation) OwnsKey() bool {
	return a.Kind == schema.BelongsTo
}

// Derive expands a minimal resource definition into a fully-derived form.
func Derive(res schema.Resource) Derived {
	d := Derived{
		Source: res,
		Name:   res.Name,
		Plural: Pluralize(res.Name),
		Table:  res.Table,
	}
	if d.Table == "" {
		d.Table = d.Plural
	}

	d.Fields = deriveFields(res)
	d.Associations = deriveAssociations(res)
	d.Lookups = deriveLookups(d.Fields)

	return d
}

// Pluralize returns the plural of a snake_case resource name.
func Pluralize(name string) string {
	return inflect.Pluralize(name)
}

// Singularize returns the singular of a snake_case name.
func Singularize(name string) string {
	return inflect.Singularize(name)
}

// Humanize turns a field name into a label ("released_on" -> "Released on").
func Humanize(name string) string {
	return inflect.Humanize(name)
}

// Field returns the named field.
func (d Derived) Field(name string) (DerivedField, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return DerivedField{}, false
}

// Association returns the named association.
func (d Derived) Association(name string) (DerivedAssociation, bool) {
	for _, a := range d.Associations {
		if a.Name == name {
			return a, true
		}
	}
	return DerivedAssociation{}, false
}

// NestedAssociation resolves a payload key ("tracks" or
// "tracks_attributes") to an association accepting nested attributes.
func (d Derived) NestedAssociation(key string) (DerivedAssociation, bool) {
	name := key
	if normalize.IsAssociationKey(key) {
		name = key[:len(key)-len(normalize.NestedSuffix)]
	}
	a, ok := d.Association(name)
	if !ok || !a.Nested {
		return DerivedAssociation{}, false
	}
	return a, true
}

// Columns returns all column names in field order.
func (d Derived) Columns() []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = f.Name
	}
	return cols
}

// deriveFields creates the full list of fields including implicit ones.
func deriveFields(res schema.Resource) []DerivedField {
	fields := make([]DerivedField, 0, len(res.Fields)+3)

	fields = append(fields, DerivedField{
		Name:     "id",
		Type:     schema.FieldTypeUUID,
		SQLType:  "TEXT",
		Unique:   true,
		Lookup:   true,
		Implicit: true,
	})

	names := make([]string, 0, len(res.Fields))
	for name := range res.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := res.Fields[name]
		fields = append(fields, DerivedField{
			Name:        name,
			Type:        f.Type,
			SQLType:     f.SQLType(),
			Unique:      f.Unique,
			Required:    f.Required,
			Lookup:      f.Lookup,
			Hidden:      f.IsHidden(),
			Default:     f.Default,
			Values:      f.Values,
			Ref:         f.To,
			Constraints: f.Constraints,
			Description: f.Description,
		})
	}

	for _, name := range []string{"created_at", "updated_at"} {
		fields = append(fields, DerivedField{
			Name:     name,
			Type:     schema.FieldTypeDateTime,
			SQLType:  "TEXT",
			Implicit: true,
		})
	}

	return fields
}

func deriveAssociations(res schema.Resource) []DerivedAssociation {
	names := make([]string, 0, len(res.Associations))
	for name := range res.Associations {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DerivedAssociation, 0, len(names))
	for _, name := range names {
		a := res.Associations[name]
		da := DerivedAssociation{
			Name:       name,
			Kind:       a.Kind,
			Target:     a.To,
			ForeignKey: a.ForeignKey,
			Dependent:  a.Dependent,
			Nested:     a.Nested,
		}
		if da.Target == "" {
			da.Target = name
			if a.Kind == schema.HasMany {
				da.Target = Singularize(name)
			}
		}
		if da.ForeignKey == "" {
			if a.Kind == schema.BelongsTo {
				da.ForeignKey = name + "_id"
			} else {
				da.ForeignKey = res.Name + "_id"
			}
		}
		out = append(out, da)
	}
	return out
}

// deriveLookups extracts all lookup field names.
func deriveLookups(fields []DerivedField) []string {
	lookups := make([]string, 0)

	for _, f := range fields {
		if f.Lookup {
			lookups = append(lookups, f.Name)
		}
	}

	return lookups
}

// NormalizeKind maps a field type to its normalization kind.
func NormalizeKind(t schema.FieldType) normalize.Kind {
	switch t {
	case schema.FieldTypeDate:
		return normalize.Date
	case schema.FieldTypeDateTime:
		return normalize.DateTime
	case schema.FieldTypeDecimal:
		return normalize.Decimal
	case schema.FieldTypeFloat:
		return normalize.Float
	default:
		return normalize.Other
	}
}
