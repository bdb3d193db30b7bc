package schema

// Field defines a stored attribute of a resource.
type Field struct {
	// Type is the field type. See FieldType constants.
	Type FieldType `yaml:"type"`

	// Unique indicates this field must have unique values.
	Unique bool `yaml:"unique,omitempty"`

	// Lookup indicates this field can be used to find records (like sku).
	// The "id" field is always implicitly a lookup field.
	Lookup bool `yaml:"lookup,omitempty"`

	// Required indicates the field must be present and non-blank on save.
	Required bool `yaml:"required,omitempty"`

	// Default value stored when the field is not assigned on insert.
	Default any `yaml:"default,omitempty"`

	// Values lists valid values for enum type fields.
	Values []string `yaml:"values,omitempty"`

	// To specifies the target resource for ref type fields.
	To string `yaml:"to,omitempty"`

	// Constraints defines validation rules for this field.
	Constraints []Constraint `yaml:"constraints,omitempty"`

	// Description is human-readable documentation for this field.
	Description string `yaml:"description,omitempty"`
}

// FieldType represents the type of a field.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeText     FieldType = "text"
	FieldTypeInt      FieldType = "int"
	FieldTypeFloat    FieldType = "float"
	FieldTypeDecimal  FieldType = "decimal"
	FieldTypeBool     FieldType = "bool"
	FieldTypeDate     FieldType = "date"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeJSON     FieldType = "json"

	// Semantic types (string with validation)
	FieldTypeEmail FieldType = "email"
	FieldTypeURL   FieldType = "url"
	FieldTypeUUID  FieldType = "uuid"

	// Special types
	FieldTypeEnum   FieldType = "enum"   // Requires Values
	FieldTypeRef    FieldType = "ref"    // Requires To (foreign key)
	FieldTypeSecret FieldType = "secret" // Hashed, never rendered
)

// IsHidden returns whether the field is never rendered.
func (f Field) IsHidden() bool {
	return f.Type == FieldTypeSecret
}

// SQLType returns the SQLite column type for this field.
func (f Field) SQLType() string {
	return f.Type.SQLType()
}

// SQLType returns the SQLite column type for the field type.
func (t FieldType) SQLType() string {
	switch t {
	case FieldTypeInt, FieldTypeBool:
		return "INTEGER"
	case FieldTypeFloat:
		return "REAL"
	case FieldTypeSecret:
		return "BLOB"
	default:
		// Decimals are stored as text to stay exact.
		return "TEXT"
	}
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeText, FieldTypeInt, FieldTypeFloat,
		FieldTypeDecimal, FieldTypeBool, FieldTypeDate, FieldTypeDateTime,
		FieldTypeJSON, FieldTypeEmail, FieldTypeURL, FieldTypeUUID,
		FieldTypeEnum, FieldTypeRef, FieldTypeSecret:
		return true
	default:
		return false
	}
}
