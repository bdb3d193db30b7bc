package schema

// Resource is the root definition of a managed entity type.
type Resource struct {
	// Name is the singular resource name (e.g., "album").
	Name string `yaml:"resource"`

	// Table overrides the conventional table name.
	Table string `yaml:"table,omitempty"`

	// Fields defines the stored attributes. The id, created_at and
	// updated_at fields are implicit.
	Fields map[string]Field `yaml:"fields"`

	// Associations links this resource to others.
	Associations map[string]Association `yaml:"associations,omitempty"`

	// Scopes are named, reusable query restrictions.
	Scopes map[string]Scope `yaml:"scopes,omitempty"`

	// Defaults maps aspect to operation key to default value.
	Defaults Defaults `yaml:"defaults,omitempty"`

	// Hooks maps before_<operation> and after_<operation> to handlers.
	Hooks map[string][]Hook `yaml:"hooks,omitempty"`

	// Meta contains optional metadata.
	Meta ResourceMeta `yaml:"meta,omitempty"`
}

// ResourceMeta contains optional resource metadata.
type ResourceMeta struct {
	Description string `yaml:"description,omitempty"`

	// Owner names the field holding the owning principal's id. Owner
	// authorization rules compare against it.
	Owner string `yaml:"owner,omitempty"`
}

// Hook is a declarative operation hook.
type Hook struct {
	// Emit publishes an event with this name.
	Emit string `yaml:"emit,omitempty"`

	// Call invokes a registered function.
	Call string `yaml:"call,omitempty"`
}

// Scope is a named query restriction.
type Scope struct {
	// Where maps a field to a value or to an operator map
	// ({ gt: $1 }). A "$N" value is the Nth scope argument.
	Where map[string]any `yaml:"where,omitempty"`

	// Order appends an ordering such as "year desc".
	Order string `yaml:"order,omitempty"`
}

// AssociationKind is the cardinality and key ownership of an association.
type AssociationKind string

const (
	BelongsTo AssociationKind = "belongs_to"
	HasOne    AssociationKind = "has_one"
	HasMany   AssociationKind = "has_many"
)

// Dependent says what destroying the owner does to associated records.
type Dependent string

const (
	DependentNone     Dependent = ""
	DependentDestroy  Dependent = "destroy"
	DependentRestrict Dependent = "restrict"
)

// Association links a resource to another.
type Association struct {
	Kind AssociationKind `yaml:"kind"`

	// To is the target resource. Defaults to the association name
	// (singularized for has_many).
	To string `yaml:"to,omitempty"`

	// ForeignKey overrides the conventional key column: <name>_id on this
	// table for belongs_to, <owner>_id on the target for has_one/has_many.
	ForeignKey string `yaml:"foreign_key,omitempty"`

	Dependent Dependent `yaml:"dependent,omitempty"`

	// Nested accepts <name>_attributes payloads on create and update.
	Nested bool `yaml:"nested,omitempty"`
}

// IsCollection reports whether the association holds many records.
func (a Association) IsCollection() bool {
	return a.Kind == HasMany
}
