// Package record holds model instances: the attributes of one row of a
// resource, its loaded associations, its validation errors and its
// lifecycle state.
package record

import (
	"maps"
	"slices"
	"sort"
)

// IDField is the primary key attribute.
const IDField = "id"

// Record is one instance of a resource. It is not safe for concurrent
// mutation.
type Record struct {
	resource     string
	attrs        map[string]any
	changed      map[string]struct{}
	associations map[string]any
	errors       *Errors
	persisted    bool
	destroyed    bool
}

// New creates an unsaved record with attrs assigned.
func New(resource string, attrs map[string]any) *Record {
	r := &Record{
		resource:     resource,
		attrs:        make(map[string]any),
		changed:      make(map[string]struct{}),
		associations: make(map[string]any),
		errors:       &Errors{},
	}
	r.Assign(attrs)
	return r
}

// Load creates a persisted record from stored attributes.
func Load(resource string, attrs map[string]any) *Record {
	r := &Record{
		resource:     resource,
		attrs:        maps.Clone(attrs),
		changed:      make(map[string]struct{}),
		associations: make(map[string]any),
		errors:       &Errors{},
		persisted:    true,
	}
	if r.attrs == nil {
		r.attrs = make(map[string]any)
	}
	return r
}

// Resource returns the resource name.
func (r *Record) Resource() string { return r.resource }

// ID returns the primary key, or nil before the record is saved.
func (r *Record) ID() any { return r.attrs[IDField] }

// Get returns an attribute.
func (r *Record) Get(name string) any { return r.attrs[name] }

// Has reports whether the attribute is present.
func (r *Record) Has(name string) bool {
	_, ok := r.attrs[name]
	return ok
}

// Set assigns one attribute and marks it changed.
func (r *Record) Set(name string, value any) {
	r.attrs[name] = value
	r.changed[name] = struct{}{}
}

// Assign sets every attribute in attrs.
func (r *Record) Assign(attrs map[string]any) {
	for k, v := range attrs {
		r.Set(k, v)
	}
}

// Take removes an attribute and returns it.
func (r *Record) Take(name string) (any, bool) {
	v, ok := r.attrs[name]
	if ok {
		delete(r.attrs, name)
		delete(r.changed, name)
	}
	return v, ok
}

// Attributes returns a copy of all attributes.
func (r *Record) Attributes() map[string]any { return maps.Clone(r.attrs) }

// Changed returns the names of attributes assigned since the record was
// loaded or last saved, sorted.
func (r *Record) Changed() []string {
	names := slices.Collect(maps.Keys(r.changed))
	sort.Strings(names)
	return names
}

// Restrict drops every attribute not in keep. The id is always kept.
func (r *Record) Restrict(keep []string) {
	if len(keep) == 0 {
		return
	}
	allowed := make(map[string]bool, len(keep)+1)
	for _, k := range keep {
		allowed[k] = true
	}
	allowed[IDField] = true
	for k := range r.attrs {
		if !allowed[k] {
			delete(r.attrs, k)
		}
	}
}

// Association returns a loaded association: a *Record for single
// associations, []*Record for collections.
func (r *Record) Association(name string) (any, bool) {
	v, ok := r.associations[name]
	return v, ok
}

// SetAssociation stores a loaded association.
func (r *Record) SetAssociation(name string, v any) { r.associations[name] = v }

// Associations returns the names of loaded associations, sorted.
func (r *Record) Associations() []string {
	names := slices.Collect(maps.Keys(r.associations))
	sort.Strings(names)
	return names
}

// Errors returns the validation errors attached to the record.
func (r *Record) Errors() *Errors { return r.errors }

// Valid reports whether no errors are attached.
func (r *Record) Valid() bool { return r.errors.Empty() }

// Persisted reports whether the record exists in storage.
func (r *Record) Persisted() bool { return r.persisted && !r.destroyed }

// NewRecord reports whether the record was never saved.
func (r *Record) NewRecord() bool { return !r.persisted }

// Destroyed reports whether the record was deleted.
func (r *Record) Destroyed() bool { return r.destroyed }

// MarkPersisted records a successful save and clears change tracking.
func (r *Record) MarkPersisted() {
	r.persisted = true
	clear(r.changed)
}

// MarkDestroyed records a successful delete.
func (r *Record) MarkDestroyed() { r.destroyed = true }

// Map returns attributes with loaded associations nested under their
// names, for rendering.
func (r *Record) Map() map[string]any {
	out := maps.Clone(r.attrs)
	for name, v := range r.associations {
		switch a := v.(type) {
		case *Record:
			if a == nil {
				out[name] = nil
			} else {
				out[name] = a.Map()
			}
		case []*Record:
			items := make([]map[string]any, len(a))
			for i, item := range a {
				items[i] = item.Map()
			}
			out[name] = items
		}
	}
	return out
}
