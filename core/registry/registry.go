// Package registry manages resource registration and conflict detection.
// It resolves associations between resources and provides lookup for
// storage and the runtime.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/normalize"
	"github.com/artpar/crudkit/core/schema"
)

// Registry manages registered resources.
type Registry struct {
	mu sync.RWMutex

	// resources by name
	resources map[string]convention.Derived

	// tables to resources
	tables map[string]string

	// normalization schemas, built on first use
	schemas map[string]*normalize.Schema
}

// New creates a new registry.
func New() *Registry {
	return &Registry{
		resources: make(map[string]convention.Derived),
		tables:    make(map[string]string),
		schemas:   make(map[string]*normalize.Schema),
	}
}

// Register derives and registers a resource. It fails when the name or
// table is already taken.
func (r *Registry) Register(res schema.Resource) (convention.Derived, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[res.Name]; exists {
		return convention.Derived{}, fmt.Errorf("resource %q already registered", res.Name)
	}

	derived := convention.Derive(res)

	if existing, exists := r.tables[derived.Table]; exists {
		return convention.Derived{}, fmt.Errorf("table %q already claimed by resource %q", derived.Table, existing)
	}

	r.resources[res.Name] = derived
	r.tables[derived.Table] = res.Name
	clear(r.schemas)

	return derived, nil
}

// Unregister removes a resource from the registry.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	derived, exists := r.resources[name]
	if !exists {
		return fmt.Errorf("resource %q not registered", name)
	}

	delete(r.tables, derived.Table)
	delete(r.resources, name)
	clear(r.schemas)

	return nil
}

// Get returns a registered resource by name.
func (r *Registry) Get(name string) (convention.Derived, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[name]
	return res, ok
}

// List returns all registered resources sorted by name.
func (r *Registry) List() []convention.Derived {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resources := make([]convention.Derived, 0, len(r.resources))
	for _, res := range r.resources {
		resources = append(resources, res)
	}

	sort.Slice(resources, func(i, j int) bool {
		return resources[i].Name < resources[j].Name
	})

	return resources
}

// Check verifies that every association target and ref field points at a
// registered resource, and that every key column exists.
func (r *Registry) Check() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []string
	for _, res := range r.resources {
		for _, f := range res.Fields {
			if f.Ref != "" {
				if _, ok := r.resources[f.Ref]; !ok {
					errs = append(errs, fmt.Sprintf("%s.%s: unknown resource %q", res.Name, f.Name, f.Ref))
				}
			}
		}
		for _, a := range res.Associations {
			target, ok := r.resources[a.Target]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s.%s: unknown resource %q", res.Name, a.Name, a.Target))
				continue
			}
			keyOwner := target
			if a.OwnsKey() {
				keyOwner = res
			}
			if _, ok := keyOwner.Field(a.ForeignKey); !ok {
				errs = append(errs, fmt.Sprintf("%s.%s: %s has no key field %q", res.Name, a.Name, keyOwner.Name, a.ForeignKey))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return &ReferenceError{Problems: errs}
	}
	return nil
}

// NormalizationSchema returns the normalizer schema of a resource,
// including the schemas of associations that accept nested attributes.
// Schemas are memoized; cyclic associations share schema values.
func (r *Registry) NormalizationSchema(name string) (*normalize.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.buildSchema(name)
}

func (r *Registry) buildSchema(name string) (*normalize.Schema, error) {
	if s, ok := r.schemas[name]; ok {
		return s, nil
	}

	res, ok := r.resources[name]
	if !ok {
		return nil, fmt.Errorf("resource %q not registered", name)
	}

	s := normalize.NewSchema()
	r.schemas[name] = s

	for _, f := range res.Fields {
		if kind := convention.NormalizeKind(f.Type); kind != normalize.Other {
			s.Fields[f.Name] = kind
		}
	}

	for _, a := range res.Associations {
		if !a.Nested {
			continue
		}
		target, err := r.buildSchema(a.Target)
		if err != nil {
			delete(r.schemas, name)
			return nil, fmt.Errorf("association %s.%s: %w", name, a.Name, err)
		}
		arity := normalize.One
		if a.Collection() {
			arity = normalize.Many
		}
		s.Associations[a.Name] = normalize.Relation{Arity: arity, Schema: target}
	}

	return s, nil
}

// ReferenceError lists dangling references between resources.
type ReferenceError struct {
	Problems []string
}

// Error returns the reference error message.
func (e *ReferenceError) Error() string {
	return fmt.Sprintf("unresolved references:\n  - %s", strings.Join(e.Problems, "\n  - "))
}
