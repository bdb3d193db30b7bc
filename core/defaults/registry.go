package defaults

import (
	"fmt"
	"sort"
	"sync"
)

// All is the operation key matching every operation.
const All = "all"

// Aspect names one configurable dimension of an operation.
type Aspect string

const (
	// Includes lists the associations to preload.
	Includes Aspect = "includes"

	// Select lists the columns to project.
	Select Aspect = "select"

	// Order is the ordering spec.
	Order Aspect = "order"

	// Scopes lists the named scopes to apply.
	Scopes Aspect = "scopes"

	// Attributes holds default field values for new and create.
	Attributes Aspect = "attributes"

	// PageSize is the number of records per page.
	PageSize Aspect = "page_size"

	// Distinct is the uniqueness policy.
	Distinct Aspect = "distinct"

	// LoadStrategy is the association loading strategy.
	LoadStrategy Aspect = "strategy"
)

// Aspects returns every known aspect.
func Aspects() []Aspect {
	return []Aspect{Includes, Select, Order, Scopes, Attributes, PageSize, Distinct, LoadStrategy}
}

// ParseAspect returns the aspect named s.
func ParseAspect(s string) (Aspect, error) {
	for _, a := range Aspects() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown aspect %q", s)
}

// Registry holds the defaults of one resource. It is written while the
// resource is being defined and only read once operations run.
type Registry struct {
	mu     sync.RWMutex
	values map[Aspect]map[string]Value
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		values: make(map[Aspect]map[string]Value),
	}
}

// Set registers v for aspect under each operation in ops, or under All
// when ops is empty. A later Set for the same key replaces the earlier one.
func (r *Registry) Set(aspect Aspect, v Value, ops ...string) {
	if len(ops) == 0 {
		ops = []string{All}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byOp, ok := r.values[aspect]
	if !ok {
		byOp = make(map[string]Value)
		r.values[aspect] = byOp
	}
	for _, op := range ops {
		byOp[op] = v
	}
}

// SetPolicy validates raw as a conditional policy and registers it for the
// Distinct aspect. Invalid policies are rejected here rather than when the
// value is resolved.
func (r *Registry) SetPolicy(raw any, ops ...string) error {
	p, err := ParsePolicy(raw)
	if err != nil {
		return err
	}
	r.Set(Distinct, Static(p), ops...)
	return nil
}

// Lookup returns the value registered for op, falling back to All.
func (r *Registry) Lookup(aspect Aspect, op string) (Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byOp := r.values[aspect]
	if v, ok := byOp[op]; ok {
		return v, true
	}
	if v, ok := byOp[All]; ok {
		return v, true
	}
	return Value{}, false
}

// Resolve returns the effective value of aspect for op. Deferred values are
// evaluated against inst. found is false when nothing is registered; an
// empty result is returned as is.
func (r *Registry) Resolve(aspect Aspect, op string, inst Instance) (value any, found bool) {
	v, ok := r.Lookup(aspect, op)
	if !ok {
		return nil, false
	}
	return v.Eval(inst), true
}

// Operations returns the operation keys registered for aspect, sorted.
func (r *Registry) Operations(aspect Aspect) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]string, 0, len(r.values[aspect]))
	for op := range r.values[aspect] {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRegistry()
	for aspect, byOp := range r.values {
		m := make(map[string]Value, len(byOp))
		for op, v := range byOp {
			m[op] = v
		}
		c.values[aspect] = m
	}
	return c
}
