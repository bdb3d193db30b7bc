package runtime

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Function is a named hook body that resource definitions invoke with a
// "call:" hook.
type Function struct {
	Name        string
	Description string

	// Phases limits the hook phases the function runs in. Empty allows
	// both.
	Phases []string

	Handler HookHandler
}

// Allows reports whether the function may run in phase.
func (f Function) Allows(phase string) bool {
	return len(f.Phases) == 0 || slices.Contains(f.Phases, phase)
}

// FunctionRegistry holds the functions "call:" hooks can name.
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

// NewFunctionRegistry creates an empty function registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{funcs: make(map[string]Function)}
}

// Register adds fn, replacing any function of the same name.
func (r *FunctionRegistry) Register(fn Function) error {
	if fn.Name == "" {
		return errors.New("function name is required")
	}
	if fn.Handler == nil {
		return fmt.Errorf("function %q has no handler", fn.Name)
	}
	for _, p := range fn.Phases {
		if p != PhaseBefore && p != PhaseAfter {
			return fmt.Errorf("function %q: unknown phase %q", fn.Name, p)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[fn.Name] = fn
	return nil
}

// Call runs the named function. The handler may change the event's Data
// and Meta; its error is returned wrapped with the function name.
func (r *FunctionRegistry) Call(ctx context.Context, name string, event HookEvent) error {
	fn, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("function %q not registered", name)
	}
	if event.Phase != "" && !fn.Allows(event.Phase) {
		return fmt.Errorf("function %q cannot run in the %s phase", name, event.Phase)
	}

	if err := fn.Handler(ctx, event); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Lookup returns the named function.
func (r *FunctionRegistry) Lookup(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// List returns the registered names in order.
func (r *FunctionRegistry) List() []string {
	fns := r.All()
	names := make([]string, len(fns))
	for i, fn := range fns {
		names[i] = fn.Name
	}
	return names
}

// All returns the registered functions ordered by name.
func (r *FunctionRegistry) All() []Function {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fns := make([]Function, 0, len(r.funcs))
	for _, fn := range r.funcs {
		fns = append(fns, fn)
	}
	slices.SortFunc(fns, func(a, b Function) int { return cmp.Compare(a.Name, b.Name) })
	return fns
}
