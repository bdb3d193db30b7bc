// Package defaults stores per-resource, per-operation configuration and
// resolves the effective value of each aspect for one invocation.
//
// A default is registered for an operation name or for All. Lookup always
// tries the exact operation first and then All. Values are either static or
// deferred; a deferred value is a function evaluated against the instance
// handling the current invocation, so it can read that instance's state.
package defaults

// Instance is the receiver deferred defaults and policy predicates are
// evaluated against. The runtime's invocation implements it.
type Instance interface {
	// Operation returns the name of the operation being executed.
	Operation() string

	// Value returns a piece of instance state (call-time options,
	// submitted attributes, principal) by key.
	Value(key string) any

	// Predicate evaluates a named predicate registered on the resource.
	Predicate(name string) (bool, error)
}

// Func is a deferred computation. It must not have destructive side
// effects: it may be evaluated more than once per invocation.
type Func func(inst Instance) any

// Kind discriminates the two shapes of a Value.
type Kind uint8

const (
	// KindStatic is an already concrete value.
	KindStatic Kind = iota + 1

	// KindDeferred is a value computed per invocation.
	KindDeferred
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Value is a registered default.
type Value struct {
	kind   Kind
	static any
	fn     Func
}

// Static wraps a concrete value.
func Static(v any) Value {
	return Value{kind: KindStatic, static: v}
}

// Deferred wraps a computation evaluated per invocation.
func Deferred(fn Func) Value {
	return Value{kind: KindDeferred, fn: fn}
}

// Of wraps v as Deferred when it is a Func (or a plain function with the
// same signature) and as Static otherwise. A Value is returned as is.
func Of(v any) Value {
	switch val := v.(type) {
	case Value:
		return val
	case Func:
		return Deferred(val)
	case func(Instance) any:
		return Deferred(val)
	default:
		return Static(v)
	}
}

// Kind returns the value's discriminant.
func (v Value) Kind() Kind {
	return v.kind
}

// IsZero reports whether v was never set.
func (v Value) IsZero() bool {
	return v.kind == 0
}

// Eval returns the concrete value. Deferred values are computed against
// inst; a nil function yields nil.
func (v Value) Eval(inst Instance) any {
	switch v.kind {
	case KindStatic:
		return v.static
	case KindDeferred:
		if v.fn == nil {
			return nil
		}
		return v.fn(inst)
	default:
		return nil
	}
}
