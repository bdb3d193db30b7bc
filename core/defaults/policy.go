package defaults

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidPolicy is returned when a conditional policy cannot be parsed.
var ErrInvalidPolicy = errors.New("invalid conditional policy")

// PolicyKind discriminates the shapes of a Policy.
type PolicyKind uint8

const (
	// PolicyAlways is an unconditional boolean.
	PolicyAlways PolicyKind = iota

	// PolicyIf holds when its predicate is truthy.
	PolicyIf

	// PolicyUnless holds when its predicate is falsy.
	PolicyUnless
)

// Policy is a boolean that may depend on the instance.
type Policy struct {
	kind      PolicyKind
	value     bool
	predicate string
	fn        Func
}

// Always returns an unconditional policy.
func Always(b bool) Policy {
	return Policy{kind: PolicyAlways, value: b}
}

// If returns a policy that holds when the named predicate holds.
func If(predicate string) Policy {
	return Policy{kind: PolicyIf, predicate: predicate}
}

// Unless returns a policy that holds when the named predicate does not.
func Unless(predicate string) Policy {
	return Policy{kind: PolicyUnless, predicate: predicate}
}

// IfFunc returns a policy that holds when fn returns a truthy value.
func IfFunc(fn Func) Policy {
	return Policy{kind: PolicyIf, fn: fn}
}

// UnlessFunc returns a policy that holds when fn returns a falsy value.
func UnlessFunc(fn Func) Policy {
	return Policy{kind: PolicyUnless, fn: fn}
}

// Kind returns the policy's discriminant.
func (p Policy) Kind() PolicyKind {
	return p.kind
}

// Evaluate reduces the policy to a boolean.
func (p Policy) Evaluate(inst Instance) (bool, error) {
	if p.kind == PolicyAlways {
		return p.value, nil
	}

	var holds bool
	switch {
	case p.fn != nil:
		holds = Truthy(p.fn(inst))
	case p.predicate != "":
		if inst == nil {
			return false, fmt.Errorf("evaluate predicate %q: no instance", p.predicate)
		}
		ok, err := inst.Predicate(p.predicate)
		if err != nil {
			return false, fmt.Errorf("evaluate predicate %q: %w", p.predicate, err)
		}
		holds = ok
	}

	if p.kind == PolicyUnless {
		return !holds, nil
	}
	return holds, nil
}

// ParsePolicy builds a Policy from a configuration value: a bool, a Policy,
// a Func, or a single-entry map keyed "if" or "unless" whose value is a
// predicate name or a Func.
func ParsePolicy(raw any) (Policy, error) {
	switch v := raw.(type) {
	case nil:
		return Always(false), nil
	case bool:
		return Always(v), nil
	case Policy:
		return v, nil
	case Func:
		return IfFunc(v), nil
	case func(Instance) any:
		return IfFunc(v), nil
	case map[string]any:
		return parseConditional(v)
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			ks, ok := k.(string)
			if !ok {
				return Policy{}, fmt.Errorf("%w: key %v is not a string", ErrInvalidPolicy, k)
			}
			m[ks] = val
		}
		return parseConditional(m)
	default:
		return Policy{}, fmt.Errorf("%w: unsupported value %T", ErrInvalidPolicy, raw)
	}
}

func parseConditional(m map[string]any) (Policy, error) {
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Policy{}, fmt.Errorf("%w: expected exactly one of if/unless, got %v", ErrInvalidPolicy, keys)
	}

	for key, val := range m {
		var kind PolicyKind
		switch key {
		case "if":
			kind = PolicyIf
		case "unless":
			kind = PolicyUnless
		default:
			return Policy{}, fmt.Errorf("%w: unknown key %q", ErrInvalidPolicy, key)
		}

		switch pred := val.(type) {
		case string:
			if pred == "" {
				return Policy{}, fmt.Errorf("%w: empty predicate for %q", ErrInvalidPolicy, key)
			}
			return Policy{kind: kind, predicate: pred}, nil
		case Func:
			return Policy{kind: kind, fn: pred}, nil
		case func(Instance) any:
			return Policy{kind: kind, fn: pred}, nil
		default:
			return Policy{}, fmt.Errorf("%w: predicate for %q must be a name or function, got %T", ErrInvalidPolicy, key, val)
		}
	}
	return Policy{}, ErrInvalidPolicy
}

// Truthy reports whether v counts as true: nil, false and the zero-length
// string are false, everything else is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		return true
	}
}
