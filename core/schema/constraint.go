package schema

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Constraint defines a validation rule for a field.
type Constraint struct {
	// Type is the constraint type (min, max, min_length, max_length, pattern, etc.)
	Type ConstraintType `yaml:"type"`

	// Value is the constraint parameter (number, regex pattern, etc.)
	Value any `yaml:"value"`

	// Message is the custom error message (optional).
	Message string `yaml:"message,omitempty"`
}

// ConstraintType identifies the type of constraint.
type ConstraintType string

const (
	// Numeric constraints
	ConstraintMin ConstraintType = "min"
	ConstraintMax ConstraintType = "max"

	// String constraints
	ConstraintMinLength ConstraintType = "min_length"
	ConstraintMaxLength ConstraintType = "max_length"
	ConstraintPattern   ConstraintType = "pattern"
	ConstraintNotEmpty  ConstraintType = "not_empty"

	// Value must be one of a list (for non-enum validation)
	ConstraintOneOf ConstraintType = "one_of"
)

// ConstraintError is a violated constraint.
type ConstraintError struct {
	Field   string
	Code    string
	Message string
}

func (e ConstraintError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// CheckConstraint validates a value against a single constraint. Values of
// the wrong shape for the constraint, and misconfigured constraints, pass.
func CheckConstraint(field string, value any, c Constraint) *ConstraintError {
	fail := func(def string) *ConstraintError {
		msg := c.Message
		if msg == "" {
			msg = def
		}
		return &ConstraintError{Field: field, Code: string(c.Type), Message: msg}
	}

	switch c.Type {
	case ConstraintMin, ConstraintMax:
		bound, err := ToDecimal(c.Value)
		if err != nil {
			return nil
		}
		val, err := ToDecimal(value)
		if err != nil {
			return nil
		}
		if c.Type == ConstraintMin && val.LessThan(bound) {
			return fail("must be at least " + bound.String())
		}
		if c.Type == ConstraintMax && val.GreaterThan(bound) {
			return fail("must be at most " + bound.String())
		}

	case ConstraintMinLength, ConstraintMaxLength:
		n, err := ToDecimal(c.Value)
		str, ok := value.(string)
		if err != nil || !ok {
			return nil
		}
		limit := int(n.IntPart())
		length := utf8.RuneCountInString(str)
		if c.Type == ConstraintMinLength && length < limit {
			return fail(fmt.Sprintf("is too short (minimum is %d characters)", limit))
		}
		if c.Type == ConstraintMaxLength && length > limit {
			return fail(fmt.Sprintf("is too long (maximum is %d characters)", limit))
		}

	case ConstraintPattern:
		pattern, ok := c.Value.(string)
		str, isStr := value.(string)
		if !ok || !isStr {
			return nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil
		}
		if !re.MatchString(str) {
			return fail("is invalid")
		}

	case ConstraintNotEmpty:
		if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
			return fail("can't be empty")
		}

	case ConstraintOneOf:
		allowed := toStrings(c.Value)
		if allowed == nil {
			return nil
		}
		got := fmt.Sprint(value)
		for _, a := range allowed {
			if a == got {
				return nil
			}
		}
		return fail("must be one of: " + strings.Join(allowed, ", "))
	}
	return nil
}

// ToDecimal converts numeric values and numeric strings to a decimal.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	default:
		return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", v)
	}
}

func toStrings(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, len(vals))
		for i, item := range vals {
			out[i] = fmt.Sprint(item)
		}
		return out
	default:
		return nil
	}
}

// ValidConstraintType reports whether t is a known constraint type.
func ValidConstraintType(t ConstraintType) bool {
	switch t {
	case ConstraintMin, ConstraintMax, ConstraintMinLength, ConstraintMaxLength,
		ConstraintPattern, ConstraintNotEmpty, ConstraintOneOf:
		return true
	default:
		return false
	}
}
