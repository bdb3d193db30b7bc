package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/schema"
)

// DateLayout is the canonical stored form of date fields.
const DateLayout = "2006-01-02"

// dateTimeLayouts are accepted for datetime strings that were not already
// parsed by the locale normalizer.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// Coerce converts an assigned value to the canonical Go value of the
// field's type: int64, float64, bool, time.Time, decimal text or string.
// It reports false when the value cannot represent the type.
func Coerce(f convention.DerivedField, v any) (any, bool) {
	if v == nil {
		return nil, true
	}

	switch f.Type {
	case schema.FieldTypeInt:
		return coerceInt(v)

	case schema.FieldTypeFloat:
		d, err := schema.ToDecimal(v)
		if err != nil {
			return nil, false
		}
		return d.InexactFloat64(), true

	case schema.FieldTypeDecimal:
		d, err := schema.ToDecimal(v)
		if err != nil {
			return nil, false
		}
		return d.String(), true

	case schema.FieldTypeBool:
		return coerceBool(v)

	case schema.FieldTypeDate, schema.FieldTypeDateTime:
		t, ok := coerceTime(v)
		if !ok {
			return nil, false
		}
		if f.Type == schema.FieldTypeDate {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		return t, true

	case schema.FieldTypeJSON:
		return v, true

	case schema.FieldTypeSecret:
		switch s := v.(type) {
		case string, []byte:
			return s, true
		}
		return nil, false

	default:
		switch s := v.(type) {
		case string:
			return s, true
		case int, int32, int64, float64, bool:
			return fmt.Sprint(s), true
		}
		return nil, false
	}
}

func coerceInt(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return nil, false
		}
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, false
		}
		return i, true
	default:
		d, err := schema.ToDecimal(v)
		if err != nil || !d.IsInteger() {
			return nil, false
		}
		return d.IntPart(), true
	}
}

func coerceBool(v any) (any, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int:
		return b != 0, b == 0 || b == 1
	case int64:
		return b != 0, b == 0 || b == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "t", "yes", "on":
			return true, true
		case "0", "false", "f", "no", "off":
			return false, true
		}
	}
	return nil, false
}

func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
