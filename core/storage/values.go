package storage

import (
	"encoding/json"
	"time"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/schema"
	"github.com/artpar/crudkit/core/validation"
)

// storedDateTimeLayouts are the forms datetime columns hold: values this
// package writes, and CURRENT_TIMESTAMP defaults.
var storedDateTimeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05"}

// convertValue converts an attribute to a database value.
func convertValue(val any, f convention.DerivedField) any {
	if val == nil {
		return nil
	}

	coerced, ok := validation.Coerce(f, val)
	if !ok {
		return val
	}

	switch v := coerced.(type) {
	case time.Time:
		if f.Type == schema.FieldTypeDate {
			return v.Format(validation.DateLayout)
		}
		return v.UTC().Format(time.RFC3339Nano)
	case bool:
		if v {
			return 1
		}
		return 0
	}

	switch f.Type {
	case schema.FieldTypeJSON:
		data, err := json.Marshal(coerced)
		if err != nil {
			return nil
		}
		return string(data)
	case schema.FieldTypeSecret:
		// Hashes are kept as []byte for BLOB storage.
		if s, ok := coerced.(string); ok {
			return []byte(s)
		}
	}
	return coerced
}

// convertFromDB converts a database value to an attribute.
func convertFromDB(val any, f convention.DerivedField) any {
	if val == nil {
		return nil
	}

	if b, ok := val.([]byte); ok && f.Type != schema.FieldTypeSecret {
		val = string(b)
	}

	switch f.Type {
	case schema.FieldTypeBool:
		switch v := val.(type) {
		case int64:
			return v != 0
		default:
			return false
		}
	case schema.FieldTypeDecimal:
		if d, err := schema.ToDecimal(val); err == nil {
			return d
		}
		return val
	case schema.FieldTypeDate:
		if s, ok := val.(string); ok {
			if t, err := time.Parse(validation.DateLayout, s); err == nil {
				return t
			}
		}
		return val
	case schema.FieldTypeDateTime:
		if s, ok := val.(string); ok {
			for _, layout := range storedDateTimeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t
				}
			}
		}
		return val
	case schema.FieldTypeJSON:
		if s, ok := val.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
		return val
	case schema.FieldTypeSecret:
		if s, ok := val.(string); ok {
			return []byte(s)
		}
		return val
	default:
		return val
	}
}
