// Package validation checks records against resource definitions.
// Failures are attached to the record's errors; they are never returned as
// Go errors.
package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/schema"
	"github.com/google/uuid"
)

// Error codes attached to record errors.
const (
	CodeBlank        = "blank"
	CodeNumericality = "numericality"
	CodeInclusion    = "inclusion"
	CodeInvalid      = "invalid"
	CodeUnknown      = "unknown"
	CodeTaken        = "taken"
)

// Validate checks r against res. Presence is checked for every required
// field; type and constraint checks run on changed fields only, so stored
// values are not re-validated. It reports whether r is valid.
func Validate(res convention.Derived, r *record.Record) bool {
	changed := r.Changed()

	for _, name := range changed {
		if _, ok := res.Field(name); !ok {
			r.Errors().Add(name, CodeUnknown, "is not an attribute of "+res.Name)
		}
	}

	for _, f := range res.Fields {
		if f.Implicit {
			continue
		}

		value := r.Get(f.Name)
		if f.Required && isBlank(value) {
			r.Errors().Add(f.Name, CodeBlank, "can't be blank")
			continue
		}

		if value == nil || !slices.Contains(changed, f.Name) {
			continue
		}

		checkField(r.Errors(), f, value)
	}

	return r.Valid()
}

// Field validates a single value against its field definition.
func Field(f convention.DerivedField, value any) *record.Errors {
	errs := &record.Errors{}
	if value == nil {
		if f.Required {
			errs.Add(f.Name, CodeBlank, "can't be blank")
		}
		return errs
	}
	checkField(errs, f, value)
	return errs
}

func checkField(errs *record.Errors, f convention.DerivedField, value any) {
	coerced, ok := Coerce(f, value)
	if !ok {
		errs.Add(f.Name, typeCode(f.Type), typeMessage(f.Type))
		return
	}

	str, isStr := coerced.(string)
	switch f.Type {
	case schema.FieldTypeEmail:
		if _, err := mail.ParseAddress(str); isStr && err != nil {
			errs.Add(f.Name, CodeInvalid, "is not a valid email address")
		}
	case schema.FieldTypeURL:
		if _, err := url.ParseRequestURI(str); isStr && err != nil {
			errs.Add(f.Name, CodeInvalid, "is not a valid URL")
		}
	case schema.FieldTypeUUID:
		if _, err := uuid.Parse(str); isStr && err != nil {
			errs.Add(f.Name, CodeInvalid, "is not a valid UUID")
		}
	case schema.FieldTypeEnum:
		if !slices.Contains(f.Values, str) {
			errs.Add(f.Name, CodeInclusion, "must be one of: "+strings.Join(f.Values, ", "))
		}
	case schema.FieldTypeRef:
		if strings.TrimSpace(str) == "" {
			errs.Add(f.Name, CodeBlank, "reference can't be blank")
		}
	}

	for _, c := range f.Constraints {
		if cerr := schema.CheckConstraint(f.Name, value, c); cerr != nil {
			errs.Add(f.Name, cerr.Code, cerr.Message)
		}
	}
}

func typeCode(t schema.FieldType) string {
	switch t {
	case schema.FieldTypeInt, schema.FieldTypeFloat, schema.FieldTypeDecimal:
		return CodeNumericality
	default:
		return CodeInvalid
	}
}

func typeMessage(t schema.FieldType) string {
	switch t {
	case schema.FieldTypeInt:
		return "must be an integer"
	case schema.FieldTypeFloat, schema.FieldTypeDecimal:
		return "is not a number"
	case schema.FieldTypeBool:
		return "must be true or false"
	case schema.FieldTypeDate:
		return "is not a valid date"
	case schema.FieldTypeDateTime:
		return "is not a valid date and time"
	default:
		return fmt.Sprintf("is not a valid %s", t)
	}
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []byte:
		return len(val) == 0
	default:
		return false
	}
}
