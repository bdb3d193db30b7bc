package validation

import (
	"testing"
	"time"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/schema"
)

func productResource() convention.Derived {
	return convention.Derive(schema.Resource{
		Name: "product",
		Fields: map[string]schema.Field{
			"name":     {Type: schema.FieldTypeString, Required: true},
			"email":    {Type: schema.FieldTypeEmail},
			"website":  {Type: schema.FieldTypeURL},
			"token":    {Type: schema.FieldTypeUUID},
			"stock":    {Type: schema.FieldTypeInt},
			"price":    {Type: schema.FieldTypeDecimal, Constraints: []schema.Constraint{{Type: schema.ConstraintMin, Value: 0}}},
			"weight":   {Type: schema.FieldTypeFloat},
			"active":   {Type: schema.FieldTypeBool},
			"status":   {Type: schema.FieldTypeEnum, Values: []string{"draft", "live"}},
			"launched": {Type: schema.FieldTypeDate},
			"sku": {Type: schema.FieldTypeString, Constraints: []schema.Constraint{
				{Type: schema.ConstraintPattern, Value: "^[A-Z]{3}-[0-9]{4}$"},
			}},
		},
	})
}

func TestValidate_Valid(t *testing.T) {
	r := record.New("product", map[string]any{
		"name":     "Widget",
		"email":    "shop@example.com",
		"website":  "https://example.com",
		"token":    "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"stock":    "12",
		"price":    "45.04",
		"weight":   1.5,
		"active":   "true",
		"status":   "live",
		"launched": time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC),
		"sku":      "WGT-0001",
	})
	if !Validate(productResource(), r) {
		t.Errorf("errors = %v", r.Errors().Full())
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		field string
		value any
		code  string
	}{
		{"name", "  ", CodeBlank},
		{"name", nil, CodeBlank},
		{"email", "not-an-email", CodeInvalid},
		{"website", "nope", CodeInvalid},
		{"token", "1234", CodeInvalid},
		{"stock", "twelve", CodeNumericality},
		{"stock", 1.5, CodeNumericality},
		{"price", "45,04", CodeNumericality},
		{"price", "-1", "min"},
		{"weight", "heavy", CodeNumericality},
		{"active", "maybe", CodeInvalid},
		{"status", "archived", CodeInclusion},
		{"launched", "today", CodeInvalid},
		{"sku", "wgt-1", "pattern"},
		{"colour", "red", CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.code, func(t *testing.T) {
			attrs := map[string]any{"name": "Widget"}
			attrs[tt.field] = tt.value
			r := record.New("product", attrs)
			if Validate(productResource(), r) {
				t.Fatalf("expected %s failure on %s", tt.code, tt.field)
			}
			if !r.Errors().Has(tt.field, tt.code) {
				t.Errorf("errors = %+v", r.Errors().All())
			}
		})
	}
}

func TestValidate_OnlyChangedFieldsAreTypeChecked(t *testing.T) {
	// A stored value that would fail today's rules is left alone.
	r := record.Load("product", map[string]any{"id": "p1", "name": "Widget", "status": "legacy"})
	if !Validate(productResource(), r) {
		t.Errorf("errors = %v", r.Errors().Full())
	}

	r.Set("name", "")
	if Validate(productResource(), r) || !r.Errors().Has("name", CodeBlank) {
		t.Errorf("blank name not caught: %v", r.Errors().Full())
	}
}

func TestField(t *testing.T) {
	res := productResource()
	name, _ := res.Field("name")
	if errs := Field(name, nil); errs.Empty() {
		t.Error("required nil should fail")
	}
	stock, _ := res.Field("stock")
	if errs := Field(stock, 3); !errs.Empty() {
		t.Errorf("stock 3: %v", errs.Full())
	}
}

func TestCoerce(t *testing.T) {
	res := productResource()
	field := func(name string) convention.DerivedField {
		f, ok := res.Field(name)
		if !ok {
			t.Fatalf("no field %s", name)
		}
		return f
	}

	tests := []struct {
		field string
		in    any
		want  any
	}{
		{"stock", "12", int64(12)},
		{"stock", 12.0, int64(12)},
		{"price", "45.040", "45.04"},
		{"price", 3, "3"},
		{"weight", "1.25", 1.25},
		{"active", "0", false},
		{"active", 1, true},
		{"name", 42, "42"},
		{"launched", "1991-04-08", time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)},
		{"launched", time.Date(1991, 4, 8, 15, 0, 0, 0, time.UTC), time.Date(1991, 4, 8, 0, 0, 0, 0, time.UTC)},
		{"name", nil, nil},
	}
	for _, tt := range tests {
		got, ok := Coerce(field(tt.field), tt.in)
		if !ok {
			t.Errorf("Coerce(%s, %#v) failed", tt.field, tt.in)
			continue
		}
		if gt, isTime := got.(time.Time); isTime {
			if !gt.Equal(tt.want.(time.Time)) {
				t.Errorf("Coerce(%s, %#v) = %v, want %v", tt.field, tt.in, got, tt.want)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("Coerce(%s, %#v) = %#v, want %#v", tt.field, tt.in, got, tt.want)
		}
	}

	if _, ok := Coerce(field("active"), 2); ok {
		t.Error("2 is not a bool")
	}
}
