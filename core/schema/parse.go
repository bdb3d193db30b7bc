package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/artpar/crudkit/core/defaults"
	"github.com/artpar/crudkit/core/query"
	"gopkg.in/yaml.v3"
)

// ParseFile parses a resource definition from a YAML file.
func ParseFile(path string) (Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Resource{}, fmt.Errorf("read file %s: %w", path, err)
	}

	res, err := Parse(data)
	if err != nil {
		return Resource{}, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// Parse parses a resource definition from YAML bytes.
func Parse(data []byte) (Resource, error) {
	var res Resource
	if err := yaml.Unmarshal(data, &res); err != nil {
		return Resource{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Validate(res); err != nil {
		return Resource{}, fmt.Errorf("validate resource %q: %w", res.Name, err)
	}

	return res, nil
}

// ParseDir parses all resource definitions from a directory, including
// subdirectories, in lexical path order.
func ParseDir(dir string) ([]Resource, error) {
	var resources []Resource

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := ParseDir(path)
			if err != nil {
				return nil, err
			}
			resources = append(resources, sub...)
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		res, err := ParseFile(path)
		if err != nil {
			return nil, err
		}

		resources = append(resources, res)
	}

	return resources, nil
}

// reservedFields are derived for every resource.
var reservedFields = map[string]bool{"id": true, "created_at": true, "updated_at": true}

// Validate validates a resource definition. All problems are reported
// together, sorted.
func Validate(res Resource) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if res.Name == "" {
		add("resource name is required")
	} else if !isValidIdentifier(res.Name) {
		add("resource name %q is not a valid identifier", res.Name)
	}

	if res.Table != "" && !isValidIdentifier(res.Table) {
		add("table %q is not a valid identifier", res.Table)
	}

	if len(res.Fields) == 0 {
		add("fields must have at least one field")
	}

	for name, field := range res.Fields {
		if !isValidIdentifier(name) {
			add("field name %q is not a valid identifier", name)
		}
		if reservedFields[name] {
			add("field %q is implicit and cannot be declared", name)
		}
		if err := validateField(name, field); err != nil {
			add("%s", err)
		}
	}

	for name, assoc := range res.Associations {
		if !isValidIdentifier(name) {
			add("association name %q is not a valid identifier", name)
		}
		if _, clash := res.Fields[name]; clash {
			add("association %q clashes with a field", name)
		}
		if err := validateAssociation(name, assoc); err != nil {
			add("%s", err)
		}
	}

	for name, scope := range res.Scopes {
		if !isValidIdentifier(name) {
			add("scope name %q is not a valid identifier", name)
		}
		if err := validateScope(name, scope, res.Fields); err != nil {
			add("%s", err)
		}
	}

	for aspect, ops := range res.Defaults {
		if _, err := defaults.ParseAspect(aspect); err != nil {
			add("defaults: %s", err)
			continue
		}
		for op := range ops {
			if op == defaults.All {
				continue
			}
			if _, err := ParseOperation(op); err != nil {
				add("defaults %s: %s", aspect, err)
			}
		}
	}

	for key, hooks := range res.Hooks {
		if _, _, err := ParseHookKey(key); err != nil {
			add("hooks: %s", err)
		}
		for i, h := range hooks {
			if (h.Emit == "") == (h.Call == "") {
				add("hook %s[%d]: exactly one of emit or call is required", key, i)
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ParseHookKey splits "before_create" or "after_update" into phase and
// operation.
func ParseHookKey(key string) (phase string, op Operation, err error) {
	for _, p := range []string{"before", "after"} {
		if rest, ok := strings.CutPrefix(key, p+"_"); ok {
			op, err := ParseOperation(rest)
			if err != nil {
				return "", "", fmt.Errorf("hook %q: %w", key, err)
			}
			return p, op, nil
		}
	}
	return "", "", fmt.Errorf("hook %q: expected before_<operation> or after_<operation>", key)
}

// validateField validates a single field definition.
func validateField(name string, field Field) error {
	if !field.Type.Valid() {
		return fmt.Errorf("field %q: unknown type %q", name, field.Type)
	}

	if field.Type == FieldTypeEnum && len(field.Values) == 0 {
		return fmt.Errorf("field %q: enum type requires values", name)
	}

	if field.Type == FieldTypeRef && field.To == "" {
		return fmt.Errorf("field %q: ref type requires 'to' target", name)
	}

	for _, c := range field.Constraints {
		if !ValidConstraintType(c.Type) {
			return fmt.Errorf("field %q: unknown constraint %q", name, c.Type)
		}
		if c.Type == ConstraintPattern {
			pattern, _ := c.Value.(string)
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("field %q: pattern: %w", name, err)
			}
		}
	}

	if field.Default != nil {
		return validateDefault(name, field)
	}

	return nil
}

func validateAssociation(name string, assoc Association) error {
	switch assoc.Kind {
	case BelongsTo:
		if assoc.Dependent != DependentNone {
			return fmt.Errorf("association %q: belongs_to cannot be dependent", name)
		}
	case HasOne, HasMany:
	default:
		return fmt.Errorf("association %q: unknown kind %q", name, assoc.Kind)
	}

	switch assoc.Dependent {
	case DependentNone, DependentDestroy, DependentRestrict:
	default:
		return fmt.Errorf("association %q: unknown dependent %q", name, assoc.Dependent)
	}

	if assoc.To != "" && !isValidIdentifier(assoc.To) {
		return fmt.Errorf("association %q: target %q is not a valid identifier", name, assoc.To)
	}
	if assoc.ForeignKey != "" && !isValidIdentifier(assoc.ForeignKey) {
		return fmt.Errorf("association %q: foreign key %q is not a valid identifier", name, assoc.ForeignKey)
	}
	return nil
}

func validateScope(name string, scope Scope, fields map[string]Field) error {
	if len(scope.Where) == 0 && scope.Order == "" {
		return fmt.Errorf("scope %q: where or order is required", name)
	}
	for field, cond := range scope.Where {
		if _, ok := fields[field]; !ok && !reservedFields[field] {
			return fmt.Errorf("scope %q: unknown field %q", name, field)
		}
		if ops, ok := cond.(map[string]any); ok {
			for op := range ops {
				if !validOp(query.Op(op)) {
					return fmt.Errorf("scope %q: unknown operator %q", name, op)
				}
			}
		}
	}
	if scope.Order != "" {
		if _, err := query.ParseOrder(scope.Order); err != nil {
			return fmt.Errorf("scope %q: %w", name, err)
		}
	}
	return nil
}

func validOp(op query.Op) bool {
	switch op {
	case query.Eq, query.NotEq, query.Gt, query.Gteq, query.Lt, query.Lteq,
		query.In, query.NotIn, query.Like, query.Null, query.NotNull:
		return true
	default:
		return false
	}
}

// validateDefault validates that a default value matches the field type.
func validateDefault(name string, field Field) error {
	switch field.Type {
	case FieldTypeInt:
		switch field.Default.(type) {
		case int, int64:
			return nil
		default:
			return fmt.Errorf("field %q: default must be an integer", name)
		}
	case FieldTypeFloat, FieldTypeDecimal:
		if _, err := ToDecimal(field.Default); err != nil {
			return fmt.Errorf("field %q: default must be a number", name)
		}
	case FieldTypeBool:
		if _, ok := field.Default.(bool); !ok {
			return fmt.Errorf("field %q: default must be a boolean", name)
		}
	case FieldTypeEnum:
		s, ok := field.Default.(string)
		if !ok {
			return fmt.Errorf("field %q: default must be a string", name)
		}
		for _, v := range field.Values {
			if v == s {
				return nil
			}
		}
		return fmt.Errorf("field %q: default %q is not a valid enum value", name, s)
	case FieldTypeSecret:
		return fmt.Errorf("field %q: secret fields cannot have a default", name)
	}
	return nil
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
