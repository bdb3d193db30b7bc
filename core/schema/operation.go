package schema

import "fmt"

// Operation is one of the seven resource operations.
type Operation string

const (
	OpList    Operation = "list"
	OpShow    Operation = "show"
	OpNew     Operation = "new"
	OpCreate  Operation = "create"
	OpEdit    Operation = "edit"
	OpUpdate  Operation = "update"
	OpDestroy Operation = "destroy"
)

// Operations returns all operations in pipeline order.
func Operations() []Operation {
	return []Operation{OpList, OpShow, OpNew, OpCreate, OpEdit, OpUpdate, OpDestroy}
}

// ParseOperation returns the operation named s.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations() {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Mutates reports whether the operation writes to storage.
func (o Operation) Mutates() bool {
	return o == OpCreate || o == OpUpdate || o == OpDestroy
}

// Fetches reports whether the operation starts from an existing record.
func (o Operation) Fetches() bool {
	return o == OpShow || o == OpEdit || o == OpUpdate || o == OpDestroy
}

// Builds reports whether the operation starts from a fresh record.
func (o Operation) Builds() bool {
	return o == OpNew || o == OpCreate
}
