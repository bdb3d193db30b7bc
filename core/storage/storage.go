// Package storage persists records and executes queries for resources.
// Tables are created from derived resource definitions.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/schema"
)

// Engine is the persistence engine behind the orchestrator.
type Engine interface {
	// Query returns an unrestricted query over a resource.
	Query(resource string) *query.Query

	// All executes a query, loading requested associations.
	All(ctx context.Context, q *query.Query) ([]*record.Record, error)

	// Count returns the number of rows a query matches, ignoring limit,
	// offset and ordering.
	Count(ctx context.Context, q *query.Query) (int64, error)

	// Find returns the record whose id or lookup field equals key within
	// q. It returns a *record.NotFoundError when none matches.
	Find(ctx context.Context, q *query.Query, key any) (*record.Record, error)

	// Build returns an unsaved record with field defaults and attrs
	// assigned.
	Build(resource string, attrs map[string]any) (*record.Record, error)

	// Save validates and writes a record and its nested attributes. It
	// returns false with errors attached to the record when validation or
	// a uniqueness check fails.
	Save(ctx context.Context, r *record.Record) (bool, error)

	// Destroy deletes a record and its dependents. It returns false with
	// errors attached when a restricting dependent exists.
	Destroy(ctx context.Context, r *record.Record) (bool, error)
}

// Catalog resolves resource names to derived definitions.
type Catalog interface {
	Get(name string) (convention.Derived, bool)
}

// BuildCreateTableSQL generates CREATE TABLE SQL from a derived resource.
// refTable resolves a referenced resource to its table; nil uses the
// conventional plural.
func BuildCreateTableSQL(mod convention.Derived, refTable func(string) string) string {
	if refTable == nil {
		refTable = convention.Pluralize
	}

	var columns []string
	var constraints []string

	for _, f := range mod.Fields {
		columns = append(columns, buildColumnDef(f))

		if f.Unique && f.Name != "id" {
			constraints = append(constraints, fmt.Sprintf("UNIQUE(%s)", f.Name))
		}

		if f.Ref != "" {
			constraints = append(constraints, fmt.Sprintf(
				"FOREIGN KEY(%s) REFERENCES %s(id)",
				f.Name, refTable(f.Ref),
			))
		}

		if f.Type == schema.FieldTypeEnum && len(f.Values) > 0 {
			constraints = append(constraints, fmt.Sprintf(
				"CHECK(%s IS NULL OR %s IN (%s))",
				f.Name, f.Name, quoteList(f.Values),
			))
		}
	}

	sql := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s",
		mod.Table,
		strings.Join(columns, ",\n  "),
	)

	if len(constraints) > 0 {
		sql += ",\n  " + strings.Join(constraints, ",\n  ")
	}

	sql += "\n)"

	return sql
}

// buildColumnDef builds a column definition from a derived field.
// Presence is enforced by validation, not by NOT NULL, so a failed
// presence check is reported on the record instead of as a driver error.
func buildColumnDef(f convention.DerivedField) string {
	parts := []string{f.Name, f.SQLType}

	if f.Name == "id" {
		parts = append(parts, "PRIMARY KEY")
	}

	if f.Default != nil {
		if def := formatDefault(f.Default); def != "" {
			parts = append(parts, "DEFAULT "+def)
		}
	}

	if f.Name == "created_at" || f.Name == "updated_at" {
		parts = append(parts, "DEFAULT CURRENT_TIMESTAMP")
	}

	return strings.Join(parts, " ")
}

// formatDefault formats a default value for SQL.
func formatDefault(val any) string {
	switch v := val.(type) {
	case string:
		return quote(v)
	case int, int32, int64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return fmt.Sprintf("%v", v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

// BuildIndexSQL generates CREATE INDEX statements for lookup fields and
// foreign keys.
func BuildIndexSQL(mod convention.Derived) []string {
	var indexes []string

	for _, f := range mod.Fields {
		if (f.Lookup || f.Ref != "") && f.Name != "id" && !f.Unique {
			indexes = append(indexes, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
				mod.Table, f.Name, mod.Table, f.Name,
			))
		}
	}

	return indexes
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	return strings.Join(quoted, ", ")
}
