package formatter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/artpar/crudkit/core/authz"
	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/schema"
	"github.com/artpar/crudkit/pkg/jsonapi"
)

// JSONAPIFormatter formats output as JSON:API compound documents. Loaded
// associations become relationships with their records in "included".
type JSONAPIFormatter struct{}

// NewJSONAPIFormatter creates a new JSON:API formatter.
func NewJSONAPIFormatter() *JSONAPIFormatter {
	return &JSONAPIFormatter{}
}

// Name returns the formatter name.
func (f *JSONAPIFormatter) Name() string {
	return "jsonapi"
}

// Description returns the formatter description.
func (f *JSONAPIFormatter) Description() string {
	return "JSON:API document output"
}

// FormatList formats a list of records as a collection document.
func (f *JSONAPIFormatter) FormatList(w io.Writer, res convention.Derived, records []map[string]any, opts FormatOptions) error {
	resources := make([]jsonapi.Resource, 0, len(records))
	var included []jsonapi.Resource
	for _, rec := range records {
		r, linked := toResource(res, rec, opts.Columns)
		resources = append(resources, r)
		included = append(included, linked...)
	}
	doc := jsonapi.Collection(resources).Include(included...).Meta("count", len(records))
	if p := opts.Page; p != nil {
		doc.Meta("page", map[string]any{
			"number": p.Number,
			"size":   p.Size,
			"total":  p.Total,
			"pages":  p.Pages(),
		})
	}
	return f.encode(w, doc.Document(), opts.Compact)
}

// FormatRecord formats a single record. A record with validation errors
// is rendered as an error document.
func (f *JSONAPIFormatter) FormatRecord(w io.Writer, res convention.Derived, rec map[string]any, opts FormatOptions) error {
	if len(opts.Errors) > 0 {
		return f.encode(w, jsonapi.Failure(validationErrors(opts.Errors)...), opts.Compact)
	}
	if rec == nil {
		return f.encode(w, jsonapi.Failure(jsonapi.NotFound(res.Name+" not found")), opts.Compact)
	}

	r, included := toResource(res, rec, opts.Columns)
	return f.encode(w, jsonapi.Single(r).Include(included...).Document(), opts.Compact)
}

// FormatError formats an error as an error document.
func (f *JSONAPIFormatter) FormatError(w io.Writer, err error) error {
	var e jsonapi.Error
	switch {
	case errors.Is(err, record.ErrNotFound):
		e = jsonapi.NotFound(err.Error())
	case errors.Is(err, authz.ErrDenied):
		e = jsonapi.Forbidden(err.Error())
	default:
		e = jsonapi.Internal(err)
	}
	return f.encode(w, jsonapi.Failure(e), false)
}

func (f *JSONAPIFormatter) encode(w io.Writer, doc jsonapi.Document, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(doc)
}

// toResource converts a record to a resource object and the resource
// objects of its loaded associations. A belongs_to association that was
// not loaded still links through its foreign key.
func toResource(res convention.Derived, rec map[string]any, columns []string) (jsonapi.Resource, []jsonapi.Resource) {
	attrs := visible(res, rec, columns)
	for _, a := range res.Associations {
		delete(attrs, a.Name)
	}
	b := jsonapi.NewObject(res.Name, idOf(rec)).Attributes(attrs)

	var included []jsonapi.Resource
	for _, a := range res.Associations {
		if len(columns) > 0 && !slices.Contains(columns, a.Name) {
			continue
		}
		v, loaded := rec[a.Name]
		if !loaded {
			if a.Kind == schema.BelongsTo {
				if fk := rec[a.ForeignKey]; fk != nil {
					b.ToOne(a.Name, a.Target, fmt.Sprint(fk))
				}
			}
			continue
		}

		switch v := plain(v).(type) {
		case nil:
			b.ToOne(a.Name, a.Target, "")
		case map[string]any:
			b.ToOne(a.Name, a.Target, idOf(v))
			included = append(included, jsonapi.NewObject(a.Target, idOf(v)).Attributes(v).Resource())
		case []any:
			ids := make([]string, 0, len(v))
			for _, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				ids = append(ids, idOf(m))
				included = append(included, jsonapi.NewObject(a.Target, idOf(m)).Attributes(m).Resource())
			}
			b.ToMany(a.Name, a.Target, ids)
		}
	}

	return b.Resource(), included
}

func idOf(m map[string]any) string {
	if id, ok := m[record.IDField]; ok && id != nil {
		return fmt.Sprint(id)
	}
	return ""
}

// validationErrors converts field messages to error objects, sorted by
// field.
func validationErrors(byField map[string][]string) []jsonapi.Error {
	fields := make([]string, 0, len(byField))
	for field := range byField {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var out []jsonapi.Error
	for _, field := range fields {
		for _, msg := range byField[field] {
			detail := msg
			if field != record.Base {
				detail = strings.ReplaceAll(field, "_", " ") + " " + msg
			}
			out = append(out, jsonapi.Invalid(field, detail))
		}
	}
	return out
}
