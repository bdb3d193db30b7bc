// Package formatter renders operation results for the command line.
// Formats are table, json, yaml and jsonapi.
package formatter

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/paginate"
	"github.com/artpar/crudkit/core/schema"
)

// Formatter renders operation results in one output format.
type Formatter interface {
	Name() string
	Description() string
	FormatList(w io.Writer, res convention.Derived, records []map[string]any, opts FormatOptions) error
	// FormatRecord renders one record. A nil record means it was not found.
	FormatRecord(w io.Writer, res convention.Derived, record map[string]any, opts FormatOptions) error
	FormatError(w io.Writer, err error) error
}

// FormatOptions are the per-call rendering choices.
type FormatOptions struct {
	// Columns restricts output to these fields and associations.
	Columns  []string
	NoHeader bool
	Compact  bool
	// MaxWidth cuts long table cells; 0 keeps them whole.
	MaxWidth int
	// Page is set when a list was paginated.
	Page *paginate.Page
	// Errors are the validation errors of a rejected record, by field.
	Errors map[string][]string
}

// Registry holds formatters by name. The preferred default is table; an
// empty registry has no default.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]Formatter
	preferred string
}

// NewRegistry returns an empty registry preferring table.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]Formatter{}, preferred: "table"}
}

// Register adds f. Names are unique.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[f.Name()]; dup {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}
	r.byName[f.Name()] = f
	return nil
}

func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	return f, ok
}

// Default returns the preferred formatter, else the first by name.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.byName[r.preferred]; ok {
		return f
	}
	if names := r.sortedNames(); len(names) > 0 {
		return r.byName[names[0]]
	}
	return nil
}

// SetDefault makes name the preferred formatter. It must be registered.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("formatter %q not registered", name)
	}
	r.preferred = name
	return nil
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formats: table, json, jsonapi and yaml.
var DefaultRegistry = builtins()

func builtins() *Registry {
	r := NewRegistry()
	for _, f := range []Formatter{NewTableFormatter(), NewJSONFormatter(), NewJSONAPIFormatter(), NewYAMLFormatter()} {
		r.byName[f.Name()] = f
	}
	return r
}

// hidden reports the fields never rendered: hidden fields and secrets.
func hidden(res convention.Derived) map[string]bool {
	out := make(map[string]bool)
	for _, field := range res.Fields {
		if field.Hidden || field.Type == schema.FieldTypeSecret {
			out[field.Name] = true
		}
	}
	return out
}

// visible returns the renderable part of record, restricted to columns
// when any are given. Values are converted to plain scalars.
func visible(res convention.Derived, record map[string]any, columns []string) map[string]any {
	if record == nil {
		return nil
	}
	skip := hidden(res)
	out := make(map[string]any)
	if len(columns) > 0 {
		for _, col := range columns {
			if v, ok := record[col]; ok && !skip[col] {
				out[col] = plain(v)
			}
		}
		return out
	}
	for k, v := range record {
		if !skip[k] {
			out[k] = plain(v)
		}
	}
	return out
}

func visibleAll(res convention.Derived, records []map[string]any, columns []string) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, record := range records {
		out[i] = visible(res, record, columns)
	}
	return out
}

// plain converts a stored value to something every encoder renders
// faithfully. Decimals become their exact string form.
func plain(v any) any {
	switch v := v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.RFC3339Nano)
	case []byte:
		return "[binary]"
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = plain(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plain(e)
		}
		return out
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}

// envelope is the document json and yaml output share.
func envelope(res convention.Derived, data any, opts FormatOptions) map[string]any {
	out := map[string]any{
		"resource": res.Name,
		"data":     data,
	}
	if records, ok := data.([]map[string]any); ok {
		out["count"] = len(records)
	}
	if opts.Page != nil {
		out["page"] = map[string]any{
			"number": opts.Page.Number,
			"size":   opts.Page.Size,
			"total":  opts.Page.Total,
			"pages":  opts.Page.Pages(),
			"last":   opts.Page.Last(),
		}
	}
	if len(opts.Errors) > 0 {
		out["errors"] = opts.Errors
	}
	return out
}
