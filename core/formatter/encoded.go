package formatter

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/artpar/crudkit/core/authz"
	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/record"
	"gopkg.in/yaml.v3"
)

// encodeFunc writes v to w. compact is a hint; encoders without a compact
// form ignore it.
type encodeFunc func(w io.Writer, v any, compact bool) error

// Encoded renders the result envelope with a serialization encoder. It
// backs the json and yaml formats.
type Encoded struct {
	name        string
	description string
	encode      encodeFunc
}

// NewJSONFormatter returns the json format.
func NewJSONFormatter() *Encoded {
	return &Encoded{name: "json", description: "JSON output format", encode: encodeJSON}
}

// NewYAMLFormatter returns the yaml format.
func NewYAMLFormatter() *Encoded {
	return &Encoded{name: "yaml", description: "YAML output format", encode: encodeYAML}
}

func (f *Encoded) Name() string        { return f.name }
func (f *Encoded) Description() string { return f.description }

// FormatList writes {"data": [...], "count": n} plus page and resource keys.
func (f *Encoded) FormatList(w io.Writer, res convention.Derived, records []map[string]any, opts FormatOptions) error {
	return f.encode(w, envelope(res, visibleAll(res, records, opts.Columns), opts), opts.Compact)
}

// FormatRecord writes {"data": {...}} and the record's errors, if any.
func (f *Encoded) FormatRecord(w io.Writer, res convention.Derived, rec map[string]any, opts FormatOptions) error {
	return f.encode(w, envelope(res, visible(res, rec, opts.Columns), opts), opts.Compact)
}

// FormatError writes {"error": message}. Not-found and denied errors also
// carry a status so scripts can tell them from failures.
func (f *Encoded) FormatError(w io.Writer, err error) error {
	out := map[string]any{"error": err.Error()}
	switch {
	case errors.Is(err, record.ErrNotFound):
		out["status"] = "not_found"
	case errors.Is(err, authz.ErrDenied):
		out["status"] = "denied"
	}
	return f.encode(w, out, false)
}

func encodeJSON(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any, _ bool) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
