package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/artpar/crudkit/core/convention"
)

// TableFormatter prints lists as aligned columns and records as labelled
// lines.
type TableFormatter struct{}

// NewTableFormatter returns the table format, the default for terminals.
func NewTableFormatter() *TableFormatter { return &TableFormatter{} }

func (f *TableFormatter) Name() string        { return "table" }
func (f *TableFormatter) Description() string { return "Aligned text table output" }

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// FormatList prints one row per record under an upper-cased header, then
// the page position when the list was paginated.
func (f *TableFormatter) FormatList(w io.Writer, res convention.Derived, records []map[string]any, opts FormatOptions) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No records found.")
		return err
	}

	cols := tableColumns(res, opts.Columns)
	tw := newTabWriter(w)
	if !opts.NoHeader {
		fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
	}
	row := make([]string, len(cols))
	for _, rec := range visibleAll(res, records, cols) {
		for i, c := range cols {
			row[i] = cell(rec[c], opts.MaxWidth)
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if p := opts.Page; p != nil && !opts.NoHeader {
		fmt.Fprintf(w, "\nPage %d of %d (%d %s)\n", p.Number, max(p.Pages(), 1), p.Total, res.Plural)
	}
	return nil
}

// FormatRecord prints "Label: value" lines for the fields, then a summary
// of each loaded association, then validation errors.
func (f *TableFormatter) FormatRecord(w io.Writer, res convention.Derived, rec map[string]any, opts FormatOptions) error {
	if rec == nil {
		_, err := fmt.Fprintln(w, "Record not found.")
		return err
	}

	row := visible(res, rec, nil)
	tw := newTabWriter(w)
	for _, c := range tableColumns(res, opts.Columns) {
		fmt.Fprintf(tw, "%s:\t%s\n", convention.Humanize(c), cell(row[c], 0))
	}
	for _, a := range res.Associations {
		if v, loaded := row[a.Name]; loaded {
			fmt.Fprintf(tw, "%s:\t%s\n", convention.Humanize(a.Name), summarize(v))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printErrors(w, opts.Errors)
	return nil
}

// FormatError prints "Error: <message>".
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	_, werr := fmt.Fprintf(w, "Error: %s\n", err)
	return werr
}

func printErrors(w io.Writer, byField map[string][]string) {
	if len(byField) == 0 {
		return
	}
	fields := make([]string, 0, len(byField))
	for f := range byField {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	fmt.Fprintln(w, "\nErrors:")
	for _, f := range fields {
		for _, msg := range byField[f] {
			fmt.Fprintf(w, "  %s %s\n", f, msg)
		}
	}
}

// tableColumns returns the requested columns, or every field, without
// hidden ones.
func tableColumns(res convention.Derived, requested []string) []string {
	if len(requested) == 0 {
		requested = make([]string, 0, len(res.Fields))
		for _, f := range res.Fields {
			requested = append(requested, f.Name)
		}
	}
	skip := hidden(res)
	cols := make([]string, 0, len(requested))
	for _, c := range requested {
		if !skip[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// summarize describes a loaded association: "#<id>" for one record, a
// count for many.
func summarize(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case []any:
		if len(v) == 1 {
			return "1 record"
		}
		return fmt.Sprintf("%d records", len(v))
	case map[string]any:
		if id, ok := v["id"]; ok {
			return fmt.Sprintf("#%v", id)
		}
	}
	return cell(v, 0)
}

// cell renders v for a table cell, cut to width runes when width allows
// room for the ellipsis.
func cell(v any, width int) string {
	var s string
	switch v := v.(type) {
	case nil:
		return "-"
	case string:
		s = v
	case bool:
		s = "no"
		if v {
			s = "yes"
		}
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
		if v != float64(int64(v)) {
			s = strconv.FormatFloat(v, 'f', 2, 64)
		}
	default:
		b, _ := json.Marshal(v)
		s = string(b)
	}

	if r := []rune(s); width > 3 && len(r) > width {
		s = string(r[:width-3]) + "..."
	}
	return s
}
