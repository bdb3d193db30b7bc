package tty

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/artpar/crudkit/core/registry"
	"github.com/artpar/crudkit/core/runtime"
	"github.com/artpar/crudkit/core/schema"
	"github.com/artpar/crudkit/core/storage"
	"github.com/rs/zerolog"
)

func newTestRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()

	reg := registry.New()
	store, err := storage.NewSQLiteStore(":memory:", reg)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rt, err := runtime.New(store, runtime.Config{Registry: reg, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}

	_, err = rt.LoadResource(context.Background(), schema.Resource{
		Name: "album",
		Fields: map[string]schema.Field{
			"title":  {Type: schema.FieldTypeString, Required: true},
			"format": {Type: schema.FieldTypeEnum, Values: []string{"lp", "cd"}, Default: "lp"},
		},
		Scopes: map[string]schema.Scope{
			"on_cd": {Where: map[string]any{"format": "cd"}},
		},
		Defaults: map[string]map[string]any{
			"order": {"list": "title asc"},
		},
	})
	if err != nil {
		t.Fatalf("LoadResource: %v", err)
	}
	return rt
}

// session runs input through a REPL and returns its output.
func session(t *testing.T, rt *runtime.Runtime, input string, opts ...Option) string {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithIO(strings.NewReader(input), &out), WithStats(false)}, opts...)
	c := New(rt, opts...)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func TestNew(t *testing.T) {
	c := New(nil)
	if c.prompt != "crudkit> " {
		t.Errorf("prompt = %q, want %q", c.prompt, "crudkit> ")
	}
	if !c.showStats {
		t.Error("showStats should be true by default")
	}
	if c.reload != nil {
		t.Error("reload should be unset by default")
	}
}

func TestChannel_Name(t *testing.T) {
	c := &Channel{}
	if c.Name() != "tty" {
		t.Errorf("Name() = %q, want %q", c.Name(), "tty")
	}
}

func TestRun_Operations(t *testing.T) {
	rt := newTestRuntime(t)

	out := session(t, rt, strings.Join([]string{
		`create album -s "title=Blue" -s format=cd`,
		`album create -s title=Hejira`,
		`list album -O json --compact`,
		`list album --scope on_cd`,
		`quit`,
	}, "\n"))

	if strings.Count(out, "Created album:") != 2 {
		t.Errorf("expected two creates:\n%s", out)
	}
	if !strings.Contains(out, `"count":2`) {
		t.Errorf("json list missing count:\n%s", out)
	}
	// Ordered by title by default.
	if strings.Index(out, `"title":"Blue"`) > strings.Index(out, `"title":"Hejira"`) {
		t.Errorf("records not ordered by title:\n%s", out)
	}
	if !strings.Contains(out, "Goodbye!") {
		t.Errorf("missing goodbye:\n%s", out)
	}
}

func TestRun_Rejected(t *testing.T) {
	rt := newTestRuntime(t)

	out := session(t, rt, "create album -s format=cd\n")
	if !strings.Contains(out, "Errors:") || !strings.Contains(out, "title") {
		t.Errorf("expected validation errors:\n%s", out)
	}
	if strings.Contains(out, "Error: record rejected") {
		t.Errorf("rejection should not be reported as an error:\n%s", out)
	}
}

func TestRun_DestroyConfirmation(t *testing.T) {
	rt := newTestRuntime(t)
	album, _ := rt.Resource("album")
	inv, _, err := album.Create(context.Background(), runtime.Options{Attributes: map[string]any{"title": "Court and Spark"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := inv.Record.ID().(string)

	// The confirmation answer is read from the same input as commands.
	out := session(t, rt, "destroy album "+id+"\nn\ndestroy album "+id+"\ny\n")
	if !strings.Contains(out, "Aborted.") {
		t.Errorf("first destroy should abort:\n%s", out)
	}
	if !strings.Contains(out, "Destroyed album: "+id) {
		t.Errorf("second destroy should succeed:\n%s", out)
	}
}

func TestRun_Errors(t *testing.T) {
	rt := newTestRuntime(t)

	out := session(t, rt, "frobnicate\nshow track 1\ndescribe\nreload\n")
	for _, want := range []string{
		"Error: unknown command: frobnicate",
		`Error: unknown resource "track"`,
		"Error: usage: describe <resource>",
		"Error: reload is not available",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_Reload(t *testing.T) {
	rt := newTestRuntime(t)

	calls := 0
	out := session(t, rt, "reload\n", WithReload(func() error {
		calls++
		return nil
	}))
	if calls != 1 {
		t.Errorf("reload called %d times, want 1", calls)
	}
	if !strings.Contains(out, "Configuration reloaded (strategy preload") {
		t.Errorf("output = %s", out)
	}

	out = session(t, rt, "reload\n", WithReload(func() error { return errors.New("bad yaml") }))
	if !strings.Contains(out, "Error: bad yaml") {
		t.Errorf("output = %s", out)
	}
}

func TestRun_Describe(t *testing.T) {
	rt := newTestRuntime(t)

	out := session(t, rt, "resources\ndescribe album\nhelp album\n")
	for _, want := range []string{
		"album           albums",
		"album (table albums)",
		"required",
		"default lp",
		"lp|cd",
		"Scopes:\n  on_cd",
		"order                list",
		"album commands:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_Functions(t *testing.T) {
	rt := newTestRuntime(t)

	if out := session(t, rt, "functions\n"); !strings.Contains(out, "No hook functions registered.") {
		t.Errorf("empty registry output:\n%s", out)
	}

	err := rt.RegisterFunction(runtime.Function{
		Name:        "stamp",
		Description: "Stamp the record",
		Phases:      []string{runtime.PhaseBefore},
		Handler:     func(context.Context, runtime.HookEvent) error { return nil },
	})
	if err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}
	out := session(t, rt, "functions\n")
	if !strings.Contains(out, "stamp") || !strings.Contains(out, "before only") || !strings.Contains(out, "Stamp the record") {
		t.Errorf("functions output:\n%s", out)
	}
}

func TestRun_Stats(t *testing.T) {
	rt := newTestRuntime(t)

	out := session(t, rt, "stats\nresources\n")
	if !strings.Contains(out, "Stats display enabled") {
		t.Fatalf("stats toggle missing:\n%s", out)
	}
	if !strings.Contains(out, "alloc") {
		t.Errorf("stats line missing:\n%s", out)
	}
}

func TestRun_Cancelled(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	c := New(rt, WithIO(strings.NewReader("resources\n"), &out))
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(out.String(), "Resources:") {
		t.Error("cancelled shell should not run commands")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    uint64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.input); got != tt.expected {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"list album", []string{"list", "album"}},
		{`create album -s "title=Court and Spark"`, []string{"create", "album", "-s", "title=Court and Spark"}},
		{`update album 1 -s 'note=it"s'`, []string{"update", "album", "1", "-s", `note=it"s`}},
		{"  show\talbum  1 ", []string{"show", "album", "1"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := parseArgs(tt.input)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("parseArgs(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
