package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/registry"
	"github.com/artpar/crudkit/core/runtime"
	"github.com/artpar/crudkit/core/schema"
	"github.com/artpar/crudkit/core/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func newTestRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()

	reg := registry.New()
	store, err := storage.NewSQLiteStore(":memory:", reg, storage.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rt, err := runtime.New(store, runtime.Config{Registry: reg, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}

	ctx := context.Background()
	for _, res := range []schema.Resource{
		{
			Name: "artist",
			Fields: map[string]schema.Field{
				"name": {Type: schema.FieldTypeString, Required: true, Unique: true, Lookup: true},
			},
			Associations: map[string]schema.Association{
				"albums": {Kind: schema.HasMany, Dependent: schema.DependentRestrict},
			},
		},
		{
			Name: "album",
			Fields: map[string]schema.Field{
				"title":     {Type: schema.FieldTypeString, Required: true},
				"year":      {Type: schema.FieldTypeInt},
				"format":    {Type: schema.FieldTypeEnum, Values: []string{"lp", "cd"}, Default: "lp"},
				"artist_id": {Type: schema.FieldTypeRef, To: "artist"},
			},
			Associations: map[string]schema.Association{
				"artist": {Kind: schema.BelongsTo},
			},
			Scopes: map[string]schema.Scope{
				"released_in_year": {Where: map[string]any{"year": "$1"}},
			},
			Defaults: map[string]map[string]any{
				"order":     {"all": "title asc"},
				"page_size": {"list": 2},
			},
		},
	} {
		if _, err := rt.LoadResource(ctx, res); err != nil {
			t.Fatalf("LoadResource(%s): %v", res.Name, err)
		}
	}
	if err := reg.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	return rt
}

// run executes the command line against rt and returns stdout and stderr.
func run(t *testing.T, rt *runtime.Runtime, stdin string, args ...string) (string, string, error) {
	t.Helper()

	root := &cobra.Command{Use: "crudkit", SilenceUsage: true, SilenceErrors: true}
	var out, errOut bytes.Buffer
	c := New(root, func(context.Context) (*runtime.Runtime, error) { return rt, nil })
	c.SetOutput(&out, &errOut)
	c.SetPrompter(NewPrompterFrom(strings.NewReader(stdin), &out))
	c.Register()

	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func mustRun(t *testing.T, rt *runtime.Runtime, args ...string) string {
	t.Helper()
	out, errOut, err := run(t, rt, "", args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, errOut)
	}
	return out
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, s)
	}
	return out
}

func TestChannel_Name(t *testing.T) {
	if got := New(nil, nil).Name(); got != "cli" {
		t.Errorf("Name() = %q, want %q", got, "cli")
	}
}

func TestRegister(t *testing.T) {
	root := &cobra.Command{Use: "crudkit"}
	New(root, nil).Register()

	for _, name := range []string{"list", "show", "new", "edit", "create", "update", "destroy"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	if cmd, _, _ := root.Find([]string{"delete"}); cmd.Name() != "destroy" {
		t.Error("delete should alias destroy")
	}
}

func TestCreateAndList(t *testing.T) {
	rt := newTestRuntime(t)

	out := mustRun(t, rt, "create", "artist", "--set", "name=Joni Mitchell")
	if !strings.HasPrefix(out, "Created artist: ") {
		t.Errorf("create output = %q", out)
	}
	for title, year := range map[string]string{"Hejira": "1976", "Blue": "1971", "Court and Spark": "1974"} {
		mustRun(t, rt, "create", "album", "--set", "title="+title, "--set", "year="+year)
	}

	t.Run("defaults", func(t *testing.T) {
		doc := decode(t, mustRun(t, rt, "list", "album", "-O", "json"))
		data := doc["data"].([]any)
		if len(data) != 2 {
			t.Fatalf("len(data) = %d, want page size 2", len(data))
		}
		if data[0].(map[string]any)["title"] != "Blue" {
			t.Errorf("first title = %v, want Blue", data[0].(map[string]any)["title"])
		}
		page := doc["page"].(map[string]any)
		if page["total"] != float64(3) || page["pages"] != float64(2) {
			t.Errorf("page = %v", page)
		}
	})

	t.Run("options", func(t *testing.T) {
		doc := decode(t, mustRun(t, rt, "list", "album", "-O", "json",
			"--order", "title desc", "--page", "2", "--select", "title"))
		data := doc["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("len(data) = %d, want 1", len(data))
		}
		row := data[0].(map[string]any)
		if row["title"] != "Blue" {
			t.Errorf("title = %v, want Blue", row["title"])
		}
		if _, ok := row["year"]; ok {
			t.Error("select should restrict the columns")
		}
	})

	t.Run("search and scope", func(t *testing.T) {
		doc := decode(t, mustRun(t, rt, "list", "album", "-O", "json", "--all",
			"--search", "title_cont=r", "--scope", "released_in_year=1974"))
		if doc["count"] != float64(1) {
			t.Errorf("count = %v, want 1 (Court and Spark)", doc["count"])
		}
		if _, ok := doc["page"]; ok {
			t.Error("--all should not report a page")
		}
	})

	t.Run("table", func(t *testing.T) {
		out := mustRun(t, rt, "list", "album")
		if !strings.Contains(out, "TITLE") || !strings.Contains(out, "Page 1 of 2 (3 albums)") {
			t.Errorf("table output:\n%s", out)
		}
	})
}

func TestShowUpdateDestroy(t *testing.T) {
	rt := newTestRuntime(t)
	mustRun(t, rt, "create", "artist", "--set", "name=Joni Mitchell")

	doc := decode(t, mustRun(t, rt, "show", "artist", "Joni Mitchell", "-O", "json"))
	if doc["data"].(map[string]any)["name"] != "Joni Mitchell" {
		t.Errorf("show = %v", doc)
	}

	out := mustRun(t, rt, "update", "artist", "Joni Mitchell", "--set", "name=Joni")
	if !strings.HasPrefix(out, "Updated artist: ") {
		t.Errorf("update output = %q", out)
	}

	_, errOut, err := run(t, rt, "", "show", "artist", "Joni Mitchell")
	if err == nil || !strings.Contains(errOut, "Error:") {
		t.Errorf("show of renamed record: err = %v, stderr = %q", err, errOut)
	}

	out, _, err = run(t, rt, "n\n", "destroy", "artist", "Joni")
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if !strings.Contains(out, "Aborted.") {
		t.Errorf("destroy without confirmation = %q", out)
	}

	out, _, err = run(t, rt, "y\n", "destroy", "artist", "Joni")
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if !strings.Contains(out, "Destroyed artist: ") {
		t.Errorf("destroy output = %q", out)
	}
	if _, _, err := run(t, rt, "", "show", "artist", "Joni"); err == nil {
		t.Error("destroyed record should not be found")
	}
}

func TestCreate_Rejected(t *testing.T) {
	rt := newTestRuntime(t)
	mustRun(t, rt, "create", "artist", "--set", "name=Joni Mitchell")

	out, _, err := run(t, rt, "", "create", "artist", "--set", "name=Joni Mitchell", "-O", "json")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	doc := decode(t, out)
	if _, ok := doc["errors"].(map[string]any)["name"]; !ok {
		t.Errorf("errors = %v, want an error on name", doc["errors"])
	}
}

func TestCreate_Prompt(t *testing.T) {
	rt := newTestRuntime(t)

	out, errOut, err := run(t, rt, "Hejira\n", "create", "album", "--prompt", "--set", "year=1976", "-O", "json")
	if err != nil {
		t.Fatalf("create: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, "Title (required): ") {
		t.Errorf("missing prompt:\n%s", out)
	}
	body := out[strings.Index(out, "{"):]
	data := decode(t, body)["data"].(map[string]any)
	if data["title"] != "Hejira" || data["format"] != "lp" {
		t.Errorf("created = %v", data)
	}
}

func TestNew_DoesNotSave(t *testing.T) {
	rt := newTestRuntime(t)

	doc := decode(t, mustRun(t, rt, "new", "album", "--set", "title=Blue", "-O", "json"))
	if doc["data"].(map[string]any)["format"] != "lp" {
		t.Errorf("new = %v, want the format default", doc)
	}

	list := decode(t, mustRun(t, rt, "list", "album", "-O", "json"))
	if list["count"] != float64(0) {
		t.Errorf("count = %v, want 0", list["count"])
	}
}

func TestEdit(t *testing.T) {
	rt := newTestRuntime(t)
	mustRun(t, rt, "create", "artist", "--set", "name=Joni Mitchell")

	doc := decode(t, mustRun(t, rt, "edit", "artist", "Joni Mitchell", "-O", "json"))
	if doc["data"].(map[string]any)["name"] != "Joni Mitchell" {
		t.Errorf("edit = %v", doc)
	}

	if _, _, err := run(t, rt, "", "edit", "artist", "Nobody"); err == nil {
		t.Error("edit of a missing record should fail")
	}
}

func TestErrors(t *testing.T) {
	rt := newTestRuntime(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown resource", []string{"list", "label"}, `unknown resource "label"`},
		{"bad set", []string{"create", "album", "--set", "title"}, "want field=value"},
		{"empty update", []string{"update", "album", "1"}, "no fields to update"},
		{"unknown scope", []string{"list", "album", "--scope", "bootleg"}, "unknown scope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, err := run(t, rt, "", tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(errOut, tt.want) {
				t.Errorf("stderr = %q, want %q", errOut, tt.want)
			}
		})
	}
}

func TestParseScopes(t *testing.T) {
	got := parseScopes([]string{"vinyl", "released_in_year=1974"})
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Name != "vinyl" || len(got[0].Args) != 0 {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Name != "released_in_year" || len(got[1].Args) != 1 || got[1].Args[0] != "1974" {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestPromptForFields(t *testing.T) {
	res := convention.Derived{
		Name: "user",
		Fields: []convention.DerivedField{
			{Name: "id", Type: schema.FieldTypeInt, Required: true, Implicit: true},
			{Name: "email", Type: schema.FieldTypeEmail, Required: true},
			{Name: "password", Type: schema.FieldTypeSecret, Required: true},
			{Name: "plan", Type: schema.FieldTypeEnum, Required: true, Values: []string{"free", "pro"}},
			{Name: "role", Type: schema.FieldTypeString, Required: true, Default: "member"},
			{Name: "bio", Type: schema.FieldTypeText},
		},
	}

	t.Run("asks for missing", func(t *testing.T) {
		var out bytes.Buffer
		p := NewPrompterFrom(strings.NewReader("s3cret\npro\n"), &out)

		got, err := p.PromptForFields(res, url.Values{"email": {"a@example.com"}})
		if err != nil {
			t.Fatalf("PromptForFields: %v", err)
		}
		if got["password"] != "s3cret" || got["plan"] != "pro" || len(got) != 2 {
			t.Errorf("answers = %v", got)
		}
		if !strings.Contains(out.String(), "Plan [free/pro] (required): ") {
			t.Errorf("prompts = %q", out.String())
		}
	})

	t.Run("enum asks again", func(t *testing.T) {
		var out bytes.Buffer
		p := NewPrompterFrom(strings.NewReader("s3cret\ngold\npro\n"), &out)
		got, err := p.PromptForFields(res, url.Values{"email": {"a@example.com"}})
		if err != nil {
			t.Fatalf("PromptForFields: %v", err)
		}
		if got["plan"] != "pro" {
			t.Errorf("plan = %q", got["plan"])
		}
		if !strings.Contains(out.String(), `"gold" is not one of free, pro`) {
			t.Errorf("prompts = %q", out.String())
		}
	})

	t.Run("enum gives up", func(t *testing.T) {
		p := NewPrompterFrom(strings.NewReader("s3cret\na\nb\nc\n"), &bytes.Buffer{})
		if _, err := p.PromptForFields(res, url.Values{"email": {"a@example.com"}}); err == nil {
			t.Error("three invalid enum answers should fail")
		}
	})

	t.Run("empty answer", func(t *testing.T) {
		p := NewPrompterFrom(strings.NewReader("\n"), &bytes.Buffer{})
		if _, err := p.PromptForFields(res, url.Values{"email": {"a@example.com"}}); err == nil {
			t.Error("an empty required answer should fail")
		}
	})
}

func TestConfirm(t *testing.T) {
	for input, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "yes": true} {
		p := NewPrompterFrom(strings.NewReader(input), &bytes.Buffer{})
		got, err := p.Confirm("Sure?")
		if err != nil {
			t.Fatalf("Confirm(%q): %v", input, err)
		}
		if got != want {
			t.Errorf("Confirm(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestFieldLabel(t *testing.T) {
	got := fieldLabel(convention.DerivedField{Name: "released_on", Type: schema.FieldTypeDate})
	if got != "Released on (required): " {
		t.Errorf("fieldLabel = %q", got)
	}
}
