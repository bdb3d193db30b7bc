package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDefinitions(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	resources := filepath.Join(dir, "resources")
	if err := os.MkdirAll(resources, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(resources, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	cfg := "database:\n  dsn: \"" + filepath.Join(dir, "test.db") + "\"\nresources:\n  dir: \"" + resources + "\"\n"
	path := filepath.Join(dir, "crudkit.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		validateCheckDatabase = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

const artistDefinition = `
resource: artist
fields:
  name: { type: string, required: true }
associations:
  albums: { kind: has_many, to: album }
`

const albumDefinition = `
resource: album
fields:
  title:     { type: string, required: true }
  artist_id: { type: ref, to: artist }
associations:
  artist: { kind: belongs_to, to: artist }
`

func TestValidate(t *testing.T) {
	path := writeDefinitions(t, map[string]string{
		"artist.yaml": artistDefinition,
		"album.yaml":  albumDefinition,
	})

	out, err := runCommand(t, "validate", "--config", path, "--check-database")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	for _, want := range []string{"Resource album", "Resource artist", "Associations resolve", "Database writable", "Configuration is valid."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidate_UnresolvedAssociation(t *testing.T) {
	path := writeDefinitions(t, map[string]string{"artist.yaml": artistDefinition})

	out, err := runCommand(t, "validate", "--config", path)
	if err == nil {
		t.Fatalf("expected error for the missing album resource:\n%s", out)
	}
	if !strings.Contains(out, crossMark+" Associations resolve") {
		t.Errorf("output = %s", out)
	}
}

func TestValidate_InvalidDefinition(t *testing.T) {
	path := writeDefinitions(t, map[string]string{"broken.yaml": "resource: broken\nfields:\n  x: { type: nonsense }\n"})

	if out, err := runCommand(t, "validate", "--config", path); err == nil {
		t.Fatalf("expected error for an invalid field type:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "crudkit dev") {
		t.Errorf("output = %q", out)
	}
}
