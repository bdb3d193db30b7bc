package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/artpar/crudkit/config"
	"github.com/rs/zerolog"
)

func TestDiff(t *testing.T) {
	old, err := config.Parse([]byte("database:\n  dsn: a.db\n"))
	if err != nil {
		t.Fatal(err)
	}
	next, err := config.Parse([]byte("database:\n  dsn: b.db\ndefaults:\n  page_size: 5\naudit:\n  retention: 24h\n"))
	if err != nil {
		t.Fatal(err)
	}

	changes := config.Diff(old, next)
	if len(changes) != 3 {
		t.Fatalf("changes = %v", changes)
	}

	byField := map[string]config.Change{}
	for _, c := range changes {
		byField[c.Field] = c
	}
	if c := byField["defaults.page_size"]; !c.Reloadable || c.Old != "25" || c.New != "5" {
		t.Errorf("page size change = %+v", c)
	}
	if c := byField["database.dsn"]; c.Reloadable || c.String() != `database.dsn: "a.db" -> "b.db"` {
		t.Errorf("dsn change = %+v", c)
	}
	if c := byField["audit.retention"]; c.Reloadable || c.New != (24*time.Hour).String() {
		t.Errorf("retention change = %+v", c)
	}

	if got := config.Diff(old, old); len(got) != 0 {
		t.Errorf("Diff(old, old) = %v", got)
	}
}

func TestHolder_ReloadIgnoresRestartSettings(t *testing.T) {
	path := writeConfig(t, baseConfig)

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	content := `
database:
  dsn: "other.db"
authorization:
  mode: owner
defaults:
  strategy: includes
  page_size: 7
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	cfg := h.Get()
	if cfg.Defaults.Strategy != "includes" || cfg.Defaults.PageSize != 7 || cfg.Logging.Level != "debug" {
		t.Errorf("reloadable settings not applied: %+v %+v", cfg.Defaults, cfg.Logging)
	}
	if cfg.Database.DSN != ":memory:" || cfg.Authorization.Mode != "permissive" {
		t.Errorf("restart settings changed: dsn %s, auth %s", cfg.Database.DSN, cfg.Authorization.Mode)
	}
}

func TestFieldListsDisjoint(t *testing.T) {
	reloadable := map[string]bool{}
	for _, f := range config.ReloadableFields() {
		reloadable[f] = true
	}
	for _, f := range config.NonReloadableFields() {
		if reloadable[f] {
			t.Errorf("%s is in both lists", f)
		}
	}
}
