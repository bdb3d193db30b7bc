package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/artpar/crudkit/core/schema"
)

func noop(context.Context, HookEvent) error { return nil }

func TestFunctionRegistry_Register(t *testing.T) {
	registry := NewFunctionRegistry()

	called := false
	err := registry.Register(Function{Name: "stamp", Description: "stamps", Handler: func(ctx context.Context, event HookEvent) error {
		called = true
		return nil
	}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !registry.Has("stamp") {
		t.Error("stamp should be registered")
	}
	if fn, ok := registry.Lookup("stamp"); !ok || fn.Description != "stamps" {
		t.Errorf("Lookup = %+v, %v", fn, ok)
	}
	if err := registry.Call(context.Background(), "stamp", HookEvent{}); err != nil {
		t.Errorf("Call: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestFunctionRegistry_Register_Invalid(t *testing.T) {
	tests := []struct {
		name string
		fn   Function
		want string
	}{
		{"no name", Function{Handler: noop}, "name is required"},
		{"no handler", Function{Name: "stamp"}, "no handler"},
		{"bad phase", Function{Name: "stamp", Phases: []string{"during"}, Handler: noop}, `unknown phase "during"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFunctionRegistry().Register(tt.fn)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Register error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestFunctionRegistry_Register_Overwrite(t *testing.T) {
	registry := NewFunctionRegistry()

	var calls []string
	registry.Register(Function{Name: "stamp", Handler: func(context.Context, HookEvent) error {
		calls = append(calls, "first")
		return nil
	}})
	registry.Register(Function{Name: "stamp", Handler: func(context.Context, HookEvent) error {
		calls = append(calls, "second")
		return nil
	}})

	_ = registry.Call(context.Background(), "stamp", HookEvent{})
	if len(calls) != 1 || calls[0] != "second" {
		t.Errorf("calls = %v, want [second]", calls)
	}
}

func TestFunctionRegistry_Call(t *testing.T) {
	t.Run("passes event", func(t *testing.T) {
		registry := NewFunctionRegistry()

		var received HookEvent
		registry.Register(Function{Name: "capture", Handler: func(ctx context.Context, event HookEvent) error {
			received = event
			return nil
		}})

		event := HookEvent{
			Resource:  "album",
			Operation: schema.OpCreate,
			Phase:     PhaseBefore,
			Data:      map[string]any{"title": "Blue"},
			Meta:      map[string]any{},
		}
		if err := registry.Call(context.Background(), "capture", event); err != nil {
			t.Fatalf("Call: %v", err)
		}
		if received.Resource != "album" || received.Operation != schema.OpCreate || received.Data["title"] != "Blue" {
			t.Errorf("event = %+v", received)
		}
	})

	t.Run("meta write back", func(t *testing.T) {
		registry := NewFunctionRegistry()
		registry.Register(Function{Name: "token", Handler: func(ctx context.Context, event HookEvent) error {
			event.Meta["token"] = "abc123"
			return nil
		}})

		meta := map[string]any{}
		_ = registry.Call(context.Background(), "token", HookEvent{Meta: meta})
		if meta["token"] != "abc123" {
			t.Errorf("Meta[token] = %v, want abc123", meta["token"])
		}
	})

	t.Run("handler error", func(t *testing.T) {
		registry := NewFunctionRegistry()
		boom := errors.New("boom")
		registry.Register(Function{Name: "fail", Handler: func(context.Context, HookEvent) error { return boom }})

		err := registry.Call(context.Background(), "fail", HookEvent{})
		if !errors.Is(err, boom) || err.Error() != "fail: boom" {
			t.Errorf("Call error = %v", err)
		}
	})

	t.Run("not registered", func(t *testing.T) {
		err := NewFunctionRegistry().Call(context.Background(), "missing", HookEvent{})
		if err == nil || err.Error() != `function "missing" not registered` {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("wrong phase", func(t *testing.T) {
		registry := NewFunctionRegistry()
		called := false
		registry.Register(Function{Name: "prepare", Phases: []string{PhaseBefore}, Handler: func(context.Context, HookEvent) error {
			called = true
			return nil
		}})

		err := registry.Call(context.Background(), "prepare", HookEvent{Phase: PhaseAfter})
		if err == nil || !strings.Contains(err.Error(), "after phase") {
			t.Errorf("error = %v", err)
		}
		if called {
			t.Error("handler should not run in a disallowed phase")
		}
		if err := registry.Call(context.Background(), "prepare", HookEvent{Phase: PhaseBefore}); err != nil || !called {
			t.Errorf("before phase: err = %v, called = %v", err, called)
		}
	})
}

func TestFunctionRegistry_List(t *testing.T) {
	registry := NewFunctionRegistry()
	if list := registry.List(); len(list) != 0 {
		t.Errorf("List() = %v, want empty", list)
	}

	for _, name := range []string{"notify", "audit", "stamp"} {
		registry.Register(Function{Name: name, Handler: noop})
	}

	if got := strings.Join(registry.List(), ","); got != "audit,notify,stamp" {
		t.Errorf("List() = %s", got)
	}
	if all := registry.All(); len(all) != 3 || all[0].Name != "audit" {
		t.Errorf("All() = %+v", all)
	}
}

func TestFunctionRegistry_Concurrency(t *testing.T) {
	registry := NewFunctionRegistry()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			registry.Register(Function{Name: "fn", Handler: noop})
		}()
		go func() {
			defer wg.Done()
			_ = registry.Has("fn")
			_ = registry.List()
		}()
	}
	wg.Wait()

	if !registry.Has("fn") {
		t.Error("fn should be registered")
	}
}
