package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/crudkit/core/schema"
	"github.com/rs/zerolog"
)

func TestHookDispatcher(t *testing.T) {
	d := NewHookDispatcher()

	var order []string
	d.OnHook("album", schema.OpCreate, PhaseBefore, func(ctx context.Context, e HookEvent) error {
		order = append(order, "first")
		return nil
	})
	d.OnHook("album", schema.OpCreate, PhaseBefore, func(ctx context.Context, e HookEvent) error {
		order = append(order, "second")
		return errors.New("stop")
	})
	d.OnHook("album", schema.OpCreate, PhaseBefore, func(ctx context.Context, e HookEvent) error {
		order = append(order, "third")
		return nil
	})
	d.OnHook("album", schema.OpUpdate, PhaseBefore, func(ctx context.Context, e HookEvent) error {
		order = append(order, "update")
		return nil
	})

	err := d.Dispatch(context.Background(), HookEvent{Resource: "album", Operation: schema.OpCreate, Phase: PhaseBefore})
	if err == nil || err.Error() != "stop" {
		t.Errorf("Dispatch error = %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}

	if err := d.Dispatch(context.Background(), HookEvent{Resource: "track", Operation: schema.OpCreate, Phase: PhaseBefore}); err != nil {
		t.Errorf("Dispatch without handlers: %v", err)
	}
}

func TestCallHandler_Unregistered(t *testing.T) {
	rt := &Runtime{functions: NewFunctionRegistry(), logger: zerolog.Nop()}
	if err := rt.callHandler("missing")(context.Background(), HookEvent{Resource: "album"}); err != nil {
		t.Errorf("unregistered function should be skipped, got %v", err)
	}
}
