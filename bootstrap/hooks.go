package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/crudkit/core/runtime"
	"github.com/artpar/crudkit/core/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RegisterHooks registers the built-in functions resource definitions
// can name in "call:" hooks.
func RegisterHooks(rt *runtime.Runtime, logger zerolog.Logger) error {
	for _, fn := range builtinFunctions(rt, logger) {
		if err := rt.RegisterFunction(fn); err != nil {
			return fmt.Errorf("register %s: %w", fn.Name, err)
		}
	}

	logger.Debug().Strs("functions", rt.Functions().List()).Msg("hook functions registered")
	return nil
}

func builtinFunctions(rt *runtime.Runtime, logger zerolog.Logger) []runtime.Function {
	before := []string{runtime.PhaseBefore}

	logChange := func(ctx context.Context, event runtime.HookEvent) error {
		e := logger.Info().
			Str("resource", event.Resource).
			Str("operation", string(event.Operation)).
			Str("phase", event.Phase)
		if event.Key != nil {
			e = e.Interface("key", event.Key)
		}
		if id, ok := event.Data["id"]; ok && event.Phase == runtime.PhaseAfter {
			e = e.Interface("id", id)
		}
		e.Msg("record changed")
		return nil
	}

	downcaseEmail := func(ctx context.Context, event runtime.HookEvent) error {
		if event.Data == nil {
			return nil
		}
		res, ok := rt.Registry().Get(event.Resource)
		if !ok {
			return nil
		}
		for _, f := range res.Fields {
			if f.Type != schema.FieldTypeEmail {
				continue
			}
			if v, ok := event.Data[f.Name].(string); ok {
				event.Data[f.Name] = strings.ToLower(strings.TrimSpace(v))
			}
		}
		return nil
	}

	assignUUID := func(ctx context.Context, event runtime.HookEvent) error {
		if event.Data == nil {
			return nil
		}
		res, ok := rt.Registry().Get(event.Resource)
		if !ok {
			return nil
		}
		for _, f := range res.Fields {
			if f.Type != schema.FieldTypeUUID || f.Implicit {
				continue
			}
			if v, set := event.Data[f.Name]; set && v != nil && v != "" {
				continue
			}
			event.Data[f.Name] = uuid.NewString()
		}
		return nil
	}

	return []runtime.Function{
		{Name: "log_change", Description: "Log the operation and the affected record", Handler: logChange},
		{Name: "downcase_email", Description: "Trim and lowercase submitted email fields", Phases: before, Handler: downcaseEmail},
		{Name: "assign_uuid", Description: "Fill unset uuid fields with random UUIDs", Phases: before, Handler: assignUUID},
	}
}
