package runtime

import (
	"context"
	"sync"

	"github.com/artpar/crudkit/core/events"
	"github.com/artpar/crudkit/core/schema"
)

// Hook phases.
const (
	PhaseBefore = "before"
	PhaseAfter  = "after"
)

// HookHandler handles a hook event.
type HookHandler func(ctx context.Context, event HookEvent) error

// HookEvent represents an operation reaching a hook phase.
type HookEvent struct {
	// Resource that triggered the event.
	Resource string

	// Operation that triggered the event.
	Operation schema.Operation

	// Phase is "before" or "after".
	Phase string

	// Key is the record key for operations on an existing record.
	Key any

	// Data is the submitted attributes before the operation and the
	// resulting record after it. Before hooks may modify it.
	Data map[string]any

	// Meta carries values through hooks back to the caller.
	Meta map[string]any

	// Invocation is the working state of the operation.
	Invocation *Invocation
}

// HookDispatcher manages operation hooks.
type HookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]HookHandler
}

// NewHookDispatcher creates an empty dispatcher.
func NewHookDispatcher() *HookDispatcher {
	return &HookDispatcher{handlers: make(map[string][]HookHandler)}
}

func hookKey(resource string, op schema.Operation, phase string) string {
	return resource + "." + string(op) + "." + phase
}

// Dispatch runs the handlers registered for the event in registration
// order. The first error stops dispatch.
func (d *HookDispatcher) Dispatch(ctx context.Context, event HookEvent) error {
	d.mu.RLock()
	handlers := d.handlers[hookKey(event.Resource, event.Operation, event.Phase)]
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			return err
		}
	}

	return nil
}

// OnHook registers a hook handler.
func (d *HookDispatcher) OnHook(resource string, op schema.Operation, phase string, handler HookHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := hookKey(resource, op, phase)
	d.handlers[key] = append(d.handlers[key], handler)
}

// registerHooks registers the hooks declared in a resource definition.
func (r *Runtime) registerHooks(res schema.Resource) error {
	for key, hooks := range res.Hooks {
		phase, op, err := schema.ParseHookKey(key)
		if err != nil {
			return err
		}

		for _, hook := range hooks {
			handler := r.hookHandler(hook)
			if handler == nil {
				r.logger.Warn().
					Str("resource", res.Name).
					Str("hook", key).
					Msg("hook has neither emit nor call, ignored")
				continue
			}
			r.hooks.OnHook(res.Name, op, phase, handler)
			r.logger.Debug().
				Str("resource", res.Name).
				Str("operation", string(op)).
				Str("phase", phase).
				Msg("registered hook")
		}
	}
	return nil
}

// hookHandler creates a handler from a declared hook.
func (r *Runtime) hookHandler(hook schema.Hook) HookHandler {
	if hook.Emit != "" {
		name := hook.Emit
		return func(ctx context.Context, event HookEvent) error {
			r.events.Publish(ctx, events.Event{
				Name:      name,
				Resource:  event.Resource,
				Operation: string(event.Operation),
				Record:    event.Data,
			})
			return nil
		}
	}

	if hook.Call != "" {
		return r.callHandler(hook.Call)
	}

	return nil
}

// callHandler creates a handler that invokes a registered function. The
// function is looked up when the hook runs, so it may be registered after
// the resource is loaded.
func (r *Runtime) callHandler(name string) HookHandler {
	return func(ctx context.Context, event HookEvent) error {
		if !r.functions.Has(name) {
			r.logger.Warn().
				Str("function", name).
				Str("resource", event.Resource).
				Str("operation", string(event.Operation)).
				Msg("hook function not registered, skipping")
			return nil
		}
		return r.functions.Call(ctx, name, event)
	}
}
