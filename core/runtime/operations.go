package runtime

import (
	"context"
	"fmt"

	"github.com/artpar/crudkit/core/authz"
	"github.com/artpar/crudkit/core/events"
	"github.com/artpar/crudkit/core/metrics"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/schema"
)

// List builds the query of the records the principal may see, shaped by
// search, scopes, ordering, includes, select, distinct and pagination. The
// query is returned in inv.Query and is not executed; run it with All.
func (r *Resource) List(ctx context.Context, opts Options, finalize ...Finalizer) (*Invocation, error) {
	inv, _, err := r.run(ctx, schema.OpList, opts, finalize, func(inv *Invocation, st Stages) (bool, error) {
		q := r.rt.query(r.Name())
		for _, stage := range []struct {
			name string
			fn   QueryStage
		}{
			{"authorize", st.AuthorizeScope},
			{"search", st.Search},
			{"scopes", st.Scopes},
			{"order", st.Order},
			{"includes", st.Includes},
			{"select", st.Select},
			{"distinct", st.Distinct},
			{"paginate", st.Paginate},
		} {
			next, err := stage.fn(inv, q)
			if err != nil {
				return false, fmt.Errorf("%s: %w", stage.name, err)
			}
			q = next
		}
		inv.Query = q
		return true, nil
	})
	return inv, err
}

// Show loads the record named by opts.Key.
func (r *Resource) Show(ctx context.Context, opts Options, finalize ...Finalizer) (*Invocation, error) {
	inv, _, err := r.run(ctx, schema.OpShow, opts, finalize, r.read)
	return inv, err
}

// Edit loads the record named by opts.Key for editing.
func (r *Resource) Edit(ctx context.Context, opts Options, finalize ...Finalizer) (*Invocation, error) {
	inv, _, err := r.run(ctx, schema.OpEdit, opts, finalize, r.read)
	return inv, err
}

// read fetches before authorizing, so a missing record is reported as not
// found whoever asks.
func (r *Resource) read(inv *Invocation, st Stages) (bool, error) {
	if err := st.Fetch(inv); err != nil {
		return false, err
	}
	if err := st.Authorize(inv); err != nil {
		return false, err
	}
	if err := st.Project(inv); err != nil {
		return false, err
	}
	return true, nil
}

// New builds an unsaved record from the default and submitted attributes.
func (r *Resource) New(ctx context.Context, opts Options, finalize ...Finalizer) (*Invocation, error) {
	inv, _, err := r.run(ctx, schema.OpNew, opts, finalize, r.build)
	return inv, err
}

// Create builds a record like New and saves it. It returns false, with
// errors attached to inv.Record, when the record is invalid.
func (r *Resource) Create(ctx context.Context, opts Options, finalize ...Finalizer) (*Invocation, bool, error) {
	return r.run(ctx, schema.OpCreate, opts, finalize, func(inv *Invocation, st Stages) (bool, error) {
		if _, err := r.build(inv, st); err != nil {
			return false, err
		}
		return r.write(inv, st.Save, events.Created)
	})
}

// build runs the shared part of new and create. The principal is checked
// against the built record before anything is written.
func (r *Resource) build(inv *Invocation, st Stages) (bool, error) {
	attrs, err := st.Defaults(inv, inv.Attributes)
	if err != nil {
		return false, err
	}
	if attrs, err = st.Normalize(inv, attrs); err != nil {
		return false, err
	}
	inv.Attributes = attrs

	if err := st.Build(inv); err != nil {
		return false, err
	}
	if err := st.Authorize(inv); err != nil {
		return false, err
	}
	return true, nil
}

// Update assigns the submitted attributes to the record named by opts.Key
// and saves it. Defaults are not merged. It returns false, with errors
// attached, when the record is invalid; the stored row is then unchanged.
func (r *Resource) Update(ctx context.Context, opts Options, finalize ...Finalizer) (*Invocation, bool, error) {
	return r.run(ctx, schema.OpUpdate, opts, finalize, func(inv *Invocation, st Stages) (bool, error) {
		if err := st.Fetch(inv); err != nil {
			return false, err
		}
		if err := st.Authorize(inv); err != nil {
			return false, err
		}

		attrs, err := st.Normalize(inv, inv.Attributes)
		if err != nil {
			return false, err
		}
		inv.Attributes = attrs
		inv.Record.Assign(attrs)

		return r.write(inv, st.Save, events.Updated)
	})
}

// Destroy deletes the record named by opts.Key. It returns false, with
// errors attached, when a dependent record restricts the delete.
func (r *Resource) Destroy(ctx context.Context, opts Options, finalize ...Finalizer) (*Invocation, bool, error) {
	return r.run(ctx, schema.OpDestroy, opts, finalize, func(inv *Invocation, st Stages) (bool, error) {
		if err := st.Fetch(inv); err != nil {
			return false, err
		}
		if err := st.Authorize(inv); err != nil {
			return false, err
		}
		return r.write(inv, st.Destroy, events.Destroyed)
	})
}

// write runs a write stage and publishes the lifecycle event on success.
func (r *Resource) write(inv *Invocation, stage WriteStage, suffix string) (bool, error) {
	changed := inv.Record.Changed()

	ok, err := stage(inv)
	if err != nil {
		return false, err
	}
	if !ok {
		for _, fe := range inv.Record.Errors().All() {
			r.rt.metrics.ValidationFailed(r.Name(), fe.Field, fe.Code)
		}
		return false, nil
	}

	r.rt.events.Publish(inv.ctx, events.Event{
		Name:      events.Name(r.Name(), suffix),
		Resource:  r.Name(),
		Operation: inv.Operation(),
		Record:    inv.Record.Map(),
		Changed:   changed,
	})
	return true, nil
}

type pipeline func(inv *Invocation, st Stages) (bool, error)

// run wraps a pipeline with hooks, metrics, logging and the finalizers.
// After hooks run only when the pipeline succeeded; finalizers run
// whenever it returned no error.
func (r *Resource) run(ctx context.Context, op schema.Operation, opts Options, finalize []Finalizer, body pipeline) (*Invocation, bool, error) {
	done := r.rt.metrics.Start(r.Name(), string(op))

	inv, err := r.invocation(ctx, op, opts)
	if err != nil {
		done(outcome(false, err))
		return nil, false, fmt.Errorf("%s %s: %w", op, r.Name(), err)
	}

	if err := r.rt.hooks.Dispatch(ctx, HookEvent{
		Resource:   r.Name(),
		Operation:  op,
		Phase:      PhaseBefore,
		Key:        opts.Key,
		Data:       inv.Attributes,
		Meta:       inv.Meta,
		Invocation: inv,
	}); err != nil {
		done(outcome(false, err))
		return inv, false, fmt.Errorf("before hook: %w", err)
	}

	ok, err := body(inv, r.Stages())
	if err != nil {
		r.rt.logger.Debug().
			Err(err).
			Str("resource", r.Name()).
			Str("operation", string(op)).
			Msg("operation failed")
		done(outcome(false, err))
		return inv, false, err
	}

	if ok {
		if err := r.rt.hooks.Dispatch(ctx, HookEvent{
			Resource:   r.Name(),
			Operation:  op,
			Phase:      PhaseAfter,
			Key:        opts.Key,
			Data:       resultData(inv),
			Meta:       inv.Meta,
			Invocation: inv,
		}); err != nil {
			done(outcome(false, err))
			return inv, false, fmt.Errorf("after hook: %w", err)
		}
	}

	for _, f := range finalize {
		if f != nil {
			f(inv)
		}
	}

	event := r.rt.logger.Debug().
		Str("resource", r.Name()).
		Str("operation", string(op)).
		Bool("ok", ok)
	if inv.Query != nil {
		event = event.Stringer("query", inv.Query)
	}
	if inv.Strategy != "" {
		event = event.Str("strategy", string(inv.Strategy))
	}
	event.Msg("operation complete")

	done(outcome(ok, nil))
	return inv, ok, nil
}

func resultData(inv *Invocation) map[string]any {
	switch {
	case inv.Record != nil:
		return inv.Record.Map()
	case inv.Query != nil:
		return map[string]any{"query": inv.Query.String()}
	default:
		return nil
	}
}

func outcome(ok bool, err error) string {
	switch {
	case record.IsNotFound(err):
		return metrics.OutcomeNotFound
	case authz.IsDenied(err):
		return metrics.OutcomeDenied
	case err != nil:
		return metrics.OutcomeError
	case !ok:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeOK
	}
}
