package runtime

import (
	"context"
	"fmt"
	"net/url"

	"github.com/artpar/crudkit/core/authz"
	"github.com/artpar/crudkit/core/defaults"
	"github.com/artpar/crudkit/core/params"
	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/schema"
)

// Options are the call-time options of one invocation. A nil Includes,
// Select, Order or Scopes falls back to the resource's defaults, as does a
// nil slice or map such as []string(nil); any other value, even an empty
// one, replaces them.
type Options struct {
	// Key identifies the record for show, edit, update and destroy: its id
	// or the value of a lookup field.
	Key any

	// Attributes are the submitted attributes for new, create and update:
	// a map, url.Values or params.Permitted. Form values submitted under
	// the resource name ("album[title]") are unwrapped.
	Attributes any

	Includes any
	Select   any
	Order    any
	Scopes   any

	// Search is the search specification of list.
	Search map[string]any

	// Page is the 1-based page of list. PerPage overrides the page size.
	Page    int
	PerPage int

	// Unpaginated returns every matching record from list.
	Unpaginated bool

	// Values are extra instance values read by deferred defaults and
	// predicates.
	Values map[string]any
}

// Instance value keys answered by Invocation.Value.
const (
	ValueKey        = "key"
	ValuePrincipal  = "principal"
	ValueAttributes = "attributes"
	ValueSearch     = "search"
	ValuePage       = "page"
)

// Finalizer runs last in an operation, with the final working state.
type Finalizer func(inv *Invocation)

// Invocation is the state of one operation call. Deferred defaults and
// predicates are evaluated against it.
type Invocation struct {
	ctx      context.Context
	resource *Resource
	op       schema.Operation

	Options Options

	// Attributes are the ingested submitted attributes.
	Attributes map[string]any

	// Principal is the principal carried by the context, or nil.
	Principal *authz.Principal

	// Query is the working query of list.
	Query *query.Query

	// Record is the working record of the other operations.
	Record *record.Record

	// Strategy is the association loading strategy in effect.
	Strategy defaults.Strategy

	// Meta carries values set by hooks back to the caller.
	Meta map[string]any
}

func (r *Resource) invocation(ctx context.Context, op schema.Operation, opts Options) (*Invocation, error) {
	attrs, err := params.Ingest(opts.Attributes)
	if err != nil {
		return nil, err
	}
	if _, form := opts.Attributes.(url.Values); form {
		if attrs, err = params.Root(attrs, r.Name()); err != nil {
			return nil, err
		}
	}

	return &Invocation{
		ctx:        ctx,
		resource:   r,
		op:         op,
		Options:    opts,
		Attributes: attrs,
		Principal:  authz.PrincipalFrom(ctx),
		Meta:       make(map[string]any),
	}, nil
}

// Context returns the invocation's context.
func (inv *Invocation) Context() context.Context { return inv.ctx }

// Resource returns the resource the invocation runs on.
func (inv *Invocation) Resource() *Resource { return inv.resource }

// Op returns the operation being executed.
func (inv *Invocation) Op() schema.Operation { return inv.op }

// Operation returns the operation name.
func (inv *Invocation) Operation() string { return string(inv.op) }

// Value returns Options.Values[key] when set, and otherwise the
// invocation state named by the Value* keys. Unknown keys are nil.
func (inv *Invocation) Value(key string) any {
	if v, ok := inv.Options.Values[key]; ok {
		return v
	}
	switch key {
	case ValueKey:
		return inv.Options.Key
	case ValuePrincipal:
		if inv.Principal == nil {
			return nil
		}
		return inv.Principal
	case ValueAttributes:
		return inv.Attributes
	case ValueSearch:
		if inv.Options.Search == nil {
			return nil
		}
		return inv.Options.Search
	case ValuePage:
		return inv.Options.Page
	default:
		return nil
	}
}

// Predicate evaluates a predicate registered on the resource.
func (inv *Invocation) Predicate(name string) (bool, error) {
	p, ok := inv.resource.predicate(name)
	if !ok {
		return false, fmt.Errorf("resource %q: unknown predicate %q", inv.resource.Name(), name)
	}
	return p(inv)
}

// option resolves includes, select, order or scopes: the call-time option
// when present, the registered default otherwise.
func (inv *Invocation) option(aspect defaults.Aspect) any {
	var opt any
	switch aspect {
	case defaults.Includes:
		opt = inv.Options.Includes
	case defaults.Select:
		opt = inv.Options.Select
	case defaults.Order:
		opt = inv.Options.Order
	case defaults.Scopes:
		opt = inv.Options.Scopes
	}
	return inv.resource.defaults.Override(aspect, inv.Operation(), inv, opt)
}

// preloads resolves the includes into preload requests, recording the
// loading strategy.
func (inv *Invocation) preloads() ([]query.Preload, error) {
	assocs := defaults.NormalizeAssociations(inv.option(defaults.Includes), inv)
	if len(assocs) == 0 {
		return nil, nil
	}

	strategy, err := inv.resource.defaults.ResolveStrategy(inv.Operation(), inv, inv.resource.rt.DefaultStrategy())
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", inv.resource.Name(), err)
	}
	inv.Strategy = strategy
	return toPreloads(assocs, strategy), nil
}

func toPreloads(assocs []defaults.Association, strategy defaults.Strategy) []query.Preload {
	out := make([]query.Preload, len(assocs))
	for i, a := range assocs {
		s := strategy
		if a.Strategy != "" {
			s = a.Strategy
		}
		out[i] = query.Preload{
			Name:     a.Name,
			Nested:   toPreloads(a.Nested, s),
			Strategy: string(s),
		}
	}
	return out
}

// columns resolves the select aspect to column names.
func (inv *Invocation) columns() ([]string, error) {
	cols, err := stringList(inv.option(defaults.Select))
	if err != nil {
		return nil, fmt.Errorf("resource %q select: %w", inv.resource.Name(), err)
	}
	return cols, nil
}

func stringList(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return []string{val}, nil
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected column names, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected column names, got %T", v)
	}
}
