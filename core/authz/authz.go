// Package authz decides whether a principal may perform an operation on a
// record, and restricts list queries to the records a principal may see.
//
// An Enforcer evaluates rules in order. A rule returns Allow, Deny or Skip;
// the first Allow or Deny decides, and a request no rule allows is denied.
package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/schema"
)

// Action is what a principal attempts.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDestroy Action = "destroy"
)

// ActionFor returns the action an operation performs. new and edit share
// their action with create and update.
func ActionFor(op schema.Operation) Action {
	switch op {
	case schema.OpNew, schema.OpCreate:
		return ActionCreate
	case schema.OpEdit, schema.OpUpdate:
		return ActionUpdate
	case schema.OpDestroy:
		return ActionDestroy
	default:
		return ActionRead
	}
}

// Authorizer authorizes operations.
type Authorizer interface {
	// Check returns an error wrapping ErrDenied when p may not perform
	// action on r.
	Check(ctx context.Context, p *Principal, r *record.Record, action Action) error

	// Scope restricts q to the records p may read.
	Scope(ctx context.Context, p *Principal, q *query.Query) *query.Query
}

// ErrDenied is returned when authorization fails.
var ErrDenied = errors.New("access denied")

// DeniedError reports a rejected action.
type DeniedError struct {
	Resource string
	Action   Action
	Reason   string
}

func (e *DeniedError) Error() string {
	msg := fmt.Sprintf("not allowed to %s %s", e.Action, e.Resource)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is reports whether target is ErrDenied.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// IsDenied reports whether err is an authorization failure.
func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied)
}

// Principal is the identity an operation runs as.
type Principal struct {
	ID    string
	Roles []string
}

// HasRole reports whether p holds role. A nil principal holds none.
func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

type principalCtxKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFrom returns the principal carried by ctx, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*Principal)
	return p
}

// Permissive allows everything.
type Permissive struct{}

func (Permissive) Check(context.Context, *Principal, *record.Record, Action) error { return nil }

func (Permissive) Scope(_ context.Context, _ *Principal, q *query.Query) *query.Query { return q }
