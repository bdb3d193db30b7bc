package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/schema"
	"github.com/rs/zerolog"
)

// Rule decisions. Rules may wrap them with Allowf, Denyf and Skipf.
var (
	Allow = errors.New("authz: allow rule")
	Deny  = errors.New("authz: deny rule")
	Skip  = errors.New("authz: skip rule")
)

// Allowf returns a formatted decision wrapping Allow.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted decision wrapping Deny.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted decision wrapping Skip.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Rule decides one authorization request. A nil return is a Skip.
type Rule func(ctx context.Context, p *Principal, r *record.Record, action Action) error

// ScopeRule restricts a list query.
type ScopeRule func(ctx context.Context, p *Principal, q *query.Query) *query.Query

// AlwaysAllow allows every request.
func AlwaysAllow() Rule {
	return func(context.Context, *Principal, *record.Record, Action) error { return Allow }
}

// AlwaysDeny denies every request.
func AlwaysDeny() Rule {
	return func(context.Context, *Principal, *record.Record, Action) error { return Deny }
}

// DenyIfNoPrincipal denies anonymous requests.
func DenyIfNoPrincipal() Rule {
	return func(_ context.Context, p *Principal, _ *record.Record, _ Action) error {
		if p == nil {
			return Denyf("principal required")
		}
		return Skip
	}
}

// HasRole allows principals holding any of roles.
func HasRole(roles ...string) Rule {
	return func(_ context.Context, p *Principal, _ *record.Record, _ Action) error {
		for _, role := range roles {
			if p.HasRole(role) {
				return Allow
			}
		}
		return Skip
	}
}

// IsOwner allows principals whose id equals the record's field.
func IsOwner(field string) Rule {
	return func(_ context.Context, p *Principal, r *record.Record, _ Action) error {
		if p == nil || r == nil {
			return Skip
		}
		if v := r.Get(field); v != nil && fmt.Sprint(v) == p.ID {
			return Allow
		}
		return Skip
	}
}

// OnActions applies rule only to the given actions and skips the rest.
func OnActions(rule Rule, actions ...Action) Rule {
	return func(ctx context.Context, p *Principal, r *record.Record, action Action) error {
		if !slices.Contains(actions, action) {
			return Skip
		}
		return rule(ctx, p, r, action)
	}
}

// OwnerScope restricts queries to records whose field holds the
// principal's id. Principals holding a bypass role see everything; an
// anonymous principal sees nothing.
func OwnerScope(field string, bypass ...string) ScopeRule {
	return func(_ context.Context, p *Principal, q *query.Query) *query.Query {
		for _, role := range bypass {
			if p.HasRole(role) {
				return q
			}
		}
		if p == nil {
			return q.Where(query.Condition{Field: record.IDField, Op: query.In, Value: []any{}})
		}
		return q.WhereEq(field, p.ID)
	}
}

// Policy is the rules of one resource.
type Policy struct {
	Rules  []Rule
	Scopes []ScopeRule
}

// Enforcer evaluates per-resource policies. Resources without a policy
// use the fallback policy; requests no rule allows are denied.
type Enforcer struct {
	mu       sync.RWMutex
	policies map[string]Policy
	fallback Policy
	logger   zerolog.Logger
}

// NewEnforcer creates an enforcer with an empty fallback policy.
func NewEnforcer(logger zerolog.Logger) *Enforcer {
	return &Enforcer{
		policies: make(map[string]Policy),
		logger:   logger,
	}
}

// Allow appends rules to a resource's policy.
func (e *Enforcer) Allow(resource string, rules ...Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.policies[resource]
	p.Rules = append(p.Rules, rules...)
	e.policies[resource] = p
}

// Restrict appends scope rules to a resource's policy.
func (e *Enforcer) Restrict(resource string, scopes ...ScopeRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.policies[resource]
	p.Scopes = append(p.Scopes, scopes...)
	e.policies[resource] = p
}

// Fallback sets the policy of resources without their own.
func (e *Enforcer) Fallback(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = p
}

// RegisterOwned installs owner rules for a resource whose definition names
// an owner field: owners may do anything with their records, and lists are
// restricted to them. Admin roles bypass both.
func (e *Enforcer) RegisterOwned(res schema.Resource, admin ...string) {
	if res.Meta.Owner == "" {
		return
	}
	owner := res.Meta.Owner
	e.Allow(res.Name,
		DenyIfNoPrincipal(),
		HasRole(admin...),
		IsOwner(owner),
	)
	e.Restrict(res.Name, OwnerScope(owner, admin...))
}

func (e *Enforcer) policy(resource string) Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.policies[resource]; ok {
		return p
	}
	return e.fallback
}

// Check evaluates the resource's rules in order.
func (e *Enforcer) Check(ctx context.Context, p *Principal, r *record.Record, action Action) error {
	resource := r.Resource()
	for _, rule := range e.policy(resource).Rules {
		switch decision := rule(ctx, p, r, action); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		case errors.Is(decision, Deny):
			e.logger.Debug().Str("resource", resource).Str("action", string(action)).Err(decision).Msg("denied")
			return &DeniedError{Resource: resource, Action: action, Reason: reason(decision)}
		default:
			return fmt.Errorf("authorize %s %s: %w", action, resource, decision)
		}
	}
	e.logger.Debug().Str("resource", resource).Str("action", string(action)).Msg("denied by default")
	return &DeniedError{Resource: resource, Action: action}
}

// Scope applies the resource's scope rules in order.
func (e *Enforcer) Scope(ctx context.Context, p *Principal, q *query.Query) *query.Query {
	for _, scope := range e.policy(q.Resource()).Scopes {
		q = scope(ctx, p, q)
	}
	return q
}

// reason strips the decision sentinel from a wrapped decision.
func reason(decision error) string {
	if decision == Deny {
		return ""
	}
	return strings.TrimSuffix(decision.Error(), ": "+Deny.Error())
}
