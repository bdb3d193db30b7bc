package defaults

import (
	"fmt"
	"sort"
)

// Strategy is an association loading strategy.
type Strategy string

const (
	// StrategyPreload loads associations with separate queries.
	StrategyPreload Strategy = "preload"

	// StrategyEagerLoad loads associations in the same query.
	StrategyEagerLoad Strategy = "eager_load"

	// StrategyIncludes lets the engine choose between the two.
	StrategyIncludes Strategy = "includes"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyPreload, StrategyEagerLoad, StrategyIncludes:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown loading strategy %q", s)
	}
}

// Association is one node of an eager-load graph.
type Association struct {
	Name     string
	Nested   []Association
	Strategy Strategy
}

// NormalizeAssociations flattens an includes configuration into a list of
// association specs. Accepted shapes are a name, an Association, a map of
// name to nested includes, or a sequence mixing those. Deferred values are
// evaluated against inst.
func NormalizeAssociations(v any, inst Instance) []Association {
	var out []Association
	appendAssociations(&out, v, inst, 0)
	return out
}

func appendAssociations(out *[]Association, v any, inst Instance, depth int) {
	if depth > maxDeferredDepth {
		return
	}

	switch val := v.(type) {
	case nil:
		return
	case Value:
		if !val.IsZero() {
			appendAssociations(out, val.Eval(inst), inst, depth+1)
		}
	case Func:
		appendAssociations(out, val(inst), inst, depth+1)
	case func(Instance) any:
		appendAssociations(out, val(inst), inst, depth+1)
	case string:
		if val != "" {
			*out = append(*out, Association{Name: val})
		}
	case Association:
		if val.Name != "" {
			*out = append(*out, val)
		}
	case []Association:
		for _, a := range val {
			appendAssociations(out, a, inst, depth)
		}
	case []string:
		for _, s := range val {
			appendAssociations(out, s, inst, depth)
		}
	case []any:
		for _, item := range val {
			appendAssociations(out, item, inst, depth)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "" {
				continue
			}
			*out = append(*out, Association{
				Name:   k,
				Nested: NormalizeAssociations(val[k], inst),
			})
		}
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			if ks, ok := k.(string); ok {
				m[ks] = item
			}
		}
		appendAssociations(out, m, inst, depth)
	}
}
