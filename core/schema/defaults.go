package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Defaults maps aspect to operation key to default value.
type Defaults map[string]map[string]any

// orderedAspects apply their mapping keys in the order written. A mapping
// with several keys is decoded as a sequence of single-key mappings, so
// `order: {all: {year: desc, title: asc}}` sorts by year first.
var orderedAspects = map[string]struct {
	// recurse also keeps order inside mapping values, for nested includes.
	recurse bool
}{
	"order":    {},
	"scopes":   {},
	"includes": {recurse: true},
}

// UnmarshalYAML decodes the defaults block, keeping key order for the
// aspects where it matters.
func (d *Defaults) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: defaults must map aspects to operations", n.Line)
	}
	out := make(Defaults, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		aspect, ops := n.Content[i].Value, resolveAlias(n.Content[i+1])
		if ops.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: defaults %s must map operations to values", ops.Line, aspect)
		}
		ordered, isOrdered := orderedAspects[aspect]
		byOp := make(map[string]any, len(ops.Content)/2)
		for j := 0; j+1 < len(ops.Content); j += 2 {
			op, value := ops.Content[j].Value, ops.Content[j+1]
			var (
				v   any
				err error
			)
			if isOrdered {
				v, err = decodeOrdered(value, ordered.recurse)
			} else {
				err = value.Decode(&v)
			}
			if err != nil {
				return fmt.Errorf("defaults %s.%s: %w", aspect, op, err)
			}
			byOp[op] = v
		}
		out[aspect] = byOp
	}
	*d = out
	return nil
}

// decodeOrdered decodes n, turning a mapping with more than one key into
// []any of single-key maps in written order. Mapping values are decoded
// plainly unless recurse is set.
func decodeOrdered(n *yaml.Node, recurse bool) (any, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.MappingNode:
		entries := make([]any, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var (
				v   any
				err error
			)
			if recurse {
				v, err = decodeOrdered(n.Content[i+1], true)
			} else {
				err = n.Content[i+1].Decode(&v)
			}
			if err != nil {
				return nil, err
			}
			entries = append(entries, map[string]any{n.Content[i].Value: v})
		}
		if len(entries) == 1 {
			return entries[0], nil
		}
		return entries, nil
	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := decodeOrdered(item, recurse)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	default:
		var v any
		err := n.Decode(&v)
		return v, err
	}
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
