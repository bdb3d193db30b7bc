package defaults

import (
	"fmt"
	"sort"
)

// Load registers static defaults from a declarative definition keyed by
// aspect and then by operation (or All). Distinct policies and loading
// strategies are validated here so that a bad definition fails when the
// resource is defined.
func (r *Registry) Load(def map[string]map[string]any) error {
	aspects := make([]string, 0, len(def))
	for a := range def {
		aspects = append(aspects, a)
	}
	sort.Strings(aspects)

	for _, name := range aspects {
		aspect, err := ParseAspect(name)
		if err != nil {
			return err
		}

		for op, raw := range def[name] {
			if op == "" {
				return fmt.Errorf("%s: empty operation key", aspect)
			}

			switch aspect {
			case Distinct:
				if err := r.SetPolicy(raw, op); err != nil {
					return fmt.Errorf("%s.%s: %w", aspect, op, err)
				}
				continue
			case LoadStrategy:
				s, ok := raw.(string)
				if !ok {
					return fmt.Errorf("%s.%s: expected a strategy name, got %T", aspect, op, raw)
				}
				if _, err := ParseStrategy(s); err != nil {
					return fmt.Errorf("%s.%s: %w", aspect, op, err)
				}
			case Attributes:
				if _, ok := toStringMap(raw); !ok && raw != nil {
					return fmt.Errorf("%s.%s: expected a map, got %T", aspect, op, raw)
				}
			}

			r.Set(aspect, Static(raw), op)
		}
	}
	return nil
}
