package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/storefront/pkg/repository/document"
)

// fieldRule checks one patched value and may convert it before it is stored.
type fieldRule func(v any) (any, error)

// patchSpec whitelists the updatable fields of a collection. A nil rule
// accepts any value.
type patchSpec map[string]fieldRule

// applyPatch keeps the whitelisted fields present in body, whatever their
// value, and checks them against their rule. Unknown fields are ignored.
func applyPatch(op string, body map[string]any, spec patchSpec) (document.Fields, error) {
	out := document.Fields{}
	invalid := map[string]string{}
	for name, rule := range spec {
		v, ok := body[name]
		if !ok {
			continue
		}
		if rule != nil {
			converted, err := rule(v)
			if err != nil {
				invalid[name] = err.Error()
				continue
			}
			v = converted
		}
		out[name] = v
	}
	if len(invalid) > 0 {
		return nil, &ValidationError{Op: op, Fields: invalid}
	}
	if len(out) == 0 {
		return nil, document.Errorf(document.InvalidArgument, op, "no updatable fields in request")
	}
	return out, nil
}

func stringRule(tag string) fieldRule {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("string")
		}
		if tag != "" {
			if err := validate.Var(s, tag); err != nil {
				return nil, fmt.Errorf("%s", tag)
			}
		}
		return s, nil
	}
}

func emailRule() fieldRule {
	check := stringRule("min=5,email")
	return func(v any) (any, error) {
		if s, ok := v.(string); ok {
			v = normalizeEmail(s)
		}
		return check(v)
	}
}

func numberRule(tag string) fieldRule {
	return func(v any) (any, error) {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case int:
			f = float64(n)
		case int64:
			f = float64(n)
		default:
			return nil, fmt.Errorf("number")
		}
		if tag != "" {
			if err := validate.Var(f, tag); err != nil {
				return nil, fmt.Errorf("%s", tag)
			}
		}
		return f, nil
	}
}

func oneOfRule(values ...string) fieldRule {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("string")
		}
		for _, allowed := range values {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("oneof=%s", strings.Join(values, " "))
	}
}

func objectRule() fieldRule {
	return func(v any) (any, error) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("object")
		}
		return m, nil
	}
}

func listRule() fieldRule {
	return func(v any) (any, error) {
		l, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("array")
		}
		return l, nil
	}
}

// itemsRule accepts an array of line items, each with an id, a positive qty,
// a price, a name and a unit.
func itemsRule() fieldRule {
	return func(v any) (any, error) {
		l, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("array")
		}
		for i, e := range l {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d: object", i)
			}
			item := Item{}
			item.ID, _ = m["id"].(string)
			item.Qty, _ = m["qty"].(float64)
			item.Price, _ = m["price"].(float64)
			item.Name, _ = m["name"].(string)
			item.Unit, _ = m["unit"].(string)
			if err := validate.Struct(item); err != nil {
				return nil, fmt.Errorf("item %d: invalid", i)
			}
		}
		return l, nil
	}
}

// timeRule accepts RFC 3339 strings and stores them as time.Time.
func timeRule() fieldRule {
	return func(v any) (any, error) {
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, fmt.Errorf("rfc3339")
			}
			return parsed.UTC(), nil
		default:
			return nil, fmt.Errorf("rfc3339")
		}
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
