package filter

import (
	"encoding/json"
	"fmt"
)

// JSONLookup builds a FieldLookup over a decoded JSON object, resolving
// dotted paths by descending into nested objects. It is lenient: any
// missing intermediate key, or a path that walks into a non-object, just
// reports "not found" rather than erroring.
func JSONLookup(data json.RawMessage) FieldLookup {
	var decoded map[string]any
	// A decode failure (non-object data, e.g. a bare string/number) leaves
	// decoded nil; every lookup then reports not-found, which is the
	// correct "no match" behavior for a malformed/foreign payload.
	_ = json.Unmarshal(data, &decoded)

	return func(field string) (string, bool) {
		return lookupPath(decoded, splitPath(field))
	}
}

func splitPath(field string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(field); i++ {
		if field[i] == '.' {
			parts = append(parts, field[start:i])
			start = i + 1
		}
	}
	parts = append(parts, field[start:])
	return parts
}

func lookupPath(m map[string]any, parts []string) (string, bool) {
	if len(parts) == 0 {
		return "", false
	}
	v, ok := m[parts[0]]
	if !ok {
		return "", false
	}
	if len(parts) == 1 {
		return stringify(v), true
	}
	nested, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	return lookupPath(nested, parts[1:])
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
