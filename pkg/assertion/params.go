package assertion

import "encoding/json"

// Parameter and fact payload values cross a JSON boundary: depending on
// whether they were built in-process or decoded from disk, a count may be
// an int, int64, float64 or json.Number. These helpers coerce without
// caring which.

func intFrom(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	return intFrom(v)
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringsParam(params map[string]any, key string) ([]string, bool) {
	v, ok := params[key]
	if !ok {
		return nil, false
	}
	return stringsFrom(v)
}

func stringsFrom(v any) ([]string, bool) {
	switch vs := v.(type) {
	case []string:
		return append([]string(nil), vs...), true
	case []any:
		out := make([]string, 0, len(vs))
		for _, e := range vs {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// mapSlice coerces a payload field holding a list of objects. Entries of
// other shapes are dropped.
func mapSlice(v any) []map[string]any {
	switch vs := v.(type) {
	case []map[string]any:
		return vs
	case []any:
		out := make([]map[string]any, 0, len(vs))
		for _, e := range vs {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func intField(m map[string]any, key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return intFrom(v)
}
