package maputil

// Lookup returns the first present key among aliases. Upstream payloads mix
// camelCase and snake_case, so callers pass both spellings.
func Lookup(params map[string]any, keys ...string) (any, bool) {
	if params == nil {
		return nil, false
	}
	for _, key := range keys {
		if raw, ok := params[key]; ok && raw != nil {
			return raw, true
		}
	}
	return nil, false
}

// Map returns a nested object stored under any of keys.
func Map(params map[string]any, keys ...string) (map[string]any, bool) {
	raw, ok := Lookup(params, keys...)
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}
