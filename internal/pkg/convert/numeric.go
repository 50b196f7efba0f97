// Package convert coerces loosely typed upstream values into Go types.
package convert

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ToFloat64 converts numbers and numeric strings to float64.
// Returns 0 for unsupported types or parse failures.
func ToFloat64(v any) float64 {
	f, _ := ToFloat64E(v)
	return f
}

// ToFloat64E is ToFloat64 with the parse error surfaced.
func ToFloat64E(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		return t.Float64()
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return 0, nil
		}
		return cast.ToFloat64E(trimmed)
	default:
		return cast.ToFloat64E(v)
	}
}

// ToTime converts time values, RFC3339-like strings and unix milliseconds to a
// time pointer. nil and empty strings map to nil.
func ToTime(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return &t, nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil, nil
		}
		out := *t
		return &out, nil
	case int64:
		out := time.UnixMilli(t).UTC()
		return &out, nil
	case float64:
		out := time.UnixMilli(int64(t)).UTC()
		return &out, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		out, err := cast.ToTimeE(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("parse time %q: %w", t, err)
		}
		return &out, nil
	default:
		out, err := cast.ToTimeE(v)
		if err != nil {
			return nil, err
		}
		return &out, nil
	}
}

// ToString trims a loosely typed value into a string; nil maps to "".
func ToString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}
