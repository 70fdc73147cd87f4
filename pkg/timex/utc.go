// Package timex normalizes time values that cross the persistence boundary.
//
// Agent configurations and gateway documents are free-form maps that may
// carry time.Time values at any depth. Different drivers hand those back in
// different locations (local, UTC, or zero-offset fixed zones), so every
// value is normalized to UTC once, at the boundary, and the rest of the
// system never has to think about zones again.
package timex

import "time"

// EnsureUTC walks an arbitrary value and returns it with every time.Time
// converted to UTC. Maps with string keys and slices are rewritten
// recursively; all other values pass through untouched.
func EnsureUTC(v any) any {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC()
	case *time.Time:
		if tv == nil {
			return tv
		}
		utc := tv.UTC()
		return &utc
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = EnsureUTC(val)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = EnsureUTC(val)
		}
		return out
	default:
		return v
	}
}

// EnsureUTCMap applies EnsureUTC to every value of a string-keyed map,
// returning a new map. A nil input yields a nil output.
func EnsureUTCMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return EnsureUTC(m).(map[string]any)
}
