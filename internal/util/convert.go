package util

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// Convert coerces a dynamically typed value (typically decoded from storage
// as map[string]any) into T. Values already of type T are returned unchanged;
// anything else takes a JSON round trip.
func Convert[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("convert %T: %w", v, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("convert %T to %T: %w", v, zero, err)
	}
	return out, nil
}

// ToInt interprets numeric values of any width (and numeric strings) as int.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), n == float32(math.Trunc(float64(n)))
	case float64:
		return int(n), n == math.Trunc(n)
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// ToMap returns v as map[string]any, converting structs through JSON.
// The boolean reports whether v was representable as a map.
func ToMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	if v == nil {
		return nil, false
	}
	m, err := Convert[map[string]any](v)
	if err != nil || m == nil {
		return nil, false
	}
	return m, true
}
