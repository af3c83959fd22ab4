package wire

import "math"

// ToUint64 converts a decoded integer of any width to uint64.
// Negative values and non-integers are rejected.
func ToUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int16:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int8:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

// ToInt64 converts a decoded integer of any width to int64.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		u, ok := ToUint64(v)
		if !ok || u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
}

// ToFloat64 converts a decoded float, or an integer sent in place of a
// float, to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		if i, ok := ToInt64(v); ok {
			return float64(i), true
		}
		if u, ok := ToUint64(v); ok {
			return float64(u), true
		}
		return 0, false
	}
}

// ToString converts a decoded text or byte string to string.
func ToString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

// ToList converts a decoded array to []any.
func ToList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}
