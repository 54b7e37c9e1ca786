package typeutils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Compare returns 0 for equal, -1 if a < b else 1 if a > b.
// Values are normalized first so that a bookmark read back from a state file
// (json.Number, RFC3339 string) compares correctly against a freshly fetched value.
func Compare(a, b any) int {
	// Handle nil cases first
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	a, b = normalize(a), normalize(b)

	switch aVal := a.(type) {
	case int64:
		switch bVal := b.(type) {
		case int64:
			return compareOrdered(aVal, bVal)
		case float64:
			return compareFloat(float64(aVal), bVal)
		}
	case float64:
		switch bVal := b.(type) {
		case float64:
			return compareFloat(aVal, bVal)
		case int64:
			return compareFloat(aVal, float64(bVal))
		}
	case time.Time:
		if bTime, ok := b.(time.Time); ok {
			return aVal.Compare(bTime)
		}
	case bool:
		if bBool, ok := b.(bool); ok {
			// false < true
			if !aVal && bBool {
				return -1
			} else if aVal && !bBool {
				return 1
			}
			return 0
		}
	}

	// For any other types, convert to string for comparison
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint:
		return uintToNumber(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return uintToNumber(val)
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case Time:
		return val.Time
	case *Time:
		if val == nil {
			return nil
		}
		return val.Time
	case string:
		if t, err := ParseTime(val); err == nil {
			return t
		}
		return val
	default:
		return v
	}
}

func uintToNumber(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return float64(u)
}

func compareOrdered[T int64 | string](a, b T) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareFloat(aFloat, bFloat float64) int {
	if math.IsNaN(aFloat) {
		if math.IsNaN(bFloat) {
			return 0
		}
		return -1
	}
	if math.IsNaN(bFloat) {
		return 1
	}

	const eps = 1e-6
	diff := aFloat - bFloat
	if math.Abs(diff) < eps {
		return 0
	} else if diff < 0 {
		return -1
	}
	return 1
}
