package docvalue

import (
	"bytes"
	"cmp"
	"time"
)

// typeRank follows the store's cross-type ordering: null, booleans,
// numbers, timestamps, strings, bytes, geo points, arrays, maps.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64, int:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	case []byte:
		return 5
	case GeoPoint:
		return 6
	case []any:
		return 7
	case map[string]any:
		return 8
	default:
		return 9
	}
}

// Compare orders two decoded values. Integers and doubles compare
// numerically; values of different types order by type rank.
func Compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case int64, float64, int:
		return cmp.Compare(toFloat(a), toFloat(b))
	case time.Time:
		return x.Compare(b.(time.Time))
	case string:
		return cmp.Compare(x, b.(string))
	case []byte:
		return bytes.Compare(x, b.([]byte))
	case GeoPoint:
		y := b.(GeoPoint)
		if c := cmp.Compare(x.Latitude, y.Latitude); c != 0 {
			return c
		}
		return cmp.Compare(x.Longitude, y.Longitude)
	case []any:
		y := b.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := Compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(x), len(y))
	}
	return 0
}

// Comparable reports whether a and b share a type rank, which range
// filters require.
func Comparable(a, b any) bool {
	return typeRank(a) == typeRank(b)
}

// Equal reports whether two decoded values are equal under Compare.
func Equal(a, b any) bool {
	if _, ok := a.(map[string]any); ok {
		return mapsEqual(a.(map[string]any), b)
	}
	return typeRank(a) == typeRank(b) && Compare(a, b) == 0
}

func mapsEqual(a map[string]any, other any) bool {
	b, ok := other.(map[string]any)
	if !ok || len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case float64:
		return x
	}
	return 0
}
