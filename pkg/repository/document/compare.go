package document

import (
	"strings"
	"time"
)

// rank orders values of different types: null, booleans, numbers, timestamps,
// strings, everything else.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// compareValues returns -1, 0 or 1. Values of unrelated types compare by rank;
// two values of the "everything else" rank compare equal.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case 2:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case 3:
		return a.(time.Time).Compare(b.(time.Time))
	case 4:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

// compareKeys orders by value, then id.
func compareKeys(va any, ida string, vb any, idb string) int {
	if c := compareValues(va, vb); c != 0 {
		return c
	}
	return strings.Compare(ida, idb)
}

func arrayContains(field, want any) bool {
	switch arr := field.(type) {
	case []string:
		s, ok := want.(string)
		if !ok {
			return false
		}
		for _, e := range arr {
			if e == s {
				return true
			}
		}
	case []any:
		for _, e := range arr {
			if rank(e) == rank(want) && rank(e) < 5 && compareValues(e, want) == 0 {
				return true
			}
		}
	}
	return false
}

func matches(f Fields, conds []Condition) bool {
	for _, c := range conds {
		v, ok := f[c.Field]
		if !ok {
			return false
		}
		switch c.Op {
		case OpEqual:
			if rank(v) != rank(c.Value) || rank(v) == 5 || compareValues(v, c.Value) != 0 {
				return false
			}
		case OpArrayContains:
			if !arrayContains(v, c.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
