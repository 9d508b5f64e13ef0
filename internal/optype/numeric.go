package optype

import (
	"encoding/binary"
	"math"
)

// Numeric columns are stored as fixed-width big-endian integers/floats.
// Byte-wise comparison of that form agrees with numeric order only for
// non-negative integers, so the comparators below decode both values
// and compare them numerically.

func decodeInt64(b []byte) (int64, bool) {
	switch len(b) {
	case 4:
		return int64(int32(binary.BigEndian.Uint32(b))), true
	case 8:
		return int64(binary.BigEndian.Uint64(b)), true
	default:
		return 0, false
	}
}

func decodeFloat64(b []byte) (float64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), true
}

func intOrder(l, r []byte) (int, bool) {
	lv, ok1 := decodeInt64(l)
	rv, ok2 := decodeInt64(r)
	if !ok1 || !ok2 {
		return 0, false
	}
	switch {
	case lv < rv:
		return -1, true
	case lv > rv:
		return 1, true
	default:
		return 0, true
	}
}

func floatOrder(l, r []byte) (int, bool) {
	lv, ok1 := decodeFloat64(l)
	rv, ok2 := decodeFloat64(r)
	if !ok1 || !ok2 {
		return 0, false
	}
	switch {
	case lv < rv:
		return -1, true
	case lv > rv:
		return 1, true
	default:
		return 0, true
	}
}

func numericTable(order func(l, r []byte) (int, bool)) table {
	eq := func(l, r []byte) Region {
		if l == nil || r == nil {
			return RegionFalseLow
		}
		c, ok := order(l, r)
		if !ok {
			return RegionNA
		}
		if c == 0 {
			return RegionTrueLow
		}
		return regionForOrder(c)
	}
	ne := func(l, r []byte) Region {
		if l == nil || r == nil {
			return RegionFalseLow
		}
		c, ok := order(l, r)
		if !ok {
			return RegionNA
		}
		if c != 0 {
			return RegionTrueLow
		}
		return RegionFalseHigh
	}
	ordered := func(truth func(int) bool) Comparator {
		return func(l, r []byte) Region {
			if l == nil || r == nil {
				return RegionFalseLow
			}
			c, ok := order(l, r)
			if !ok {
				return RegionNA
			}
			if truth(c) {
				if c <= 0 {
					return RegionTrueLow
				}
				return RegionTrueHigh
			}
			return regionForOrder(c)
		}
	}
	return table{
		eqOp:  eq,
		ltOp:  ordered(func(c int) bool { return c < 0 }),
		leOp:  ordered(func(c int) bool { return c <= 0 }),
		gtOp:  ordered(func(c int) bool { return c > 0 }),
		geOp:  ordered(func(c int) bool { return c >= 0 }),
		neOp:  ne,
	}
}

// Index aliases kept local so numericTable can build a table literal
// without importing types for every field name.
const (
	eqOp = 0
	ltOp = 1
	leOp = 2
	gtOp = 3
	geOp = 4
	neOp = 5
)

var intTable = numericTable(intOrder)
var floatTable = numericTable(floatOrder)
