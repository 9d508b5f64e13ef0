// Package optype implements the per-datatype comparator tables
// described in spec.md §4.3. Each comparator returns a signed Region
// code that encodes both truth and which side of an indexed range scan
// the comparison falls on, so the query engine (internal/engine) can
// terminate a scan without reading further records.
package optype

import (
	"bytes"
	"strings"

	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// Region is the five-way result of a comparator: truth plus scan-region
// information.
type Region int

const (
	// RegionFalseLow: FALSE, left is smaller — range scan may advance.
	RegionFalseLow Region = -1
	// RegionFalseHigh: FALSE, left is larger — range scan at upper bound.
	RegionFalseHigh Region = -2
	// RegionTrueLow: TRUE (low side of a NOT-EQ / LIKE range).
	RegionTrueLow Region = 1
	// RegionTrueHigh: TRUE (high side).
	RegionTrueHigh Region = 2
	// RegionNA: operator not applicable (TypeUnknown only).
	RegionNA Region = 0
)

// Bool reports whether r represents a TRUE comparison result.
func (r Region) Bool() bool { return r == RegionTrueLow || r == RegionTrueHigh }

// Comparator compares a bound column value against a constant (or
// another bound column value, for equi-joins) and returns a Region.
// Either side may be nil, meaning SQL NULL; per standard SQL three-
// valued logic NULL never participates in a TRUE result.
type Comparator func(left, right []byte) Region

// table is one datatype's full operator array, indexed by types.OpCode.
type table [8]Comparator

var tables = map[types.DataType]table{
	types.TypeVarChar:  stringTable,
	types.TypeInt:      intTable,
	types.TypeInt64:    intTable,
	types.TypeFloat:    floatTable,
	types.TypeStamp:    intTable,
	types.TypeBool:     stringTable,
	types.TypeUnknown:  unknownTable,
}

// Lookup returns the comparator for a datatype/operator pair. It never
// fails: an unrecognized datatype falls back to byte-wise string
// semantics, matching the original engine's behavior of treating
// unrecognized columns as opaque byte strings.
func Lookup(t types.DataType, op types.OpCode) Comparator {
	tb, ok := tables[t]
	if !ok {
		tb = stringTable
	}
	if int(op) < 0 || int(op) >= len(tb) || tb[op] == nil {
		return func([]byte, []byte) Region { return RegionNA }
	}
	return tb[op]
}

var unknownTable = table{} // every entry nil -> RegionNA

// stringTable implements LT, GT, LTEQ, GTEQ, EQ, NOTEQ byte-wise, plus
// LIKE (wildcard match, case-insensitive — see Like in wildcard.go) and
// SAME (case-insensitive equality).
var stringTable = table{
	types.OpEQ:   cmpStringEQ,
	types.OpLT:   cmpStringOrdered(func(c int) bool { return c < 0 }),
	types.OpLE:   cmpStringOrdered(func(c int) bool { return c <= 0 }),
	types.OpGT:   cmpStringOrdered(func(c int) bool { return c > 0 }),
	types.OpGE:   cmpStringOrdered(func(c int) bool { return c >= 0 }),
	types.OpNE:   cmpStringNE,
	types.OpLike: cmpStringLike,
	types.OpSame: cmpStringSame,
}

func regionForOrder(c int) Region {
	switch {
	case c < 0:
		return RegionFalseLow
	case c > 0:
		return RegionFalseHigh
	default:
		return RegionFalseLow // EQ handled separately; plain order ops treat equal as "not yet"
	}
}

func cmpStringEQ(l, r []byte) Region {
	if l == nil || r == nil {
		return RegionFalseLow
	}
	c := bytes.Compare(l, r)
	if c == 0 {
		return RegionTrueLow
	}
	return regionForOrder(c)
}

func cmpStringNE(l, r []byte) Region {
	if l == nil || r == nil {
		return RegionFalseLow
	}
	c := bytes.Compare(l, r)
	if c != 0 {
		return RegionTrueLow
	}
	return RegionFalseHigh
}

func cmpStringOrdered(truth func(int) bool) Comparator {
	return func(l, r []byte) Region {
		if l == nil || r == nil {
			return RegionFalseLow
		}
		c := bytes.Compare(l, r)
		if truth(c) {
			if c <= 0 {
				return RegionTrueLow
			}
			return RegionTrueHigh
		}
		return regionForOrder(c)
	}
}

func cmpStringSame(l, r []byte) Region {
	if l == nil || r == nil {
		return RegionFalseLow
	}
	if strings.EqualFold(string(l), string(r)) {
		return RegionTrueLow
	}
	return regionForOrder(bytes.Compare(l, r))
}

func cmpStringLike(l, r []byte) Region {
	if l == nil || r == nil {
		return RegionFalseLow
	}
	if Like(string(r), string(l)) {
		return RegionTrueLow
	}
	return RegionFalseLow
}
