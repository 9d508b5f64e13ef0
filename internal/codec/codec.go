// Package codec converts between the text literal bytes the parser
// produces (a NUMBER/REAL/STRING token's raw lexeme) and the
// fixed-width binary representation internal/optype's comparator
// tables and internal/record's payload encoding expect for typed
// columns.
package codec

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// Encode converts a literal's raw text bytes (as produced by the
// parser) into the binary form stored on disk and compared by
// internal/optype. TypeVarChar, TypeBool and TypeUnknown pass the text
// through unchanged; TypeBool compares as case-insensitive text rather
// than a numeric 0/1 so "TRUE"/"true" both work without a coercion
// table.
func Encode(t types.DataType, raw []byte) ([]byte, error) {
	switch t {
	case types.TypeInt:
		n, err := strconv.ParseInt(string(raw), 10, 32)
		if err != nil {
			return nil, dberr.Wrap(dberr.ErrUnknownType, err)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(n)))
		return buf, nil
	case types.TypeInt64, types.TypeStamp:
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, dberr.Wrap(dberr.ErrUnknownType, err)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(n))
		return buf, nil
	case types.TypeFloat:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, dberr.Wrap(dberr.ErrUnknownType, err)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	default:
		return raw, nil
	}
}

// Display converts a column's stored binary bytes back to the text
// form a client expects on the wire. The inverse of Encode for the
// numeric types; varchar/bool/unknown pass through unchanged.
func Display(t types.DataType, raw []byte) []byte {
	switch t {
	case types.TypeInt:
		if len(raw) != 4 {
			return raw
		}
		n := int32(binary.BigEndian.Uint32(raw))
		return []byte(strconv.FormatInt(int64(n), 10))
	case types.TypeInt64, types.TypeStamp:
		if len(raw) != 8 {
			return raw
		}
		n := int64(binary.BigEndian.Uint64(raw))
		return []byte(strconv.FormatInt(n, 10))
	case types.TypeFloat:
		if len(raw) != 8 {
			return raw
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(raw))
		return []byte(strconv.FormatFloat(f, 'g', -1, 64))
	default:
		return raw
	}
}

// EncodeInt64 packs a stamp or int64 value directly, used by the
// engine for synthetic system columns (rh_Stamp, etc.) that never pass
// through the text literal path.
func EncodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

// EncodeUint32 packs a uint32 value (rh_UserId, rh_VTableId widened).
func EncodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}
