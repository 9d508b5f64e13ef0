// Package record implements the on-disk row format described in
// spec.md §4.4: a RecHead followed by a sorted array of ColHeads and
// then the column payloads, 8-byte aligned as a whole.
package record

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// Magic identifies a live record header. A zero byte in this position
// means "skip to the next block" (internal/tablefile owns that rule;
// this package only ever emits Magic).
const Magic byte = 0xD1

// Flag is the rh_Flags bitmask; at most one of Insert/Delete/Replicated
// is ever set, plus an independent Update bit.
type Flag uint8

const (
	FlagInsert Flag = 1 << iota
	FlagDelete
	FlagReplicated
	FlagUpdate
)

// Two-tier ColHead length encoding (spec.md §4.4).
const (
	lenExtended byte = 0xF0 // 32-bit length follows
	lenNull     byte = 0xFF // column is NULL, no payload
)

// headerSize is the fixed RecHead layout: magic(1) flags(1) vtable(2)
// ncols(2) stamp(8) userid(4) hash(2) size(4) reserved(4) = 28. The
// header itself is not 8-byte aligned; Encode pads the whole record
// (header plus body) to a multiple of 8.
const headerSize = 28

const (
	offMagic  = 0
	offFlags  = 1
	offVTable = 2
	offNCols  = 4
	offStamp  = 6
	offUserID = 14
	offHash   = 18
	offSize   = 20
)

// Head is a decoded RecHead.
type Head struct {
	Flags  Flag
	VTable types.VTable
	NCols  uint16
	Stamp  types.Stamp
	UserID uint32
	Hash   uint16
	Size   uint32 // rh_Size: the aligned total record length, header included
}

// ContentHash computes the 16-bit content hash used by the delete-match
// logic to recognize a DELETE record as referring to the same logical
// row as a prior INSERT, independent of the algorithm's exact bits —
// only stability within one table file matters.
func ContentHash(keyValues [][]byte) uint16 {
	h := fnv.New32a()
	for _, v := range keyValues {
		h.Write(v)
		h.Write([]byte{0})
	}
	sum := h.Sum32()
	return uint16(sum ^ (sum >> 16))
}

// Encode serializes one record: header, ncols ColHeads in ascending
// ColId order, then payloads. cols and ids must be the same length and
// ids must already be sorted ascending (the caller — internal/engine —
// owns column ordering).
func Encode(h Head, ids []types.Col, cols []types.ColValue) ([]byte, error) {
	if len(ids) != len(cols) {
		return nil, dberr.Newf(dberr.ErrDataTooSmall, "column id/value count mismatch")
	}

	var body []byte
	for i, id := range ids {
		var idbuf [2]byte
		binary.LittleEndian.PutUint16(idbuf[:], uint16(id))
		body = append(body, idbuf[:]...)

		v := cols[i]
		switch {
		case v.Null:
			body = append(body, lenNull)
		case len(v.Bytes) < int(lenExtended):
			body = append(body, byte(len(v.Bytes)))
		default:
			body = append(body, lenExtended)
			var lb [4]byte
			binary.LittleEndian.PutUint32(lb[:], uint32(len(v.Bytes)))
			body = append(body, lb[:]...)
		}
	}
	for _, v := range cols {
		if v.Null {
			continue
		}
		payload := make([]byte, 0, len(v.Bytes)+2)
		payload = append(payload, v.Bytes...)
		payload = append(payload, 0, 0) // doubly zero-terminated
		for len(payload)%4 != 0 {
			payload = append(payload, 0)
		}
		body = append(body, payload...)
	}

	total := headerSize + len(body)
	padded := (total + 7) &^ 7

	buf := make([]byte, padded)
	buf[offMagic] = Magic
	buf[offFlags] = byte(h.Flags)
	binary.LittleEndian.PutUint16(buf[offVTable:], uint16(h.VTable))
	binary.LittleEndian.PutUint16(buf[offNCols:], uint16(len(ids)))
	binary.LittleEndian.PutUint64(buf[offStamp:], uint64(h.Stamp))
	binary.LittleEndian.PutUint32(buf[offUserID:], h.UserID)
	binary.LittleEndian.PutUint16(buf[offHash:], h.Hash)
	binary.LittleEndian.PutUint32(buf[offSize:], uint32(padded))
	copy(buf[headerSize:], body)
	return buf, nil
}

// Decoded is one fully parsed record.
type Decoded struct {
	Head Head
	IDs  []types.Col
	Cols []types.ColValue
}

// Decode parses one record starting at buf[0]. buf may extend beyond
// the record (it is a DataMap window, not a precisely-sized slice); the
// returned Head.Size tells the caller how many bytes were consumed.
func Decode(buf []byte) (*Decoded, error) {
	if len(buf) < headerSize {
		return nil, dberr.New(dberr.ErrTruncatedTable)
	}
	if buf[offMagic] != Magic {
		return nil, dberr.New(dberr.ErrBadMagic)
	}

	h := Head{
		Flags:  Flag(buf[offFlags]),
		VTable: types.VTable(binary.LittleEndian.Uint16(buf[offVTable:])),
		NCols:  binary.LittleEndian.Uint16(buf[offNCols:]),
		Stamp:  types.Stamp(binary.LittleEndian.Uint64(buf[offStamp:])),
		UserID: binary.LittleEndian.Uint32(buf[offUserID:]),
		Hash:   binary.LittleEndian.Uint16(buf[offHash:]),
		Size:   binary.LittleEndian.Uint32(buf[offSize:]),
	}
	if int(h.Size) > len(buf) || h.Size < headerSize {
		return nil, dberr.New(dberr.ErrCorruptFile)
	}

	pos := headerSize
	ids := make([]types.Col, h.NCols)
	lens := make([]int, h.NCols)
	nulls := make([]bool, h.NCols)
	for i := 0; i < int(h.NCols); i++ {
		if pos+2+1 > len(buf) {
			return nil, dberr.New(dberr.ErrCorruptFile)
		}
		ids[i] = types.Col(binary.LittleEndian.Uint16(buf[pos:]))
		pos += 2
		tag := buf[pos]
		pos++
		switch tag {
		case lenNull:
			nulls[i] = true
		case lenExtended:
			if pos+4 > len(buf) {
				return nil, dberr.New(dberr.ErrCorruptFile)
			}
			lens[i] = int(binary.LittleEndian.Uint32(buf[pos:]))
			pos += 4
		default:
			lens[i] = int(tag)
		}
	}

	payloadStart := pos
	cols := make([]types.ColValue, h.NCols)
	for i := 0; i < int(h.NCols); i++ {
		if nulls[i] {
			cols[i] = types.ColValue{Null: true}
			continue
		}
		n := lens[i]
		if pos+n > len(buf) {
			return nil, dberr.New(dberr.ErrCorruptFile)
		}
		data := make([]byte, n)
		copy(data, buf[pos:pos+n])
		cols[i] = types.ColValue{Bytes: data}
		pos += n + 2 // skip payload + double zero terminator
		for (pos-payloadStart)%4 != 0 {
			pos++
		}
	}

	return &Decoded{Head: h, IDs: ids, Cols: cols}, nil
}
