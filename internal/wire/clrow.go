package wire

import (
	"encoding/binary"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// CLRowMsg is CmdResult's body: a batch of materialized rows packed as
// one flat offsets table plus one trailing data blob, so the receiver
// never allocates per-value. ShowCount is the column count of every
// row in the batch; Offsets holds ShowCount*len(rows)+1 entries, the
// byte boundaries of each value inside Data in row-major order. A NULL
// value is encoded as two adjacent equal offsets (a zero-length span);
// it carries no bytes of its own.
type CLRowMsg struct {
	ShowCount uint32
	Offsets   []uint32
	Data      []byte
}

// EncodeCLRowMsg packs rows (each exactly showCount ColValues, in
// display order) into a CLRowMsg.
func EncodeCLRowMsg(showCount int, rows [][]types.ColValue) CLRowMsg {
	offsets := make([]uint32, 0, showCount*len(rows)+1)
	var data []byte
	offsets = append(offsets, 0)
	for _, row := range rows {
		for _, v := range row {
			if !v.Null {
				data = append(data, v.Bytes...)
			}
			offsets = append(offsets, uint32(len(data)))
		}
	}
	return CLRowMsg{ShowCount: uint32(showCount), Offsets: offsets, Data: data}
}

func (m CLRowMsg) Encode(order binary.ByteOrder) []byte {
	count := len(m.Offsets)
	buf := make([]byte, 0, 8+4*count+len(m.Data))
	var u32 [4]byte
	order.PutUint32(u32[:], m.ShowCount)
	buf = append(buf, u32[:]...)
	order.PutUint32(u32[:], uint32(count))
	buf = append(buf, u32[:]...)
	for _, off := range m.Offsets {
		order.PutUint32(u32[:], off)
		buf = append(buf, u32[:]...)
	}
	return append(buf, m.Data...)
}

func DecodeCLRowMsg(buf []byte, order binary.ByteOrder) (*CLRowMsg, error) {
	if len(buf) < 8 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	showCount := order.Uint32(buf[0:4])
	count := int(order.Uint32(buf[4:8]))
	pos := 8
	if pos+4*count > len(buf) {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	offsets := make([]uint32, count)
	for i := 0; i < count; i++ {
		offsets[i] = order.Uint32(buf[pos : pos+4])
		pos += 4
	}
	return &CLRowMsg{ShowCount: showCount, Offsets: offsets, Data: buf[pos:]}, nil
}

// Rows reconstructs the materialized rows a CLRowMsg carries.
func (m CLRowMsg) Rows() ([][]types.ColValue, error) {
	if m.ShowCount == 0 {
		return nil, nil
	}
	if (len(m.Offsets)-1)%int(m.ShowCount) != 0 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	nrows := (len(m.Offsets) - 1) / int(m.ShowCount)
	rows := make([][]types.ColValue, 0, nrows)
	idx := 0
	for r := 0; r < nrows; r++ {
		row := make([]types.ColValue, m.ShowCount)
		for c := 0; c < int(m.ShowCount); c++ {
			start, end := m.Offsets[idx], m.Offsets[idx+1]
			if end > uint32(len(m.Data)) || start > end {
				return nil, dberr.New(dberr.ErrShortReadWrite)
			}
			if start == end {
				row[c] = types.ColValue{Null: true}
			} else {
				row[c] = types.ColValue{Bytes: m.Data[start:end]}
			}
			idx++
		}
		rows = append(rows, row)
	}
	return rows, nil
}
