// Package tablefile implements the append-only physical table store
// described in spec.md §3/§4.4: TableFile metadata at the start of the
// first block (blocks carry no per-block header), and block-aligned
// records that never straddle a block boundary.
package tablefile

import (
	"encoding/binary"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// blockMagic marks the start of the metadata block at file offset 0
// (not to be confused with record.Magic, which marks a record).
const blockMagic uint32 = 0x4B4C4230 // "0BLK"

// fileVersion is the only TableFile header version this package knows
// how to open.
const fileVersion uint32 = 1

// minBlockSize and maxBlockSize bound the configurable block size
// (spec.md §3: "powers of two between 4KiB and 8MiB").
const (
	minBlockSize = 4 * 1024
	maxBlockSize = 8 * 1024 * 1024
	defaultBlockSize = 128 * 1024
)

// headerLayout: the fixed-size TableFile metadata block, present once,
// at the very start of block 0.
//
//	u32 blockMagic
//	u32 version
//	u32 blockSize
//	u32 dataOffset      // first byte usable for records
//	i64 fileSize        // current physical length
//	i64 append          // tf_Append: coherent append offset
//	u64 historyStart    // oldest stamp still guaranteed retained
//	u64 syncStamp       // highest stamp durably committed
//	u64 nextStamp       // next-stamp allocator state
//	u32 generation      // bumped on any structural change; invalidates index caches
//	u64 createStamp     // groupid: stamp this file was created at
//	u16 nameLen
//	... name bytes, zero-padded to a fixed slot
const (
	headerFixedSize = 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + 8 + 4 + 8 + 2
	nameSlotSize    = 128
	metaBlockSize   = headerFixedSize + nameSlotSize
)

// Header is the decoded TableFile metadata.
type Header struct {
	BlockSize    int
	DataOffset   int64
	FileSize     int64
	Append       int64
	HistoryStart types.Stamp
	SyncStamp    types.Stamp
	NextStamp    types.Stamp
	Generation   uint32
	CreateStamp  types.Stamp
	Name         string

	// LastError is the most recently observed I/O failure, retained for
	// diagnostics; it does not gate further operations.
	LastError error
}

func encodeHeader(h *Header) []byte {
	buf := make([]byte, metaBlockSize)
	binary.LittleEndian.PutUint32(buf[0:], blockMagic)
	binary.LittleEndian.PutUint32(buf[4:], fileVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(h.BlockSize))
	binary.LittleEndian.PutUint32(buf[12:], uint32(h.DataOffset))
	binary.LittleEndian.PutUint64(buf[16:], uint64(h.FileSize))
	binary.LittleEndian.PutUint64(buf[24:], uint64(h.Append))
	binary.LittleEndian.PutUint64(buf[32:], uint64(h.HistoryStart))
	binary.LittleEndian.PutUint64(buf[40:], uint64(h.SyncStamp))
	binary.LittleEndian.PutUint64(buf[48:], uint64(h.NextStamp))
	binary.LittleEndian.PutUint32(buf[56:], h.Generation)
	binary.LittleEndian.PutUint64(buf[60:], uint64(h.CreateStamp))
	name := []byte(h.Name)
	if len(name) > nameSlotSize-1 {
		name = name[:nameSlotSize-1]
	}
	binary.LittleEndian.PutUint16(buf[68:], uint16(len(name)))
	copy(buf[headerFixedSize:], name)
	return buf
}

func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < headerFixedSize {
		return nil, dberr.New(dberr.ErrTruncatedTable)
	}
	if binary.LittleEndian.Uint32(buf[0:]) != blockMagic {
		return nil, dberr.New(dberr.ErrBadMagic)
	}
	if binary.LittleEndian.Uint32(buf[4:]) != fileVersion {
		return nil, dberr.New(dberr.ErrBadVersion)
	}
	h := &Header{
		BlockSize:    int(binary.LittleEndian.Uint32(buf[8:])),
		DataOffset:   int64(binary.LittleEndian.Uint32(buf[12:])),
		FileSize:     int64(binary.LittleEndian.Uint64(buf[16:])),
		Append:       int64(binary.LittleEndian.Uint64(buf[24:])),
		HistoryStart: types.Stamp(binary.LittleEndian.Uint64(buf[32:])),
		SyncStamp:    types.Stamp(binary.LittleEndian.Uint64(buf[40:])),
		NextStamp:    types.Stamp(binary.LittleEndian.Uint64(buf[48:])),
		Generation:   binary.LittleEndian.Uint32(buf[56:]),
		CreateStamp:  types.Stamp(binary.LittleEndian.Uint64(buf[60:])),
	}
	nameLen := int(binary.LittleEndian.Uint16(buf[68:]))
	if headerFixedSize+nameLen > len(buf) {
		return nil, dberr.New(dberr.ErrCorruptFile)
	}
	h.Name = string(buf[headerFixedSize : headerFixedSize+nameLen])
	return h, nil
}

func validBlockSize(n int) bool {
	if n < minBlockSize || n > maxBlockSize {
		return false
	}
	return n&(n-1) == 0
}
