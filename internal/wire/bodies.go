package wire

import (
	"encoding/binary"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// putString appends a uint16 length prefix and s's bytes.
func putString(buf []byte, order binary.ByteOrder, s string) []byte {
	var lb [2]byte
	order.PutUint16(lb[:], uint16(len(s)))
	buf = append(buf, lb[:]...)
	return append(buf, s...)
}

// getString reads a putString-encoded string starting at buf[pos],
// returning the string and the position just past it.
func getString(buf []byte, order binary.ByteOrder, pos int) (string, int, error) {
	if pos+2 > len(buf) {
		return "", 0, dberr.New(dberr.ErrShortReadWrite)
	}
	n := int(order.Uint16(buf[pos : pos+2]))
	pos += 2
	if pos+n > len(buf) {
		return "", 0, dberr.New(dberr.ErrShortReadWrite)
	}
	return string(buf[pos : pos+n]), pos + n, nil
}

// HelloBody is CmdHello's request/reply payload: the replication sync
// horizon, the minimum commit timestamp a client should honor, the
// negotiated block size, and the requested database name.
type HelloBody struct {
	SyncTs    types.Stamp
	MinCTs    types.Stamp
	BlockSize uint32
	DBName    string
}

func (b HelloBody) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 0, 20+len(b.DBName))
	var u64 [8]byte
	order.PutUint64(u64[:], uint64(b.SyncTs))
	buf = append(buf, u64[:]...)
	order.PutUint64(u64[:], uint64(b.MinCTs))
	buf = append(buf, u64[:]...)
	var u32 [4]byte
	order.PutUint32(u32[:], b.BlockSize)
	buf = append(buf, u32[:]...)
	return putString(buf, order, b.DBName)
}

func DecodeHelloBody(buf []byte, order binary.ByteOrder) (*HelloBody, error) {
	if len(buf) < 20 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	name, _, err := getString(buf, order, 20)
	if err != nil {
		return nil, err
	}
	return &HelloBody{
		SyncTs:    types.Stamp(order.Uint64(buf[0:8])),
		MinCTs:    types.Stamp(order.Uint64(buf[8:16])),
		BlockSize: order.Uint32(buf[16:20]),
		DBName:    name,
	}, nil
}

// BeginTranBody is CmdBeginTran's body: the freeze timestamp a new
// transaction is pushed at. READONLY/RWSYNC/STREAM travel in the
// frame header's Flags field as BeginFlag bits, not in this body.
type BeginTranBody struct {
	FreezeTs types.Stamp
}

func (b BeginTranBody) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 8)
	order.PutUint64(buf, uint64(b.FreezeTs))
	return buf
}

func DecodeBeginTranBody(buf []byte, order binary.ByteOrder) (*BeginTranBody, error) {
	if len(buf) < 8 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	return &BeginTranBody{FreezeTs: types.Stamp(order.Uint64(buf[:8]))}, nil
}

// Commit1Body is CmdCommit1Tran's in/out body: a caller-supplied lower
// bound on request, the reserved minCTs on reply.
type Commit1Body struct {
	MinCTs types.Stamp
}

func (b Commit1Body) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 8)
	order.PutUint64(buf, uint64(b.MinCTs))
	return buf
}

func DecodeCommit1Body(buf []byte, order binary.ByteOrder) (*Commit1Body, error) {
	if len(buf) < 8 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	return &Commit1Body{MinCTs: types.Stamp(order.Uint64(buf[:8]))}, nil
}

// Commit2Body is CmdCommit2Tran's body: the commit timestamp to apply
// at and the user id attributed to the writes.
type Commit2Body struct {
	MinCTs types.Stamp
	UserID uint32
}

func (b Commit2Body) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 12)
	order.PutUint64(buf[0:8], uint64(b.MinCTs))
	order.PutUint32(buf[8:12], b.UserID)
	return buf
}

func DecodeCommit2Body(buf []byte, order binary.ByteOrder) (*Commit2Body, error) {
	if len(buf) < 12 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	return &Commit2Body{
		MinCTs: types.Stamp(order.Uint64(buf[0:8])),
		UserID: order.Uint32(buf[8:12]),
	}, nil
}

// stampBody is the shape shared by SYNC_STAMP, UPDATE_SYNCTS,
// UPDATE_STAMPID, and WAIT_TRAN: a single 64-bit stamp.
type stampBody struct {
	Stamp types.Stamp
}

func (b stampBody) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 8)
	order.PutUint64(buf, uint64(b.Stamp))
	return buf
}

func decodeStampBody(buf []byte, order binary.ByteOrder) (*stampBody, error) {
	if len(buf) < 8 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	return &stampBody{Stamp: types.Stamp(order.Uint64(buf[:8]))}, nil
}

// SyncStampBody, UpdateSyncTsBody, UpdateStampIDBody, and WaitTranBody
// are distinctly named aliases of stampBody's wire shape, kept separate
// so dispatch's switch reads as one case per command rather than one
// shared struct standing in for four different commands.
type (
	SyncStampBody    = stampBody
	UpdateSyncTsBody = stampBody
	UpdateStampIDBody = stampBody
	WaitTranBody     = stampBody
)

func DecodeSyncStampBody(buf []byte, order binary.ByteOrder) (*SyncStampBody, error) {
	return decodeStampBody(buf, order)
}

func DecodeUpdateSyncTsBody(buf []byte, order binary.ByteOrder) (*UpdateSyncTsBody, error) {
	return decodeStampBody(buf, order)
}

func DecodeUpdateStampIDBody(buf []byte, order binary.ByteOrder) (*UpdateStampIDBody, error) {
	return decodeStampBody(buf, order)
}

func DecodeWaitTranBody(buf []byte, order binary.ByteOrder) (*WaitTranBody, error) {
	return decodeStampBody(buf, order)
}

// RawReadBody is CmdRawRead's body: the replication stamp window to
// stream RAWDATA records for.
type RawReadBody struct {
	StartTs types.Stamp
	EndTs   types.Stamp
}

func (b RawReadBody) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 16)
	order.PutUint64(buf[0:8], uint64(b.StartTs))
	order.PutUint64(buf[8:16], uint64(b.EndTs))
	return buf
}

func DecodeRawReadBody(buf []byte, order binary.ByteOrder) (*RawReadBody, error) {
	if len(buf) < 16 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	return &RawReadBody{
		StartTs: types.Stamp(order.Uint64(buf[0:8])),
		EndTs:   types.Stamp(order.Uint64(buf[8:16])),
	}, nil
}

// RawWriteBody is CmdRawWrite's body, opening a raw replication write
// session over [StartTs, EndTs).
type RawWriteBody struct {
	StartTs types.Stamp
	EndTs   types.Stamp
}

func (b RawWriteBody) Encode(order binary.ByteOrder) []byte {
	return RawReadBody(b).Encode(order)
}

func DecodeRawWriteBody(buf []byte, order binary.ByteOrder) (*RawWriteBody, error) {
	b, err := DecodeRawReadBody(buf, order)
	if err != nil {
		return nil, err
	}
	rw := RawWriteBody(*b)
	return &rw, nil
}

// RawWriteEndBody closes a raw write session at EndTs.
type RawWriteEndBody struct {
	EndTs types.Stamp
}

func (b RawWriteEndBody) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 8)
	order.PutUint64(buf, uint64(b.EndTs))
	return buf
}

func DecodeRawWriteEndBody(buf []byte, order binary.ByteOrder) (*RawWriteEndBody, error) {
	if len(buf) < 8 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	return &RawWriteEndBody{EndTs: types.Stamp(order.Uint64(buf[:8]))}, nil
}

// RawDataFileBody is CmdRawDataFile's body, announcing the start of one
// physical file's worth of replicated records.
type RawDataFileBody struct {
	BlockSize uint32
	Filename  string
}

func (b RawDataFileBody) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 0, 6+len(b.Filename))
	var u32 [4]byte
	order.PutUint32(u32[:], b.BlockSize)
	buf = append(buf, u32[:]...)
	return putString(buf, order, b.Filename)
}

func DecodeRawDataFileBody(buf []byte, order binary.ByteOrder) (*RawDataFileBody, error) {
	if len(buf) < 4 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	name, _, err := getString(buf, order, 4)
	if err != nil {
		return nil, err
	}
	return &RawDataFileBody{BlockSize: order.Uint32(buf[0:4]), Filename: name}, nil
}

// ContinueBody is CmdContinue's body: the byte credit the client is
// returning to the stall-count scheme (spec.md §4.7 Flow control).
type ContinueBody struct {
	Credit uint32
}

func (b ContinueBody) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 4)
	order.PutUint32(buf, b.Credit)
	return buf
}

func DecodeContinueBody(buf []byte, order binary.ByteOrder) (*ContinueBody, error) {
	if len(buf) < 4 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	return &ContinueBody{Credit: order.Uint32(buf[:4])}, nil
}

// SortEntry is one column in a RESULT_ORDER descriptor.
type SortEntry struct {
	ColIndex uint16
	Desc     bool
}

// ResultOrderBody is CmdResultOrder's body: the ORDER BY column set the
// client should sort delivered rows by, for the cases where the server
// streams unsorted and leaves ordering to the client (SPEC_FULL.md
// Open Questions: large result sets skip server-side sort buffering).
type ResultOrderBody struct {
	Cols []SortEntry
}

func (b ResultOrderBody) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 2, 2+3*len(b.Cols))
	order.PutUint16(buf, uint16(len(b.Cols)))
	for _, c := range b.Cols {
		var cb [2]byte
		order.PutUint16(cb[:], c.ColIndex)
		buf = append(buf, cb[:]...)
		if c.Desc {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func DecodeResultOrderBody(buf []byte, order binary.ByteOrder) (*ResultOrderBody, error) {
	if len(buf) < 2 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	n := int(order.Uint16(buf[0:2]))
	pos := 2
	cols := make([]SortEntry, 0, n)
	for i := 0; i < n; i++ {
		if pos+3 > len(buf) {
			return nil, dberr.New(dberr.ErrShortReadWrite)
		}
		cols = append(cols, SortEntry{
			ColIndex: order.Uint16(buf[pos : pos+2]),
			Desc:     buf[pos+2] != 0,
		})
		pos += 3
	}
	return &ResultOrderBody{Cols: cols}, nil
}

// ResultLimitBody is CmdResultLimit's body.
type ResultLimitBody struct {
	StartRow int32
	MaxRows  int32
}

func (b ResultLimitBody) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, 8)
	order.PutUint32(buf[0:4], uint32(b.StartRow))
	order.PutUint32(buf[4:8], uint32(b.MaxRows))
	return buf
}

func DecodeResultLimitBody(buf []byte, order binary.ByteOrder) (*ResultLimitBody, error) {
	if len(buf) < 8 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	return &ResultLimitBody{
		StartRow: int32(order.Uint32(buf[0:4])),
		MaxRows:  int32(order.Uint32(buf[4:8])),
	}, nil
}
