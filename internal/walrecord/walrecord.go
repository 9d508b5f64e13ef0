// Package walrecord defines the typed, length-prefixed record framing
// written to a database's per-transaction log segments
// (log_NNNNNNNNN.lg0, spec.md §6): heartbeat, begin, commit, file-id,
// append-offset, table-data, and index-data records, each carrying a
// sequence number for recovery replay.
package walrecord

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
)

// Kind identifies a log record's payload shape.
type Kind uint8

const (
	Heartbeat Kind = iota + 1
	Begin
	Commit
	FileID
	AppendOffset
	TableData
	IndexData
)

func (k Kind) String() string {
	switch k {
	case Heartbeat:
		return "HEARTBEAT"
	case Begin:
		return "BEGIN"
	case Commit:
		return "COMMIT"
	case FileID:
		return "FILE_ID"
	case AppendOffset:
		return "APPEND_OFFSET"
	case TableData:
		return "TABLE_DATA"
	case IndexData:
		return "INDEX_DATA"
	default:
		return "UNKNOWN"
	}
}

// HeaderSize is the fixed size of a record's header: Kind(1) + pad(3) +
// Length(4) + Seq(8) + CRC32(4) + pad(4), a multiple of 8 bytes.
const HeaderSize = 24

// Align8 rounds size up to the next 8-byte boundary.
func Align8(size int) int {
	return (size + 7) &^ 7
}

// Record is one decoded log entry: its header fields plus the raw
// payload bytes that follow (table-data records carry a payload;
// HEARTBEAT carries none).
type Record struct {
	Kind    Kind
	Seq     uint64
	Payload []byte
}

// Encode serializes r into a header-plus-payload buffer padded out to
// the next 8-byte boundary, with a CRC32 computed over Payload alone
// (the header's own bytes are never covered by the checksum).
func Encode(r Record) []byte {
	total := Align8(HeaderSize + len(r.Payload))
	buf := make([]byte, total)
	buf[0] = byte(r.Kind)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(HeaderSize+len(r.Payload)))
	binary.LittleEndian.PutUint64(buf[8:16], r.Seq)
	binary.LittleEndian.PutUint32(buf[16:20], crc32.ChecksumIEEE(r.Payload))
	copy(buf[HeaderSize:], r.Payload)
	return buf
}

// Decode parses one record out of buf, which must hold at least
// HeaderSize bytes; it does not require buf to be trimmed to the
// record's own aligned length, only to contain it.
func Decode(buf []byte) (Record, error) {
	if len(buf) < HeaderSize {
		return Record{}, dberr.New(dberr.ErrShortReadWrite)
	}
	kind := Kind(buf[0])
	length := binary.LittleEndian.Uint32(buf[4:8])
	if int(length) < HeaderSize || int(length) > len(buf) {
		return Record{}, dberr.New(dberr.ErrShortReadWrite)
	}
	seq := binary.LittleEndian.Uint64(buf[8:16])
	wantCRC := binary.LittleEndian.Uint32(buf[16:20])
	payload := buf[HeaderSize:length]
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return Record{}, dberr.New(dberr.ErrCorruptFile)
	}
	return Record{Kind: kind, Seq: seq, Payload: payload}, nil
}

// EncodeBegin builds a BEGIN record for the transaction identified by
// writeTs.
func EncodeBegin(seq uint64, writeTs uint64) []byte {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, writeTs)
	return Encode(Record{Kind: Begin, Seq: seq, Payload: payload})
}

// EncodeCommit builds a COMMIT record for the transaction identified by
// writeTs.
func EncodeCommit(seq uint64, writeTs uint64) []byte {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, writeTs)
	return Encode(Record{Kind: Commit, Seq: seq, Payload: payload})
}

// EncodeHeartbeat builds a HEARTBEAT record, carrying no payload beyond
// the sequence number recovery uses to detect a gap in the log.
func EncodeHeartbeat(seq uint64) []byte {
	return Encode(Record{Kind: Heartbeat, Seq: seq})
}

// EncodeFileID builds a FILE_ID record associating a physical file's
// short name with the vtable it backs.
func EncodeFileID(seq uint64, vtable uint16, name string) []byte {
	payload := make([]byte, 2+len(name))
	binary.LittleEndian.PutUint16(payload, vtable)
	copy(payload[2:], name)
	return Encode(Record{Kind: FileID, Seq: seq, Payload: payload})
}

// EncodeAppendOffset builds an APPEND_OFFSET record recording a
// physical file's append cursor at this point in the log.
func EncodeAppendOffset(seq uint64, vtable uint16, offset uint64) []byte {
	payload := make([]byte, 10)
	binary.LittleEndian.PutUint16(payload[0:2], vtable)
	binary.LittleEndian.PutUint64(payload[2:10], offset)
	return Encode(Record{Kind: AppendOffset, Seq: seq, Payload: payload})
}

// EncodeTableData builds a TABLE_DATA record carrying one written
// record's raw bytes for a table file, for recovery replay.
func EncodeTableData(seq uint64, vtable uint16, raw []byte) []byte {
	payload := make([]byte, 2+len(raw))
	binary.LittleEndian.PutUint16(payload, vtable)
	copy(payload[2:], raw)
	return Encode(Record{Kind: TableData, Seq: seq, Payload: payload})
}

// EncodeIndexData builds an INDEX_DATA record carrying one index
// mutation's raw bytes, for recovery replay against an index file.
func EncodeIndexData(seq uint64, vtable uint16, col uint16, raw []byte) []byte {
	payload := make([]byte, 4+len(raw))
	binary.LittleEndian.PutUint16(payload[0:2], vtable)
	binary.LittleEndian.PutUint16(payload[2:4], col)
	copy(payload[4:], raw)
	return Encode(Record{Kind: IndexData, Seq: seq, Payload: payload})
}
