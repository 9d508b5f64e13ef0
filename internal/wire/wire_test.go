package wire

import (
	"encoding/binary"
	"testing"

	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

func TestHeaderRoundTripLittleEndian(t *testing.T) {
	h := Header{Command: CmdBeginTran, Flags: uint16(BeginReadOnly), TotalBytes: 20, Order: binary.LittleEndian}
	buf := EncodeHeader(h)
	if len(buf) != HeaderSize {
		t.Fatalf("expected %d bytes, got %d", HeaderSize, len(buf))
	}
	if buf[0] != MagicLittle {
		t.Fatalf("expected little-endian magic, got %#x", buf[0])
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Command != h.Command || got.Flags != h.Flags || got.TotalBytes != h.TotalBytes {
		t.Fatalf("got %+v", got)
	}
}

func TestHeaderRoundTripBigEndianSwap(t *testing.T) {
	h := Header{Command: CmdResult, TotalBytes: 128, Error: -21, Order: binary.BigEndian}
	buf := EncodeHeader(h)
	if buf[0] != MagicBig {
		t.Fatalf("expected big-endian magic, got %#x", buf[0])
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Order != binary.BigEndian {
		t.Fatalf("expected decoder to recover big-endian order from magic")
	}
	if got.Command != h.Command || got.Error != h.Error {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0x00
	if _, err := DecodeHeader(buf); err == nil {
		t.Fatalf("expected an error for an unrecognized magic byte")
	}
}

func TestHelloBodyRoundTrip(t *testing.T) {
	b := HelloBody{SyncTs: 100, MinCTs: 50, BlockSize: 4096, DBName: "widgets"}
	buf := b.Encode(binary.LittleEndian)
	got, err := DecodeHelloBody(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != b {
		t.Fatalf("got %+v, want %+v", *got, b)
	}
}

func TestCommit2BodyRoundTrip(t *testing.T) {
	b := Commit2Body{MinCTs: 777, UserID: 9}
	buf := b.Encode(binary.BigEndian)
	got, err := DecodeCommit2Body(buf, binary.BigEndian)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != b {
		t.Fatalf("got %+v, want %+v", *got, b)
	}
}

func TestResultOrderBodyRoundTrip(t *testing.T) {
	b := ResultOrderBody{Cols: []SortEntry{{ColIndex: 2, Desc: true}, {ColIndex: 0, Desc: false}}}
	buf := b.Encode(binary.LittleEndian)
	got, err := DecodeResultOrderBody(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Cols) != 2 || got.Cols[0] != b.Cols[0] || got.Cols[1] != b.Cols[1] {
		t.Fatalf("got %+v", got.Cols)
	}
}

func TestCLRowMsgRoundTripWithNull(t *testing.T) {
	rows := [][]types.ColValue{
		{{Bytes: []byte("gizmo")}, {Null: true}},
		{{Bytes: []byte("widget")}, {Bytes: []byte("42")}},
	}
	msg := EncodeCLRowMsg(2, rows)
	buf := msg.Encode(binary.LittleEndian)

	decoded, err := DecodeCLRowMsg(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := decoded.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if string(got[0][0].Bytes) != "gizmo" || !got[0][1].Null {
		t.Fatalf("row 0 = %+v", got[0])
	}
	if string(got[1][0].Bytes) != "widget" || string(got[1][1].Bytes) != "42" {
		t.Fatalf("row 1 = %+v", got[1])
	}
}

func TestResultLimitBodyRoundTrip(t *testing.T) {
	b := ResultLimitBody{StartRow: 10, MaxRows: 100}
	buf := b.Encode(binary.LittleEndian)
	got, err := DecodeResultLimitBody(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != b {
		t.Fatalf("got %+v, want %+v", *got, b)
	}
}
