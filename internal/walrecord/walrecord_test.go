package walrecord

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
	}{
		{"heartbeat", EncodeHeartbeat(1)},
		{"begin", EncodeBegin(2, 100)},
		{"commit", EncodeCommit(3, 100)},
		{"fileID", EncodeFileID(4, 7, "widgets.dt0")},
		{"appendOffset", EncodeAppendOffset(5, 7, 4096)},
		{"tableData", EncodeTableData(6, 7, []byte("row bytes"))},
		{"indexData", EncodeIndexData(7, 7, 2, []byte("index bytes"))},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if len(c.buf)%8 != 0 {
				t.Fatalf("record not 8-byte aligned: %d bytes", len(c.buf))
			}
			rec, err := Decode(c.buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if rec.Seq == 0 {
				t.Fatalf("expected a nonzero sequence number")
			}
		})
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	buf := EncodeTableData(1, 3, []byte("hello"))
	corrupt := make([]byte, len(buf))
	copy(corrupt, buf)
	corrupt[HeaderSize] ^= 0xFF

	if _, err := Decode(corrupt); err == nil {
		t.Fatal("expected a corrupted payload to fail its CRC32 check")
	}
}

func TestFileIDRoundTripsName(t *testing.T) {
	buf := EncodeFileID(9, 12, "sys.dt0")
	rec, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.Kind != FileID {
		t.Fatalf("got kind %s, want FILE_ID", rec.Kind)
	}
	name := string(rec.Payload[2:])
	if name != "sys.dt0" {
		t.Fatalf("got name %q, want sys.dt0", name)
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected a short buffer to be rejected")
	}
}

func TestEncodePadsToAlignment(t *testing.T) {
	buf := EncodeTableData(1, 1, []byte("x"))
	if len(buf)%8 != 0 {
		t.Fatalf("expected 8-byte-aligned output, got %d bytes", len(buf))
	}
	if !bytes.HasPrefix(buf[HeaderSize:], []byte{1, 0, 'x'}) {
		t.Fatalf("unexpected payload prefix: %v", buf[HeaderSize:])
	}
}
