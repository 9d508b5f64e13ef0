package tablefile

import (
	"path/filepath"
	"testing"

	"github.com/jonahharris/osdb-backplane-sub001/internal/record"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

func newTestFile(t *testing.T) *TableFile {
	t.Helper()
	dir := t.TempDir()
	tf, err := Create(filepath.Join(dir, "widgets.dt0"), minBlockSize, 1, 1000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { tf.Close() })
	return tf
}

func TestCreateWritesMetadataBlock(t *testing.T) {
	tf := newTestFile(t)
	h := tf.Header()
	if h.BlockSize != minBlockSize {
		t.Fatalf("got block size %d", h.BlockSize)
	}
	if h.Append != int64(minBlockSize) {
		t.Fatalf("expected append to start after block 0, got %d", h.Append)
	}
}

func TestReopenRoundTripsHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.dt0")
	tf, err := Create(path, minBlockSize, 3, 42)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tf.SetSyncStamp(99); err != nil {
		t.Fatalf("set sync stamp: %v", err)
	}
	tf.Close()

	tf2, err := Open(path, 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tf2.Close()
	h := tf2.Header()
	if h.SyncStamp != 99 || h.CreateStamp != 42 {
		t.Fatalf("got header %+v", h)
	}
}

func TestAppendAdvancesOffsetAndPersists(t *testing.T) {
	tf := newTestFile(t)
	rec, err := record.Encode(record.Head{Flags: record.FlagInsert, VTable: 2, Stamp: 1},
		[]types.Col{types.FirstUserCol}, []types.ColValue{{Bytes: []byte("hello")}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	off, err := tf.Append(rec)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if off != types.Off(minBlockSize) {
		t.Fatalf("expected first record right after the metadata block, got %d", off)
	}

	buf, err := tf.ReadAt(off, len(rec))
	if err != nil {
		t.Fatalf("readat: %v", err)
	}
	d, err := record.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(d.Cols[0].Bytes) != "hello" {
		t.Fatalf("got %q", d.Cols[0].Bytes)
	}
}

func TestAppendSkipsBlockBoundary(t *testing.T) {
	tf := newTestFile(t)
	big := make([]byte, minBlockSize-64) // big enough to leave little room in the block
	for i := range big {
		big[i] = 'x'
	}
	rec1, _ := record.Encode(record.Head{Flags: record.FlagInsert, VTable: 2, Stamp: 1},
		[]types.Col{types.FirstUserCol}, []types.ColValue{{Bytes: big}})
	off1, err := tf.Append(rec1)
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}

	small, _ := record.Encode(record.Head{Flags: record.FlagInsert, VTable: 2, Stamp: 2},
		[]types.Col{types.FirstUserCol}, []types.ColValue{{Bytes: []byte("y")}})
	off2, err := tf.Append(small)
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}

	blockSize := int64(minBlockSize)
	block1 := int64(off1) / blockSize
	block2 := int64(off2) / blockSize
	if block2 == block1 && int64(off1)+int64(len(rec1))+int64(len(small)) > (block1+1)*blockSize {
		t.Fatalf("expected record crossing the boundary to skip to the next block")
	}
}

func TestNextStampIsMonotonic(t *testing.T) {
	tf := newTestFile(t)
	var last types.Stamp
	for i := 0; i < 100; i++ {
		s := tf.NextStamp()
		if s <= last {
			t.Fatalf("stamp went backward or stayed flat: %d -> %d", last, s)
		}
		last = s
	}
}

func TestDataMapCachesWindowsByBlock(t *testing.T) {
	tf := newTestFile(t)
	m1, err := tf.GetDataMap(types.Off(minBlockSize))
	if err != nil {
		t.Fatalf("get data map: %v", err)
	}
	defer m1.Release()
	m2, err := tf.GetDataMap(types.Off(minBlockSize) + 10)
	if err != nil {
		t.Fatalf("get data map: %v", err)
	}
	defer m2.Release()
	if m1 != m2 {
		t.Fatalf("expected the same cached window for offsets in the same block")
	}
}
