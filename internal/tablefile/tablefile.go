package tablefile

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// TableFile is an open append-only physical table, as described in
// spec.md §3. Advancing Append is serialized: appendMu is held for the
// duration of a single Append call, matching the "single writer"
// contract; readers use the DataMap cache independently.
type TableFile struct {
	path string
	f    *os.File
	lock *flock.Flock

	appendMu sync.Mutex
	hdr      Header

	maps *dataMapCache

	dbID byte // low-8-bit per-database stamp discriminator (DBSTAMP_ID_MASK)

	lastStampMu sync.Mutex
	lastClock   types.Stamp // guards against wall-clock regression

	ranges rangeLocks
}

// Create creates a new table file at path with the given block size
// (0 selects the default) and per-database stamp discriminator.
func Create(path string, blockSize int, dbID byte, createStamp types.Stamp) (*TableFile, error) {
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	if !validBlockSize(blockSize) {
		return nil, dberr.Newf(dberr.ErrBadVersion, "block size %d must be a power of two in [%d,%d]", blockSize, minBlockSize, maxBlockSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, dberr.Wrap(dberr.ErrCannotOpen, err)
	}

	hdr := Header{
		BlockSize:    blockSize,
		DataOffset:   int64(blockSize), // block 0 is metadata-only
		FileSize:     int64(blockSize),
		Append:       int64(blockSize),
		HistoryStart: createStamp,
		SyncStamp:    0,
		NextStamp:    createStamp,
		Generation:   1,
		CreateStamp:  createStamp,
		Name:         filepath.Base(path),
	}

	block0 := make([]byte, blockSize)
	copy(block0, encodeHeader(&hdr))
	if _, err := f.WriteAt(block0, 0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, dberr.Wrap(dberr.ErrShortReadWrite, err)
	}

	tf := &TableFile{
		path: path,
		f:    f,
		lock: flock.New(path + ".lock"),
		hdr:  hdr,
		dbID: dbID,
	}
	tf.maps = newDataMapCache(tf, defaultCacheBudget)
	return tf, nil
}

// Open opens an existing table file and reads its metadata block.
func Open(path string, dbID byte) (*TableFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, dberr.Wrap(dberr.ErrCannotOpen, err)
	}
	meta := make([]byte, metaBlockSize)
	if _, err := f.ReadAt(meta, 0); err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.ErrShortReadWrite, err)
	}
	hdr, err := decodeHeader(meta)
	if err != nil {
		f.Close()
		return nil, err
	}
	tf := &TableFile{
		path: path,
		f:    f,
		lock: flock.New(path + ".lock"),
		hdr:  *hdr,
		dbID: dbID,
	}
	tf.maps = newDataMapCache(tf, defaultCacheBudget)
	return tf, nil
}

// Close releases the underlying file handle. Pending DataMap windows
// are invalidated; callers must not use them afterward.
func (tf *TableFile) Close() error {
	tf.maps.closeAll()
	return tf.f.Close()
}

// Header returns a snapshot of the current metadata. Safe to call
// concurrently with Append.
func (tf *TableFile) Header() Header {
	tf.appendMu.Lock()
	defer tf.appendMu.Unlock()
	return tf.hdr
}

// BlockSize returns the table's fixed block size.
func (tf *TableFile) BlockSize() int { return tf.hdr.BlockSize }

// Path returns the file's path on disk.
func (tf *TableFile) Path() string { return tf.path }

// LockMeta acquires the cross-process metadata lock (gofrs/flock) that
// coordinates tf_Append advancement with other instances sharing this
// physical file. Exclusive is true for a writer, false for a reader
// that merely needs a consistent header snapshot.
func (tf *TableFile) LockMeta(exclusive bool) error {
	var err error
	if exclusive {
		err = tf.lock.Lock()
	} else {
		err = tf.lock.RLock()
	}
	if err != nil {
		return dberr.Wrap(dberr.ErrCannotOpen, err)
	}
	return nil
}

// UnlockMeta releases a lock taken by LockMeta.
func (tf *TableFile) UnlockMeta() error {
	return tf.lock.Unlock()
}

// NextStamp allocates the next logical timestamp for this table file,
// guarding against wall-clock regression: if the microsecond clock
// reads at or behind the last allocated value, the allocator advances
// by one unit past it instead of stalling or reusing a stamp.
func (tf *TableFile) NextStamp() types.Stamp {
	tf.lastStampMu.Lock()
	defer tf.lastStampMu.Unlock()

	now := types.Stamp(time.Now().UnixMicro()) &^ types.StampIDMask
	if now <= tf.lastClock {
		now = tf.lastClock + types.Stamp(1<<8)
	}
	tf.lastClock = now
	return now.WithID(tf.dbID)
}

// Append writes one already-encoded record (see internal/record) to
// the end of the file, serialized against concurrent appenders. If the
// record would cross a block boundary, a zero-magic block-skip
// terminator is written and the record restarts at the next
// block-aligned offset (spec.md §4.4).
func (tf *TableFile) Append(rec []byte) (types.Off, error) {
	tf.appendMu.Lock()
	defer tf.appendMu.Unlock()

	bs := int64(tf.hdr.BlockSize)
	off := tf.hdr.Append
	blockEnd := ((off / bs) + 1) * bs

	if off+int64(len(rec)) > blockEnd {
		// Zero-magic skip terminator: a single zero byte is sufficient
		// since record.Decode treats a non-Magic first byte as "stop";
		// the table scanner (internal/engine) knows to jump to the next
		// block boundary on seeing it.
		if _, err := tf.f.WriteAt([]byte{0}, off); err != nil {
			return 0, dberr.Wrap(dberr.ErrShortReadWrite, err)
		}
		off = blockEnd
	}

	if _, err := tf.f.WriteAt(rec, off); err != nil {
		return 0, dberr.Wrap(dberr.ErrShortReadWrite, err)
	}

	newAppend := off + int64(len(rec))
	tf.hdr.Append = newAppend
	if newAppend > tf.hdr.FileSize {
		tf.hdr.FileSize = newAppend
	}
	if err := tf.syncMeta(); err != nil {
		return 0, err
	}
	return types.Off(off), nil
}

// SetSyncStamp advances the durable-commit horizon recorded in the
// metadata block (tf_SyncStamp), called by internal/txn's Commit2 after
// records are written at a committed stamp.
func (tf *TableFile) SetSyncStamp(s types.Stamp) error {
	tf.appendMu.Lock()
	defer tf.appendMu.Unlock()
	if s > tf.hdr.SyncStamp {
		tf.hdr.SyncStamp = s
	}
	return tf.syncMeta()
}

// syncMeta rewrites the metadata block; caller holds appendMu.
func (tf *TableFile) syncMeta() error {
	buf := encodeHeader(&tf.hdr)
	if _, err := tf.f.WriteAt(buf, 0); err != nil {
		tf.hdr.LastError = err
		return dberr.Wrap(dberr.ErrShortReadWrite, err)
	}
	return nil
}

// ReadAt reads n bytes at the given file offset directly (bypassing
// the DataMap cache); used by internal/record.Decode callers that
// already have a window, and by recovery/raw-read paths.
func (tf *TableFile) ReadAt(off types.Off, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := tf.f.ReadAt(buf, int64(off)); err != nil {
		return nil, dberr.Wrap(dberr.ErrShortReadWrite, err)
	}
	return buf, nil
}

// GetDataMap returns a ref-counted window covering off, sized to the
// table's block size, per spec.md §4.4's to_GetDataMap contract.
func (tf *TableFile) GetDataMap(off types.Off) (*DataMap, error) {
	return tf.maps.get(off)
}
