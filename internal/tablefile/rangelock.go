//go:build unix

package tablefile

import (
	"golang.org/x/sys/unix"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
)

// LockRange applies a POSIX (fcntl) byte-range lock spanning
// [start, start+length) on the table file, used to protect a single
// block's metadata (e.g. the TTS conflict slot) against concurrent
// writers in other processes sharing this physical file, complementing
// the whole-file gofrs/flock lock used for simple single-writer
// append serialization.
func (tf *TableFile) LockRange(start, length int64, exclusive bool) error {
	typ := int16(unix.F_RDLCK)
	if exclusive {
		typ = unix.F_WRLCK
	}
	lk := unix.Flock_t{
		Type:   typ,
		Whence: int16(0),
		Start:  start,
		Len:    length,
	}
	if err := unix.FcntlFlock(tf.f.Fd(), unix.F_SETLKW, &lk); err != nil {
		return dberr.Wrap(dberr.ErrCannotOpen, err)
	}
	tf.ranges.track(start, length, exclusive)
	return nil
}

// UnlockRange releases a lock taken by LockRange.
func (tf *TableFile) UnlockRange(start, length int64) error {
	lk := unix.Flock_t{
		Type:   int16(unix.F_UNLCK),
		Whence: int16(0),
		Start:  start,
		Len:    length,
	}
	if err := unix.FcntlFlock(tf.f.Fd(), unix.F_SETLK, &lk); err != nil {
		return dberr.Wrap(dberr.ErrCannotOpen, err)
	}
	tf.ranges.untrack(start, length)
	return nil
}
