//go:build unix

package dispatch

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
)

// newInstanceSocketPair creates a connected pair of unix-domain
// sockets: one end is kept in-process as the per-instance goroutine's
// net.Conn, the other is handed to sendFD for transfer to the client
// as an OPEN_INSTANCE reply's auxiliary descriptor (spec.md §4.7
// "File-descriptor passing").
func newInstanceSocketPair() (local net.Conn, remoteFD int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, 0, dberr.Wrap(dberr.ErrCannotConnect, err)
	}
	f := os.NewFile(uintptr(fds[0]), "osdb-instance")
	local, err = net.FileConn(f)
	f.Close() // FileConn dup'd the descriptor; close our copy
	if err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, 0, dberr.Wrap(dberr.ErrCannotConnect, err)
	}
	return local, fds[1], nil
}

// sendFrameWithFD transmits frameBytes as the OPEN_INSTANCE reply and
// attaches fd as an SCM_RIGHTS ancillary message in the same syscall,
// so the client's single read of the reply packet carries the
// transferred descriptor alongside it.
func sendFrameWithFD(conn net.Conn, frameBytes []byte, fd int) error {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return dberr.Newf(dberr.ErrCannotConnect, "fd passing requires a unix-domain control connection")
	}
	rights := unix.UnixRights(fd)
	_, _, err := uc.WriteMsgUnix(frameBytes, rights, nil)
	unix.Close(fd) // the kernel dup'd it into the receiver's fd table
	if err != nil {
		return dberr.Wrap(dberr.ErrCannotConnect, err)
	}
	return nil
}
