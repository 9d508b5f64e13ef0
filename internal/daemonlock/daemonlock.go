// Package daemonlock is the small cross-process mutual-exclusion
// primitive shared by cmd/osdbd (which takes the lock for the lifetime
// of the daemon) and cmd/osdbctl (which only probes it, never holding
// it), the way cmd/bd's own daemon lock is consulted by both the
// daemon process and its CLI siblings without either importing the
// other's package.
package daemonlock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrAlreadyHeld is returned by Acquire when another process already
// holds the lock.
var ErrAlreadyHeld = errors.New("daemon lock already held")

// Lock pairs a gofrs/flock whole-file lock with the pid file it
// guards.
type Lock struct {
	fl      *flock.Flock
	pidPath string
}

func lockPath(pidPath string) string {
	return pidPath + ".lock"
}

// Acquire takes the lock guarding pidPath and stamps it with this
// process's pid. It fails with ErrAlreadyHeld if another live process
// holds the lock.
func Acquire(pidPath string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(pidPath), 0755); err != nil {
		return nil, err
	}
	fl := flock.New(lockPath(pidPath))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrAlreadyHeld
	}
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		_ = fl.Unlock()
		return nil, err
	}
	return &Lock{fl: fl, pidPath: pidPath}, nil
}

// Release removes the pid file and releases the underlying flock.
func (l *Lock) Release() {
	_ = os.Remove(l.pidPath)
	_ = l.fl.Unlock()
}

// IsRunning probes pidPath's lock without blocking: a successful
// TryLock means nothing holds it, so it is released immediately and
// (false, 0) is returned. A held lock reports the pid recorded in
// pidPath, or 0 if that file is unreadable.
func IsRunning(pidPath string) (bool, int) {
	fl := flock.New(lockPath(pidPath))
	locked, err := fl.TryLock()
	if err != nil {
		return false, 0
	}
	if locked {
		_ = fl.Unlock()
		return false, 0
	}
	data, err := os.ReadFile(pidPath) //nolint:gosec // path from the daemon's own configuration
	if err != nil {
		return true, 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return true, pid
}
