package daemonlock

import (
	"path/filepath"
	"testing"
)

func TestAcquireThenIsRunning(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "osdbd.pid")

	if running, _ := IsRunning(pidPath); running {
		t.Fatalf("expected no daemon running before Acquire")
	}

	lock, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	running, pid := IsRunning(pidPath)
	if !running {
		t.Fatalf("expected IsRunning to report the held lock")
	}
	if pid == 0 {
		t.Fatalf("expected a nonzero pid recorded in the pid file")
	}

	lock.Release()

	if running, _ := IsRunning(pidPath); running {
		t.Fatalf("expected no daemon running after Release")
	}
}

func TestAcquireTwiceFails(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "osdbd.pid")

	lock, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	if _, err := Acquire(pidPath); err != ErrAlreadyHeld {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
}
