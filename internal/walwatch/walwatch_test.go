package walwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsSegmentCreateAndAppend(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Close()

	path := filepath.Join(dir, "log_000000001.lg0")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if !waitForEvent(t, w, SegmentCreated) {
		t.Fatalf("expected a SegmentCreated event")
	}

	if _, err := f.WriteString("heartbeat"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Sync()
	f.Close()

	if !waitForEvent(t, w, SegmentAppended) {
		t.Fatalf("expected a SegmentAppended event")
	}
}

func TestWatcherIgnoresNonSegmentFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "sys.dt0"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no event for a non-segment file, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func waitForEvent(t *testing.T, w *Watcher, kind EventKind) bool {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Kind == kind {
				return true
			}
		case err := <-w.Errors():
			t.Fatalf("watcher error: %v", err)
		case <-deadline:
			return false
		}
	}
}
