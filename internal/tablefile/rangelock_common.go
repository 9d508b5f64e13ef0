package tablefile

import "sync"

// rangeLocks tracks this process's own byte-range locks on a file so a
// second LockRange call from the same process for an overlapping range
// can be diagnosed instead of silently upgrading a lock out from under
// another goroutine (spec.md §5: "a per-process tracking list for
// POSIX range locks"). The actual syscall is platform-specific; see
// rangelock.go (unix).
type rangeLocks struct {
	mu   sync.Mutex
	held []rangeEntry
}

type rangeEntry struct {
	start, length int64
	exclusive     bool
}

func (r *rangeLocks) track(start, length int64, exclusive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = append(r.held, rangeEntry{start, length, exclusive})
}

func (r *rangeLocks) untrack(start, length int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.held {
		if e.start == start && e.length == length {
			r.held = append(r.held[:i], r.held[i+1:]...)
			return
		}
	}
}
