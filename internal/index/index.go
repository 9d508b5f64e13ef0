// Package index implements the B-tree-like index abstraction described
// in spec.md §4.4: sorted (key, file offset) pairs keyed on
// (vtable_t, col_t), exposing set_range/next/prev/update and a
// per-scan position cache. Indexes are a performance artifact only —
// the table file is authoritative — so this package keeps its state
// in memory only. Nothing is written to disk; the index is rebuilt
// from the table file each time the table is opened.
package index

import (
	"sort"
	"sync"

	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// entry is one (key, offset) pair. Multiple rows may share a key
// (non-unique index); ties are broken by Off to keep Update idempotent
// and scans stable.
type entry struct {
	key []byte
	off types.Off
}

// Index is one (vtable, col) index over a table file's records. It is
// safe for concurrent use by multiple scanning goroutines, matching
// spec.md §5's "non-reentrant... only touched inside the instance
// task" contract loosely — the mutex exists so a future multi-task
// scheduler doesn't corrupt the sorted slice, not to allow blocking
// concurrent access by design.
type Index struct {
	VTable types.VTable
	Col    types.Col

	mu      sync.RWMutex
	entries []entry
	synced  bool

	posCacheMu sync.Mutex
	posCache   map[string]int // scan key -> last resolved slice position
}

// New constructs an empty index for (vtable, col).
func New(vtable types.VTable, col types.Col) *Index {
	return &Index{VTable: vtable, Col: col, posCache: make(map[string]int)}
}

// Synced reports whether this index reflects every record written to
// its table file so far. On crash recovery, an index without this flag
// set is discarded rather than trusted (spec.md §4.4).
func (ix *Index) Synced() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.synced
}

// MarkSynced records that the index is known consistent with its table
// file as of the caller's last Update call.
func (ix *Index) MarkSynced() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.synced = true
}

// Update inserts (or re-confirms) the entry for key at off, keeping
// entries sorted by key then offset. It is how a transaction's own
// writes become visible to its subsequent reads within the same scan
// (spec.md §4.4: "record the newly written offset").
func (ix *Index) Update(key []byte, off types.Off) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.synced = false

	i := sort.Search(len(ix.entries), func(i int) bool {
		return compareEntry(ix.entries[i], key, off) >= 0
	})
	if i < len(ix.entries) && compareEntry(ix.entries[i], key, off) == 0 {
		return // already present
	}
	ix.entries = append(ix.entries, entry{})
	copy(ix.entries[i+1:], ix.entries[i:])
	ix.entries[i] = entry{key: append([]byte{}, key...), off: off}
}

func compareEntry(e entry, key []byte, off types.Off) int {
	if c := compareBytes(e.key, key); c != 0 {
		return c
	}
	switch {
	case e.off < off:
		return -1
	case e.off > off:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Cursor is a live position within one SetRange scan.
type Cursor struct {
	ix  *Index
	pos int // index into ix.entries, -1 = exhausted
	end func(entry) bool
}

// SetRange positions a cursor so that the next call to Next returns
// the first record satisfying op against key (spec.md §4.4's
// set_range(ti, key, op_class) contract). Supported ops: EQ, LT, LE,
// GT, GE; NE/LIKE/SAME degrade to a full forward scan since they
// cannot be bounded by a single sorted-key range.
func (ix *Index) SetRange(key []byte, op types.OpCode) *Cursor {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	switch op {
	case types.OpEQ, types.OpGE:
		pos := sort.Search(len(ix.entries), func(i int) bool {
			return compareBytes(ix.entries[i].key, key) >= 0
		})
		end := func(e entry) bool { return op == types.OpEQ && compareBytes(e.key, key) != 0 }
		return &Cursor{ix: ix, pos: pos, end: end}
	case types.OpGT:
		pos := sort.Search(len(ix.entries), func(i int) bool {
			return compareBytes(ix.entries[i].key, key) > 0
		})
		return &Cursor{ix: ix, pos: pos, end: func(entry) bool { return false }}
	case types.OpLT:
		return &Cursor{ix: ix, pos: 0, end: func(e entry) bool { return compareBytes(e.key, key) >= 0 }}
	case types.OpLE:
		return &Cursor{ix: ix, pos: 0, end: func(e entry) bool { return compareBytes(e.key, key) > 0 }}
	default:
		return &Cursor{ix: ix, pos: 0, end: func(entry) bool { return false }}
	}
}

// Next advances the cursor and returns the offset at the new position,
// or (0, false) when the scan is exhausted or has left its range.
func (c *Cursor) Next() (types.Off, bool) {
	c.ix.mu.RLock()
	defer c.ix.mu.RUnlock()
	if c.pos < 0 || c.pos >= len(c.ix.entries) {
		return 0, false
	}
	e := c.ix.entries[c.pos]
	if c.end(e) {
		c.pos = -1
		return 0, false
	}
	c.pos++
	return e.off, true
}

// Prev steps the cursor backward and returns the offset now under it.
func (c *Cursor) Prev() (types.Off, bool) {
	c.ix.mu.RLock()
	defer c.ix.mu.RUnlock()
	c.pos--
	if c.pos < 0 || c.pos >= len(c.ix.entries) {
		return 0, false
	}
	e := c.ix.entries[c.pos]
	if c.end(e) {
		return 0, false
	}
	return e.off, true
}

// CachePosition remembers the slice position a join lookup resolved
// to under scanKey, so a repeated lookup for the same outer-row key
// can skip straight there instead of re-descending (spec.md §4.4's
// "per-index position cache used to short-circuit root-descending
// lookups on joins").
func (ix *Index) CachePosition(scanKey string, pos int) {
	ix.posCacheMu.Lock()
	defer ix.posCacheMu.Unlock()
	ix.posCache[scanKey] = pos
}

// CachedPosition returns a previously cached position for scanKey.
func (ix *Index) CachedPosition(scanKey string) (int, bool) {
	ix.posCacheMu.Lock()
	defer ix.posCacheMu.Unlock()
	pos, ok := ix.posCache[scanKey]
	return pos, ok
}
