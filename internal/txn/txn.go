// Package txn implements the nested transaction stack and two-phase
// commit protocol described in spec.md §4.6: push/pop contexts with a
// freeze timestamp, Commit1 (TTS conflict check + minCTs reservation),
// Commit2 (apply at a commit stamp), Uncommit1, and Abort.
package txn

import (
	"sync"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// Flag is a bitmask of transaction-open options.
type Flag uint8

const (
	FlagReadOnly Flag = 1 << iota
	FlagRWSync
	FlagStream
)

func (f Flag) ReadOnly() bool { return f&FlagReadOnly != 0 }
func (f Flag) RWSync() bool   { return f&FlagRWSync != 0 }
func (f Flag) Stream() bool   { return f&FlagStream != 0 }

// TableMod is the set of keys one transaction has written in one
// table, used both for rollback (nothing to do here but forget them)
// and for the Commit1 conflict check against the table's ConflictTable.
type TableMod struct {
	VTable types.VTable
	Keys   map[string][]byte // encoded key -> raw key bytes
}

// Txn is one element of a DataBase's nested transaction stack.
type Txn struct {
	Parent  *Txn
	Freeze  types.Stamp // rows with rh_Stamp <= Freeze are visible
	WriteTs types.Stamp // stamp new records from this txn carry
	Flags   Flag

	modified map[types.VTable]*TableMod

	phase1 bool
	minCTs types.Stamp
}

// IsRoot reports whether t has no parent context.
func (t *Txn) IsRoot() bool { return t.Parent == nil }

// Phase1Committed reports whether Commit1 has succeeded for t and it
// is waiting on Commit2.
func (t *Txn) Phase1Committed() bool { return t.phase1 }

// MinCTs returns the minimum commit timestamp Commit1 reserved, valid
// only after Phase1Committed.
func (t *Txn) MinCTs() types.Stamp { return t.minCTs }

// Touch records that t has written to key in vtable, registering it
// for the Commit1 conflict check. The engine calls this once per row
// write (INSERT/DELETE/UPDATE's DELETE+INSERT pair).
func (t *Txn) Touch(vtable types.VTable, key []byte) {
	if t.modified == nil {
		t.modified = make(map[types.VTable]*TableMod)
	}
	tm, ok := t.modified[vtable]
	if !ok {
		tm = &TableMod{VTable: vtable, Keys: make(map[string][]byte)}
		t.modified[vtable] = tm
	}
	tm.Keys[string(key)] = key
}

// Modified returns the set of tables this transaction has written to.
func (t *Txn) Modified() []*TableMod {
	out := make([]*TableMod, 0, len(t.modified))
	for _, tm := range t.modified {
		out = append(out, tm)
	}
	return out
}

// conflictTable is the per-vtable "TTS" rendezvous slot: the highest
// commit stamp observed for each key, used to detect a write-write
// conflict between concurrent transactions.
type conflictTable struct {
	mu        sync.Mutex
	keyStamp  map[string]types.Stamp
}

func newConflictTable() *conflictTable {
	return &conflictTable{keyStamp: make(map[string]types.Stamp)}
}

// check returns (conflictingStamp, true) if key was committed at a
// stamp greater than freeze.
func (c *conflictTable) check(key string, freeze types.Stamp) (types.Stamp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.keyStamp[key]
	if ok && s > freeze {
		return s, true
	}
	return 0, false
}

func (c *conflictTable) record(key string, stamp types.Stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stamp > c.keyStamp[key] {
		c.keyStamp[key] = stamp
	}
}

// Manager owns the conflict-detection registry shared by every
// DataBase open against one physical database, and allocates commit
// stamps via the supplied source (normally internal/tablefile's
// per-table NextStamp, but Commit1/Commit2 here operate at the
// database level per spec.md's "unique per database" minCTs rule).
type Manager struct {
	mu     sync.Mutex
	tables map[types.VTable]*conflictTable

	NextStamp func() types.Stamp
}

// NewManager constructs a Manager; nextStamp supplies monotonically
// increasing, per-database-discriminated stamps (see
// internal/tablefile.TableFile.NextStamp).
func NewManager(nextStamp func() types.Stamp) *Manager {
	return &Manager{tables: make(map[types.VTable]*conflictTable), NextStamp: nextStamp}
}

func (m *Manager) tableFor(vt types.VTable) *conflictTable {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, ok := m.tables[vt]
	if !ok {
		ct = newConflictTable()
		m.tables[vt] = ct
	}
	return ct
}

// DataBase is one client's transaction stack (spec.md §3's DataBase).
type DataBase struct {
	mgr *Manager
	top *Txn
}

// NewDataBase opens a fresh stack with no active transaction.
func NewDataBase(mgr *Manager) *DataBase {
	return &DataBase{mgr: mgr}
}

// Current returns the innermost open transaction, or nil if none.
func (db *DataBase) Current() *Txn { return db.top }

// Push opens a new nested transaction. freeze is honored only for the
// root push; a child inherits its parent's freeze regardless of the
// argument (spec.md §4.6).
func (db *DataBase) Push(freeze types.Stamp, flags Flag) *Txn {
	t := &Txn{Parent: db.top, Flags: flags}
	if db.top == nil {
		t.Freeze = freeze
	} else {
		t.Freeze = db.top.Freeze
	}
	t.WriteTs = t.Freeze
	db.top = t
	return t
}

// Pop discards the innermost transaction, returning its parent.
func (db *DataBase) Pop() error {
	if db.top == nil {
		return dberr.New(dberr.ErrAbortOutsideTxn)
	}
	db.top = db.top.Parent
	return nil
}

// Commit1 performs phase 1: checks every key this transaction touched
// against the conflict registry, then reserves a minCTs at least
// max(freeze, lowerBound, any conflicting stamp observed) — though by
// construction a conflict check failing means the caller must retry
// with a higher freeze, so on success no conflicting stamp remains to
// fold in.
func (db *DataBase) Commit1(t *Txn, lowerBound types.Stamp) (types.Stamp, error) {
	if t == nil {
		return 0, dberr.New(dberr.ErrNotInTransaction)
	}
	if t.Flags.ReadOnly() {
		return 0, dberr.Newf(dberr.ErrCommit2WithoutCommit1, "read-only transaction cannot commit")
	}

	for _, tm := range t.modified {
		ct := db.mgr.tableFor(tm.VTable)
		for key := range tm.Keys {
			if conflictStamp, conflict := ct.check(key, t.Freeze); conflict {
				return conflictStamp, dberr.New(dberr.ErrCommit1Conflict)
			}
		}
	}

	minCTs := t.Freeze
	if lowerBound > minCTs {
		minCTs = lowerBound
	}
	allocated := db.mgr.NextStamp()
	if allocated > minCTs {
		minCTs = allocated
	}

	t.phase1 = true
	t.minCTs = minCTs
	return minCTs, nil
}

// Commit2 performs phase 2: it calls apply with (vtable, key) for each
// touched row, stopping at the first error, which aborts the whole
// commit. Once every apply has succeeded it records the
// conflict-registry entries at commitStamp and pops the transaction.
func (db *DataBase) Commit2(t *Txn, commitStamp types.Stamp, apply func(vtable types.VTable, key []byte) error) error {
	if t == nil {
		return dberr.New(dberr.ErrNotInTransaction)
	}
	if !t.phase1 {
		return dberr.New(dberr.ErrCommit2WithoutCommit1)
	}
	if commitStamp < t.minCTs {
		return dberr.Newf(dberr.ErrCommit1Conflict, "commit stamp %d below reserved minCTs %d", commitStamp, t.minCTs)
	}

	for _, tm := range t.modified {
		for _, key := range tm.Keys {
			if err := apply(tm.VTable, key); err != nil {
				return err
			}
		}
	}
	for _, tm := range t.modified {
		ct := db.mgr.tableFor(tm.VTable)
		for key := range tm.Keys {
			ct.record(key, commitStamp)
		}
	}

	return db.Pop()
}

// Uncommit1 rolls back phase 1 without touching phase 2 artefacts: the
// transaction remains open and may retry Commit1 with a new lower
// bound.
func (db *DataBase) Uncommit1(t *Txn) error {
	if t == nil {
		return dberr.New(dberr.ErrNotInTransaction)
	}
	if !t.phase1 {
		return dberr.New(dberr.ErrCommit2WithoutCommit1)
	}
	t.phase1 = false
	t.minCTs = 0
	return nil
}

// Abort discards the transaction and any phase-1 state, popping it.
func (db *DataBase) Abort(t *Txn) error {
	if t == nil {
		return dberr.New(dberr.ErrAbortOutsideTxn)
	}
	t.phase1 = false
	t.minCTs = 0
	t.modified = nil
	return db.Pop()
}
