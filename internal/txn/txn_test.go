package txn

import (
	"testing"

	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

func newManager(start types.Stamp) *Manager {
	s := start
	return NewManager(func() types.Stamp {
		s++
		return s
	})
}

func TestPushInheritsFreezeFromParent(t *testing.T) {
	db := NewDataBase(newManager(100))
	root := db.Push(100, 0)
	if root.Freeze != 100 {
		t.Fatalf("root freeze = %d, want 100", root.Freeze)
	}

	child := db.Push(9999, FlagRWSync)
	if child.Freeze != 100 {
		t.Fatalf("child freeze = %d, want inherited 100", child.Freeze)
	}
	if db.Current() != child {
		t.Fatalf("Current should be the innermost transaction")
	}
}

func TestPopRestoresParent(t *testing.T) {
	db := NewDataBase(newManager(0))
	root := db.Push(1, 0)
	db.Push(1, 0)

	if err := db.Pop(); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if db.Current() != root {
		t.Fatalf("expected root after popping child")
	}
	if err := db.Pop(); err != nil {
		t.Fatalf("pop root: %v", err)
	}
	if db.Current() != nil {
		t.Fatalf("expected nil after popping root")
	}
	if err := db.Pop(); err == nil {
		t.Fatalf("expected error popping an empty stack")
	}
}

func TestCommit1ThenCommit2AppliesAndRecordsStamp(t *testing.T) {
	db := NewDataBase(newManager(100))
	txn := db.Push(100, 0)
	txn.Touch(1, []byte("key-a"))

	minCTs, err := db.Commit1(txn, 0)
	if err != nil {
		t.Fatalf("commit1: %v", err)
	}
	if !txn.Phase1Committed() {
		t.Fatalf("expected phase1 committed")
	}

	var applied []string
	err = db.Commit2(txn, minCTs, func(vt types.VTable, key []byte) error {
		applied = append(applied, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("commit2: %v", err)
	}
	if len(applied) != 1 || applied[0] != "key-a" {
		t.Fatalf("apply callback got %v", applied)
	}
	if db.Current() != nil {
		t.Fatalf("commit2 should pop the transaction")
	}
}

func TestCommit1DetectsConflictingWrite(t *testing.T) {
	mgr := newManager(100)
	db := NewDataBase(mgr)

	first := db.Push(100, 0)
	first.Touch(1, []byte("shared"))
	stamp, err := db.Commit1(first, 0)
	if err != nil {
		t.Fatalf("commit1 first: %v", err)
	}
	if err := db.Commit2(first, stamp, func(types.VTable, []byte) error { return nil }); err != nil {
		t.Fatalf("commit2 first: %v", err)
	}

	second := db.Push(100, 0) // frozen before first's commit stamp
	second.Touch(1, []byte("shared"))
	if _, err := db.Commit1(second, 0); err == nil {
		t.Fatalf("expected a commit1 conflict for a write under an earlier freeze")
	}
}

func TestCommit2WithoutCommit1Fails(t *testing.T) {
	db := NewDataBase(newManager(0))
	txn := db.Push(1, 0)
	if err := db.Commit2(txn, 1, func(types.VTable, []byte) error { return nil }); err == nil {
		t.Fatalf("expected error committing phase 2 without phase 1")
	}
}

func TestUncommit1AllowsRetry(t *testing.T) {
	db := NewDataBase(newManager(0))
	txn := db.Push(1, 0)
	txn.Touch(1, []byte("k"))

	if _, err := db.Commit1(txn, 0); err != nil {
		t.Fatalf("commit1: %v", err)
	}
	if err := db.Uncommit1(txn); err != nil {
		t.Fatalf("uncommit1: %v", err)
	}
	if txn.Phase1Committed() {
		t.Fatalf("expected phase1 cleared after uncommit1")
	}
	if db.Current() != txn {
		t.Fatalf("uncommit1 must not pop the transaction")
	}

	if _, err := db.Commit1(txn, 0); err != nil {
		t.Fatalf("retry commit1: %v", err)
	}
}

func TestAbortPopsAndDiscardsModifications(t *testing.T) {
	mgr := newManager(0)
	db := NewDataBase(mgr)
	root := db.Push(1, 0)
	txn := db.Push(1, 0)
	txn.Touch(1, []byte("k"))

	if err := db.Abort(txn); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if db.Current() != root {
		t.Fatalf("abort should pop back to the parent")
	}

	// The aborted write must not have poisoned the conflict table.
	other := db.Push(1, 0)
	other.Touch(1, []byte("k"))
	if _, err := db.Commit1(other, 0); err != nil {
		t.Fatalf("commit1 after abort: %v", err)
	}
}

func TestReadOnlyTransactionCannotCommit(t *testing.T) {
	db := NewDataBase(newManager(0))
	txn := db.Push(1, FlagReadOnly)
	if _, err := db.Commit1(txn, 0); err == nil {
		t.Fatalf("expected error committing a read-only transaction")
	}
}
