package txn

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"

	"rmdb/pkg/heap"
	"rmdb/pkg/lock"
	"rmdb/pkg/primitives"
	"rmdb/pkg/storage/cache"
	"rmdb/pkg/storage/disk"
)

const testRecordSize = 32

func newTestFile(t *testing.T, path string, tableID uint64) *heap.File {
	t.Helper()
	fs := afero.NewMemMapFs()
	dm := disk.NewManager(fs)
	fd, err := dm.CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	cm := cache.NewManager(dm, 8)
	f, err := heap.Create(primitives.NewTableIDFromUint64(tableID), fd, cm, testRecordSize)
	if err != nil {
		t.Fatalf("heap.Create: %v", err)
	}
	return f
}

func recordOf(n int) []byte {
	buf := make([]byte, testRecordSize)
	copy(buf, fmt.Sprintf("rec-%d", n))
	return buf
}

func TestRegistry_BeginAssignsDistinctIDs(t *testing.T) {
	r := NewRegistry(lock.NewManager())
	t1 := r.Begin()
	t2 := r.Begin()
	if t1.ID() == t2.ID() {
		t.Fatalf("expected distinct transaction ids, got %d twice", t1.ID())
	}
	if t1.State() != Growing || t2.State() != Growing {
		t.Fatal("expected new transactions to start GROWING")
	}
}

func TestTransaction_CommitReleasesLocksAndDiscardsUndo(t *testing.T) {
	lockMgr := lock.NewManager()
	r := NewRegistry(lockMgr)
	f := newTestFile(t, "/data/t1.tbl", 1)

	txn := r.Begin()
	rid, err := f.Insert(txn, recordOf(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := r.Commit(txn); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if txn.State() != Committed {
		t.Fatalf("state = %v, want COMMITTED", txn.State())
	}
	if len(txn.undoLog) != 0 {
		t.Fatalf("expected undo log discarded after commit, got %d entries", len(txn.undoLog))
	}
	if len(txn.heldLocks) != 0 {
		t.Fatalf("expected all locks released after commit, got %d held", len(txn.heldLocks))
	}

	// A second transaction must be able to take X on the same row now
	// that the first transaction released it.
	txn2 := r.Begin()
	if err := f.Delete(txn2, rid); err != nil {
		t.Fatalf("second transaction failed to lock released row: %v", err)
	}
}

// TestTransaction_AbortUndoesInsert covers §8 scenario 6: a transaction
// that inserted a row and then aborts must leave the row un-findable.
func TestTransaction_AbortUndoesInsert(t *testing.T) {
	lockMgr := lock.NewManager()
	r := NewRegistry(lockMgr)
	f := newTestFile(t, "/data/t1.tbl", 1)

	txn := r.Begin()
	rid, err := f.Insert(txn, recordOf(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := r.Abort(txn); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if txn.State() != Aborted {
		t.Fatalf("state = %v, want ABORTED", txn.State())
	}

	if _, err := f.Get(nil, rid); err == nil {
		t.Fatal("expected inserted-then-aborted row to be gone")
	}
}

// TestTransaction_AbortUndoesDelete covers the DELETE-undo branch: the
// original bytes must be restored at the same rid.
func TestTransaction_AbortUndoesDelete(t *testing.T) {
	lockMgr := lock.NewManager()
	r := NewRegistry(lockMgr)
	f := newTestFile(t, "/data/t1.tbl", 1)

	rid, err := f.Insert(nil, recordOf(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	txn := r.Begin()
	if err := f.Delete(txn, rid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := r.Abort(txn); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	got, err := f.Get(nil, rid)
	if err != nil {
		t.Fatalf("Get after undo: %v", err)
	}
	if string(got) != string(recordOf(1)) {
		t.Errorf("got %q after undoing delete, want %q", got, recordOf(1))
	}
}

// TestTransaction_AbortUndoesUpdate covers the UPDATE-undo branch: the
// pre-image must be restored.
func TestTransaction_AbortUndoesUpdate(t *testing.T) {
	lockMgr := lock.NewManager()
	r := NewRegistry(lockMgr)
	f := newTestFile(t, "/data/t1.tbl", 1)

	rid, err := f.Insert(nil, recordOf(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	txn := r.Begin()
	if err := f.Update(txn, rid, recordOf(2)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := r.Abort(txn); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	got, err := f.Get(nil, rid)
	if err != nil {
		t.Fatalf("Get after undo: %v", err)
	}
	if string(got) != string(recordOf(1)) {
		t.Errorf("got %q after undoing update, want %q", got, recordOf(1))
	}
}

// TestTransaction_AbortReplaysInReverseOrder inserts a row, updates a
// pre-existing row, then deletes the row it inserted, and confirms every
// effect is fully undone: the insert-then-delete pair on one row only
// unwinds cleanly when the undo log is replayed in reverse order.
func TestTransaction_AbortReplaysInReverseOrder(t *testing.T) {
	lockMgr := lock.NewManager()
	r := NewRegistry(lockMgr)
	f := newTestFile(t, "/data/t1.tbl", 1)

	baseline, err := f.Insert(nil, recordOf(100))
	if err != nil {
		t.Fatalf("baseline insert: %v", err)
	}

	txn := r.Begin()
	inserted, err := f.Insert(txn, recordOf(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := f.Update(txn, baseline, recordOf(200)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := f.Delete(txn, inserted); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := r.Abort(txn); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	if _, err := f.Get(nil, inserted); err == nil {
		t.Fatal("expected the inserted-then-deleted row to remain gone after undo")
	}
	got, err := f.Get(nil, baseline)
	if err != nil {
		t.Fatalf("Get baseline: %v", err)
	}
	if string(got) != string(recordOf(100)) {
		t.Errorf("baseline = %q after abort, want %q", got, recordOf(100))
	}
}

func TestTransaction_CommitOrAbortTwiceFails(t *testing.T) {
	lockMgr := lock.NewManager()
	r := NewRegistry(lockMgr)
	txn := r.Begin()

	if err := r.Commit(txn); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := r.Commit(txn); err == nil {
		t.Fatal("expected second commit on a finished transaction to fail")
	}
	if err := r.Abort(txn); err == nil {
		t.Fatal("expected abort of an already-committed transaction to fail")
	}
}

func TestTransaction_LockOnShrinkingRejectsFurtherWrites(t *testing.T) {
	lockMgr := lock.NewManager()
	r := NewRegistry(lockMgr)
	f := newTestFile(t, "/data/t1.tbl", 1)

	txn := r.Begin()
	rid, err := f.Insert(txn, recordOf(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	lockMgr.Unlock(txn, lock.RecordDataID(f.ID(), rid))
	if !txn.IsShrinking() {
		t.Fatal("expected transaction to enter SHRINKING after an explicit unlock")
	}

	if _, err := f.Insert(txn, recordOf(2)); err == nil {
		t.Fatal("expected a new lock request during SHRINKING to fail")
	}
}
