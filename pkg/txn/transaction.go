// Package txn implements the undo-based transaction manager (C5):
// begin/commit/abort over the lock manager and record manager, per §4.4.
package txn

import (
	"sync"
	"time"

	"rmdb/pkg/heap"
	"rmdb/pkg/lock"
	"rmdb/pkg/primitives"
)

// State is the two-phase-locking / lifecycle state of a Transaction.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// UndoKind identifies which heap operation an undoEntry reverses.
type UndoKind int

const (
	UndoInsert UndoKind = iota
	UndoDelete
	UndoUpdate
	// UndoCustom carries an arbitrary reverse action rather than a heap
	// operation. pkg/engine uses it to keep secondary indexes — a
	// structure the record manager itself knows nothing about —
	// consistent with heap-level rollback, per §4.5's index-coherence
	// obligation.
	UndoCustom
)

// undoEntry is one reversible step, per §3 "Undo entry". payload holds the
// bytes needed to replay the reverse operation: unused for UndoInsert, the
// deleted record for UndoDelete, the pre-image for UndoUpdate.
type undoEntry struct {
	kind    UndoKind
	table   *heap.File
	rid     primitives.RID
	payload []byte
	fn      func() error
}

// Transaction is the C5 unit of work. It satisfies both heap.TxnContext
// (so the record manager can lock rows and append undo entries through it)
// and lock.TxnHandle (so the lock manager can query and flip its 2PL
// phase) without either of those packages importing this one.
type Transaction struct {
	mu        sync.Mutex
	id        uint64
	startTime time.Time
	state     State

	lockMgr   *lock.Manager
	heldLocks map[lock.DataID]bool
	undoLog   []undoEntry
}

func newTransaction(id uint64, lockMgr *lock.Manager) *Transaction {
	return &Transaction{
		id:        id,
		startTime: time.Now(),
		state:     Growing,
		lockMgr:   lockMgr,
		heldLocks: make(map[lock.DataID]bool),
	}
}

// ID returns the transaction's process-unique identifier.
func (t *Transaction) ID() uint64 { return t.id }

// StartTime returns when the transaction was created, used by the debug
// inspector.
func (t *Transaction) StartTime() time.Time { return t.startTime }

// State returns the current lifecycle/2PL state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsShrinking implements lock.TxnHandle.
func (t *Transaction) IsShrinking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Shrinking
}

// EnterShrinking implements lock.TxnHandle. It is a no-op once the
// transaction has already left GROWING, since COMMITTED/ABORTED must not
// regress back to SHRINKING.
func (t *Transaction) EnterShrinking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Growing {
		t.state = Shrinking
	}
}

// RecordHeldLock implements lock.TxnHandle.
func (t *Transaction) RecordHeldLock(id lock.DataID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.heldLocks[id] = true
}

// ForgetHeldLock implements lock.TxnHandle.
func (t *Transaction) ForgetHeldLock(id lock.DataID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.heldLocks, id)
}

// LockSharedRow implements heap.TxnContext by acquiring the row's S lock
// through the lock manager, per the intention protocol in §4.3: the caller
// (pkg/engine) is responsible for having already taken IS/IX on the table.
func (t *Transaction) LockSharedRow(table *heap.File, rid primitives.RID) error {
	return t.lockMgr.LockSharedRecord(t, table.ID(), rid)
}

// LockExclusiveRow implements heap.TxnContext.
func (t *Transaction) LockExclusiveRow(table *heap.File, rid primitives.RID) error {
	return t.lockMgr.LockExclusiveRecord(t, table.ID(), rid)
}

// RecordInsert implements heap.TxnContext. An INSERT undo entry carries no
// payload: undoing it is a bare delete-by-rid.
func (t *Transaction) RecordInsert(table *heap.File, rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLog = append(t.undoLog, undoEntry{kind: UndoInsert, table: table, rid: rid})
}

// RecordDelete implements heap.TxnContext.
func (t *Transaction) RecordDelete(table *heap.File, rid primitives.RID, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLog = append(t.undoLog, undoEntry{kind: UndoDelete, table: table, rid: rid, payload: payload})
}

// RecordUpdate implements heap.TxnContext.
func (t *Transaction) RecordUpdate(table *heap.File, rid primitives.RID, preImage []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLog = append(t.undoLog, undoEntry{kind: UndoUpdate, table: table, rid: rid, payload: preImage})
}

// RecordCustomUndo appends an arbitrary reverse action to the undo log, in
// its place among the heap-level entries already recorded for this
// transaction. pkg/engine calls this immediately after each index mutation
// it performs alongside a heap operation, so that aborting a transaction
// unwinds a table's secondary indexes in the correct reverse order together
// with the heap row itself, even though the record manager that owns the
// rest of the undo log has no notion of indexes at all.
func (t *Transaction) RecordCustomUndo(fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLog = append(t.undoLog, undoEntry{kind: UndoCustom, fn: fn})
}

// releaseAllLocks unlocks every DataID this transaction currently holds.
// Iterates over a snapshot since Unlock mutates heldLocks via
// ForgetHeldLock as it goes.
func (t *Transaction) releaseAllLocks() {
	t.mu.Lock()
	ids := make([]lock.DataID, 0, len(t.heldLocks))
	for id := range t.heldLocks {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.lockMgr.Unlock(t, id)
	}
}

// commit discards the undo log and releases every held lock, per §4.4.
func (t *Transaction) commit() {
	t.mu.Lock()
	t.undoLog = nil
	t.mu.Unlock()

	t.releaseAllLocks()

	t.mu.Lock()
	t.state = Committed
	t.mu.Unlock()
}

// abort replays the undo log in reverse order, per §4.4: INSERT undoes to
// a delete, DELETE undoes to an insert-at, UPDATE undoes to an update-at.
// Every replay call passes a nil heap.TxnContext so the record manager
// performs no further locking and appends no further undo entries.
func (t *Transaction) abort() error {
	t.mu.Lock()
	log := t.undoLog
	t.undoLog = nil
	t.mu.Unlock()

	for i := len(log) - 1; i >= 0; i-- {
		e := log[i]
		var err error
		switch e.kind {
		case UndoInsert:
			err = e.table.Delete(nil, e.rid)
		case UndoDelete:
			err = e.table.InsertAt(e.rid, e.payload)
		case UndoUpdate:
			err = e.table.Update(nil, e.rid, e.payload)
		case UndoCustom:
			err = e.fn()
		}
		if err != nil {
			return err
		}
	}

	t.releaseAllLocks()

	t.mu.Lock()
	t.state = Aborted
	t.mu.Unlock()
	return nil
}
