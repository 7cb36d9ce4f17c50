// Package lock implements the multi-granularity lock manager (C4):
// IS/IX/S/X/SIX modes over table- and record-level DataIDs, no-wait
// deadlock prevention, and strict two-phase locking, per §4.3.
package lock

import (
	"sync"

	"rmdb/pkg/primitives"
	"rmdb/pkg/rmerr"
)

// Manager is the lock table: every lock call executes under a single
// manager-wide mutex, per §4.3 "Operations".
type Manager struct {
	mu     sync.Mutex
	queues map[DataID]*requestQueue
}

func NewManager() *Manager {
	return &Manager{queues: make(map[DataID]*requestQueue)}
}

// acquire runs the per-lock-call protocol in §4.3 "Protocol per lock
// call" for a single requested mode.
func (m *Manager) acquire(txn TxnHandle, id DataID, requested Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.IsShrinking() {
		return rmerr.New(rmerr.LockOnShrinking, "lock request after transaction entered SHRINKING")
	}

	q, ok := m.queues[id]
	if !ok {
		q = newRequestQueue()
		m.queues[id] = q
	}

	if idx := q.find(txn.ID()); idx >= 0 {
		held := q.entries[idx].mode
		if GreaterOrEqual(held, requested) {
			return nil
		}
		target := LeastUpperBound(held, requested)
		if !q.compatibleWithAllExcept(target, txn.ID()) {
			return rmerr.New(rmerr.DeadlockPrevention, "lock upgrade would conflict with another holder")
		}
		q.upgrade(idx, target)
		return nil
	}

	if q.hasGroup && !Compatible(q.groupMode, requested) {
		return rmerr.New(rmerr.DeadlockPrevention, "lock request conflicts with current holders")
	}

	q.grant(txn.ID(), requested)
	txn.RecordHeldLock(id)
	return nil
}

// LockSharedRecord acquires S on a specific row.
func (m *Manager) LockSharedRecord(txn TxnHandle, table primitives.TableID, rid primitives.RID) error {
	return m.acquire(txn, RecordDataID(table, rid), S)
}

// LockExclusiveRecord acquires X on a specific row.
func (m *Manager) LockExclusiveRecord(txn TxnHandle, table primitives.TableID, rid primitives.RID) error {
	return m.acquire(txn, RecordDataID(table, rid), X)
}

// LockSharedTable acquires S on a whole table.
func (m *Manager) LockSharedTable(txn TxnHandle, table primitives.TableID) error {
	return m.acquire(txn, TableDataID(table), S)
}

// LockExclusiveTable acquires X on a whole table.
func (m *Manager) LockExclusiveTable(txn TxnHandle, table primitives.TableID) error {
	return m.acquire(txn, TableDataID(table), X)
}

// LockIS acquires an intention-shared lock on a table, the prerequisite
// for taking S on any of its rows, per §4.3 "Intention protocol".
func (m *Manager) LockIS(txn TxnHandle, table primitives.TableID) error {
	return m.acquire(txn, TableDataID(table), IS)
}

// LockIX acquires an intention-exclusive lock on a table, the
// prerequisite for taking X on any of its rows.
func (m *Manager) LockIX(txn TxnHandle, table primitives.TableID) error {
	return m.acquire(txn, TableDataID(table), IX)
}

// Unlock releases txn's entry for id, recomputes the queue's group mode,
// and transitions txn into SHRINKING, per §4.3 "unlock". Unlocking an id
// the transaction does not hold is a no-op returning false.
func (m *Manager) Unlock(txn TxnHandle, id DataID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[id]
	if !ok {
		return false
	}
	if !q.release(txn.ID()) {
		return false
	}
	if q.empty() {
		delete(m.queues, id)
	}
	txn.ForgetHeldLock(id)
	txn.EnterShrinking()
	return true
}

// GroupMode returns the current group mode for id, used by the debug
// inspector and tests. The second return is false if id has no holders.
func (m *Manager) GroupMode(id DataID) (Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[id]
	if !ok || q.empty() {
		return 0, false
	}
	return q.groupMode, true
}
