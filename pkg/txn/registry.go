package txn

import (
	"sync"
	"sync/atomic"

	"rmdb/pkg/lock"
	"rmdb/pkg/rmerr"
)

var nextTxnID uint64

// Registry is the process-wide table of active and recently-finished
// transactions, per §4.4 "begin(optional txn) ... insert into a
// process-wide registry under a mutex".
type Registry struct {
	mu      sync.RWMutex
	lockMgr *lock.Manager
	byID    map[uint64]*Transaction
}

func NewRegistry(lockMgr *lock.Manager) *Registry {
	return &Registry{lockMgr: lockMgr, byID: make(map[uint64]*Transaction)}
}

// Begin allocates a monotonically increasing transaction id, registers a
// new Transaction in GROWING state, and returns it.
func (r *Registry) Begin() *Transaction {
	id := atomic.AddUint64(&nextTxnID, 1)
	t := newTransaction(id, r.lockMgr)

	r.mu.Lock()
	r.byID[id] = t
	r.mu.Unlock()

	return t
}

// Get looks up a transaction by id.
func (r *Registry) Get(id uint64) (*Transaction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// Active returns every transaction still in GROWING or SHRINKING state.
func (r *Registry) Active() []*Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Transaction, 0, len(r.byID))
	for _, t := range r.byID {
		switch t.State() {
		case Growing, Shrinking:
			out = append(out, t)
		}
	}
	return out
}

// Commit discards t's undo log, releases its locks, and marks it
// COMMITTED, per §4.4.
func (r *Registry) Commit(t *Transaction) error {
	if t.State() == Committed || t.State() == Aborted {
		return rmerr.Newf(rmerr.InternalError, "transaction %d is already finished (%s)", t.ID(), t.State())
	}
	t.commit()
	return nil
}

// Abort replays t's undo log in reverse and marks it ABORTED, per §4.4.
func (r *Registry) Abort(t *Transaction) error {
	if t.State() == Committed || t.State() == Aborted {
		return rmerr.Newf(rmerr.InternalError, "transaction %d is already finished (%s)", t.ID(), t.State())
	}
	return t.abort()
}

// Remove drops a finished transaction from the registry so long-running
// processes don't accumulate unbounded history.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Count returns the number of transactions currently tracked, regardless
// of state.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
