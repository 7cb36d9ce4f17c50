package lock

// TxnHandle is the slice of C5 (transaction manager) that C4 (this
// package) needs: check/flip 2PL phase and track which data ids a
// transaction holds. A structural interface here — mirroring
// heap.TxnContext — lets txn.Transaction satisfy both this and
// heap.TxnContext without lock importing txn or heap.
type TxnHandle interface {
	ID() uint64
	IsShrinking() bool
	EnterShrinking()
	RecordHeldLock(id DataID)
	ForgetHeldLock(id DataID)
}
