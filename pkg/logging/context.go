package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// WithTxn returns a logger annotated with a transaction id, for use in
// C4/C5 lock and undo bookkeeping.
func WithTxn(txnID uint64) *zap.SugaredLogger {
	return L().With("txn_id", txnID)
}

// WithTable returns a logger annotated with a table name.
func WithTable(table string) *zap.SugaredLogger {
	return L().With("table", table)
}

// WithPage returns a logger annotated with the (file, page) pair a page
// cache or heap/btree operation is acting on.
func WithPage(fd, pageNo int32) *zap.SugaredLogger {
	return L().With("fd", fd, "page_no", pageNo)
}

// WithLock returns a logger annotated with a transaction id and the lock
// data id it is contending for. dataID is typically a lock.DataID, which
// implements fmt.Stringer.
func WithLock(txnID uint64, dataID fmt.Stringer) *zap.SugaredLogger {
	return L().With("txn_id", txnID, "lock_data_id", dataID.String())
}

// WithComponent returns a logger annotated with the subsystem name
// (e.g. "heap", "btree", "lock", "txn").
func WithComponent(component string) *zap.SugaredLogger {
	return L().With("component", component)
}

// WithError returns a logger annotated with an error, for use at the
// point an error is handled rather than the point it was created.
func WithError(err error) *zap.SugaredLogger {
	return L().With("error", err.Error())
}
