package heap

import "rmdb/pkg/primitives"

// TxnContext is the slice of C5 (transaction manager) that C2 (this
// package) needs: acquire a row lock through C4 before touching a slot,
// and append an undo entry after mutating it. A nil TxnContext means
// "no transaction" — every lock call and undo append is skipped, which is
// exactly the mode undo-replay itself runs in (§4.4: "calls into the
// record manager pass a null context").
//
// Methods take the *File being operated on so a single transaction can
// span multiple tables without needing per-table context objects.
type TxnContext interface {
	LockSharedRow(table *File, rid primitives.RID) error
	LockExclusiveRow(table *File, rid primitives.RID) error
	RecordInsert(table *File, rid primitives.RID)
	RecordDelete(table *File, rid primitives.RID, payload []byte)
	RecordUpdate(table *File, rid primitives.RID, preImage []byte)
}
