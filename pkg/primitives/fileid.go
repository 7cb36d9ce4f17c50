package primitives

import "fmt"

// TableID and IndexID are both FileID in disguise: a table's heap file
// and an index's B+ tree file are addressed the same way, but keeping
// the types distinct at the call site catches "passed an index where a
// table was expected" mistakes at compile time.

// TableID identifies a table's heap file.
type TableID uint64

// IndexID identifies a B+ tree index file.
type IndexID uint64

// String returns a string representation of the TableID, used wherever a
// DataID is formatted for logging or the debug inspector.
func (t TableID) String() string { return fmt.Sprintf("TableID(%d)", t) }

// NewTableIDFromUint64 builds a TableID directly from a raw hash value.
func NewTableIDFromUint64(v uint64) TableID { return TableID(v) }

// NewIndexIDFromUint64 builds an IndexID directly from a raw hash value.
func NewIndexIDFromUint64(v uint64) IndexID { return IndexID(v) }
