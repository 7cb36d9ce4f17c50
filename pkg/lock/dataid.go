package lock

import (
	"fmt"

	"rmdb/pkg/primitives"
)

// Kind identifies what granularity a DataID names.
type Kind int

const (
	TableKind Kind = iota
	RecordKind
)

func (k Kind) String() string {
	if k == RecordKind {
		return "RECORD"
	}
	return "TABLE"
}

// DataID names one lockable resource: a whole table, or one row within
// it. RID is unused (its zero value) for TableKind, per §3.
type DataID struct {
	Table primitives.TableID
	Kind  Kind
	RID   primitives.RID
}

func TableDataID(table primitives.TableID) DataID {
	return DataID{Table: table, Kind: TableKind}
}

func RecordDataID(table primitives.TableID, rid primitives.RID) DataID {
	return DataID{Table: table, Kind: RecordKind, RID: rid}
}

func (d DataID) String() string {
	if d.Kind == TableKind {
		return fmt.Sprintf("table(%s)", d.Table)
	}
	return fmt.Sprintf("record(%s,%s)", d.Table, d.RID)
}
