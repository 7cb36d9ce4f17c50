// Package engine implements the executor-facing glue (C6): pkg/engine.Table
// binds one heap.File, its secondary btree.Tree indexes and the
// lock.Manager behind a single public identifier (transactions come from a
// txn.Registry the caller owns and passes in per operation), and is the
// only call site outside undo-replay that performs the full
// lock-then-mutate-then-index protocol described in §4.5.
package engine

import (
	"sync"

	"github.com/google/uuid"

	"rmdb/pkg/btree"
	"rmdb/pkg/heap"
	"rmdb/pkg/lock"
	"rmdb/pkg/logging"
	"rmdb/pkg/primitives"
	"rmdb/pkg/rmerr"
	"rmdb/pkg/storage/cache"
	"rmdb/pkg/storage/disk"
	"rmdb/pkg/txn"
	"rmdb/pkg/types"
)

// indexBinding is one secondary index over a subset of the table's columns.
type indexBinding struct {
	name    string
	columns []int
	layout  types.KeyLayout
	tree    *btree.Tree
}

// Table is the executor's handle onto one heap file and its indexes.
type Table struct {
	PublicID uuid.UUID
	Name     string
	Schema   *Schema

	id      primitives.TableID
	dataDir string
	cache   *cache.Manager
	disk    *disk.Manager
	lockMgr *lock.Manager
	heap    *heap.File

	mu      sync.RWMutex
	indexes map[string]*indexBinding
}

// tablePath derives the heap file's on-disk path from a data directory and
// table name; hashing this path is also how the table's internal TableID
// is derived, per primitives.Filepath.
func tablePath(dataDir, name string) primitives.Filepath {
	return primitives.Filepath(dataDir).Join(name + ".tbl")
}

func indexPath(dataDir, tableName, indexName string) primitives.Filepath {
	return primitives.Filepath(dataDir).Join(tableName + "." + indexName + ".idx")
}

// CreateTable formats a brand new table on disk under dataDir and returns
// it open, with a freshly minted public identifier.
func CreateTable(name string, schema *Schema, dataDir string, dm *disk.Manager, cm *cache.Manager, lockMgr *lock.Manager) (*Table, error) {
	path := tablePath(dataDir, name)
	fd, err := dm.CreateFile(path.String())
	if err != nil {
		return nil, err
	}
	tableID := path.HashAsTableID()

	hf, err := heap.Create(tableID, fd, cm, schema.RecordSize())
	if err != nil {
		return nil, err
	}

	logging.WithTable(name).Infow("created table", "record_size", schema.RecordSize())

	return &Table{
		PublicID: uuid.New(),
		Name:     name,
		Schema:   schema,
		id:       tableID,
		dataDir:  dataDir,
		cache:    cm,
		disk:     dm,
		lockMgr:  lockMgr,
		heap:     hf,
		indexes:  make(map[string]*indexBinding),
	}, nil
}

// OpenTable reopens a table previously created with CreateTable. Its
// indexes must be reattached individually via OpenIndex, since the index
// set itself is executor/catalog state outside this package's scope.
func OpenTable(name string, schema *Schema, dataDir string, dm *disk.Manager, cm *cache.Manager, lockMgr *lock.Manager) (*Table, error) {
	path := tablePath(dataDir, name)
	fd, err := dm.OpenFile(path.String())
	if err != nil {
		return nil, err
	}
	tableID := path.HashAsTableID()

	hf, err := heap.Open(tableID, fd, cm)
	if err != nil {
		return nil, err
	}

	return &Table{
		PublicID: uuid.New(),
		Name:     name,
		Schema:   schema,
		id:       tableID,
		dataDir:  dataDir,
		cache:    cm,
		disk:     dm,
		lockMgr:  lockMgr,
		heap:     hf,
		indexes:  make(map[string]*indexBinding),
	}, nil
}

// ID returns the table's internal, path-derived identifier used to name
// its locks.
func (t *Table) ID() primitives.TableID { return t.id }

// txnCtx converts a possibly-nil *txn.Transaction into the heap.TxnContext
// interface without the classic nil-pointer-in-a-non-nil-interface trap: a
// nil *txn.Transaction boxed directly into heap.TxnContext would compare
// non-nil to the record manager's "ctx != nil" checks and then panic on
// first use.
func txnCtx(tx *txn.Transaction) heap.TxnContext {
	if tx == nil {
		return nil
	}
	return tx
}

// Insert acquires IX on the table, encodes fields per the schema, appends
// the row to the heap file (which itself takes the row's X lock and
// undo-logs the insert), and inserts the new key into every secondary
// index before returning, per §4.5.
func (t *Table) Insert(tx *txn.Transaction, fields []types.Field) (primitives.RID, error) {
	if tx != nil {
		if err := t.lockMgr.LockIX(tx, t.id); err != nil {
			return primitives.RID{}, err
		}
	}

	buf, err := t.Schema.EncodeRow(fields)
	if err != nil {
		return primitives.RID{}, err
	}

	rid, err := t.heap.Insert(txnCtx(tx), buf)
	if err != nil {
		return primitives.RID{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, idx := range t.indexes {
		key := types.EncodeKey(idx.layout, projectFields(fields, idx.columns))
		if _, err := idx.tree.Insert(key, rid); err != nil {
			return rid, rmerr.Wrap(err, rmerr.InternalError, "index "+idx.name+" insert")
		}
		if tx != nil {
			tree := idx.tree
			tx.RecordCustomUndo(func() error {
				_, err := tree.Delete(key)
				return err
			})
		}
	}
	return rid, nil
}

// Get acquires IS on the table, reads the row through the heap file
// (taking the row's S lock), and decodes it back into typed fields.
func (t *Table) Get(tx *txn.Transaction, rid primitives.RID) ([]types.Field, error) {
	if tx != nil {
		if err := t.lockMgr.LockIS(tx, t.id); err != nil {
			return nil, err
		}
	}
	buf, err := t.heap.Get(txnCtx(tx), rid)
	if err != nil {
		return nil, err
	}
	return t.Schema.DecodeRow(buf)
}

// Update acquires IX on the table, reads the pre-image to compute each
// index's old key, overwrites the row (which undo-logs the pre-image),
// and re-keys every secondary index.
func (t *Table) Update(tx *txn.Transaction, rid primitives.RID, fields []types.Field) error {
	if tx != nil {
		if err := t.lockMgr.LockIX(tx, t.id); err != nil {
			return err
		}
	}

	oldBuf, err := t.heap.Get(txnCtx(tx), rid)
	if err != nil {
		return err
	}
	oldFields, err := t.Schema.DecodeRow(oldBuf)
	if err != nil {
		return err
	}

	newBuf, err := t.Schema.EncodeRow(fields)
	if err != nil {
		return err
	}
	if err := t.heap.Update(txnCtx(tx), rid, newBuf); err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, idx := range t.indexes {
		oldKey := types.EncodeKey(idx.layout, projectFields(oldFields, idx.columns))
		newKey := types.EncodeKey(idx.layout, projectFields(fields, idx.columns))
		if types.CompareKeys(idx.layout, oldKey, newKey) == 0 {
			continue
		}
		if _, err := idx.tree.Delete(oldKey); err != nil {
			return rmerr.Wrap(err, rmerr.InternalError, "index "+idx.name+" delete old key")
		}
		if _, err := idx.tree.Insert(newKey, rid); err != nil {
			return rmerr.Wrap(err, rmerr.InternalError, "index "+idx.name+" insert new key")
		}
		if tx != nil {
			tree := idx.tree
			ok, nk := oldKey, newKey
			tx.RecordCustomUndo(func() error {
				if _, err := tree.Delete(nk); err != nil {
					return err
				}
				_, err := tree.Insert(ok, rid)
				return err
			})
		}
	}
	return nil
}

// Delete acquires IX on the table, reads the row to compute each index's
// key, removes it from the heap file (which undo-logs the deleted bytes),
// and removes the corresponding key from every secondary index.
func (t *Table) Delete(tx *txn.Transaction, rid primitives.RID) error {
	if tx != nil {
		if err := t.lockMgr.LockIX(tx, t.id); err != nil {
			return err
		}
	}

	buf, err := t.heap.Get(txnCtx(tx), rid)
	if err != nil {
		return err
	}
	fields, err := t.Schema.DecodeRow(buf)
	if err != nil {
		return err
	}

	if err := t.heap.Delete(txnCtx(tx), rid); err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, idx := range t.indexes {
		key := types.EncodeKey(idx.layout, projectFields(fields, idx.columns))
		if _, err := idx.tree.Delete(key); err != nil {
			return rmerr.Wrap(err, rmerr.InternalError, "index "+idx.name+" delete")
		}
		if tx != nil {
			tree := idx.tree
			tx.RecordCustomUndo(func() error {
				_, err := tree.Insert(key, rid)
				return err
			})
		}
	}
	return nil
}

// Row pairs a decoded record with the RID it lives at, the unit a Scan
// yields.
type Row struct {
	RID    primitives.RID
	Fields []types.Field
}

// Scan acquires IS on the table and returns every live row in heap order.
// Unlike Get, it does not take a lock per row: taking IS at the table
// level is the intention-protocol-correct way to authorize a full read
// pass, mirroring the heap file's own scan-takes-no-row-locks stance in
// §4.1.
func (t *Table) Scan(tx *txn.Transaction) ([]Row, error) {
	if tx != nil {
		if err := t.lockMgr.LockIS(tx, t.id); err != nil {
			return nil, err
		}
	}

	it := t.heap.Scan()
	defer it.Close()

	var rows []Row
	for it.Next() {
		fields, err := t.Schema.DecodeRow(it.Record())
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{RID: it.RID(), Fields: fields})
	}
	return rows, nil
}
