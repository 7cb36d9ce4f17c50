package engine

import (
	"rmdb/pkg/btree"
	"rmdb/pkg/logging"
	"rmdb/pkg/primitives"
	"rmdb/pkg/rmerr"
	"rmdb/pkg/txn"
	"rmdb/pkg/types"
)

// CreateIndex builds a new secondary index over the named columns and
// backfills it from every row currently in the table. The caller must
// already hold (or be about to acquire) exclusive access to the table for
// the duration of the backfill; when tx is non-nil CreateIndex itself
// takes the table's X lock via tx, per the DDL discipline implied by §4.5.
// With a nil tx no lock is taken.
func (t *Table) CreateIndex(tx *txn.Transaction, indexName string, columnNames []string) error {
	if tx != nil {
		if err := t.lockMgr.LockExclusiveTable(tx, t.id); err != nil {
			return err
		}
	}

	t.mu.Lock()
	if _, exists := t.indexes[indexName]; exists {
		t.mu.Unlock()
		return rmerr.Newf(rmerr.IndexExists, "index %q already exists on table %s", indexName, t.Name)
	}
	t.mu.Unlock()

	columnIndices := make([]int, len(columnNames))
	for i, name := range columnNames {
		ci := t.Schema.ColumnIndex(name)
		if ci < 0 {
			return rmerr.Newf(rmerr.ColumnNotFound, "column %q not found on table %s", name, t.Name)
		}
		columnIndices[i] = ci
	}
	layout := t.Schema.Project(columnIndices)

	path := indexPath(t.dataDir, t.Name, indexName)
	fd, err := t.disk.CreateFile(path.String())
	if err != nil {
		return err
	}
	indexID := path.HashAsIndexID()

	tree, err := btree.Create(indexID, fd, t.cache, layout)
	if err != nil {
		return err
	}

	rows, err := t.Scan(nil)
	if err != nil {
		return err
	}
	for _, row := range rows {
		key := types.EncodeKey(layout, projectFields(row.Fields, columnIndices))
		if _, err := tree.Insert(key, row.RID); err != nil {
			return rmerr.Wrap(err, rmerr.InternalError, "backfill index "+indexName)
		}
	}

	t.mu.Lock()
	t.indexes[indexName] = &indexBinding{name: indexName, columns: columnIndices, layout: layout, tree: tree}
	t.mu.Unlock()

	logging.WithTable(t.Name).Infow("created index", "index", indexName, "columns", columnNames, "rows", len(rows))
	return nil
}

// OpenIndex reattaches a previously created index file to the table
// without backfilling it, used when reopening a table whose index files
// already exist on disk.
func (t *Table) OpenIndex(indexName string, columnNames []string) error {
	columnIndices := make([]int, len(columnNames))
	for i, name := range columnNames {
		ci := t.Schema.ColumnIndex(name)
		if ci < 0 {
			return rmerr.Newf(rmerr.ColumnNotFound, "column %q not found on table %s", name, t.Name)
		}
		columnIndices[i] = ci
	}
	layout := t.Schema.Project(columnIndices)

	path := indexPath(t.dataDir, t.Name, indexName)
	fd, err := t.disk.OpenFile(path.String())
	if err != nil {
		return err
	}
	indexID := path.HashAsIndexID()

	tree, err := btree.Open(indexID, fd, t.cache)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexes[indexName] = &indexBinding{name: indexName, columns: columnIndices, layout: layout, tree: tree}
	return nil
}

// DropIndex removes an index from the table's live index set. The
// underlying index file is abandoned rather than destroyed, consistent
// with the allocate-only page allocator's stance that reclaiming pages is
// out of scope (§4.2 Supplemental).
func (t *Table) DropIndex(tx *txn.Transaction, indexName string) error {
	if tx != nil {
		if err := t.lockMgr.LockExclusiveTable(tx, t.id); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.indexes[indexName]; !ok {
		return rmerr.Newf(rmerr.IndexNotFound, "index %q not found on table %s", indexName, t.Name)
	}
	delete(t.indexes, indexName)
	return nil
}

// Lookup returns every RID whose index key equals the encoded key built
// from keyFields, using the named index.
func (t *Table) Lookup(indexName string, keyFields []types.Field) ([]primitives.RID, error) {
	t.mu.RLock()
	idx, ok := t.indexes[indexName]
	t.mu.RUnlock()
	if !ok {
		return nil, rmerr.Newf(rmerr.IndexNotFound, "index %q not found on table %s", indexName, t.Name)
	}

	key := types.EncodeKey(idx.layout, keyFields)
	rid, found, err := idx.tree.Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return []primitives.RID{rid}, nil
}

// IndexNames returns the names of every secondary index currently bound
// to the table, used by the debug inspector.
func (t *Table) IndexNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.indexes))
	for name := range t.indexes {
		names = append(names, name)
	}
	return names
}
