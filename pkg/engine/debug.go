package engine

import (
	"rmdb/pkg/btree"
	"rmdb/pkg/heap"
)

// HeapStats exposes the table's underlying heap file header for the debug
// inspector, per §4.6.
func (t *Table) HeapStats() heap.FileStats {
	return t.heap.Stats()
}

// HeapPage exposes one heap data page's bitmap and free-list linkage.
func (t *Table) HeapPage(pageNo int32) (heap.PageInfo, error) {
	return t.heap.PageInfo(pageNo)
}

// FreeListChain exposes the table's free-page chain in traversal order.
func (t *Table) FreeListChain() ([]int32, error) {
	return t.heap.FreeListChain()
}

// IndexTree exposes the named index's underlying B+ tree for the debug
// inspector's node-browsing panel. The second return is false if no such
// index is bound.
func (t *Table) IndexTree(indexName string) (*btree.Tree, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.indexes[indexName]
	if !ok {
		return nil, false
	}
	return idx.tree, true
}
