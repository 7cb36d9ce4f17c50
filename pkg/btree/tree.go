package btree

import (
	"sync"

	"rmdb/pkg/primitives"
	"rmdb/pkg/rmerr"
	"rmdb/pkg/storage/cache"
	"rmdb/pkg/storage/disk"
	"rmdb/pkg/types"
)

// Tree is one open B+ tree index file.
//
// mu is the single coarse-grained mutex described in §4.2/§5: it is held
// for the duration of any Get/Insert/Delete call, and iterators take no
// lock of their own between Next calls, relying on the caller's
// transaction-level row locking for cross-operation consistency.
type Tree struct {
	id    primitives.IndexID
	fd    disk.FileID
	cache *cache.Manager

	mu      sync.Mutex
	layout  types.KeyLayout
	keySize int32
	maxKeys int32
	minKeys int32
	header  indexHeader
}

// Create formats a brand new, empty index file over the given composite
// key layout and returns it open.
func Create(id primitives.IndexID, fd disk.FileID, c *cache.Manager, columns types.KeyLayout) (*Tree, error) {
	if len(columns) == 0 || len(columns) > maxColumns {
		return nil, rmerr.Newf(rmerr.InternalError, "index key must have 1..%d columns, got %d", maxColumns, len(columns))
	}
	keySize := int32(columns.TotalSize())
	maxKeys, minKeys := nodeCapacity(keySize)
	if maxKeys < 2 {
		return nil, rmerr.Newf(rmerr.InternalError, "key size %d too large for a %d-byte page", keySize, cache.PageSize)
	}

	headerPageNo, headerPage, err := c.NewPage(fd)
	if err != nil {
		return nil, err
	}
	if headerPageNo != HeaderPageNo {
		_ = c.UnpinPage(fd, headerPageNo, false)
		return nil, rmerr.Newf(rmerr.InternalError, "expected index header at page 0, got %d", headerPageNo)
	}

	sentinelPageNo, sentinelPage, err := c.NewPage(fd)
	if err != nil {
		_ = c.UnpinPage(fd, headerPageNo, false)
		return nil, err
	}
	if sentinelPageNo != LeafSentinelPageNo {
		_ = c.UnpinPage(fd, headerPageNo, false)
		_ = c.UnpinPage(fd, sentinelPageNo, false)
		return nil, rmerr.Newf(rmerr.InternalError, "expected leaf sentinel at page 1, got %d", sentinelPageNo)
	}
	sentinel := node{cp: sentinelPage, keySize: keySize, maxKeys: maxKeys}
	sentinel.setLeaf(true)
	sentinel.setNumKey(0)
	sentinel.setParent(primitives.NoPage)
	sentinel.setPrevLeaf(primitives.NoPage)
	sentinel.setNextLeaf(primitives.NoPage)
	sentinelPage.MarkDirty()
	if err := c.UnpinPage(fd, sentinelPageNo, true); err != nil {
		return nil, err
	}

	header := indexHeader{
		keySize:    keySize,
		root:       primitives.NoPage,
		firstLeaf:  LeafSentinelPageNo,
		lastLeaf:   LeafSentinelPageNo,
		numPages:   2,
		numColumns: int32(len(columns)),
		columns:    columns,
	}
	copy(headerPage.Data, header.encode())
	headerPage.MarkDirty()
	if err := c.UnpinPage(fd, headerPageNo, true); err != nil {
		return nil, err
	}

	return &Tree{id: id, fd: fd, cache: c, layout: columns, keySize: keySize, maxKeys: maxKeys, minKeys: minKeys, header: header}, nil
}

// Open loads an existing index file's header and returns it ready for use.
func Open(id primitives.IndexID, fd disk.FileID, c *cache.Manager) (*Tree, error) {
	page, err := c.FetchPage(fd, HeaderPageNo)
	if err != nil {
		return nil, err
	}
	header := decodeIndexHeader(page.Data)
	if err := c.UnpinPage(fd, HeaderPageNo, false); err != nil {
		return nil, err
	}
	maxKeys, minKeys := nodeCapacity(header.keySize)
	return &Tree{
		id: id, fd: fd, cache: c,
		layout: header.columns, keySize: header.keySize,
		maxKeys: maxKeys, minKeys: minKeys, header: header,
	}, nil
}

// ID returns this index's identifier.
func (t *Tree) ID() primitives.IndexID { return t.id }

// KeySize returns the fixed composite key size in bytes.
func (t *Tree) KeySize() int32 { return t.keySize }

func (t *Tree) writeHeader() error {
	page, err := t.cache.FetchPage(t.fd, HeaderPageNo)
	if err != nil {
		return err
	}
	copy(page.Data, t.header.encode())
	page.MarkDirty()
	return t.cache.UnpinPage(t.fd, HeaderPageNo, true)
}

func (t *Tree) fetchNode(pageNo int32) (node, error) {
	if pageNo < FirstNodePage || pageNo >= t.header.numPages {
		return node{}, rmerr.Newf(rmerr.PageNotExist, "index page %d does not exist", pageNo)
	}
	cp, err := t.cache.FetchPage(t.fd, pageNo)
	if err != nil {
		return node{}, err
	}
	return node{cp: cp, keySize: t.keySize, maxKeys: t.maxKeys}, nil
}

func (t *Tree) unpin(pageNo int32, dirty bool) {
	if err := t.cache.UnpinPage(t.fd, pageNo, dirty); err != nil {
		panic(err)
	}
}

func (t *Tree) allocNode(isLeaf bool) (int32, node, error) {
	pageNo, cp, err := t.cache.NewPage(t.fd)
	if err != nil {
		return 0, node{}, err
	}
	n := node{cp: cp, keySize: t.keySize, maxKeys: t.maxKeys}
	n.setLeaf(isLeaf)
	n.setNumKey(0)
	n.setParent(primitives.NoPage)
	n.setPrevLeaf(primitives.NoPage)
	n.setNextLeaf(primitives.NoPage)
	t.header.numPages++
	return pageNo, n, nil
}

// lowerBoundIndex returns the first index in [lo, hi) whose key is >= key.
func (t *Tree) lowerBoundIndex(n node, key []byte, lo, hi int32) int32 {
	for lo < hi {
		mid := (lo + hi) / 2
		if types.CompareKeys(t.layout, n.key(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBoundIndex returns the first index in [lo, hi) whose key is > key.
func (t *Tree) upperBoundIndex(n node, key []byte, lo, hi int32) int32 {
	for lo < hi {
		mid := (lo + hi) / 2
		if types.CompareKeys(t.layout, n.key(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (t *Tree) keysEqual(a, b []byte) bool {
	return types.CompareKeys(t.layout, a, b) == 0
}

func indexOfChild(parent node, childPageNo int32) int32 {
	for i := int32(0); i < parent.numKey(); i++ {
		if parent.childPage(i) == childPageNo {
			return i
		}
	}
	return -1
}

func insertEntryAt(n node, pos int32, key []byte, val primitives.RID) {
	n.shiftRight(pos)
	n.setKey(pos, key)
	n.setValue(pos, val)
	n.setNumKey(n.numKey() + 1)
}

func removeEntryAt(n node, pos int32) {
	n.shiftLeft(pos + 1)
	n.setNumKey(n.numKey() - 1)
}

// locate descends from the root to the leaf that would contain key,
// pinning one node at a time and unpinning the parent before descending,
// per §4.2 "Locate".
func (t *Tree) locate(key []byte) (int32, error) {
	pageNo := t.header.root
	for {
		n, err := t.fetchNode(pageNo)
		if err != nil {
			return 0, err
		}
		if n.isLeaf() {
			t.unpin(pageNo, false)
			return pageNo, nil
		}
		pos := t.upperBoundIndex(n, key, 1, n.numKey())
		child := n.childPage(pos - 1)
		t.unpin(pageNo, false)
		pageNo = child
	}
}

// Get returns the RID stored for key, and whether it was present.
func (t *Tree) Get(key []byte) (primitives.RID, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.header.root == primitives.NoPage {
		return primitives.RID{}, false, nil
	}
	leafNo, err := t.locate(key)
	if err != nil {
		return primitives.RID{}, false, err
	}
	leaf, err := t.fetchNode(leafNo)
	if err != nil {
		return primitives.RID{}, false, err
	}
	defer t.unpin(leafNo, false)

	pos := t.lowerBoundIndex(leaf, key, 0, leaf.numKey())
	if pos >= leaf.numKey() || !t.keysEqual(leaf.key(pos), key) {
		return primitives.RID{}, false, nil
	}
	return leaf.value(pos), true, nil
}

// Insert adds (key, rid). It returns false, with no change, if key is
// already present.
func (t *Tree) Insert(key []byte, rid primitives.RID) (bool, error) {
	if int32(len(key)) != t.keySize {
		return false, rmerr.Newf(rmerr.InternalError, "insert key length %d != index key size %d", len(key), t.keySize)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.header.root == primitives.NoPage {
		pageNo, leaf, err := t.allocNode(true)
		if err != nil {
			return false, err
		}
		leaf.setKey(0, key)
		leaf.setValue(0, rid)
		leaf.setNumKey(1)
		leaf.setPrevLeaf(LeafSentinelPageNo)
		leaf.setNextLeaf(LeafSentinelPageNo)
		t.header.root = pageNo
		t.header.firstLeaf = pageNo
		t.header.lastLeaf = pageNo
		t.unpin(pageNo, true)
		return true, t.writeHeader()
	}

	leafNo, err := t.locate(key)
	if err != nil {
		return false, err
	}
	leaf, err := t.fetchNode(leafNo)
	if err != nil {
		return false, err
	}

	pos := t.lowerBoundIndex(leaf, key, 0, leaf.numKey())
	if pos < leaf.numKey() && t.keysEqual(leaf.key(pos), key) {
		t.unpin(leafNo, false)
		return false, nil
	}

	var oldMin []byte
	if pos == 0 && leaf.numKey() > 0 {
		oldMin = append([]byte(nil), leaf.key(0)...)
	}
	insertEntryAt(leaf, pos, key, rid)

	if oldMin != nil {
		newMin := append([]byte(nil), leaf.key(0)...)
		if err := t.propagateFirstKeyUpward(leafNo, leaf.parent(), oldMin, newMin); err != nil {
			t.unpin(leafNo, true)
			return false, err
		}
	}

	if leaf.numKey() == t.maxKeys {
		if err := t.splitNode(leafNo, leaf); err != nil {
			return false, err
		}
	} else {
		t.unpin(leafNo, true)
	}

	return true, t.writeHeader()
}

// splitNode splits an overfull node in two and propagates the split
// upward, per §4.2 "Insert" steps 1-4. It takes ownership of the pin on
// (pageNo, n) and unpins it before returning.
func (t *Tree) splitNode(pageNo int32, n node) error {
	split := n.numKey() / 2
	count := n.numKey() - split

	newPageNo, newNode, err := t.allocNode(n.isLeaf())
	if err != nil {
		t.unpin(pageNo, true)
		return err
	}

	for i := int32(0); i < count; i++ {
		newNode.setKey(i, n.key(split+i))
		newNode.setValue(i, n.value(split+i))
	}
	newNode.setNumKey(count)
	n.setNumKey(split)
	newNode.setParent(n.parent())

	if n.isLeaf() {
		newNode.setPrevLeaf(pageNo)
		newNode.setNextLeaf(n.nextLeaf())
		oldNext := n.nextLeaf()
		n.setNextLeaf(newPageNo)
		if oldNext == LeafSentinelPageNo {
			t.header.lastLeaf = newPageNo
		} else {
			nextNode, err := t.fetchNode(oldNext)
			if err != nil {
				t.unpin(pageNo, true)
				t.unpin(newPageNo, true)
				return err
			}
			nextNode.setPrevLeaf(newPageNo)
			t.unpin(oldNext, true)
		}
	} else {
		for i := int32(0); i < count; i++ {
			child, err := t.fetchNode(newNode.childPage(i))
			if err != nil {
				t.unpin(pageNo, true)
				t.unpin(newPageNo, true)
				return err
			}
			child.setParent(newPageNo)
			t.unpin(newNode.childPage(i), true)
		}
	}

	firstKeyOfNew := append([]byte(nil), newNode.key(0)...)

	if n.parent() == primitives.NoPage {
		newRootPageNo, newRoot, err := t.allocNode(false)
		if err != nil {
			t.unpin(pageNo, true)
			t.unpin(newPageNo, true)
			return err
		}
		newRoot.setKey(0, n.key(0))
		newRoot.setChildPage(0, pageNo)
		newRoot.setKey(1, firstKeyOfNew)
		newRoot.setChildPage(1, newPageNo)
		newRoot.setNumKey(2)
		n.setParent(newRootPageNo)
		newNode.setParent(newRootPageNo)
		t.header.root = newRootPageNo
		t.unpin(newRootPageNo, true)
		t.unpin(pageNo, true)
		t.unpin(newPageNo, true)
		return nil
	}

	parentPageNo := n.parent()
	parent, err := t.fetchNode(parentPageNo)
	if err != nil {
		t.unpin(pageNo, true)
		t.unpin(newPageNo, true)
		return err
	}
	t.unpin(pageNo, true)
	t.unpin(newPageNo, true)

	idx := indexOfChild(parent, pageNo)
	if idx < 0 {
		t.unpin(parentPageNo, false)
		return rmerr.Newf(rmerr.InternalError, "split: child %d not found in parent %d", pageNo, parentPageNo)
	}
	insertEntryAt(parent, idx+1, firstKeyOfNew, primitives.RID{PageNo: newPageNo})

	if parent.numKey() == t.maxKeys {
		return t.splitNode(parentPageNo, parent)
	}
	t.unpin(parentPageNo, true)
	return nil
}

// propagateFirstKeyUpward walks from parentPageNo upward, overwriting any
// ancestor separator that still equals oldMin with newMin, stopping as
// soon as a separator differs, per §4.2 "Insert"/"Delete".
func (t *Tree) propagateFirstKeyUpward(childPageNo, parentPageNo int32, oldMin, newMin []byte) error {
	for parentPageNo != primitives.NoPage {
		parent, err := t.fetchNode(parentPageNo)
		if err != nil {
			return err
		}
		idx := indexOfChild(parent, childPageNo)
		if idx < 0 {
			t.unpin(parentPageNo, false)
			return rmerr.Newf(rmerr.InternalError, "propagate: child %d not found in parent %d", childPageNo, parentPageNo)
		}
		if !t.keysEqual(parent.key(idx), oldMin) {
			t.unpin(parentPageNo, false)
			return nil
		}
		parent.setKey(idx, newMin)
		nextParent := parent.parent()
		t.unpin(parentPageNo, true)
		childPageNo = parentPageNo
		parentPageNo = nextParent
	}
	return nil
}

// Delete removes key. It returns false, with no change, if key is absent.
func (t *Tree) Delete(key []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.header.root == primitives.NoPage {
		return false, nil
	}

	leafNo, err := t.locate(key)
	if err != nil {
		return false, err
	}
	leaf, err := t.fetchNode(leafNo)
	if err != nil {
		return false, err
	}

	pos := t.lowerBoundIndex(leaf, key, 0, leaf.numKey())
	if pos >= leaf.numKey() || !t.keysEqual(leaf.key(pos), key) {
		t.unpin(leafNo, false)
		return false, nil
	}

	oldMin := append([]byte(nil), leaf.key(0)...)
	parentPageNo := leaf.parent()
	removeEntryAt(leaf, pos)

	if pos == 0 && leaf.numKey() > 0 {
		newMin := append([]byte(nil), leaf.key(0)...)
		if err := t.propagateFirstKeyUpward(leafNo, parentPageNo, oldMin, newMin); err != nil {
			t.unpin(leafNo, true)
			return false, err
		}
	}

	if err := t.rebalance(leafNo, leaf); err != nil {
		return false, err
	}

	return true, t.writeHeader()
}

// rebalance restores the min_keys invariant at (pageNo, n) after a
// deletion, per §4.2 "Delete". It takes ownership of the pin on
// (pageNo, n) and unpins every page it touches before returning.
func (t *Tree) rebalance(pageNo int32, n node) error {
	if n.parent() == primitives.NoPage {
		switch {
		case !n.isLeaf() && n.numKey() == 1:
			child := n.childPage(0)
			childNode, err := t.fetchNode(child)
			if err != nil {
				t.unpin(pageNo, false)
				return err
			}
			childNode.setParent(primitives.NoPage)
			t.unpin(child, true)
			t.header.root = child
			t.unpin(pageNo, false) // old root abandoned; allocator is allocate-only
		case n.isLeaf() && n.numKey() == 0:
			t.header.root = primitives.NoPage
			t.header.firstLeaf = LeafSentinelPageNo
			t.header.lastLeaf = LeafSentinelPageNo
			t.unpin(pageNo, false)
		default:
			t.unpin(pageNo, true)
		}
		return nil
	}

	if n.numKey() >= t.minKeys {
		t.unpin(pageNo, true)
		return nil
	}

	parentPageNo := n.parent()
	parent, err := t.fetchNode(parentPageNo)
	if err != nil {
		t.unpin(pageNo, true)
		return err
	}
	idx := indexOfChild(parent, pageNo)
	if idx < 0 {
		t.unpin(pageNo, true)
		t.unpin(parentPageNo, false)
		return rmerr.Newf(rmerr.InternalError, "rebalance: child %d not found in parent %d", pageNo, parentPageNo)
	}

	var siblingIdx int32
	leftSibling := idx > 0
	if leftSibling {
		siblingIdx = idx - 1
	} else {
		siblingIdx = idx + 1
	}
	siblingPageNo := parent.childPage(siblingIdx)
	sibling, err := t.fetchNode(siblingPageNo)
	if err != nil {
		t.unpin(pageNo, true)
		t.unpin(parentPageNo, false)
		return err
	}

	if n.numKey()+sibling.numKey() >= 2*t.minKeys {
		if err := t.redistribute(n, pageNo, sibling, siblingPageNo, parent, idx, siblingIdx, leftSibling); err != nil {
			return err
		}
		t.unpin(parentPageNo, true)
		return nil
	}

	leftPageNo, left, rightPageNo, right, rightIdx := pageNo, n, siblingPageNo, sibling, siblingIdx
	if leftSibling {
		leftPageNo, left, rightPageNo, right, rightIdx = siblingPageNo, sibling, pageNo, n, idx
	}
	if err := t.coalesce(leftPageNo, left, rightPageNo, right); err != nil {
		t.unpin(parentPageNo, true)
		return err
	}
	removeEntryAt(parent, rightIdx)

	return t.rebalance(parentPageNo, parent)
}

// redistribute moves exactly one entry from sibling into n, per §4.2
// "Delete"/redistribute, unpinning n, sibling and (dirtying but not
// unpinning) parent; the caller unpins parent.
func (t *Tree) redistribute(n node, pageNo int32, sibling node, siblingPageNo int32, parent node, idx, siblingIdx int32, leftSibling bool) error {
	if leftSibling {
		last := sibling.numKey() - 1
		movedKey := append([]byte(nil), sibling.key(last)...)
		movedVal := sibling.value(last)
		sibling.setNumKey(last)

		n.shiftRight(0)
		n.setKey(0, movedKey)
		n.setValue(0, movedVal)
		n.setNumKey(n.numKey() + 1)

		if !n.isLeaf() {
			child, err := t.fetchNode(movedVal.PageNo)
			if err != nil {
				t.unpin(pageNo, true)
				t.unpin(siblingPageNo, true)
				return err
			}
			child.setParent(pageNo)
			t.unpin(movedVal.PageNo, true)
		}
		parent.setKey(idx, append([]byte(nil), n.key(0)...))
	} else {
		movedKey := append([]byte(nil), sibling.key(0)...)
		movedVal := sibling.value(0)
		removeEntryAt(sibling, 0)

		n.setKey(n.numKey(), movedKey)
		n.setValue(n.numKey(), movedVal)
		n.setNumKey(n.numKey() + 1)

		if !n.isLeaf() {
			child, err := t.fetchNode(movedVal.PageNo)
			if err != nil {
				t.unpin(pageNo, true)
				t.unpin(siblingPageNo, true)
				return err
			}
			child.setParent(pageNo)
			t.unpin(movedVal.PageNo, true)
		}
		parent.setKey(siblingIdx, append([]byte(nil), sibling.key(0)...))
	}

	t.unpin(pageNo, true)
	t.unpin(siblingPageNo, true)
	return nil
}

// coalesce merges right's entries into left, per §4.2 "Delete"/coalesce.
// It unpins left (dirty) and right (abandoned, allocate-only allocator).
func (t *Tree) coalesce(leftPageNo int32, left node, rightPageNo int32, right node) error {
	base := left.numKey()
	for i := int32(0); i < right.numKey(); i++ {
		left.setKey(base+i, right.key(i))
		left.setValue(base+i, right.value(i))
		if !right.isLeaf() {
			child, err := t.fetchNode(right.childPage(i))
			if err != nil {
				t.unpin(leftPageNo, true)
				t.unpin(rightPageNo, false)
				return err
			}
			child.setParent(leftPageNo)
			t.unpin(right.childPage(i), true)
		}
	}
	left.setNumKey(base + right.numKey())

	if left.isLeaf() {
		nxt := right.nextLeaf()
		left.setNextLeaf(nxt)
		if nxt == LeafSentinelPageNo {
			t.header.lastLeaf = leftPageNo
		} else {
			nxtNode, err := t.fetchNode(nxt)
			if err != nil {
				t.unpin(leftPageNo, true)
				t.unpin(rightPageNo, false)
				return err
			}
			nxtNode.setPrevLeaf(leftPageNo)
			t.unpin(nxt, true)
		}
	}

	t.unpin(rightPageNo, false)
	t.unpin(leftPageNo, true)
	return nil
}
