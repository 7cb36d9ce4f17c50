package btree

import "rmdb/pkg/primitives"

// NodeInfo is a read-only snapshot of one B+ tree node, used by the debug
// inspector (§4.6 "browse B+ tree nodes: key array, child pointers, leaf
// chain") without exposing the mutating node/tree machinery.
type NodeInfo struct {
	PageNo   int32
	IsLeaf   bool
	NumKeys  int32
	Parent   int32
	PrevLeaf int32
	NextLeaf int32
	Keys     [][]byte
	Children []int32       // internal nodes only
	Values   []primitives.RID // leaf nodes only
}

// RootPage returns the tree's current root page number, or
// primitives.NoPage if the tree is empty.
func (t *Tree) RootPage() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.header.root
}

// FirstLeaf and LastLeaf return the file header's leaf-chain endpoints.
func (t *Tree) FirstLeaf() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.header.firstLeaf
}

func (t *Tree) LastLeaf() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.header.lastLeaf
}

// NodeInfo returns a snapshot of the node at pageNo.
func (t *Tree) NodeInfo(pageNo int32) (NodeInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.fetchNode(pageNo)
	if err != nil {
		return NodeInfo{}, err
	}
	defer t.unpin(pageNo, false)

	numKey := n.numKey()
	info := NodeInfo{
		PageNo:   pageNo,
		IsLeaf:   n.isLeaf(),
		NumKeys:  numKey,
		Parent:   n.parent(),
		PrevLeaf: primitives.NoPage,
		NextLeaf: primitives.NoPage,
		Keys:     make([][]byte, numKey),
	}
	for i := int32(0); i < numKey; i++ {
		key := make([]byte, len(n.key(i)))
		copy(key, n.key(i))
		info.Keys[i] = key
	}
	if n.isLeaf() {
		info.PrevLeaf = n.prevLeaf()
		info.NextLeaf = n.nextLeaf()
		info.Values = make([]primitives.RID, numKey)
		for i := int32(0); i < numKey; i++ {
			info.Values[i] = n.value(i)
		}
	} else {
		info.Children = make([]int32, numKey)
		for i := int32(0); i < numKey; i++ {
			info.Children[i] = n.childPage(i)
		}
	}
	return info, nil
}
