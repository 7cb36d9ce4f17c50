// Package btree implements the B+ tree index (C3): a fixed-key-width,
// disk-resident index over a page cache, supporting point lookup, range
// iteration, insert with split, and delete with redistribute/coalesce,
// as described in §3/§4.2.
package btree

import (
	"encoding/binary"

	"rmdb/pkg/primitives"
	"rmdb/pkg/storage/cache"
	"rmdb/pkg/types"
)

// HeaderPageNo is the index-header page.
const HeaderPageNo int32 = 0

// LeafSentinelPageNo anchors the doubly linked leaf list; the first
// leaf's prev and the last leaf's next both point here.
const LeafSentinelPageNo int32 = 1

// FirstNodePage is the first page number ever used for a real tree node.
const FirstNodePage int32 = 2

// nodeHeaderSize is the on-disk size of every node page's header:
// is_leaf(4) + num_key(4) + parent(4) + prev_leaf(4) + next_leaf(4).
const nodeHeaderSize = 20

// ridSize is the on-disk size of one RID value cell.
const ridSize = 8

// indexHeaderFixedSize is the on-disk size of the page-0 index header:
// key_size(4) + root(4) + first_leaf(4) + last_leaf(4) + num_pages(4)
// + num_columns(4), followed by up to maxColumns (kind,width) pairs.
const maxColumns = 16
const indexHeaderFixedSize = 24

// indexHeader mirrors the page-0 header described in §3/§6.
type indexHeader struct {
	keySize    int32
	root       int32
	firstLeaf  int32
	lastLeaf   int32
	numPages   int32
	numColumns int32
	columns    types.KeyLayout
}

func (h indexHeader) encode() []byte {
	buf := make([]byte, cache.PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.keySize))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.root))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.firstLeaf))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.lastLeaf))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.numPages))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.numColumns))
	off := indexHeaderFixedSize
	for _, c := range h.columns {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(c.Kind))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(c.Width)) // #nosec G115
		off += 8
	}
	return buf
}

func decodeIndexHeader(buf []byte) indexHeader {
	h := indexHeader{
		keySize:    int32(binary.LittleEndian.Uint32(buf[0:4])),
		root:       int32(binary.LittleEndian.Uint32(buf[4:8])),
		firstLeaf:  int32(binary.LittleEndian.Uint32(buf[8:12])),
		lastLeaf:   int32(binary.LittleEndian.Uint32(buf[12:16])),
		numPages:   int32(binary.LittleEndian.Uint32(buf[16:20])),
		numColumns: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}
	off := indexHeaderFixedSize
	h.columns = make(types.KeyLayout, h.numColumns)
	for i := int32(0); i < h.numColumns; i++ {
		h.columns[i] = types.Column{
			Kind:  types.Kind(binary.LittleEndian.Uint32(buf[off : off+4])),
			Width: int(binary.LittleEndian.Uint32(buf[off+4 : off+8])),
		}
		off += 8
	}
	return h
}

// nodeCapacity computes max_keys = floor((PAGE_SIZE - header) / (key_size + rid_size)),
// per §4.2, and min_keys = floor(max_keys / 2): the smaller half of a full
// node split at num_key/2 holds exactly that many keys, and two nodes
// coalesced below it always fit under max_keys.
func nodeCapacity(keySize int32) (maxKeys, minKeys int32) {
	maxKeys = (cache.PageSize - nodeHeaderSize) / (keySize + ridSize)
	minKeys = maxKeys / 2
	return
}

// node is a typed view over a cached B+ tree node page. It never outlives
// the pin on the underlying cache.Page.
type node struct {
	cp      *cache.Page
	keySize int32
	maxKeys int32
}

func (n node) isLeaf() bool {
	return binary.LittleEndian.Uint32(n.cp.Data[0:4]) != 0
}

func (n node) setLeaf(v bool) {
	x := uint32(0)
	if v {
		x = 1
	}
	binary.LittleEndian.PutUint32(n.cp.Data[0:4], x)
}

func (n node) numKey() int32 {
	return int32(binary.LittleEndian.Uint32(n.cp.Data[4:8])) // #nosec G115
}

func (n node) setNumKey(v int32) {
	binary.LittleEndian.PutUint32(n.cp.Data[4:8], uint32(v)) // #nosec G115
}

func (n node) parent() int32 {
	return int32(binary.LittleEndian.Uint32(n.cp.Data[8:12]))
}

func (n node) setParent(v int32) {
	binary.LittleEndian.PutUint32(n.cp.Data[8:12], uint32(v)) // #nosec G115
}

func (n node) prevLeaf() int32 {
	return int32(binary.LittleEndian.Uint32(n.cp.Data[12:16]))
}

func (n node) setPrevLeaf(v int32) {
	binary.LittleEndian.PutUint32(n.cp.Data[12:16], uint32(v)) // #nosec G115
}

func (n node) nextLeaf() int32 {
	return int32(binary.LittleEndian.Uint32(n.cp.Data[16:20]))
}

func (n node) setNextLeaf(v int32) {
	binary.LittleEndian.PutUint32(n.cp.Data[16:20], uint32(v)) // #nosec G115
}

func (n node) keyArrayBase() int32 { return nodeHeaderSize }

func (n node) valueArrayBase() int32 { return nodeHeaderSize + n.maxKeys*n.keySize }

func (n node) key(i int32) []byte {
	off := n.keyArrayBase() + i*n.keySize
	return n.cp.Data[off : off+n.keySize]
}

func (n node) setKey(i int32, k []byte) {
	copy(n.key(i), k)
}

func (n node) value(i int32) primitives.RID {
	off := n.valueArrayBase() + i*ridSize
	return primitives.RID{
		PageNo: int32(binary.LittleEndian.Uint32(n.cp.Data[off : off+4])),
		SlotNo: int32(binary.LittleEndian.Uint32(n.cp.Data[off+4 : off+8])),
	}
}

func (n node) setValue(i int32, rid primitives.RID) {
	off := n.valueArrayBase() + i*ridSize
	binary.LittleEndian.PutUint32(n.cp.Data[off:off+4], uint32(rid.PageNo)) // #nosec G115
	binary.LittleEndian.PutUint32(n.cp.Data[off+4:off+8], uint32(rid.SlotNo))
}

// childPage interprets value(i) as a child page number, for internal
// nodes only.
func (n node) childPage(i int32) int32 {
	return n.value(i).PageNo
}

func (n node) setChildPage(i int32, pageNo int32) {
	n.setValue(i, primitives.RID{PageNo: pageNo, SlotNo: 0})
}

// shiftRight moves keys/values [from, numKey) right by one slot,
// making room for an insertion at index from. Caller updates numKey.
func (n node) shiftRight(from int32) {
	for i := n.numKey(); i > from; i-- {
		n.setKey(i, n.key(i-1))
		n.setValue(i, n.value(i-1))
	}
}

// shiftLeft moves keys/values (from, numKey) left by one slot onto index
// from-1..., closing the gap left by removing index from-1. Caller
// updates numKey.
func (n node) shiftLeft(from int32) {
	for i := from; i < n.numKey(); i++ {
		n.setKey(i-1, n.key(i))
		n.setValue(i-1, n.value(i))
	}
}
