package btree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/spf13/afero"

	"rmdb/pkg/primitives"
	"rmdb/pkg/storage/cache"
	"rmdb/pkg/storage/disk"
	"rmdb/pkg/types"
)

var intKeyLayout = types.KeyLayout{{Kind: types.IntKind}}

func intKey(v int32) []byte {
	return types.EncodeKey(intKeyLayout, []types.Field{types.NewIntField(v)})
}

func newTestTree(t *testing.T, cacheCapacity int) *Tree {
	t.Helper()
	fs := afero.NewMemMapFs()
	dm := disk.NewManager(fs)
	fd, err := dm.CreateFile("/data/idx1.idx")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	cm := cache.NewManager(dm, cacheCapacity)
	tr, err := Create(primitives.NewIndexIDFromUint64(1), fd, cm, intKeyLayout)
	if err != nil {
		t.Fatalf("btree.Create: %v", err)
	}
	return tr
}

func TestTree_InsertGetRoundTrip(t *testing.T) {
	tr := newTestTree(t, 8)

	ok, err := tr.Insert(intKey(42), primitives.NewRID(3, 1))
	if err != nil || !ok {
		t.Fatalf("Insert: ok=%v err=%v", ok, err)
	}

	rid, found, err := tr.Get(intKey(42))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if rid != primitives.NewRID(3, 1) {
		t.Errorf("got rid %v, want (3,1)", rid)
	}
}

func TestTree_InsertDuplicateRejected(t *testing.T) {
	tr := newTestTree(t, 8)

	if ok, err := tr.Insert(intKey(1), primitives.NewRID(0, 0)); err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}
	ok, err := tr.Insert(intKey(1), primitives.NewRID(0, 1))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if ok {
		t.Fatal("expected duplicate insert to be rejected")
	}
}

func TestTree_GetMissingKey(t *testing.T) {
	tr := newTestTree(t, 8)
	_, found, err := tr.Get(intKey(999))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected key not to be found in empty tree")
	}
}

func TestTree_DeleteMissingKey(t *testing.T) {
	tr := newTestTree(t, 8)
	if ok, err := tr.Insert(intKey(1), primitives.NewRID(0, 0)); err != nil || !ok {
		t.Fatalf("Insert: %v %v", ok, err)
	}
	ok, err := tr.Delete(intKey(2))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok {
		t.Fatal("expected delete of absent key to return false")
	}
}

// TestTree_AscendingInsertOrderingAndBalance inserts many keys in
// strictly ascending order (the split-heavy worst case for a right-only
// insertion pattern) and verifies every key is retrievable, an in-order
// walk of the leaf chain yields every key in ascending order exactly
// once, and no non-root node ever holds more than max_keys or fewer than
// min_keys entries.
func TestTree_AscendingInsertOrderingAndBalance(t *testing.T) {
	tr := newTestTree(t, 16)

	const n = 500
	for i := int32(0); i < n; i++ {
		ok, err := tr.Insert(intKey(i), primitives.NewRID(i, 0))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("insert %d: rejected as duplicate", i)
		}
	}

	for i := int32(0); i < n; i++ {
		rid, found, err := tr.Get(intKey(i))
		if err != nil || !found {
			t.Fatalf("get %d: found=%v err=%v", i, found, err)
		}
		if rid.PageNo != i {
			t.Errorf("get %d: rid.PageNo=%d, want %d", i, rid.PageNo, i)
		}
	}

	assertLeafChainAscending(t, tr, n)
	assertNodeSizeInvariant(t, tr)
}

// TestTree_RandomDeleteMaintainsInvariants inserts a random permutation
// of keys, deletes a random half of them, and checks that the survivors
// are exactly the expected set, still ordered along the leaf chain, and
// that every remaining non-root node still satisfies min_keys.
func TestTree_RandomDeleteMaintainsInvariants(t *testing.T) {
	tr := newTestTree(t, 16)
	rng := rand.New(rand.NewSource(7))

	const n = 300
	keys := rng.Perm(n)
	for _, k := range keys {
		ok, err := tr.Insert(intKey(int32(k)), primitives.NewRID(int32(k), 0))
		if err != nil || !ok {
			t.Fatalf("insert %d: ok=%v err=%v", k, ok, err)
		}
	}

	deleted := map[int32]bool{}
	order := rng.Perm(n)
	for _, k := range order[:n/2] {
		ok, err := tr.Delete(intKey(int32(k)))
		if err != nil || !ok {
			t.Fatalf("delete %d: ok=%v err=%v", k, ok, err)
		}
		deleted[int32(k)] = true
	}

	for i := int32(0); i < int32(n); i++ {
		_, found, err := tr.Get(intKey(i))
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		want := !deleted[i]
		if found != want {
			t.Errorf("get %d: found=%v, want %v", i, found, want)
		}
	}

	assertLeafChainAscendingSubset(t, tr, n, deleted)
	assertNodeSizeInvariant(t, tr)
}

func TestTree_IteratorLowerUpperBound(t *testing.T) {
	tr := newTestTree(t, 16)
	for _, v := range []int32{10, 20, 30, 40, 50} {
		if ok, err := tr.Insert(intKey(v), primitives.NewRID(v, 0)); err != nil || !ok {
			t.Fatalf("insert %d: %v %v", v, ok, err)
		}
	}

	it, err := tr.LowerBound(intKey(25))
	if err != nil {
		t.Fatalf("LowerBound: %v", err)
	}
	var got []int32
	for it.Next() {
		rid, err := it.Value()
		if err != nil {
			t.Fatalf("Value: %v", err)
		}
		got = append(got, rid.PageNo)
	}
	if fmt.Sprint(got) != fmt.Sprint([]int32{30, 40, 50}) {
		t.Errorf("LowerBound(25) = %v, want [30 40 50]", got)
	}

	it2, err := tr.UpperBound(intKey(30))
	if err != nil {
		t.Fatalf("UpperBound: %v", err)
	}
	got = nil
	for it2.Next() {
		rid, err := it2.Value()
		if err != nil {
			t.Fatalf("Value: %v", err)
		}
		got = append(got, rid.PageNo)
	}
	if fmt.Sprint(got) != fmt.Sprint([]int32{40, 50}) {
		t.Errorf("UpperBound(30) = %v, want [40 50]", got)
	}
}

func TestTree_BeginEndFullScan(t *testing.T) {
	tr := newTestTree(t, 16)
	const n = 100
	for i := int32(0); i < n; i++ {
		if ok, err := tr.Insert(intKey(i), primitives.NewRID(i, 0)); err != nil || !ok {
			t.Fatalf("insert %d: %v %v", i, ok, err)
		}
	}

	it := tr.Begin()
	count := int32(0)
	for it.Next() {
		key, err := it.Key()
		if err != nil {
			t.Fatalf("Key: %v", err)
		}
		if types.CompareKeys(intKeyLayout, key, intKey(count)) != 0 {
			t.Fatalf("out-of-order key at position %d", count)
		}
		if _, err := it.Value(); err != nil {
			t.Fatalf("Value: %v", err)
		}
		count++
	}
	if count != n {
		t.Fatalf("scanned %d entries, want %d", count, n)
	}
}

// assertLeafChainAscending walks the leaf list from firstLeaf to the
// sentinel and checks every key 0..n-1 appears exactly once in order.
func assertLeafChainAscending(t *testing.T, tr *Tree, n int32) {
	t.Helper()
	want := int32(0)
	pageNo := tr.header.firstLeaf
	for pageNo != LeafSentinelPageNo {
		leaf, err := tr.fetchNode(pageNo)
		if err != nil {
			t.Fatalf("fetch leaf %d: %v", pageNo, err)
		}
		for i := int32(0); i < leaf.numKey(); i++ {
			if types.CompareKeys(intKeyLayout, leaf.key(i), intKey(want)) != 0 {
				t.Fatalf("leaf chain out of order at expected key %d", want)
			}
			want++
		}
		next := leaf.nextLeaf()
		tr.unpin(pageNo, false)
		pageNo = next
	}
	if want != n {
		t.Fatalf("leaf chain visited %d keys, want %d", want, n)
	}
}

func assertLeafChainAscendingSubset(t *testing.T, tr *Tree, n int32, deleted map[int32]bool) {
	t.Helper()
	var last int32 = -1
	count := int32(0)
	pageNo := tr.header.firstLeaf
	for pageNo != LeafSentinelPageNo {
		leaf, err := tr.fetchNode(pageNo)
		if err != nil {
			t.Fatalf("fetch leaf %d: %v", pageNo, err)
		}
		for i := int32(0); i < leaf.numKey(); i++ {
			rid := leaf.value(i)
			if rid.PageNo <= last {
				t.Fatalf("leaf chain not strictly ascending: %d after %d", rid.PageNo, last)
			}
			if deleted[rid.PageNo] {
				t.Fatalf("deleted key %d still present in leaf chain", rid.PageNo)
			}
			last = rid.PageNo
			count++
		}
		next := leaf.nextLeaf()
		tr.unpin(pageNo, false)
		pageNo = next
	}
	want := int32(0)
	for i := int32(0); i < n; i++ {
		if !deleted[i] {
			want++
		}
	}
	if count != want {
		t.Fatalf("leaf chain has %d live entries, want %d", count, want)
	}
}

// assertNodeSizeInvariant walks every node reachable from the root and
// checks every non-root node holds between min_keys and max_keys
// entries, per §3's B+ tree invariants.
func assertNodeSizeInvariant(t *testing.T, tr *Tree) {
	t.Helper()
	if tr.header.root == primitives.NoPage {
		return
	}
	walkNodeSizes(t, tr, tr.header.root, false)
}

func walkNodeSizes(t *testing.T, tr *Tree, pageNo int32, isChild bool) {
	t.Helper()
	n, err := tr.fetchNode(pageNo)
	if err != nil {
		t.Fatalf("fetch node %d: %v", pageNo, err)
	}
	defer tr.unpin(pageNo, false)

	if isChild {
		if n.numKey() > tr.maxKeys {
			t.Fatalf("node %d has %d keys, exceeds max_keys %d", pageNo, n.numKey(), tr.maxKeys)
		}
		if n.numKey() < tr.minKeys {
			t.Fatalf("node %d has %d keys, below min_keys %d", pageNo, n.numKey(), tr.minKeys)
		}
	}

	if !n.isLeaf() {
		for i := int32(0); i < n.numKey(); i++ {
			walkNodeSizes(t, tr, n.childPage(i), true)
		}
	}
}
