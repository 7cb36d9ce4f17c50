package heap

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"

	"rmdb/pkg/primitives"
	"rmdb/pkg/storage/cache"
	"rmdb/pkg/storage/disk"
)

const testRecordSize = 32

func newTestFile(t *testing.T, cacheCapacity int) *File {
	t.Helper()
	fs := afero.NewMemMapFs()
	dm := disk.NewManager(fs)
	fd, err := dm.CreateFile("/data/t1.tbl")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	cm := cache.NewManager(dm, cacheCapacity)
	f, err := Create(primitives.NewTableIDFromUint64(1), fd, cm, testRecordSize)
	if err != nil {
		t.Fatalf("heap.Create: %v", err)
	}
	return f
}

func recordOf(n int) []byte {
	buf := make([]byte, testRecordSize)
	copy(buf, fmt.Sprintf("rec-%d", n))
	return buf
}

func TestFile_InsertGetRoundTrip(t *testing.T) {
	f := newTestFile(t, 8)

	rid, err := f.Insert(nil, recordOf(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := f.Get(nil, rid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(recordOf(1)) {
		t.Errorf("got %q, want %q", got, recordOf(1))
	}
}

func TestFile_GetMissingSlot(t *testing.T) {
	f := newTestFile(t, 8)

	rid, err := f.Insert(nil, recordOf(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := f.Delete(nil, rid); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := f.Get(nil, rid); err == nil {
		t.Fatal("expected error getting a deleted slot")
	}
}

func TestFile_GetBadPage(t *testing.T) {
	f := newTestFile(t, 8)

	if _, err := f.Get(nil, primitives.NewRID(99, 0)); err == nil {
		t.Fatal("expected error for out-of-range page")
	}
}

func TestFile_Update(t *testing.T) {
	f := newTestFile(t, 8)

	rid, err := f.Insert(nil, recordOf(1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := f.Update(nil, rid, recordOf(2)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := f.Get(nil, rid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(recordOf(2)) {
		t.Errorf("got %q, want %q", got, recordOf(2))
	}
}

func TestFile_ScanCompleteness(t *testing.T) {
	f := newTestFile(t, 4)

	const n = 200
	inserted := make(map[primitives.RID]bool, n)
	for i := 0; i < n; i++ {
		rid, err := f.Insert(nil, recordOf(i))
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		inserted[rid] = true
	}

	it := f.Scan()
	seen := map[primitives.RID]bool{}
	count := 0
	for it.Next() {
		seen[it.RID()] = true
		count++
	}
	it.Close()

	if count != n {
		t.Fatalf("scanned %d records, want %d", count, n)
	}
	for rid := range inserted {
		if !seen[rid] {
			t.Errorf("scan missed rid %v", rid)
		}
	}
}

// TestFile_HeapChurn exercises the record manager under repeated
// insert/delete/reinsert churn: after the even-indexed records have been
// deleted and reinserted in five rounds, the file must still contain
// exactly n live records and the free list must not point at a page that
// is actually full.
func TestFile_HeapChurn(t *testing.T) {
	f := newTestFile(t, 4)

	const n = 64
	rids := make([]primitives.RID, n)
	for i := 0; i < n; i++ {
		rid, err := f.Insert(nil, recordOf(i))
		if err != nil {
			t.Fatalf("initial insert %d: %v", i, err)
		}
		rids[i] = rid
	}

	for round := 0; round < 5; round++ {
		for i := 0; i < n; i += 2 {
			if err := f.Delete(nil, rids[i]); err != nil {
				t.Fatalf("round %d delete %d: %v", round, i, err)
			}
		}
		for i := 0; i < n; i += 2 {
			rid, err := f.Insert(nil, recordOf(i+round))
			if err != nil {
				t.Fatalf("round %d reinsert %d: %v", round, i, err)
			}
			rids[i] = rid
		}
	}

	it := f.Scan()
	count := 0
	for it.Next() {
		count++
	}
	it.Close()
	if count != n {
		t.Fatalf("after churn scanned %d live records, want %d", count, n)
	}

	// Walk the free list; every page on it must report at least one
	// empty slot, and the walk must terminate (no cycle).
	visited := map[int32]bool{}
	for pageNo := f.FirstFreePageNo(); pageNo != primitives.NoPage; {
		if visited[pageNo] {
			t.Fatalf("free list cycle at page %d", pageNo)
		}
		visited[pageNo] = true

		dp, err := f.fetchDataPage(pageNo)
		if err != nil {
			t.Fatalf("fetch free-list page %d: %v", pageNo, err)
		}
		if dp.numRecords() >= f.RecordsPerPage() {
			f.unpin(pageNo, false)
			t.Fatalf("free-list page %d is full", pageNo)
		}
		next := dp.nextFreePageNo()
		f.unpin(pageNo, false)
		pageNo = next
	}
}

func TestFile_OpenRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	dm := disk.NewManager(fs)
	fd, err := dm.CreateFile("/data/t2.tbl")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	cm := cache.NewManager(dm, 8)

	f, err := Create(primitives.NewTableIDFromUint64(2), fd, cm, testRecordSize)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rid, err := f.Insert(nil, recordOf(7))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := cm.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	reopened, err := Open(primitives.NewTableIDFromUint64(2), fd, cm)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := reopened.Get(nil, rid)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != string(recordOf(7)) {
		t.Errorf("got %q after reopen, want %q", got, recordOf(7))
	}
}
