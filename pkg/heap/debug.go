package heap

import "rmdb/pkg/primitives"

// PageInfo is a read-only snapshot of one data page's occupancy and
// free-list linkage, used by the debug inspector (§4.6) to render a heap
// file's page layout without exposing any mutating page-handle machinery.
type PageInfo struct {
	PageNo        int32
	NumRecords    int32
	RecordsPerPage int32
	NextFreePage  int32
	Occupied      []bool
}

// FileStats is a read-only snapshot of a heap file's header, used by the
// inspector's overview panel.
type FileStats struct {
	RecordSize     int32
	RecordsPerPage int32
	NumPages       int32
	FirstFreePage  int32
}

// Stats returns a snapshot of the file header.
func (f *File) Stats() FileStats {
	f.latch.RLock()
	defer f.latch.RUnlock()
	return FileStats{
		RecordSize:     f.header.recordSize,
		RecordsPerPage: f.header.recordsPerPage,
		NumPages:       f.header.numPages,
		FirstFreePage:  f.header.firstFreePage,
	}
}

// PageInfo returns a snapshot of one data page's bitmap and free-list
// pointer. pageNo must be in [FirstRecordPage, NumPages).
func (f *File) PageInfo(pageNo int32) (PageInfo, error) {
	f.latch.RLock()
	defer f.latch.RUnlock()

	dp, err := f.fetchDataPage(pageNo)
	if err != nil {
		return PageInfo{}, err
	}
	defer f.unpin(pageNo, false)

	occupied := make([]bool, dp.layout.recordsPerPage)
	for i := range occupied {
		occupied[i] = dp.testBit(int32(i))
	}
	return PageInfo{
		PageNo:         pageNo,
		NumRecords:     dp.numRecords(),
		RecordsPerPage: dp.layout.recordsPerPage,
		NextFreePage:   dp.nextFreePageNo(),
		Occupied:       occupied,
	}, nil
}

// FreeListChain walks the free list from the header's first-free-page,
// returning every linked page number in order. Bounded by NumPages to stay
// finite even against a corrupted chain.
func (f *File) FreeListChain() ([]int32, error) {
	f.latch.RLock()
	first := f.header.firstFreePage
	limit := f.header.numPages
	f.latch.RUnlock()

	var chain []int32
	for pageNo := first; pageNo != primitives.NoPage && int32(len(chain)) <= limit; {
		info, err := f.PageInfo(pageNo)
		if err != nil {
			return chain, err
		}
		chain = append(chain, pageNo)
		pageNo = info.NextFreePage
	}
	return chain, nil
}
