package heap

import "rmdb/pkg/primitives"

// Iterator is a forward-only cursor over every occupied slot in a heap
// file, in ascending (pageNo, slotNo) order. It pins a page only for the
// duration of the Next call that inspects it, per §4.1: "Scans must pin
// a page only while inspecting it." The record found by Next is copied
// out before the pin is released, so RID/Record are pin-free.
type Iterator struct {
	f      *File
	pageNo int32
	slotNo int32
	done   bool

	curRID primitives.RID
	curRec []byte
}

// Scan returns an Iterator positioned before the first record. Callers
// must call Next before the first Record/RID access.
func (f *File) Scan() *Iterator {
	f.latch.RLock()
	numPages := f.header.numPages
	f.latch.RUnlock()

	pageNo := FirstRecordPage
	if pageNo >= numPages {
		pageNo = numPages // makes the first Next's bounds check fail immediately
	}
	return &Iterator{f: f, pageNo: pageNo, slotNo: 0}
}

// Next advances to the next occupied slot, copies it out, and reports
// whether one was found.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}

	for {
		it.f.latch.RLock()
		numPages := it.f.header.numPages
		it.f.latch.RUnlock()

		if it.pageNo >= numPages {
			it.done = true
			return false
		}

		dp, err := it.f.fetchDataPage(it.pageNo)
		if err != nil {
			it.done = true
			return false
		}

		slot, ok := dp.findNextSetBit(it.slotNo)
		if !ok {
			it.f.unpin(it.pageNo, false)
			it.pageNo++
			it.slotNo = 0
			continue
		}

		it.curRID = primitives.NewRID(it.pageNo, slot)
		it.curRec = make([]byte, it.f.layout.recordSize)
		copy(it.curRec, dp.slot(slot))
		it.f.unpin(it.pageNo, false)

		it.slotNo = slot + 1
		return true
	}
}

// RID returns the record identifier the cursor currently rests on.
// Valid only after Next returns true.
func (it *Iterator) RID() primitives.RID {
	return it.curRID
}

// Record returns the record bytes the cursor currently rests on. Valid
// only after Next returns true.
func (it *Iterator) Record() []byte {
	return it.curRec
}

// Close marks the iterator exhausted, so later Next calls return false.
// Next never holds a pin across calls, so there is nothing to release.
func (it *Iterator) Close() {
	it.done = true
}
