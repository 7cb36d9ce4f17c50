package heap

import (
	"rmdb/pkg/primitives"
	"rmdb/pkg/rmerr"
	"rmdb/pkg/utils"
)

// hasCtx reports whether ctx carries a real transaction, guarding against
// both a literal nil interface and a typed nil pointer boxed into one —
// the classic Go gotcha where a caller passes a nil *txn.Transaction
// straight through an interface parameter instead of routing it through a
// nil-check helper first.
func hasCtx(ctx TxnContext) bool {
	return !utils.IsNilInterface(ctx)
}

// choosePageForInsert returns a page with at least one empty slot,
// reusing the head of the free list if one exists, else allocating a
// fresh page and immediately linking it as the new free-list head so
// later inserts (before this page fills) find it the same way. Caller
// must hold f.latch for writing.
func (f *File) choosePageForInsert() (int32, dataPage, error) {
	if f.header.firstFreePage != primitives.NoPage {
		pageNo := f.header.firstFreePage
		dp, err := f.fetchDataPage(pageNo)
		return pageNo, dp, err
	}

	pageNo, cp, err := f.cache.NewPage(f.fd)
	if err != nil {
		return 0, dataPage{}, err
	}
	dp := dataPage{cp: cp, layout: f.layout}
	dp.setNumRecords(0)
	dp.setNextFreePageNo(f.header.firstFreePage)
	f.header.firstFreePage = pageNo
	f.header.numPages++
	if err := f.writeHeader(); err != nil {
		f.unpin(pageNo, true)
		return 0, dataPage{}, err
	}
	return pageNo, dp, nil
}

// unlinkFromFreeList removes pageNo from the head of the free list after
// an insert has just filled it. Caller must hold f.latch for writing.
func (f *File) unlinkFromFreeList(pageNo int32, dp dataPage) error {
	if f.header.firstFreePage != pageNo {
		// Concurrent structural change is impossible under f.latch; a
		// mismatch here means the page was never actually the list head.
		return rmerr.Newf(rmerr.InternalError, "page %d is not the free-list head", pageNo)
	}
	f.header.firstFreePage = dp.nextFreePageNo()
	dp.setNextFreePageNo(primitives.NoPage)
	return f.writeHeader()
}

// releasePage prepends pageNo to the free list after a delete frees a
// slot on a page that was previously full. Caller must hold f.latch for
// writing.
func (f *File) releasePage(pageNo int32, dp dataPage) error {
	dp.setNextFreePageNo(f.header.firstFreePage)
	f.header.firstFreePage = pageNo
	return f.writeHeader()
}

// Insert allocates an empty slot, copies buf (which must be exactly
// RecordSize() bytes) into it, and returns the record's new RID. When ctx
// is non-nil, an exclusive row lock is acquired on the chosen RID before
// it is populated and an INSERT undo entry is appended after.
func (f *File) Insert(ctx TxnContext, buf []byte) (primitives.RID, error) {
	if int32(len(buf)) != f.layout.recordSize {
		return primitives.RID{}, rmerr.Newf(rmerr.InternalError, "insert buffer length %d != record size %d", len(buf), f.layout.recordSize)
	}

	f.latch.Lock()
	defer f.latch.Unlock()

	pageNo, dp, err := f.choosePageForInsert()
	if err != nil {
		return primitives.RID{}, err
	}

	slotNo, ok := dp.findFirstEmptySlot()
	if !ok {
		f.unpin(pageNo, false)
		return primitives.RID{}, rmerr.Newf(rmerr.InternalError, "page %d reported free but has no empty slot", pageNo)
	}
	rid := primitives.NewRID(pageNo, slotNo)

	if hasCtx(ctx) {
		if err := ctx.LockExclusiveRow(f, rid); err != nil {
			f.unpin(pageNo, false)
			return primitives.RID{}, err
		}
	}

	copy(dp.slot(slotNo), buf)
	dp.setBit(slotNo, true)
	dp.setNumRecords(dp.numRecords() + 1)

	if dp.numRecords() == f.layout.recordsPerPage {
		if err := f.unlinkFromFreeList(pageNo, dp); err != nil {
			f.unpin(pageNo, true)
			return primitives.RID{}, err
		}
	}

	f.unpin(pageNo, true)

	if hasCtx(ctx) {
		ctx.RecordInsert(f, rid)
	}
	return rid, nil
}

// InsertAt re-inserts buf into a specific, currently-empty slot. It is
// used only to replay a DELETE undo entry; the caller (transaction abort)
// must guarantee the slot is empty, performs no locking, and records no
// undo entry of its own.
func (f *File) InsertAt(rid primitives.RID, buf []byte) error {
	if int32(len(buf)) != f.layout.recordSize {
		return rmerr.Newf(rmerr.InternalError, "insert-at buffer length %d != record size %d", len(buf), f.layout.recordSize)
	}

	f.latch.Lock()
	defer f.latch.Unlock()

	dp, err := f.fetchDataPage(rid.PageNo)
	if err != nil {
		return err
	}

	wasFull := dp.numRecords() == f.layout.recordsPerPage
	copy(dp.slot(rid.SlotNo), buf)
	dp.setBit(rid.SlotNo, true)
	dp.setNumRecords(dp.numRecords() + 1)

	if wasFull {
		if err := f.releasePage(rid.PageNo, dp); err != nil {
			f.unpin(rid.PageNo, true)
			return err
		}
	}

	f.unpin(rid.PageNo, true)
	return nil
}

// Get returns a copy of the record at rid, acquiring a shared row lock
// when ctx is non-nil.
func (f *File) Get(ctx TxnContext, rid primitives.RID) ([]byte, error) {
	f.latch.RLock()
	dp, err := f.fetchDataPage(rid.PageNo)
	f.latch.RUnlock()
	if err != nil {
		return nil, err
	}

	if !dp.testBit(rid.SlotNo) {
		f.unpin(rid.PageNo, false)
		return nil, rmerr.New(rmerr.RecordNotFound, "record not found").WithRID(rid)
	}

	if hasCtx(ctx) {
		if err := ctx.LockSharedRow(f, rid); err != nil {
			f.unpin(rid.PageNo, false)
			return nil, err
		}
	}

	out := make([]byte, f.layout.recordSize)
	copy(out, dp.slot(rid.SlotNo))
	f.unpin(rid.PageNo, false)
	return out, nil
}

// Update overwrites the record at rid with buf in place, acquiring an
// exclusive row lock when ctx is non-nil and appending an UPDATE undo
// entry carrying the pre-image.
func (f *File) Update(ctx TxnContext, rid primitives.RID, buf []byte) error {
	if int32(len(buf)) != f.layout.recordSize {
		return rmerr.Newf(rmerr.InternalError, "update buffer length %d != record size %d", len(buf), f.layout.recordSize)
	}

	f.latch.Lock()
	dp, err := f.fetchDataPage(rid.PageNo)
	if err != nil {
		f.latch.Unlock()
		return err
	}

	if !dp.testBit(rid.SlotNo) {
		f.unpin(rid.PageNo, false)
		f.latch.Unlock()
		return rmerr.New(rmerr.RecordNotFound, "record not found").WithRID(rid)
	}

	if hasCtx(ctx) {
		if err := ctx.LockExclusiveRow(f, rid); err != nil {
			f.unpin(rid.PageNo, false)
			f.latch.Unlock()
			return err
		}
	}

	preImage := make([]byte, f.layout.recordSize)
	copy(preImage, dp.slot(rid.SlotNo))
	copy(dp.slot(rid.SlotNo), buf)
	f.unpin(rid.PageNo, true)
	f.latch.Unlock()

	if hasCtx(ctx) {
		ctx.RecordUpdate(f, rid, preImage)
	}
	return nil
}

// Delete clears the bitmap bit for rid, acquiring an exclusive row lock
// when ctx is non-nil and appending a DELETE undo entry carrying the
// original record bytes. If the page was previously full it is prepended
// back onto the free list.
func (f *File) Delete(ctx TxnContext, rid primitives.RID) error {
	f.latch.Lock()
	dp, err := f.fetchDataPage(rid.PageNo)
	if err != nil {
		f.latch.Unlock()
		return err
	}

	if !dp.testBit(rid.SlotNo) {
		f.unpin(rid.PageNo, false)
		f.latch.Unlock()
		return rmerr.New(rmerr.RecordNotFound, "record not found").WithRID(rid)
	}

	if hasCtx(ctx) {
		if err := ctx.LockExclusiveRow(f, rid); err != nil {
			f.unpin(rid.PageNo, false)
			f.latch.Unlock()
			return err
		}
	}

	payload := make([]byte, f.layout.recordSize)
	copy(payload, dp.slot(rid.SlotNo))

	wasFull := dp.numRecords() == f.layout.recordsPerPage
	dp.setBit(rid.SlotNo, false)
	dp.setNumRecords(dp.numRecords() - 1)

	if wasFull {
		if err := f.releasePage(rid.PageNo, dp); err != nil {
			f.unpin(rid.PageNo, true)
			f.latch.Unlock()
			return err
		}
	}

	f.unpin(rid.PageNo, true)
	f.latch.Unlock()

	if hasCtx(ctx) {
		ctx.RecordDelete(f, rid, payload)
	}
	return nil
}

// FirstFreePageNo exposes the free-list head, used by the "free-list
// invariant" testable property and the debug inspector.
func (f *File) FirstFreePageNo() int32 {
	f.latch.RLock()
	defer f.latch.RUnlock()
	return f.header.firstFreePage
}

// NumPages returns the total page count (including the header page).
func (f *File) NumPages() int32 {
	f.latch.RLock()
	defer f.latch.RUnlock()
	return f.header.numPages
}

// RecordsPerPage returns the fixed slot count of every data page.
func (f *File) RecordsPerPage() int32 {
	return f.layout.recordsPerPage
}
