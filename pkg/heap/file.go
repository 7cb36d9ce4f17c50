// Package heap implements the slotted-page record manager (C2): heap
// files with a per-file free-page list, an in-page occupancy bitmap, and
// a forward-only scan cursor, as described in §3/§4.1.
package heap

import (
	"sync"

	"rmdb/pkg/primitives"
	"rmdb/pkg/rmerr"
	"rmdb/pkg/storage/cache"
	"rmdb/pkg/storage/disk"
)

// File is one open heap file: a fixed record size, a page cache handle,
// and the free-list bookkeeping mirrored from the page-0 header.
//
// latch is held for writing by every mutating operation (Insert,
// InsertAt, Update, Delete), which covers every operation that can move a
// page on or off the free list; Get and Scan only need a read lock since
// they never touch the free-list pointers. The B+ tree
// takes the same coarse-latch-per-structure approach for the same reason:
// there is no WAL to make partial free-list updates recoverable, so they
// must be atomic with respect to each other.
type File struct {
	id    primitives.TableID
	fd    disk.FileID
	cache *cache.Manager

	latch  sync.RWMutex
	layout slotLayout
	header fileHeader
}

// Create formats a brand new heap file for fixed-size records of
// recordSize bytes and returns it open. The header page is written and
// pinned/unpinned once during setup.
func Create(id primitives.TableID, fd disk.FileID, c *cache.Manager, recordSize int32) (*File, error) {
	if recordSize <= 0 {
		return nil, rmerr.Newf(rmerr.InternalError, "record size must be positive, got %d", recordSize)
	}

	layout := computeSlotLayout(recordSize)
	if layout.recordsPerPage <= 0 {
		return nil, rmerr.Newf(rmerr.InternalError, "record size %d too large for a %d-byte page", recordSize, cache.PageSize)
	}

	header := fileHeader{
		recordSize:     recordSize,
		recordsPerPage: layout.recordsPerPage,
		bitmapBytes:    layout.bitmapBytes,
		firstFreePage:  primitives.NoPage,
		numPages:       1,
	}

	pageNo, page, err := c.NewPage(fd)
	if err != nil {
		return nil, err
	}
	if pageNo != HeaderPageNo {
		_ = c.UnpinPage(fd, pageNo, false)
		return nil, rmerr.Newf(rmerr.InternalError, "expected header at page 0, got %d", pageNo)
	}
	copy(page.Data, header.encode())
	page.MarkDirty()
	if err := c.UnpinPage(fd, pageNo, true); err != nil {
		return nil, err
	}

	return &File{id: id, fd: fd, cache: c, layout: layout, header: header}, nil
}

// Open loads an existing heap file's header and returns it ready for use.
func Open(id primitives.TableID, fd disk.FileID, c *cache.Manager) (*File, error) {
	page, err := c.FetchPage(fd, HeaderPageNo)
	if err != nil {
		return nil, err
	}
	header := decodeFileHeader(page.Data)
	if err := c.UnpinPage(fd, HeaderPageNo, false); err != nil {
		return nil, err
	}

	layout := slotLayout{
		recordSize:     header.recordSize,
		recordsPerPage: header.recordsPerPage,
		bitmapBytes:    header.bitmapBytes,
	}
	return &File{id: id, fd: fd, cache: c, layout: layout, header: header}, nil
}

// ID returns this file's table identifier, used by the lock manager and
// transaction undo log to name the resource being operated on.
func (f *File) ID() primitives.TableID { return f.id }

// RecordSize returns the fixed record size in bytes.
func (f *File) RecordSize() int32 { return f.layout.recordSize }

// writeHeader persists the in-memory header to page 0. Caller must hold
// f.latch for writing.
func (f *File) writeHeader() error {
	page, err := f.cache.FetchPage(f.fd, HeaderPageNo)
	if err != nil {
		return err
	}
	copy(page.Data, f.header.encode())
	page.MarkDirty()
	return f.cache.UnpinPage(f.fd, HeaderPageNo, true)
}

// fetchDataPage validates and pins a data page number, returning a typed
// view over it.
func (f *File) fetchDataPage(pageNo int32) (dataPage, error) {
	if pageNo < FirstRecordPage || pageNo >= f.header.numPages {
		return dataPage{}, rmerr.Newf(rmerr.PageNotExist, "page %d does not exist", pageNo)
	}
	cp, err := f.cache.FetchPage(f.fd, pageNo)
	if err != nil {
		return dataPage{}, err
	}
	return dataPage{cp: cp, layout: f.layout}, nil
}

func (f *File) unpin(pageNo int32, dirty bool) {
	if err := f.cache.UnpinPage(f.fd, pageNo, dirty); err != nil {
		// unpin only fails on a programming defect (double unpin or a
		// page never fetched); there is nothing a caller could do to
		// recover mid-operation, so this is the one place the record
		// manager panics rather than propagates.
		panic(err)
	}
}
