// Package disk implements the block device interface consumed by the page
// cache: fixed-size page reads/writes over named files, backed by an
// afero.Fs so tests can run against an in-memory filesystem while
// production code points at the OS filesystem.
package disk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"

	"rmdb/pkg/logging"
	"rmdb/pkg/rmerr"
)

// PageSize is the fixed size in bytes of every page in every file managed
// by this package: heap data pages, heap header pages, and every B+ tree
// node page.
const PageSize = 4096

// FileID is an opaque handle to an open file, valid for the lifetime of
// the process (or until CloseFile). It is unrelated to the OS file
// descriptor number.
type FileID int32

// InvalidFileID is returned alongside an error from OpenFile/CreateFile.
const InvalidFileID FileID = -1

type openFile struct {
	name       string
	handle     afero.File
	nextPageNo int32
	mu         sync.Mutex
}

// Manager is the block device: it owns a set of open files addressed by
// FileID and provides page-granularity reads and writes into them, plus
// the free-running "next page number" counter each file keeps for
// allocation (§6, block device interface).
type Manager struct {
	fs afero.Fs

	mu     sync.RWMutex
	byID   map[FileID]*openFile
	byName map[string]FileID
	nextID FileID
}

// NewManager builds a Manager over the given filesystem. Pass
// afero.NewOsFs() in production and afero.NewMemMapFs() in tests.
func NewManager(fs afero.Fs) *Manager {
	return &Manager{
		fs:     fs,
		byID:   make(map[FileID]*openFile),
		byName: make(map[string]FileID),
	}
}

// CreateFile creates a new, empty file on disk and opens it, returning a
// FileID valid for subsequent ReadPage/WritePage calls. Creating a file
// that already exists truncates it.
func (m *Manager) CreateFile(name string) (FileID, error) {
	f, err := m.fs.Create(name)
	if err != nil {
		return InvalidFileID, rmerr.Wrap(err, rmerr.DeviceError, "create file "+name)
	}
	return m.register(name, f), nil
}

// DestroyFile removes a file from disk. The file must not currently be
// open.
func (m *Manager) DestroyFile(name string) error {
	m.mu.RLock()
	_, open := m.byName[name]
	m.mu.RUnlock()
	if open {
		return rmerr.Newf(rmerr.InternalError, "cannot destroy open file %s", name)
	}
	if err := m.fs.Remove(name); err != nil {
		return rmerr.Wrap(err, rmerr.DeviceError, "destroy file "+name)
	}
	return nil
}

// OpenFile opens an existing file, returning a FileID. Opening a file that
// is already open under this Manager returns its existing FileID.
func (m *Manager) OpenFile(name string) (FileID, error) {
	m.mu.RLock()
	if id, ok := m.byName[name]; ok {
		m.mu.RUnlock()
		return id, nil
	}
	m.mu.RUnlock()

	f, err := m.fs.OpenFile(name, os.O_RDWR, 0o644)
	if err != nil {
		return InvalidFileID, rmerr.Wrap(err, rmerr.DeviceError, "open file "+name)
	}
	return m.register(name, f), nil
}

func (m *Manager) register(name string, f afero.File) FileID {
	m.mu.Lock()
	defer m.mu.Unlock()

	nextPageNo := int32(0)
	if info, err := f.Stat(); err == nil {
		nextPageNo = int32(info.Size() / PageSize) // #nosec G115
	}

	id := m.nextID
	m.nextID++
	m.byID[id] = &openFile{name: name, handle: f, nextPageNo: nextPageNo}
	m.byName[name] = id
	logging.L().Debugw("opened file", "file", name, "fd", id, "pages", nextPageNo)
	return id
}

// CloseFile closes the underlying OS handle and forgets the FileID.
func (m *Manager) CloseFile(fd FileID) error {
	m.mu.Lock()
	of, ok := m.byID[fd]
	if !ok {
		m.mu.Unlock()
		return rmerr.Newf(rmerr.InternalError, "close of unknown file id %d", fd)
	}
	delete(m.byID, fd)
	delete(m.byName, of.name)
	m.mu.Unlock()

	if err := of.handle.Close(); err != nil {
		return rmerr.Wrap(err, rmerr.DeviceError, "close file")
	}
	return nil
}

func (m *Manager) lookup(fd FileID) (*openFile, error) {
	m.mu.RLock()
	of, ok := m.byID[fd]
	m.mu.RUnlock()
	if !ok {
		return nil, rmerr.Newf(rmerr.PageNotExist, "unknown file id %d", fd)
	}
	return of, nil
}

// ReadPage reads exactly PageSize bytes at the given page offset. Reading
// a page number at or beyond the end of the file (never having been
// written) returns PageNotExist.
func (m *Manager) ReadPage(fd FileID, pageNo int32) ([]byte, error) {
	of, err := m.lookup(fd)
	if err != nil {
		return nil, err
	}

	of.mu.Lock()
	defer of.mu.Unlock()

	buf := make([]byte, PageSize)
	n, err := of.handle.ReadAt(buf, int64(pageNo)*PageSize)
	if err != nil && err != io.EOF {
		return nil, rmerr.Wrap(err, rmerr.DeviceError, fmt.Sprintf("read page %d", pageNo))
	}
	if n < PageSize {
		return nil, rmerr.Newf(rmerr.PageNotExist, "page %d does not exist in file %s", pageNo, of.name)
	}
	return buf, nil
}

// WritePage writes buf (exactly PageSize bytes) at the given page offset,
// extending the file with zero pages if pageNo is beyond the current end.
func (m *Manager) WritePage(fd FileID, pageNo int32, buf []byte) error {
	if len(buf) != PageSize {
		return rmerr.Newf(rmerr.InternalError, "WritePage: buffer length %d != PageSize", len(buf))
	}

	of, err := m.lookup(fd)
	if err != nil {
		return err
	}

	of.mu.Lock()
	defer of.mu.Unlock()

	if _, err := of.handle.WriteAt(buf, int64(pageNo)*PageSize); err != nil {
		return rmerr.Wrap(err, rmerr.DeviceError, fmt.Sprintf("write page %d", pageNo))
	}
	if pageNo >= of.nextPageNo {
		of.nextPageNo = pageNo + 1
	}
	return nil
}

// GetNextPageNo returns the page number that AllocatePage would hand out
// next: one past the highest page number ever written.
func (m *Manager) GetNextPageNo(fd FileID) (int32, error) {
	of, err := m.lookup(fd)
	if err != nil {
		return 0, err
	}
	of.mu.Lock()
	defer of.mu.Unlock()
	return of.nextPageNo, nil
}

// SetNextPageNo overrides the allocation counter. Used only by tests that
// need to reconstruct a Manager's bookkeeping around a file written by a
// previous instance.
func (m *Manager) SetNextPageNo(fd FileID, n int32) error {
	of, err := m.lookup(fd)
	if err != nil {
		return err
	}
	of.mu.Lock()
	defer of.mu.Unlock()
	of.nextPageNo = n
	return nil
}

// AllocatePage appends one zero-filled page to the file and returns its
// page number. This is the sole page-number source for both the heap file
// (new data pages) and the B+ tree (new node pages, allocate-only per
// §4.2 Supplemental).
func (m *Manager) AllocatePage(fd FileID) (int32, error) {
	of, err := m.lookup(fd)
	if err != nil {
		return 0, err
	}

	of.mu.Lock()
	pageNo := of.nextPageNo
	of.mu.Unlock()

	if err := m.WritePage(fd, pageNo, make([]byte, PageSize)); err != nil {
		return 0, err
	}
	return pageNo, nil
}
