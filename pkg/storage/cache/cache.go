// Package cache implements the fixed-capacity, pin-counted page cache
// (§6, page cache interface) that sits between the record manager /
// B+ tree and the block device. Replacement among unpinned frames uses
// the clock (second-chance) algorithm.
package cache

import (
	"sync"

	"rmdb/pkg/logging"
	"rmdb/pkg/rmerr"
	"rmdb/pkg/storage/disk"
)

// PageSize re-exports disk.PageSize so callers of this package never need
// to import disk directly for the constant.
const PageSize = disk.PageSize

type key struct {
	fd     disk.FileID
	pageNo int32
}

// Page is a cached, pinned frame. Callers holding a *Page must call
// Manager.UnpinPage exactly once per Fetch/New that returned it.
type Page struct {
	FD     disk.FileID
	PageNo int32
	Data   []byte // always len == PageSize

	mu       sync.Mutex
	pinCount int
	dirty    bool
	refBit   bool
}

// MarkDirty flags the page as modified. The dirty bit is OR-ed with
// whatever UnpinPage's isDirty argument later contributes; either call
// alone is sufficient to force a write-back.
func (p *Page) MarkDirty() {
	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
}

// Manager is the page cache: a bounded pool of frames shared across every
// open heap and B+ tree file.
type Manager struct {
	disk     *disk.Manager
	capacity int

	mu      sync.Mutex
	frames  []*Page
	byKey   map[key]int // key -> index into frames
	clock   int
	numUsed int
}

// NewManager builds a page cache of the given capacity (number of
// PageSize frames) over disk.
func NewManager(d *disk.Manager, capacity int) *Manager {
	if capacity < 1 {
		capacity = 1
	}
	return &Manager{
		disk:     d,
		capacity: capacity,
		frames:   make([]*Page, capacity),
		byKey:    make(map[key]int),
	}
}

// FetchPage pins and returns the page at (fd, pageNo), reading it from
// disk if not already resident.
func (m *Manager) FetchPage(fd disk.FileID, pageNo int32) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{fd, pageNo}
	if idx, ok := m.byKey[k]; ok {
		p := m.frames[idx]
		p.mu.Lock()
		p.pinCount++
		p.refBit = true
		p.mu.Unlock()
		return p, nil
	}

	data, err := m.disk.ReadPage(fd, pageNo)
	if err != nil {
		return nil, err
	}
	return m.install(k, data)
}

// NewPage allocates a fresh, zero-filled page in file fd and returns it
// pinned, along with its page number.
func (m *Manager) NewPage(fd disk.FileID) (int32, *Page, error) {
	pageNo, err := m.disk.AllocatePage(fd)
	if err != nil {
		return 0, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.install(key{fd, pageNo}, make([]byte, PageSize))
	if err != nil {
		return 0, nil, err
	}
	return pageNo, p, nil
}

// install places data into a frame (evicting via clock if the pool is
// full) and pins it once. Caller must hold m.mu.
func (m *Manager) install(k key, data []byte) (*Page, error) {
	idx, err := m.findFrame()
	if err != nil {
		return nil, err
	}

	p := &Page{FD: k.fd, PageNo: k.pageNo, Data: data, pinCount: 1, refBit: true}
	m.frames[idx] = p
	m.byKey[k] = idx
	return p, nil
}

// findFrame returns a free or evictable frame index using clock
// replacement, growing the pool if under capacity. Caller must hold m.mu.
func (m *Manager) findFrame() (int, error) {
	if m.numUsed < m.capacity {
		for i, f := range m.frames {
			if f == nil {
				m.numUsed++
				return i, nil
			}
		}
	}

	for tries := 0; tries < 2*m.capacity+1; tries++ {
		idx := m.clock
		m.clock = (m.clock + 1) % m.capacity

		f := m.frames[idx]
		if f == nil {
			return idx, nil
		}

		f.mu.Lock()
		if f.pinCount > 0 {
			f.mu.Unlock()
			continue
		}
		if f.refBit {
			f.refBit = false
			f.mu.Unlock()
			continue
		}
		dirty := f.dirty
		f.mu.Unlock()

		if dirty {
			if err := m.disk.WritePage(f.FD, f.PageNo, f.Data); err != nil {
				return 0, err
			}
		}
		delete(m.byKey, key{f.FD, f.PageNo})
		return idx, nil
	}

	return 0, rmerr.New(rmerr.InternalError, "page cache exhausted: no unpinned frame to evict")
}

// UnpinPage drops one pin on (fd, pageNo). isDirty is OR-ed into the
// page's dirty flag. Unpinning a page with zero pins, or one not
// resident, is a defect and returns InternalError.
func (m *Manager) UnpinPage(fd disk.FileID, pageNo int32, isDirty bool) error {
	m.mu.Lock()
	idx, ok := m.byKey[key{fd, pageNo}]
	m.mu.Unlock()
	if !ok {
		return rmerr.Newf(rmerr.InternalError, "unpin of non-resident page (%d,%d)", fd, pageNo)
	}

	p := m.frames[idx]
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pinCount == 0 {
		return rmerr.Newf(rmerr.InternalError, "double unpin of page (%d,%d)", fd, pageNo)
	}
	p.pinCount--
	if isDirty {
		p.dirty = true
	}
	return nil
}

// MarkDirty is the cache-level equivalent of Page.MarkDirty, kept for
// symmetry with the external interface described in §6.
func (m *Manager) MarkDirty(p *Page) {
	p.MarkDirty()
}

// FlushPage writes a resident page back to disk immediately regardless of
// its dirty bit, and clears the dirty bit on success.
func (m *Manager) FlushPage(fd disk.FileID, pageNo int32) error {
	m.mu.Lock()
	idx, ok := m.byKey[key{fd, pageNo}]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	p := m.frames[idx]
	p.mu.Lock()
	data := p.Data
	p.mu.Unlock()

	if err := m.disk.WritePage(fd, pageNo, data); err != nil {
		return err
	}

	p.mu.Lock()
	p.dirty = false
	p.mu.Unlock()
	return nil
}

// FlushAll writes back every dirty resident page. Used on clean shutdown.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	pages := make([]*Page, 0, len(m.byKey))
	for _, idx := range m.byKey {
		pages = append(pages, m.frames[idx])
	}
	m.mu.Unlock()

	for _, p := range pages {
		p.mu.Lock()
		dirty := p.dirty
		fd, pageNo, data := p.FD, p.PageNo, p.Data
		p.mu.Unlock()

		if !dirty {
			continue
		}
		if err := m.disk.WritePage(fd, pageNo, data); err != nil {
			return err
		}
		p.mu.Lock()
		p.dirty = false
		p.mu.Unlock()
	}
	logging.WithComponent("cache").Debugw("flushed all dirty pages", "count", len(pages))
	return nil
}
