package storage

import (
	"io"
	"os"
	"sync"

	"github.com/pagefiledb/pagefile/internal/util"
	"github.com/pkg/errors"
)

// Pager owns the single data file and moves fixed PageSize blocks between
// disk and memory. It knows nothing about page semantics (collections,
// indexes, documents) — that belongs to the cache and the codecs above it.
type Pager struct {
	file       *os.File
	mu         sync.RWMutex
	nextPageID PageID
	readOnly   bool
}

// OpenPager opens (creating if absent, unless readOnly) the data file at
// path and computes the next free PageID from its current size.
func OpenPager(path string, readOnly bool) (*Pager, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, errors.Wrap(util.Wrap(util.KindFileNotFound, path, err), "open data file")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(util.Wrap(util.KindFileCorrupted, path, err), "stat data file")
	}

	return &Pager{
		file:       f,
		nextPageID: PageID(info.Size() / PageSize),
		readOnly:   readOnly,
	}, nil
}

// AllocatePage reserves the next PageID and grows the file to cover it,
// if it is not already that large — Preallocate may have already grown
// it further, and this must never shrink the file back down.
func (p *Pager) AllocatePage() (PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextPageID
	p.nextPageID++

	if p.readOnly {
		return id, nil
	}
	want := int64(p.nextPageID) * PageSize
	info, err := p.file.Stat()
	if err != nil {
		return 0, errors.Wrap(util.Wrap(util.KindFileCorrupted, "", err), "stat data file")
	}
	if info.Size() < want {
		if err := p.file.Truncate(want); err != nil {
			return 0, errors.Wrap(util.Wrap(util.KindFileCorrupted, "", err), "grow data file")
		}
	}
	return id, nil
}

// Preallocate grows the file to at least size bytes without handing out
// any new PageIDs, letting a caller that knows its expected size up
// front avoid the repeated incremental growth AllocatePage would
// otherwise do one page at a time.
func (p *Pager) Preallocate(size int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readOnly || size <= 0 {
		return nil
	}
	info, err := p.file.Stat()
	if err != nil {
		return errors.Wrap(util.Wrap(util.KindFileCorrupted, "", err), "stat data file")
	}
	if info.Size() >= size {
		return nil
	}
	if err := p.file.Truncate(size); err != nil {
		return errors.Wrap(util.Wrap(util.KindFileCorrupted, "", err), "preallocate data file")
	}
	return nil
}

// NextPageID returns the PageID that would be handed out by the next
// AllocatePage call, i.e. one past the highest page currently on disk.
func (p *Pager) NextPageID() PageID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextPageID
}

// ReadPage loads a page from disk. Reading past the current end of file
// yields a page of zero bytes rather than an error — this lets recovery and
// allocation logic treat a not-yet-extended page uniformly with an
// Empty page.
func (p *Pager) ReadPage(id PageID) (*Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	page := &Page{ID: id}
	offset := int64(id) * PageSize
	n, err := p.file.ReadAt(page.Data[:], offset)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(util.Wrap(util.KindFileCorrupted, "", err), "read page")
	}
	if n < PageSize {
		for i := n; i < PageSize; i++ {
			page.Data[i] = 0
		}
	}
	return page, nil
}

// WritePage persists a page's current bytes at its slot and clears dirty.
func (p *Pager) WritePage(page *Page) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.readOnly {
		return util.New(util.KindInvalidDatabase, "write on read-only pager")
	}

	offset := int64(page.ID) * PageSize
	if _, err := p.file.WriteAt(page.Data[:], offset); err != nil {
		return errors.Wrap(util.Wrap(util.KindFileCorrupted, "", err), "write page")
	}
	page.mu.Lock()
	page.IsDirty = false
	page.mu.Unlock()
	return nil
}

// Sync flushes pending writes to stable storage.
func (p *Pager) Sync() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.readOnly {
		return nil
	}
	if err := p.file.Sync(); err != nil {
		return errors.Wrap(util.Wrap(util.KindFileCorrupted, "", err), "fsync data file")
	}
	return nil
}

// WritePageBytes implements wal.PageWriter, letting recovery redo a
// journaled page image without constructing a full Page value.
func (p *Pager) WritePageBytes(pageID uint64, data []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(data) != PageSize {
		return errors.Wrap(util.New(util.KindFileCorrupted, "short page image"), "recover page")
	}
	offset := int64(pageID) * PageSize
	if _, err := p.file.WriteAt(data, offset); err != nil {
		return errors.Wrap(util.Wrap(util.KindFileCorrupted, "", err), "recover page")
	}
	return nil
}

func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}
