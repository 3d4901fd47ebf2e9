// Package storage implements the page-based persistence layer: fixed-size
// pages, the on-disk page cache and allocator, document data blocks, and the
// skip-list secondary index structure.
package storage

import (
	"encoding/binary"
	"sync"
)

// PageID uniquely identifies a page within the data file. PageID 0 is
// always the HeaderPage.
type PageID uint64

// NilPageID marks the absence of a page link (end of a chain, empty list).
const NilPageID PageID = 0

// PageSize is the fixed size of every page on disk.
const PageSize = 4096

// Page type tags, stored in the first header byte.
const (
	PageTypeHeader PageType = iota
	PageTypeCollection
	PageTypeIndex
	PageTypeData
	PageTypeExtend
	PageTypeEmpty
)

// PageType identifies the role a page plays in the file.
type PageType byte

func (t PageType) String() string {
	switch t {
	case PageTypeHeader:
		return "Header"
	case PageTypeCollection:
		return "Collection"
	case PageTypeIndex:
		return "Index"
	case PageTypeData:
		return "Data"
	case PageTypeExtend:
		return "Extend"
	case PageTypeEmpty:
		return "Empty"
	default:
		return "Invalid"
	}
}

// Page header layout (30 bytes, little-endian):
//
//	off 0  PageType   (1 byte)
//	off 1  reserved   (1 byte)
//	off 2  ItemCount  (2 bytes)
//	off 4  FreeBytes  (2 bytes)
//	off 6  PrevPageID (8 bytes)
//	off 14 NextPageID (8 bytes)
//	off 22 PageID     (8 bytes)
const PageHeaderSize = 30

// Page is a fixed PageSize buffer plus the bookkeeping the cache needs to
// decide when to write it back and when it is safe to evict.
type Page struct {
	ID       PageID
	Data     [PageSize]byte
	IsDirty  bool
	PinCount int32

	mu sync.RWMutex
}

// NewPage builds a zeroed page of the given type with an empty item list
// and FreeBytes set to the whole body (everything past the header).
func NewPage(id PageID, t PageType) *Page {
	p := &Page{ID: id}
	p.setPageTypeLocked(t)
	p.setItemCountLocked(0)
	p.setFreeBytesLocked(PageSize - PageHeaderSize)
	p.setPrevPageIDLocked(NilPageID)
	p.setNextPageIDLocked(NilPageID)
	binary.LittleEndian.PutUint64(p.Data[22:30], uint64(id))
	return p
}

func (p *Page) Pin() {
	p.mu.Lock()
	p.PinCount++
	p.mu.Unlock()
}

func (p *Page) Unpin() {
	p.mu.Lock()
	if p.PinCount > 0 {
		p.PinCount--
	}
	p.mu.Unlock()
}

func (p *Page) IsPinned() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.PinCount > 0
}

func (p *Page) MarkDirty() {
	p.mu.Lock()
	p.IsDirty = true
	p.mu.Unlock()
}

func (p *Page) PageType() PageType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PageType(p.Data[0])
}

func (p *Page) SetPageType(t PageType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setPageTypeLocked(t)
}

func (p *Page) setPageTypeLocked(t PageType) {
	p.Data[0] = byte(t)
	p.IsDirty = true
}

func (p *Page) ItemCount() uint16 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return binary.LittleEndian.Uint16(p.Data[2:4])
}

func (p *Page) SetItemCount(n uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setItemCountLocked(n)
}

func (p *Page) setItemCountLocked(n uint16) {
	binary.LittleEndian.PutUint16(p.Data[2:4], n)
	p.IsDirty = true
}

func (p *Page) FreeBytes() uint16 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return binary.LittleEndian.Uint16(p.Data[4:6])
}

func (p *Page) SetFreeBytes(n uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setFreeBytesLocked(n)
}

func (p *Page) setFreeBytesLocked(n uint16) {
	binary.LittleEndian.PutUint16(p.Data[4:6], n)
	p.IsDirty = true
}

func (p *Page) PrevPageID() PageID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PageID(binary.LittleEndian.Uint64(p.Data[6:14]))
}

func (p *Page) SetPrevPageID(id PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setPrevPageIDLocked(id)
}

func (p *Page) setPrevPageIDLocked(id PageID) {
	binary.LittleEndian.PutUint64(p.Data[6:14], uint64(id))
	p.IsDirty = true
}

func (p *Page) NextPageID() PageID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PageID(binary.LittleEndian.Uint64(p.Data[14:22]))
}

func (p *Page) SetNextPageID(id PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setNextPageIDLocked(id)
}

func (p *Page) setNextPageIDLocked(id PageID) {
	binary.LittleEndian.PutUint64(p.Data[14:22], uint64(id))
	p.IsDirty = true
}

// Body returns the page bytes past the fixed header, the region page-type
// specific codecs read and write.
func (p *Page) Body() []byte {
	return p.Data[PageHeaderSize:]
}

// Clone returns a deep copy of the page, including its dirty flag and pin
// count.
func (p *Page) Clone() *Page {
	p.mu.RLock()
	defer p.mu.RUnlock()
	np := &Page{ID: p.ID, IsDirty: p.IsDirty, PinCount: p.PinCount}
	copy(np.Data[:], p.Data[:])
	return np
}
