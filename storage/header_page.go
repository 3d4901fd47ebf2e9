package storage

import (
	"encoding/binary"
)

// HeaderPage is the singleton page 0: file magic/version, bookkeeping for
// the allocator, and the name -> CollectionPage directory.
type HeaderPage struct {
	Magic           uint32
	Version         uint16
	LastPageID      PageID
	FreeEmptyPageID PageID
	Collections     map[string]PageID // name -> CollectionPage id
}

const (
	headerMagic   uint32 = 0x50474644 // "PGFD"
	headerVersion uint16 = 1
)

func NewHeaderPage() *HeaderPage {
	return &HeaderPage{
		Magic:       headerMagic,
		Version:     headerVersion,
		Collections: make(map[string]PageID),
	}
}

// Encode writes the header into page's body.
func (h *HeaderPage) Encode(p *Page) {
	body := p.Body()
	off := 0
	binary.LittleEndian.PutUint32(body[off:], h.Magic)
	off += 4
	binary.LittleEndian.PutUint16(body[off:], h.Version)
	off += 2
	binary.LittleEndian.PutUint64(body[off:], uint64(h.LastPageID))
	off += 8
	binary.LittleEndian.PutUint64(body[off:], uint64(h.FreeEmptyPageID))
	off += 8
	binary.LittleEndian.PutUint32(body[off:], uint32(len(h.Collections)))
	off += 4
	for name, id := range h.Collections {
		nb := []byte(name)
		binary.LittleEndian.PutUint16(body[off:], uint16(len(nb)))
		off += 2
		copy(body[off:], nb)
		off += len(nb)
		binary.LittleEndian.PutUint64(body[off:], uint64(id))
		off += 8
	}
	p.SetPageType(PageTypeHeader)
	p.SetItemCount(uint16(len(h.Collections)))
	p.MarkDirty()
}

// DecodeHeaderPage parses a HeaderPage from page 0's body.
func DecodeHeaderPage(p *Page) *HeaderPage {
	body := p.Body()
	h := &HeaderPage{Collections: make(map[string]PageID)}
	off := 0
	h.Magic = binary.LittleEndian.Uint32(body[off:])
	off += 4
	h.Version = binary.LittleEndian.Uint16(body[off:])
	off += 2
	h.LastPageID = PageID(binary.LittleEndian.Uint64(body[off:]))
	off += 8
	h.FreeEmptyPageID = PageID(binary.LittleEndian.Uint64(body[off:]))
	off += 8
	n := binary.LittleEndian.Uint32(body[off:])
	off += 4
	for i := uint32(0); i < n; i++ {
		nameLen := int(binary.LittleEndian.Uint16(body[off:]))
		off += 2
		name := string(body[off : off+nameLen])
		off += nameLen
		id := PageID(binary.LittleEndian.Uint64(body[off:]))
		off += 8
		h.Collections[name] = id
	}
	return h
}

// IsValid reports whether the page looks like a header page with the
// magic and version this build understands.
func (h *HeaderPage) IsValid() bool {
	return h.Magic == headerMagic && h.Version == headerVersion
}
