package storage

import "encoding/binary"

// MaxIndexesPerCollection bounds the collection page's fixed-capacity
// index table so the whole table always fits in one page body.
const MaxIndexesPerCollection = 16

// IndexDef names one skip-list index rooted on this collection.
type IndexDef struct {
	Field      string
	RootPageID PageID
	Unique     bool
}

// CollectionPage describes one collection: its name, document count, the
// head of its free-data-page list, and the table of indexes defined over
// it (always includes "_id"). Each index keeps its own free-index-page
// list head in its IndexRoot.
type CollectionPage struct {
	Name           string
	DocumentCount  uint64
	FreeDataHead   PageID
	FirstDataPage  PageID
	Indexes        []IndexDef
}

func NewCollectionPage(name string) *CollectionPage {
	return &CollectionPage{Name: name}
}

func (c *CollectionPage) Encode(p *Page) {
	body := p.Body()
	off := 0

	nb := []byte(c.Name)
	binary.LittleEndian.PutUint16(body[off:], uint16(len(nb)))
	off += 2
	copy(body[off:], nb)
	off += len(nb)

	binary.LittleEndian.PutUint64(body[off:], c.DocumentCount)
	off += 8
	binary.LittleEndian.PutUint64(body[off:], uint64(c.FreeDataHead))
	off += 8
	binary.LittleEndian.PutUint64(body[off:], uint64(c.FirstDataPage))
	off += 8

	binary.LittleEndian.PutUint16(body[off:], uint16(len(c.Indexes)))
	off += 2
	for _, idx := range c.Indexes {
		fb := []byte(idx.Field)
		binary.LittleEndian.PutUint16(body[off:], uint16(len(fb)))
		off += 2
		copy(body[off:], fb)
		off += len(fb)
		binary.LittleEndian.PutUint64(body[off:], uint64(idx.RootPageID))
		off += 8
		if idx.Unique {
			body[off] = 1
		} else {
			body[off] = 0
		}
		off++
	}

	p.SetPageType(PageTypeCollection)
	p.SetItemCount(uint16(len(c.Indexes)))
	p.MarkDirty()
}

func DecodeCollectionPage(p *Page) *CollectionPage {
	body := p.Body()
	c := &CollectionPage{}
	off := 0

	nameLen := int(binary.LittleEndian.Uint16(body[off:]))
	off += 2
	c.Name = string(body[off : off+nameLen])
	off += nameLen

	c.DocumentCount = binary.LittleEndian.Uint64(body[off:])
	off += 8
	c.FreeDataHead = PageID(binary.LittleEndian.Uint64(body[off:]))
	off += 8
	c.FirstDataPage = PageID(binary.LittleEndian.Uint64(body[off:]))
	off += 8

	n := int(binary.LittleEndian.Uint16(body[off:]))
	off += 2
	c.Indexes = make([]IndexDef, 0, n)
	for i := 0; i < n; i++ {
		fieldLen := int(binary.LittleEndian.Uint16(body[off:]))
		off += 2
		field := string(body[off : off+fieldLen])
		off += fieldLen
		root := PageID(binary.LittleEndian.Uint64(body[off:]))
		off += 8
		unique := body[off] != 0
		off++
		c.Indexes = append(c.Indexes, IndexDef{Field: field, RootPageID: root, Unique: unique})
	}
	return c
}

// IndexByField returns the index definition for field, if one exists.
func (c *CollectionPage) IndexByField(field string) (IndexDef, bool) {
	for _, idx := range c.Indexes {
		if idx.Field == field {
			return idx, true
		}
	}
	return IndexDef{}, false
}
