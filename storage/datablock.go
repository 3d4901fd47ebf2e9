package storage

import "encoding/binary"

// dataPageLenPrefix is the 4-byte total-payload-length field at the start
// of a DataBlock's first page. Every subsequent Extend page in the chain
// carries pure payload with no header of its own.
const dataPageLenPrefix = 4

// chunkCapacity returns how many payload bytes a single page body can
// hold, accounting for the length prefix present only on the first page.
func chunkCapacity(first bool) int {
	if first {
		return PageSize - PageHeaderSize - dataPageLenPrefix
	}
	return PageSize - PageHeaderSize
}

// WriteDataBlock serializes doc and writes it across a chain of Data/Extend
// pages, returning the PageID of the first page in the chain. Pages are
// taken from the collection's free-data list (headed by *freeHead) before
// the cache grows the file, so chains freed by a prior Delete/Update get
// reused. When compress is true the document bytes are snappy-compressed
// before being packed into pages; a one-byte flag ahead of the encoded
// bytes records whether this particular block is compressed, so blocks
// written under different Options.Compress settings can coexist in the
// same file.
func WriteDataBlock(cache *Cache, doc Document, compress bool, freeHead *PageID) (PageID, error) {
	raw := EncodeDocument(doc)
	flag := compressFlagNone
	body := raw
	if compress {
		flag = compressFlagSnappy
		body = SnappyCompress(raw)
	}
	payload := make([]byte, 1+len(body))
	payload[0] = flag
	copy(payload[1:], body)
	return writeChain(cache, payload, freeHead)
}

// allocPage returns a page of type t, preferring one reclaimed onto the
// free list headed by *freeHead over growing the file. A reclaimed page's
// FreeBytes always covers the whole body (Cache.Reclaim resets it before
// linking the page in), so every Data/Extend page in this one-chunk-per-
// page engine satisfies any request; GetFree's size check exists to honor
// the free-list contract, not to discriminate between candidates here.
func allocPage(cache *Cache, freeHead *PageID, t PageType) (*Page, PageID, error) {
	if *freeHead != NilPageID {
		p, newHead, err := cache.GetFree(*freeHead, 0)
		if err == nil {
			*freeHead = newHead
			p.SetPageType(t)
			p.SetPrevPageID(NilPageID)
			p.SetNextPageID(NilPageID)
			p.MarkDirty()
			return p, p.ID, nil
		}
	}
	return cache.NewPage(t)
}

func writeChain(cache *Cache, payload []byte, freeHead *PageID) (PageID, error) {
	total := len(payload)
	offset := 0

	first, firstID, err := allocPage(cache, freeHead, PageTypeData)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(first.Body(), uint32(total))

	n := copy(first.Body()[dataPageLenPrefix:], payload[offset:])
	offset += n
	first.SetFreeBytes(uint16(chunkCapacity(true) - n))
	first.SetItemCount(1)
	first.MarkDirty()

	prev := first
	for offset < total {
		ext, extID, err := allocPage(cache, freeHead, PageTypeExtend)
		if err != nil {
			return 0, err
		}
		n := copy(ext.Body(), payload[offset:])
		offset += n
		ext.SetFreeBytes(uint16(chunkCapacity(false) - n))
		ext.SetItemCount(1)
		ext.MarkDirty()

		prev.SetNextPageID(extID)
		prev.MarkDirty()
		ext.SetPrevPageID(prev.ID)
		prev = ext
	}
	return firstID, nil
}

// UpdateDataBlock rewrites the document stored in the chain headed by id
// in place: existing Data/Extend pages are reused and have their payload
// chunk replaced, trailing pages are freed back onto the free-data list
// (headed by *freeHead) if the new encoding is shorter, and new Extend
// pages are taken off that same list (or allocated fresh) if it is
// longer. The head PageID never changes, so every index entry pointing
// at id stays valid without being touched.
func UpdateDataBlock(cache *Cache, id PageID, doc Document, compress bool, freeHead *PageID) error {
	raw := EncodeDocument(doc)
	flag := compressFlagNone
	body := raw
	if compress {
		flag = compressFlagSnappy
		body = SnappyCompress(raw)
	}
	payload := make([]byte, 1+len(body))
	payload[0] = flag
	copy(payload[1:], body)

	total := len(payload)
	offset := 0

	first, err := cache.Get(id)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(first.Body(), uint32(total))
	n := copy(first.Body()[dataPageLenPrefix:], payload[offset:])
	offset += n
	first.SetFreeBytes(uint16(chunkCapacity(true) - n))
	first.SetItemCount(1)
	first.MarkDirty()

	prev := first
	cur := first.NextPageID()
	for offset < total {
		var page *Page
		var pageID PageID
		if cur != NilPageID {
			page, err = cache.Get(cur)
			if err != nil {
				return err
			}
			pageID = cur
			cur = page.NextPageID()
		} else {
			page, pageID, err = allocPage(cache, freeHead, PageTypeExtend)
			if err != nil {
				return err
			}
			prev.SetNextPageID(pageID)
			prev.MarkDirty()
			page.SetPrevPageID(prev.ID)
		}
		n := copy(page.Body(), payload[offset:])
		offset += n
		page.SetFreeBytes(uint16(chunkCapacity(false) - n))
		page.SetItemCount(1)
		page.MarkDirty()
		prev = page
	}

	leftover := cur
	prev.SetNextPageID(NilPageID)
	prev.MarkDirty()
	if leftover != NilPageID {
		return freeChain(cache, leftover, freeHead)
	}
	return nil
}

// freeChain reclaims every page in the chain headed by id onto the
// free-data list headed by *freeHead, one page at a time (each page's
// NextPageID is read before the page is overwritten by Reclaim).
func freeChain(cache *Cache, id PageID, freeHead *PageID) error {
	cur := id
	for cur != NilPageID {
		p, err := cache.Get(cur)
		if err != nil {
			return err
		}
		next := p.NextPageID()
		newHead, err := cache.Reclaim(*freeHead, cur)
		if err != nil {
			return err
		}
		*freeHead = newHead
		cur = next
	}
	return nil
}

// ReadDataBlock reconstructs the document stored in the page chain headed
// by id.
func ReadDataBlock(cache *Cache, id PageID) (Document, error) {
	first, err := cache.Get(id)
	if err != nil {
		return nil, err
	}
	total := int(binary.LittleEndian.Uint32(first.Body()))

	buf := make([]byte, 0, total)
	used := min(total, chunkCapacity(true))
	buf = append(buf, first.Body()[dataPageLenPrefix:dataPageLenPrefix+used]...)

	cur := first.NextPageID()
	for len(buf) < total && cur != NilPageID {
		p, err := cache.Get(cur)
		if err != nil {
			return nil, err
		}
		remaining := total - len(buf)
		used := min(remaining, chunkCapacity(false))
		buf = append(buf, p.Body()[:used]...)
		cur = p.NextPageID()
	}

	if len(buf) == 0 {
		return nil, errShortBuffer
	}
	flag := buf[0]
	body := buf[1:]
	if flag == compressFlagSnappy {
		decoded, err := SnappyDecompress(body)
		if err != nil {
			return nil, err
		}
		body = decoded
	}
	return DecodeDocument(body)
}

// DeleteDataBlock releases every page in the chain headed by id onto the
// free-data list headed by *freeHead, so a later WriteDataBlock/
// UpdateDataBlock in the same collection can reuse them before the file
// grows.
func DeleteDataBlock(cache *Cache, id PageID, freeHead *PageID) error {
	return freeChain(cache, id, freeHead)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
