package storage

import (
	"sync"

	"github.com/pagefiledb/pagefile/internal/util"
	"github.com/sirupsen/logrus"
)

// Cache is the in-memory page cache and allocator. It mediates every page
// access the rest of the engine makes: reads go through Get (which
// populates the map from disk on a miss), new pages come from NewPage
// (which prefers the empty free-list over growing the file), and
// DeletePage returns a page to that free list rather than ever truncating
// the file.
//
// The free-data-page and free-index-page lists referenced by GetFree are
// kept ordered by descending FreeBytes (FreeBytes(p) >= FreeBytes(p.Next))
// so the allocator can stop at the first page with enough room.
type Cache struct {
	pager *Pager
	log   *logrus.Logger

	mu    sync.Mutex
	pages map[PageID]*Page

	// emptyHead is the head of the unordered pool of fully-empty pages
	// freed by DeletePage (DropCollection), reused before the file grows.
	emptyHead PageID
}

func NewCache(pager *Pager, log *logrus.Logger) *Cache {
	if log == nil {
		log = logrus.New()
	}
	return &Cache{
		pager: pager,
		log:   log,
		pages: make(map[PageID]*Page),
	}
}

// Get returns the page for id, loading it from disk on first access.
func (c *Cache) Get(id PageID) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(id)
}

func (c *Cache) getLocked(id PageID) (*Page, error) {
	if p, ok := c.pages[id]; ok {
		return p, nil
	}
	p, err := c.pager.ReadPage(id)
	if err != nil {
		return nil, err
	}
	c.pages[id] = p
	return p, nil
}

// Put registers a page the caller already holds (e.g. just decoded during
// recovery) into the cache, overwriting any cached copy.
func (c *Cache) Put(p *Page) {
	c.mu.Lock()
	c.pages[p.ID] = p
	c.mu.Unlock()
}

// NewPage returns a fresh page of the given type, taking it from the empty
// free-list when one is available and growing the file otherwise. A
// reused page is marked dirty like any other fresh page, so its new
// content reaches the journal as a redo record the same way a
// newly-grown page's does — nothing about reuse needs special-casing at
// commit time.
func (c *Cache) NewPage(t PageType) (*Page, PageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.emptyHead != NilPageID {
		id := c.emptyHead
		old, err := c.getLocked(id)
		if err != nil {
			return nil, 0, err
		}
		c.emptyHead = old.NextPageID()

		fresh := NewPage(id, t)
		fresh.IsDirty = true
		c.pages[id] = fresh
		c.log.WithField("page", id).Debug("reused page from empty free-list")
		return fresh, id, nil
	}

	id, err := c.pager.AllocatePage()
	if err != nil {
		return nil, 0, err
	}
	p := NewPage(id, t)
	p.IsDirty = true
	c.pages[id] = p
	return p, id, nil
}

// DeletePage returns a page (and, if cascade, every page reachable via its
// NextPageID chain) to the empty free-list.
func (c *Cache) DeletePage(id PageID, cascadeNext bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := id
	for cur != NilPageID {
		p, err := c.getLocked(cur)
		if err != nil {
			return err
		}
		next := p.NextPageID()

		empty := NewPage(cur, PageTypeEmpty)
		empty.SetNextPageID(c.emptyHead)
		empty.IsDirty = true
		c.pages[cur] = empty
		c.emptyHead = cur

		if !cascadeNext {
			break
		}
		cur = next
	}
	return nil
}

// EmptyHead exposes the free-list head for the HeaderPage codec to persist.
func (c *Cache) EmptyHead() PageID { return c.emptyHead }

// SetEmptyHead restores the free-list head, used when loading an existing
// database file.
func (c *Cache) SetEmptyHead(id PageID) { c.emptyHead = id }

// GetFree walks an ordered free list (starting at head, linked through
// NextPageID, sorted by descending FreeBytes) and returns the first page
// with at least neededBytes of room, unlinking it from the list.
func (c *Cache) GetFree(head PageID, neededBytes uint16) (*Page, PageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prev *Page
	cur := head
	for cur != NilPageID {
		p, err := c.getLocked(cur)
		if err != nil {
			return nil, head, err
		}
		if p.FreeBytes() >= neededBytes {
			next := p.NextPageID()
			if prev == nil {
				head = next
			} else {
				prev.SetNextPageID(next)
			}
			p.SetNextPageID(NilPageID)
			return p, head, nil
		}
		prev = p
		cur = p.NextPageID()
	}
	return nil, head, util.New(util.KindCollectionLimitSize, "no free page with enough room")
}

// AddToFreeList inserts p into an ordered-by-descending-FreeBytes free
// list and returns the (possibly updated) head.
func (c *Cache) AddToFreeList(head PageID, p *Page) (PageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	free := p.FreeBytes()
	if head == NilPageID {
		p.SetNextPageID(NilPageID)
		return p.ID, nil
	}

	var prev *Page
	cur := head
	for cur != NilPageID {
		cp, err := c.getLocked(cur)
		if err != nil {
			return head, err
		}
		if cp.FreeBytes() <= free {
			break
		}
		prev = cp
		cur = cp.NextPageID()
	}

	p.SetNextPageID(cur)
	if prev == nil {
		return p.ID, nil
	}
	prev.SetNextPageID(p.ID)
	return head, nil
}

// RemoveFromFreeList unlinks p from an ordered free list, returning the
// possibly-updated head.
func (c *Cache) RemoveFromFreeList(head PageID, id PageID) (PageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prev *Page
	cur := head
	for cur != NilPageID {
		cp, err := c.getLocked(cur)
		if err != nil {
			return head, err
		}
		if cur == id {
			next := cp.NextPageID()
			cp.SetNextPageID(NilPageID)
			if prev == nil {
				return next, nil
			}
			prev.SetNextPageID(next)
			return head, nil
		}
		prev = cp
		cur = cp.NextPageID()
	}
	return head, nil
}

// Reclaim retires page id into an ordered free list headed by head and
// returns the (possibly updated) head. The page's old payload is about to
// be overwritten wholesale rather than appended to, so its FreeBytes is
// reset to the whole body before it is linked in — that's what lets a
// later GetFree match it against any same-size page request regardless of
// how full it was when it was freed.
func (c *Cache) Reclaim(head PageID, id PageID) (PageID, error) {
	c.mu.Lock()
	p, err := c.getLocked(id)
	c.mu.Unlock()
	if err != nil {
		return head, err
	}
	p.SetFreeBytes(PageSize - PageHeaderSize)
	return c.AddToFreeList(head, p)
}

// CachedPageCount returns how many pages are currently resident in
// memory, for Database.Stats to weigh against Options.CacheSize.
func (c *Cache) CachedPageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// DirtyPages returns every page currently marked dirty, for the
// transaction manager to journal and flush at commit.
func (c *Cache) DirtyPages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dirty []*Page
	for _, p := range c.pages {
		if p.IsDirty {
			dirty = append(dirty, p)
		}
	}
	return dirty
}

// Clear drops every cached page, forcing the next Get to re-read from
// disk. This is the AvoidDirtyRead hook the locker calls when a reader
// notices the writer's change counter moved since it last looked.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.pages = make(map[PageID]*Page)
	c.mu.Unlock()
}

// FlushDirty writes every dirty page to disk via the pager and fsyncs.
func (c *Cache) FlushDirty() error {
	c.mu.Lock()
	pages := make([]*Page, 0)
	for _, p := range c.pages {
		if p.IsDirty {
			pages = append(pages, p)
		}
	}
	c.mu.Unlock()

	for _, p := range pages {
		if err := c.pager.WritePage(p); err != nil {
			return err
		}
	}
	return c.pager.Sync()
}
