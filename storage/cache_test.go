package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheNewPageGrowsFile(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	p1, id1, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	require.Equal(PageTypeData, p1.PageType())

	p2, id2, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	require.NotEqual(id1, id2)
	require.True(p2.IsDirty)
}

func TestCacheGetLoadsFromDiskOnMiss(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	p, id, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	p.Body()[0] = 0x42
	p.MarkDirty()
	require.NoError(cache.FlushDirty())

	cache.Clear()

	reloaded, err := cache.Get(id)
	require.NoError(err)
	require.Equal(byte(0x42), reloaded.Body()[0])
}

func TestCacheDeletePageRecyclesViaNewPage(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	_, id, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	require.NoError(cache.DeletePage(id, false))
	require.Equal(id, cache.EmptyHead())

	reused, reusedID, err := cache.NewPage(PageTypeIndex)
	require.NoError(err)
	require.Equal(id, reusedID)
	require.Equal(PageTypeIndex, reused.PageType())
	require.Equal(NilPageID, cache.EmptyHead())
}

func TestCacheDeletePageCascadesChain(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	p1, id1, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	p2, id2, err := cache.NewPage(PageTypeExtend)
	require.NoError(err)
	p1.SetNextPageID(id2)
	p1.MarkDirty()
	p2.SetNextPageID(NilPageID)
	p2.MarkDirty()

	require.NoError(cache.DeletePage(id1, true))

	got1, err := cache.Get(id1)
	require.NoError(err)
	require.Equal(PageTypeEmpty, got1.PageType())
	got2, err := cache.Get(id2)
	require.NoError(err)
	require.Equal(PageTypeEmpty, got2.PageType())
}

func TestCacheFreeListOrderedByDescendingFreeBytes(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	low, lowID, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	low.SetFreeBytes(10)

	high, highID, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	high.SetFreeBytes(1000)

	head, err := cache.AddToFreeList(NilPageID, low)
	require.NoError(err)
	head, err = cache.AddToFreeList(head, high)
	require.NoError(err)
	require.Equal(highID, head)

	found, newHead, err := cache.GetFree(head, 500)
	require.NoError(err)
	require.Equal(highID, found.ID)
	require.Equal(lowID, newHead)
}

func TestCacheGetFreeErrorsWhenNoneFit(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	small, _, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	small.SetFreeBytes(5)
	head, err := cache.AddToFreeList(NilPageID, small)
	require.NoError(err)

	_, _, err = cache.GetFree(head, 5000)
	require.Error(err)
}

func TestCacheRemoveFromFreeList(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	a, aID, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	a.SetFreeBytes(100)
	b, bID, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	b.SetFreeBytes(50)

	head, err := cache.AddToFreeList(NilPageID, a)
	require.NoError(err)
	head, err = cache.AddToFreeList(head, b)
	require.NoError(err)

	head, err = cache.RemoveFromFreeList(head, aID)
	require.NoError(err)
	require.Equal(bID, head)
}

func TestCacheReclaimResetsFreeBytesAndLinksIn(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	p, id, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	p.SetFreeBytes(3)

	head, err := cache.Reclaim(NilPageID, id)
	require.NoError(err)
	require.Equal(id, head)

	found, _, err := cache.GetFree(head, PageSize-PageHeaderSize)
	require.NoError(err)
	require.Equal(id, found.ID, "Reclaim must reset FreeBytes to the whole body, not leave the stale value")
}

func TestCacheCachedPageCountTracksResidentPages(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)
	require.Equal(0, cache.CachedPageCount())

	_, _, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	_, _, err = cache.NewPage(PageTypeData)
	require.NoError(err)
	require.Equal(2, cache.CachedPageCount())
}

func TestCacheDirtyPagesTracksMarkedPages(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	_, _, err := cache.NewPage(PageTypeData)
	require.NoError(err)
	_, _, err = cache.NewPage(PageTypeData)
	require.NoError(err)

	require.Len(cache.DirtyPages(), 2)
	require.NoError(cache.FlushDirty())
}
