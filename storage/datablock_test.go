package storage

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	pager, err := OpenPager(t.TempDir()+"/data.db", false)
	require.NoError(t, err)
	t.Cleanup(func() { pager.Close() })
	// Page 0 is the header page in a real database and doubles as
	// NilPageID, so reserve it before the cache hands out any pages.
	_, err = pager.AllocatePage()
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewCache(pager, log)
}

func TestWriteReadDataBlockRoundtrip(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	doc := Document{"_id": Int32(1), "name": String("Alice")}
	var freeHead PageID
	id, err := WriteDataBlock(cache, doc, false, &freeHead)
	require.NoError(err)

	got, err := ReadDataBlock(cache, id)
	require.NoError(err)
	require.Equal(0, Compare(doc["name"], got["name"]))
}

func TestWriteReadDataBlockCompressed(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	doc := Document{"_id": Int32(1), "blob": String(strings.Repeat("x", 5000))}
	var freeHead PageID
	id, err := WriteDataBlock(cache, doc, true, &freeHead)
	require.NoError(err)

	got, err := ReadDataBlock(cache, id)
	require.NoError(err)
	require.Equal(0, Compare(doc["blob"], got["blob"]))
}

func TestWriteDataBlockSpansExtendPages(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	doc := Document{"_id": Int32(1), "blob": String(strings.Repeat("y", PageSize*3))}
	var freeHead PageID
	id, err := WriteDataBlock(cache, doc, false, &freeHead)
	require.NoError(err)

	first, err := cache.Get(id)
	require.NoError(err)
	require.NotEqual(NilPageID, first.NextPageID())

	got, err := ReadDataBlock(cache, id)
	require.NoError(err)
	require.Equal(0, Compare(doc["blob"], got["blob"]))
}

func TestUpdateDataBlockKeepsHeadID(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	doc := Document{"_id": Int32(1), "name": String("Alice")}
	var freeHead PageID
	id, err := WriteDataBlock(cache, doc, false, &freeHead)
	require.NoError(err)

	updated := Document{"_id": Int32(1), "name": String("Bob")}
	require.NoError(UpdateDataBlock(cache, id, updated, false, &freeHead))

	got, err := ReadDataBlock(cache, id)
	require.NoError(err)
	require.Equal("Bob", got["name"].Str)
}

func TestUpdateDataBlockShrinksAndGrows(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	var freeHead PageID
	big := Document{"_id": Int32(1), "blob": String(strings.Repeat("a", PageSize*3))}
	id, err := WriteDataBlock(cache, big, false, &freeHead)
	require.NoError(err)

	small := Document{"_id": Int32(1), "blob": String("tiny")}
	require.NoError(UpdateDataBlock(cache, id, small, false, &freeHead))
	got, err := ReadDataBlock(cache, id)
	require.NoError(err)
	require.Equal("tiny", got["blob"].Str)

	first, err := cache.Get(id)
	require.NoError(err)
	require.Equal(NilPageID, first.NextPageID())
	require.NotEqual(NilPageID, freeHead, "shrinking should have reclaimed the leftover extend pages")

	grown := Document{"_id": Int32(1), "blob": String(strings.Repeat("b", PageSize*2))}
	require.NoError(UpdateDataBlock(cache, id, grown, false, &freeHead))
	got, err = ReadDataBlock(cache, id)
	require.NoError(err)
	require.Equal(0, Compare(grown["blob"], got["blob"]))
}

func TestDeleteDataBlockReleasesPages(t *testing.T) {
	require := require.New(t)
	cache := newTestCache(t)

	var freeHead PageID
	doc := Document{"_id": Int32(1), "name": String("Alice")}
	id, err := WriteDataBlock(cache, doc, false, &freeHead)
	require.NoError(err)

	require.NoError(DeleteDataBlock(cache, id, &freeHead))
	require.NotEqual(NilPageID, freeHead)

	before := cache.pager.NextPageID()
	other := Document{"_id": Int32(2), "name": String("Carol")}
	reusedID, err := WriteDataBlock(cache, other, false, &freeHead)
	require.NoError(err)
	require.Equal(id, reusedID, "a single-page chain's only page should come straight back off the free-data list")
	require.Equal(before, cache.pager.NextPageID(), "reusing a freed page must not grow the file")

	reused, err := cache.Get(reusedID)
	require.NoError(err)
	require.Equal(PageTypeData, reused.PageType())
	require.Equal(NilPageID, freeHead, "the only freed page should now be back in active use")
}
