package pagefile

import (
	"path/filepath"
	"testing"

	"github.com/pagefiledb/pagefile/internal/query"
	"github.com/pagefiledb/pagefile/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testOptions(t *testing.T) *Options {
	t.Helper()
	opts := DefaultOptions(filepath.Join(t.TempDir(), "test.db"))
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	opts.Logger = log
	return opts
}

func TestOpenBootstrapsNewDatabase(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()
	require.Empty(db.ListCollections())
}

func TestInsertAndFindByID(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	id, err := db.Insert("users", storage.Document{"name": storage.String("Ada")})
	require.NoError(err)

	c, err := db.GetCollection("users")
	require.NoError(err)
	doc, err := c.FindByID(id)
	require.NoError(err)
	require.Equal(0, storage.Compare(storage.String("Ada"), doc["name"]))
}

func TestFindAutoBuildsMissingIndex(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	_, err = db.Insert("users", storage.Document{"age": storage.Int32(20)})
	require.NoError(err)
	_, err = db.Insert("users", storage.Document{"age": storage.Int32(30)})
	require.NoError(err)

	docs, err := db.Find("users", query.EQ("age", storage.Int32(30)), 0, 0)
	require.NoError(err)
	require.Len(docs, 1)

	c, err := db.GetCollection("users")
	require.NoError(err)
	_, ok := c.Index("age")
	require.True(ok, "querying an unindexed field should have built the index as a side effect")
}

func TestFindSortsByIDAndPages(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	for i := 0; i < 5; i++ {
		_, err := db.Insert("items", storage.Document{"n": storage.Int32(int32(i))})
		require.NoError(err)
	}

	docs, err := db.Find("items", query.All(), 1, 2)
	require.NoError(err)
	require.Len(docs, 2)
	firstID, _ := docs[0].ID()
	secondID, _ := docs[1].ID()
	require.True(storage.Compare(firstID, secondID) < 0)
}

func TestUpdateRewritesInPlace(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	id, err := db.Insert("users", storage.Document{"name": storage.String("Ada"), "age": storage.Int32(20)})
	require.NoError(err)

	c, err := db.GetCollection("users")
	require.NoError(err)
	require.NoError(c.EnsureIndex("age", false))

	doc := storage.Document{"_id": id, "name": storage.String("Ada"), "age": storage.Int32(21)}
	require.NoError(db.Update("users", doc))

	got, err := c.FindByID(id)
	require.NoError(err)
	require.EqualValues(21, got["age"].Int32)

	min, found, err := c.Min("age")
	require.NoError(err)
	require.True(found)
	require.EqualValues(21, min.Int32)
}

func TestDeleteByQueryRemovesMatches(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	_, err = db.Insert("users", storage.Document{"age": storage.Int32(20)})
	require.NoError(err)
	_, err = db.Insert("users", storage.Document{"age": storage.Int32(40)})
	require.NoError(err)

	n, err := db.Delete("users", query.GT("age", storage.Int32(30)))
	require.NoError(err)
	require.Equal(1, n)

	remaining, err := db.Find("users", query.All(), 0, 0)
	require.NoError(err)
	require.Len(remaining, 1)
}

func TestInsertManyBatchDurabilityOnFailure(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	c, err := db.GetCollection("users")
	require.NoError(err)
	require.NoError(c.EnsureIndex("name", true))

	docs := []storage.Document{
		{"name": storage.String("Alice")},
		{"name": storage.String("Bob")},
		{"name": storage.String("Alice")}, // duplicate under the unique index, fails its batch
	}

	ids, err := db.InsertMany("users", docs, 2)
	require.Error(err)
	require.Len(ids, 2, "the first committed batch stays on disk even though the second batch failed")

	all, err := db.Find("users", query.All(), 0, 0)
	require.NoError(err)
	require.Len(all, 2)
}

func TestEnsureIndexThenDropIndex(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	c, err := db.GetCollection("users")
	require.NoError(err)
	require.NoError(db.EnsureIndex("users", "age", false))
	_, ok := c.Index("age")
	require.True(ok)

	require.NoError(db.DropIndex("users", "age"))
	_, ok = c.Index("age")
	require.False(ok)
}

func TestCountAndExists(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	_, err = db.Insert("users", storage.Document{"age": storage.Int32(20)})
	require.NoError(err)
	_, err = db.Insert("users", storage.Document{"age": storage.Int32(40)})
	require.NoError(err)

	n, err := db.Count("users", query.GT("age", storage.Int32(10)))
	require.NoError(err)
	require.Equal(2, n)

	ok, err := db.Exists("users", query.EQ("age", storage.Int32(999)))
	require.NoError(err)
	require.False(ok)
}

func TestReopenRecoversCommittedJournal(t *testing.T) {
	require := require.New(t)
	opts := testOptions(t)

	db, err := Open(opts)
	require.NoError(err)
	id, err := db.Insert("users", storage.Document{"name": storage.String("Ada")})
	require.NoError(err)
	require.NoError(db.Close())

	reopened, err := Open(opts)
	require.NoError(err)
	defer reopened.Close()

	c, err := reopened.GetCollection("users")
	require.NoError(err)
	doc, err := c.FindByID(id)
	require.NoError(err)
	require.Equal(0, storage.Compare(storage.String("Ada"), doc["name"]))
}

func TestDropCollectionRemovesItFromDirectory(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	_, err = db.CreateCollection("temp")
	require.NoError(err)
	require.Contains(db.ListCollections(), "temp")

	require.NoError(db.DropCollection("temp"))
	require.NotContains(db.ListCollections(), "temp")
}

func TestRenameCollection(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	_, err = db.Insert("old", storage.Document{"x": storage.Int32(1)})
	require.NoError(err)
	require.NoError(db.RenameCollection("old", "new"))

	require.NotContains(db.ListCollections(), "old")
	require.Contains(db.ListCollections(), "new")

	c, err := db.GetCollection("new")
	require.NoError(err)
	require.EqualValues(1, c.Count())
}

func TestStatsReflectsCollectionsAndPages(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	before := db.Stats()
	require.Equal(0, before.CollectionCount)
	require.Positive(before.PageCount, "the header page alone should count")

	_, err = db.Insert("users", storage.Document{"name": storage.String("Ada")})
	require.NoError(err)

	after := db.Stats()
	require.Equal(1, after.CollectionCount)
	require.GreaterOrEqual(after.PageCount, before.PageCount)
	require.Positive(after.CachedPageCount)
}
