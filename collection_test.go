package pagefile

import (
	"testing"

	"github.com/pagefiledb/pagefile/storage"
	"github.com/stretchr/testify/require"
)

func TestCollectionFindByIDMissingErrors(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	c, err := db.GetCollection("users")
	require.NoError(err)
	_, err = c.FindByID(storage.Int32(999))
	require.Error(err)
}

func TestCollectionEnsureIndexIsIdempotent(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	c, err := db.GetCollection("users")
	require.NoError(err)
	_, err = db.Insert("users", storage.Document{"age": storage.Int32(5)})
	require.NoError(err)

	require.NoError(c.EnsureIndex("age", false))
	require.NoError(c.EnsureIndex("age", false))

	_, ok := c.Index("age")
	require.True(ok)
}

func TestCollectionDropIndexRejectsPrimary(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	c, err := db.GetCollection("users")
	require.NoError(err)
	require.Error(c.DropIndex("_id"))
}

func TestCollectionDropIndexMissingErrors(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	c, err := db.GetCollection("users")
	require.NoError(err)
	require.Error(c.DropIndex("nope"))
}

func TestCollectionCountTracksInsertsAndDeletes(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	c, err := db.GetCollection("users")
	require.NoError(err)
	require.EqualValues(0, c.Count())

	id, err := db.Insert("users", storage.Document{"x": storage.Int32(1)})
	require.NoError(err)
	require.EqualValues(1, c.Count())

	require.NoError(c.Delete(id))
	require.EqualValues(0, c.Count())
}

func TestCollectionExistsByID(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	c, err := db.GetCollection("users")
	require.NoError(err)
	id, err := db.Insert("users", storage.Document{"x": storage.Int32(1)})
	require.NoError(err)

	ok, err := c.Exists(id)
	require.NoError(err)
	require.True(ok)

	ok, err = c.Exists(storage.Int32(12345))
	require.NoError(err)
	require.False(ok)
}

func TestCollectionMinMaxOnUnindexedFieldErrors(t *testing.T) {
	require := require.New(t)
	db, err := Open(testOptions(t))
	require.NoError(err)
	defer db.Close()

	c, err := db.GetCollection("users")
	require.NoError(err)
	_, _, err = c.Min("unindexed")
	require.Error(err)
}
