package transaction

import (
	"path/filepath"
	"testing"

	"github.com/pagefiledb/pagefile/internal/wal"
	"github.com/pagefiledb/pagefile/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*storage.Cache, *storage.Pager, *wal.Journal, string) {
	t.Helper()
	dir := t.TempDir()
	pager, err := storage.OpenPager(filepath.Join(dir, "data.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { pager.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	cache := storage.NewCache(pager, log)

	journalPath := filepath.Join(dir, "journal.log")
	journal, err := wal.Open(journalPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	return cache, pager, journal, journalPath
}

func TestCommitAppliesDirtyPagesAndTruncatesJournal(t *testing.T) {
	require := require.New(t)
	cache, pager, journal, journalPath := newFixture(t)

	_, id, err := cache.NewPage(storage.PageTypeData)
	require.NoError(err)
	page, err := cache.Get(id)
	require.NoError(err)
	page.Body()[0] = 0x99
	page.MarkDirty()

	tx := Begin(cache, pager, journal)
	require.NoError(tx.Commit())

	require.Empty(cache.DirtyPages())

	reread, err := pager.ReadPage(id)
	require.NoError(err)
	require.Equal(byte(0x99), reread.Body()[0])

	records, err := wal.ReadAll(journalPath)
	require.NoError(err)
	require.Empty(records)
}

func TestRollbackClearsCacheAndTruncatesJournal(t *testing.T) {
	require := require.New(t)
	cache, pager, journal, journalPath := newFixture(t)

	_, id, err := cache.NewPage(storage.PageTypeData)
	require.NoError(err)
	page, err := cache.Get(id)
	require.NoError(err)
	page.Body()[0] = 0xAB
	page.MarkDirty()

	tx := Begin(cache, pager, journal)
	require.NoError(tx.Rollback())

	require.Empty(cache.DirtyPages())

	reread, err := pager.ReadPage(id)
	require.NoError(err)
	require.Zero(reread.Body()[0])

	records, err := wal.ReadAll(journalPath)
	require.NoError(err)
	require.Empty(records)
}
