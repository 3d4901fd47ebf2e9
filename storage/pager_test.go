package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPagerAllocatePageGrowsFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "p.db")
	pager, err := OpenPager(path, false)
	require.NoError(err)
	defer pager.Close()

	id, err := pager.AllocatePage()
	require.NoError(err)
	require.EqualValues(0, id)

	info, err := os.Stat(path)
	require.NoError(err)
	require.EqualValues(PageSize, info.Size())

	id2, err := pager.AllocatePage()
	require.NoError(err)
	require.EqualValues(1, id2)

	info, err = os.Stat(path)
	require.NoError(err)
	require.EqualValues(2*PageSize, info.Size())
}

func TestPagerReadPageZeroFillsPastEOF(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "p.db")
	pager, err := OpenPager(path, false)
	require.NoError(err)
	defer pager.Close()

	page, err := pager.ReadPage(5)
	require.NoError(err)
	for _, b := range page.Data {
		require.Zero(b)
	}
}

func TestPagerWriteThenReadRoundtrips(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "p.db")
	pager, err := OpenPager(path, false)
	require.NoError(err)
	defer pager.Close()

	id, err := pager.AllocatePage()
	require.NoError(err)
	page := NewPage(id, PageTypeData)
	page.Body()[0] = 0x77
	require.NoError(pager.WritePage(page))
	require.False(page.IsDirty)

	reread, err := pager.ReadPage(id)
	require.NoError(err)
	require.Equal(byte(0x77), reread.Body()[0])
}

func TestPagerPreallocateGrowsWithoutHandingOutPageIDs(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "p.db")
	pager, err := OpenPager(path, false)
	require.NoError(err)
	defer pager.Close()

	require.NoError(pager.Preallocate(10 * PageSize))

	info, err := os.Stat(path)
	require.NoError(err)
	require.EqualValues(10*PageSize, info.Size())
	require.EqualValues(0, pager.NextPageID())

	id, err := pager.AllocatePage()
	require.NoError(err)
	require.EqualValues(0, id)

	info, err = os.Stat(path)
	require.NoError(err)
	require.EqualValues(10*PageSize, info.Size(), "allocating within a preallocated region must not shrink the file")
}

func TestPagerPreallocateNeverShrinks(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "p.db")
	pager, err := OpenPager(path, false)
	require.NoError(err)
	defer pager.Close()

	_, err = pager.AllocatePage()
	require.NoError(err)
	_, err = pager.AllocatePage()
	require.NoError(err)

	require.NoError(pager.Preallocate(1))

	info, err := os.Stat(path)
	require.NoError(err)
	require.EqualValues(2*PageSize, info.Size())
}

func TestOpenPagerComputesNextPageIDFromExistingFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "p.db")
	pager, err := OpenPager(path, false)
	require.NoError(err)
	_, err = pager.AllocatePage()
	require.NoError(err)
	_, err = pager.AllocatePage()
	require.NoError(err)
	require.NoError(pager.Close())

	reopened, err := OpenPager(path, false)
	require.NoError(err)
	defer reopened.Close()
	require.EqualValues(2, reopened.NextPageID())
}
