package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docstream/internal/docstore"
	"github.com/standardbeagle/docstream/internal/staging"
	"github.com/standardbeagle/docstream/internal/trigram"
	"github.com/standardbeagle/docstream/internal/types"
)

func TestLoadIndexMissingReturnsEmpty(t *testing.T) {
	c := New(t.TempDir())
	idx := c.LoadIndex(0.6)
	require.Empty(t, idx.Search("anything", false))
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	index := trigram.New(0.6)
	store, err := docstore.Open(filepath.Join(dir, "store.data"), 16)
	require.NoError(t, err)
	defer store.Close()
	buffer := staging.New(1<<20, index, store)

	require.NoError(t, buffer.Insert("b", []byte(`{"msg":"staged body"}`)))
	require.NoError(t, buffer.Insert("a", []byte(`{"msg":"also staged"}`)))

	require.NoError(t, c.Save(buffer, index, store))

	index2 := c.LoadIndex(0.6)
	store2, err := docstore.Open(filepath.Join(dir, "store.data"), 16)
	require.NoError(t, err)
	defer store2.Close()
	c.LoadStoreIndex(store2)
	buffer2 := staging.New(1<<20, index2, store2)
	c.LoadStaging(buffer2)

	require.Equal(t, buffer.Len(), buffer2.Len())
	require.Equal(t, buffer.NextDocumentKey(), buffer2.NextDocumentKey())
}

func TestPurgeRemovesSidecars(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	index := trigram.New(0.6)
	store, err := docstore.Open(filepath.Join(dir, "store.data"), 16)
	require.NoError(t, err)
	defer store.Close()
	buffer := staging.New(1<<20, index, store)
	require.NoError(t, buffer.Insert("a", []byte(`{"msg":"x"}`)))
	require.NoError(t, c.Save(buffer, index, store))

	require.NoError(t, c.Purge())

	_, err = os.Stat(filepath.Join(dir, indexFile))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, keysFile))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, stagingFile))
	require.True(t, os.IsNotExist(err))
}

func TestSaveIsAtomicNoPartialFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	index := trigram.New(0.6)
	store, err := docstore.Open(filepath.Join(dir, "store.data"), 16)
	require.NoError(t, err)
	defer store.Close()
	buffer := staging.New(1<<20, index, store)

	require.NoError(t, c.Save(buffer, index, store))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestSortKeyTypeInSnapshotPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	index := trigram.New(0.6)
	store, err := docstore.Open(filepath.Join(dir, "store.data"), 1<<20)
	require.NoError(t, err)
	defer store.Close()
	buffer := staging.New(1<<20, index, store)
	require.NoError(t, buffer.Insert(types.SortKey("z"), []byte("last")))
	require.NoError(t, buffer.Insert(types.SortKey("a"), []byte("first")))

	require.NoError(t, c.Save(buffer, index, store))

	buffer2 := staging.New(1<<20, index, store)
	c.LoadStaging(buffer2)

	var order []types.SortKey
	buffer2.ScanDescending(func(k types.SortKey, body types.Document) bool {
		order = append(order, k)
		return true
	})
	require.Equal(t, []types.SortKey{"z", "a"}, order)
}
