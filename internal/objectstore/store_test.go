package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeLookupSorted(t *testing.T) {
	t.Parallel()

	tree := NewTree([]TreeEntry{
		{Name: "b", Type: EntryFile},
		{Name: "a", Type: EntryFile},
		{Name: "c", Type: EntryTree},
	})

	require.Len(t, tree.Entries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{
		string(tree.Entries[0].Name), string(tree.Entries[1].Name), string(tree.Entries[2].Name),
	})

	e, ok := tree.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, EntryFile, e.Type)

	_, ok = tree.Lookup("zzz")
	assert.False(t, ok)
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	blob := NewBlob([]byte("hello world"))
	require.NoError(t, store.PutBlob(blob))

	tree := NewTree([]TreeEntry{{Name: "hello.txt", Type: EntryFile, Hash: blob.Hash}})
	require.NoError(t, store.PutTree(tree))

	ctx := context.Background()
	gotTree, err := store.GetTree(ctx, tree.Hash)
	require.NoError(t, err)
	assert.Equal(t, tree.Entries, gotTree.Entries)

	gotBlob, err := store.GetBlob(ctx, blob.Hash)
	require.NoError(t, err)
	assert.Equal(t, blob.Data, gotBlob.Data)

	_, err = store.GetBlob(ctx, ZeroHash)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemStoreFetchCount(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	tree := NewTree(nil)
	store.PutTree(tree)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.GetTree(ctx, tree.Hash)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.FetchCount(tree.Hash))
}
