package overlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treemount/internal/common"
	"treemount/internal/objectstore"
)

func TestDirEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	dir := NewDir()
	name, err := common.NewPathComponent("file.txt")
	require.NoError(t, err)
	dir.Entries.Set(name, Entry{
		Name:         name,
		Mode:         NewMode(FileTypeRegular, 0o644),
		Ino:          42,
		Materialized: true,
	})

	encoded := EncodeDir(dir)
	decoded, err := DecodeDir(encoded)
	require.NoError(t, err)

	assert.Equal(t, dir.Entries.Len(), decoded.Entries.Len())
	e, ok := decoded.Entries.Get(name)
	require.True(t, ok)
	assert.Equal(t, InodeNumber(42), e.Ino)
	assert.True(t, e.Materialized)
	assert.True(t, decoded.IsMaterialized())
}

func TestDirEncodeDecodeUnmaterialized(t *testing.T) {
	t.Parallel()

	tree := objectstore.NewTree(nil)
	dir := NewDirFromTree(tree)
	decoded, err := DecodeDir(EncodeDir(dir))
	require.NoError(t, err)
	assert.False(t, decoded.IsMaterialized())
	assert.Equal(t, tree.Hash, decoded.TreeHash)
}

func TestMemStoreDirLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()

	first, err := store.AllocateInodeNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, FirstAllocatableInodeNumber, first)

	second, err := store.AllocateInodeNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	_, err = store.LoadDir(ctx, first)
	assert.ErrorIs(t, err, ErrNotFound)

	dir := NewDir()
	require.NoError(t, store.SaveDir(ctx, first, dir))

	got, err := store.LoadDir(ctx, first)
	require.NoError(t, err)
	assert.True(t, got.IsMaterialized())

	require.NoError(t, store.RemoveDir(ctx, first))
	_, err = store.LoadDir(ctx, first)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreFileHandle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()

	_, err := store.OpenFile(ctx, 10, false)
	assert.ErrorIs(t, err, ErrNotFound)

	f, err := store.OpenFile(ctx, 10, true)
	require.NoError(t, err)

	n, err := f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, f.Truncate(2))
	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}

func TestMemStoreSymlink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemStore()

	_, err := store.ReadSymlink(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.WriteSymlink(ctx, 5, "../target"))
	target, err := store.ReadSymlink(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "../target", target)
}
