package inode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treemount/internal/common"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

func TestAllocateInodeNumberMonotonic(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()

	prev, err := m.AllocateInodeNumber(ctx)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		n, err := m.AllocateInodeNumber(ctx)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestShouldLoadChildSingleFlight(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)

	const ino = InodeNumber(42)
	w1, mustLoad := m.ShouldLoadChild(ino)
	assert.True(t, mustLoad, "first asker starts the load")
	w2, mustLoad := m.ShouldLoadChild(ino)
	assert.False(t, mustLoad, "second asker only waits")

	loadErr := errors.New("object store unreachable")
	waiters := m.InodeLoadFailed(ino, loadErr)
	require.Len(t, waiters, 2, "failure fulfills every waiter")
	FulfillWaiters(waiters, nil, loadErr)

	for _, w := range []chan loadResult{w1, w2} {
		res := <-w
		assert.ErrorIs(t, res.err, loadErr)
	}

	// The failed load left nothing pending: the next asker must load.
	_, mustLoad = m.ShouldLoadChild(ino)
	assert.True(t, mustLoad)
}

func TestLookupInodeWalksParentChain(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	sub, err := root.Mkdir(ctx, mustComponent(t, "a"), 0o755)
	require.NoError(t, err)
	f, err := sub.Create(ctx, mustComponent(t, "b.txt"), 0o644)
	require.NoError(t, err)

	in, err := m.LookupInode(ctx, f.Ino())
	require.NoError(t, err)
	assert.Equal(t, f.Ino(), in.Ino())

	tree, err := m.LookupTreeInode(ctx, sub.Ino())
	require.NoError(t, err)
	assert.Equal(t, sub.Ino(), tree.Ino())

	_, err = m.LookupTreeInode(ctx, f.Ino())
	assert.ErrorIs(t, err, common.ErrNotDir)
	_, err = m.LookupFileInode(ctx, sub.Ino())
	assert.ErrorIs(t, err, common.ErrIsDir)

	// A number the map has never seen has no parent chain to walk.
	_, err = m.LookupInode(ctx, InodeNumber(9999))
	assert.ErrorIs(t, err, common.ErrStale)
}

func TestSweepUnloadsIdleAndReloadsUnderSameNumber(t *testing.T) {
	t.Parallel()
	ov := overlay.NewMemStore()
	obj := objectstore.NewMemStore()

	blobHash := putBlob(obj, "content")
	rootTree := objectstore.NewTree([]objectstore.TreeEntry{
		{Name: mustComponent(t, "f"), Type: objectstore.EntryFile, Hash: blobHash},
	})
	obj.PutTree(rootTree)

	m, err := NewMap(context.Background(), ov, obj, nil, rootTree)
	require.NoError(t, err)
	ctx := context.Background()
	root := m.Root()

	in, err := root.getOrLoadChild(ctx, mustComponent(t, "f"))
	require.NoError(t, err)
	ino := in.Ino()

	// Freshly loaded, no references: the sweep may unload it.
	unloaded := m.Sweep(ctx)
	assert.Equal(t, 1, unloaded)
	_, stillLoaded := m.loaded(ino)
	assert.False(t, stillLoaded)

	// The entry's inode number survived the unload; the next lookup
	// reloads under the same number.
	again, err := root.getOrLoadChild(ctx, mustComponent(t, "f"))
	require.NoError(t, err)
	assert.Equal(t, ino, again.Ino())
}

func TestFuseRefcountPinsAgainstSweep(t *testing.T) {
	t.Parallel()
	ov := overlay.NewMemStore()
	obj := objectstore.NewMemStore()

	blobHash := putBlob(obj, "content")
	rootTree := objectstore.NewTree([]objectstore.TreeEntry{
		{Name: mustComponent(t, "f"), Type: objectstore.EntryFile, Hash: blobHash},
	})
	obj.PutTree(rootTree)

	m, err := NewMap(context.Background(), ov, obj, nil, rootTree)
	require.NoError(t, err)
	ctx := context.Background()

	in, err := m.Root().getOrLoadChild(ctx, mustComponent(t, "f"))
	require.NoError(t, err)
	ino := in.Ino()
	m.IncFuseRefcount(ino, 2)

	assert.Equal(t, 0, m.Sweep(ctx), "referenced inode is not unloaded")
	_, loaded := m.loaded(ino)
	assert.True(t, loaded)

	m.DecFuseRefcount(ino, 1)
	assert.Equal(t, 0, m.Sweep(ctx), "one kernel reference remains")

	m.DecFuseRefcount(ino, 1)
	assert.Equal(t, 1, m.Sweep(ctx))
	_, loaded = m.loaded(ino)
	assert.False(t, loaded)
}

func TestDecFuseRefcountClampsAtZero(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()

	f, err := m.Root().Create(ctx, mustComponent(t, "a"), 0o644)
	require.NoError(t, err)

	// Creation hands out one reference; over-forgetting clamps.
	m.DecFuseRefcount(f.Ino(), 10)
	in, err := m.LookupInode(ctx, f.Ino())
	require.NoError(t, err)
	assert.Equal(t, f.Ino(), in.Ino())
}

func TestReservedChildResolvesAtRoot(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()

	in, err := m.Root().getOrLoadChild(ctx, reservedDirName)
	require.NoError(t, err)
	assert.Equal(t, overlay.ReservedInodeNumber, in.Ino())
	assert.Equal(t, m.Reserved(), in)
}

func TestRootLoadsPersistedOverlayListing(t *testing.T) {
	t.Parallel()
	ov := overlay.NewMemStore()
	obj := objectstore.NewMemStore()
	ctx := context.Background()

	m1, err := NewMap(ctx, ov, obj, nil, nil)
	require.NoError(t, err)
	_, err = m1.Root().Create(ctx, mustComponent(t, "kept"), 0o644)
	require.NoError(t, err)

	// A second map over the same overlay sees the materialized root.
	m2, err := NewMap(ctx, ov, obj, nil, nil)
	require.NoError(t, err)
	_, err = m2.Root().getOrLoadChild(ctx, mustComponent(t, "kept"))
	require.NoError(t, err)
}
