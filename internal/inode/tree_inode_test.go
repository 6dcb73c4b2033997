package inode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treemount/internal/common"
	"treemount/internal/journal"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

func TestCreateMkdirSymlinkMknod(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	f, err := root.Create(ctx, mustComponent(t, "a.txt"), 0o644)
	require.NoError(t, err)
	assert.NotZero(t, f.Ino())

	_, err = root.Create(ctx, mustComponent(t, "a.txt"), 0o644)
	assert.ErrorIs(t, err, common.ErrExists)

	dir, err := root.Mkdir(ctx, mustComponent(t, "sub"), 0o755)
	require.NoError(t, err)
	assert.True(t, dir.dir.IsMaterialized())

	link, err := root.Symlink(ctx, mustComponent(t, "link"), "a.txt")
	require.NoError(t, err)
	target, err := link.Readlink(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)

	sock, err := root.Mknod(ctx, mustComponent(t, "sock"), overlay.NewMode(overlay.FileTypeSocket, 0o600))
	require.NoError(t, err)
	assert.True(t, sock.mode.IsSocket())

	_, err = root.Mknod(ctx, mustComponent(t, "fifo"), overlay.NewMode(overlay.FileTypeRegular, 0o600))
	assert.ErrorIs(t, err, common.ErrOperationNotPermitted)

	assert.ErrorIs(t, root.Link(ctx, mustComponent(t, "hard"), f), common.ErrOperationNotPermitted)
}

func TestUnlinkAndRmdir(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	_, err := root.Create(ctx, mustComponent(t, "a.txt"), 0o644)
	require.NoError(t, err)
	dir, err := root.Mkdir(ctx, mustComponent(t, "sub"), 0o755)
	require.NoError(t, err)
	_, err = dir.Create(ctx, mustComponent(t, "b.txt"), 0o644)
	require.NoError(t, err)

	assert.ErrorIs(t, root.Unlink(ctx, mustComponent(t, "sub")), common.ErrIsDir)
	assert.ErrorIs(t, root.Rmdir(ctx, mustComponent(t, "a.txt")), common.ErrNotDir)
	assert.ErrorIs(t, root.Rmdir(ctx, mustComponent(t, "sub")), common.ErrNotEmpty)

	require.NoError(t, dir.Unlink(ctx, mustComponent(t, "b.txt")))
	require.NoError(t, root.Rmdir(ctx, mustComponent(t, "sub")))
	assert.True(t, dir.IsUnlinked())

	require.NoError(t, root.Unlink(ctx, mustComponent(t, "a.txt")))
	_, err = root.getOrLoadChild(ctx, mustComponent(t, "a.txt"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, root.Unlink(ctx, mustComponent(t, "missing")), common.ErrNotFound)
}

func TestRemoveUnderReservedRefused(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	reserved := m.Reserved()
	assert.ErrorIs(t, reserved.Unlink(ctx, mustComponent(t, "x")), common.ErrOperationNotPermitted)
}

func TestRenameSameParent(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	f, err := root.Create(ctx, mustComponent(t, "old.txt"), 0o644)
	require.NoError(t, err)

	require.NoError(t, root.Rename(ctx, mustComponent(t, "old.txt"), root, mustComponent(t, "new.txt")))

	_, err = root.getOrLoadChild(ctx, mustComponent(t, "old.txt"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	child, err := root.getOrLoadChild(ctx, mustComponent(t, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, f.Ino(), child.Ino())
	assert.Equal(t, mustComponent(t, "new.txt"), child.Name())
}

func TestRenameAcrossDirectoriesBothDirections(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	sub, err := root.Mkdir(ctx, mustComponent(t, "sub"), 0o755)
	require.NoError(t, err)
	f, err := root.Create(ctx, mustComponent(t, "top.txt"), 0o644)
	require.NoError(t, err)

	// root is an ancestor of sub: tIsAncestor branch.
	require.NoError(t, root.Rename(ctx, mustComponent(t, "top.txt"), sub, mustComponent(t, "moved.txt")))
	moved, err := sub.getOrLoadChild(ctx, mustComponent(t, "moved.txt"))
	require.NoError(t, err)
	assert.Equal(t, f.Ino(), moved.Ino())

	other, err := root.Mkdir(ctx, mustComponent(t, "other"), 0o755)
	require.NoError(t, err)

	// sub and other are unrelated: default (destination-first) branch.
	require.NoError(t, sub.Rename(ctx, mustComponent(t, "moved.txt"), other, mustComponent(t, "final.txt")))
	final, err := other.getOrLoadChild(ctx, mustComponent(t, "final.txt"))
	require.NoError(t, err)
	assert.Equal(t, f.Ino(), final.Ino())
}

func TestRenameIntoOwnDescendantRejected(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	sub, err := root.Mkdir(ctx, mustComponent(t, "sub"), 0o755)
	require.NoError(t, err)
	_, err = sub.Mkdir(ctx, mustComponent(t, "child"), 0o755)
	require.NoError(t, err)

	err = root.Rename(ctx, mustComponent(t, "sub"), sub, mustComponent(t, "into-self"))
	assert.ErrorIs(t, err, common.ErrInvalid)
}

func TestRenameDisplacesExistingDestination(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	src, err := root.Create(ctx, mustComponent(t, "src.txt"), 0o644)
	require.NoError(t, err)
	_, err = root.Create(ctx, mustComponent(t, "dest.txt"), 0o644)
	require.NoError(t, err)

	require.NoError(t, root.Rename(ctx, mustComponent(t, "src.txt"), root, mustComponent(t, "dest.txt")))

	child, err := root.getOrLoadChild(ctx, mustComponent(t, "dest.txt"))
	require.NoError(t, err)
	assert.Equal(t, src.Ino(), child.Ino())
}

func TestRenameTypeMismatchRejected(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	_, err := root.Create(ctx, mustComponent(t, "file"), 0o644)
	require.NoError(t, err)
	_, err = root.Mkdir(ctx, mustComponent(t, "dir"), 0o755)
	require.NoError(t, err)

	assert.ErrorIs(t, root.Rename(ctx, mustComponent(t, "file"), root, mustComponent(t, "dir")), common.ErrIsDir)
	assert.ErrorIs(t, root.Rename(ctx, mustComponent(t, "dir"), root, mustComponent(t, "file")), common.ErrNotDir)
}

func TestMaterializePropagatesUpChain(t *testing.T) {
	t.Parallel()
	ov := overlay.NewMemStore()
	obj := objectstore.NewMemStore()

	blobHash := putBlob(obj, "hello")
	subTree := putTree(obj, []objectstore.TreeEntry{
		{Name: mustComponent(t, "file.txt"), Type: objectstore.EntryFile, Hash: blobHash},
	})
	rootTree := objectstore.NewTree([]objectstore.TreeEntry{
		{Name: mustComponent(t, "dir"), Type: objectstore.EntryTree, Hash: subTree.Hash},
	})

	m, err := NewMap(context.Background(), ov, obj, nil, rootTree)
	require.NoError(t, err)
	ctx := context.Background()
	root := m.Root()

	assert.False(t, root.dir.IsMaterialized())

	childInode, err := root.getOrLoadChild(ctx, mustComponent(t, "dir"))
	require.NoError(t, err)
	dirInode := childInode.(*TreeInode)
	assert.False(t, dirInode.dir.IsMaterialized())

	fileInode, err := dirInode.getOrLoadChild(ctx, mustComponent(t, "file.txt"))
	require.NoError(t, err)
	fi := fileInode.(*FileInode)

	n, err := fi.Write(ctx, []byte("world"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.True(t, dirInode.dir.IsMaterialized())
	assert.True(t, root.dir.IsMaterialized())

	entry, ok := root.dir.Entries.Get(mustComponent(t, "dir"))
	require.True(t, ok)
	assert.True(t, entry.Materialized)
}

func TestCreateRemoveRenameAppendJournalDeltas(t *testing.T) {
	t.Parallel()
	m, j := newTestMapWithJournal(t)
	ctx := context.Background()
	root := m.Root()

	_, err := root.Create(ctx, mustComponent(t, "a.txt"), 0o644)
	require.NoError(t, err)
	require.NoError(t, root.Rename(ctx, mustComponent(t, "a.txt"), root, mustComponent(t, "b.txt")))
	require.NoError(t, root.Unlink(ctx, mustComponent(t, "b.txt")))

	deltas, err := j.Since(0)
	require.NoError(t, err)
	require.Len(t, deltas, 3)
	assert.Equal(t, journal.DeltaCreated, deltas[0].Kind)
	assert.Equal(t, journal.DeltaRenamed, deltas[1].Kind)
	assert.Equal(t, journal.DeltaRemoved, deltas[2].Kind)
}

func TestGetChildRecursive(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	sub, err := root.Mkdir(ctx, mustComponent(t, "a"), 0o755)
	require.NoError(t, err)
	_, err = sub.Create(ctx, mustComponent(t, "b.txt"), 0o644)
	require.NoError(t, err)

	in, err := root.getChildRecursive(ctx, common.RelativePath("a/b.txt"))
	require.NoError(t, err)
	assert.Equal(t, mustComponent(t, "b.txt"), in.Name())
}
