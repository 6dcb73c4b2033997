package inode

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treemount/internal/common"
	"treemount/internal/ignore"
	"treemount/internal/objectstore"
)

// collectedDiff accumulates every callback Diff fires, safe for concurrent
// use since Diff may invoke callbacks from several goroutines.
type collectedDiff struct {
	mu        sync.Mutex
	untracked []common.RelativePath
	ignored   []common.RelativePath
	modified  []common.RelativePath
	removed   []common.RelativePath
	errs      []error
}

func (c *collectedDiff) callbacks() DiffCallbacks {
	return DiffCallbacks{
		Untracked: func(path common.RelativePath, isDir bool) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.untracked = append(c.untracked, path)
		},
		Ignored: func(path common.RelativePath, isDir bool) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.ignored = append(c.ignored, path)
		},
		Modified: func(path common.RelativePath) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.modified = append(c.modified, path)
		},
		Removed: func(path common.RelativePath, isDir bool) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.removed = append(c.removed, path)
		},
		Error: func(path common.RelativePath, err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.errs = append(c.errs, err)
		},
	}
}

func TestDiffUntrackedModifiedRemoved(t *testing.T) {
	t.Parallel()
	ov, obj := newMemStores()

	hashKeep := putBlob(obj, "keep")
	hashRemoved := putBlob(obj, "gone")
	tree := objectstore.NewTree([]objectstore.TreeEntry{
		{Name: mustComponent(t, "keep.txt"), Type: objectstore.EntryFile, Hash: hashKeep},
		{Name: mustComponent(t, "removed.txt"), Type: objectstore.EntryFile, Hash: hashRemoved},
	})

	m, err := NewMap(context.Background(), ov, obj, nil, tree)
	require.NoError(t, err)
	ctx := context.Background()
	root := m.Root()

	require.NoError(t, root.Unlink(ctx, mustComponent(t, "removed.txt")))
	_, err = root.Create(ctx, mustComponent(t, "new.txt"), 0o644)
	require.NoError(t, err)

	c := &collectedDiff{}
	root.Diff(ctx, tree, ignore.Empty, DiffOptions{}, c.callbacks())

	assert.ElementsMatch(t, []common.RelativePath{"new.txt"}, c.untracked)
	assert.ElementsMatch(t, []common.RelativePath{"removed.txt"}, c.removed)
	assert.Empty(t, c.modified)
	assert.Empty(t, c.errs)
}

func TestDiffModifiedUnmaterializedContent(t *testing.T) {
	t.Parallel()
	ov, obj := newMemStores()

	hashOld := putBlob(obj, "old")
	hashNew := putBlob(obj, "new")
	tree := objectstore.NewTree([]objectstore.TreeEntry{
		{Name: mustComponent(t, "a.txt"), Type: objectstore.EntryFile, Hash: hashOld},
	})

	m, err := NewMap(context.Background(), ov, obj, nil, tree)
	require.NoError(t, err)
	ctx := context.Background()
	root := m.Root()

	// Simulate an entry that now tracks a different hash without ever
	// having been materialized (e.g. retargeted by a prior checkout). The
	// directory itself no longer matches its tree, so it is materialized
	// and the top-level prune does not apply.
	root.contentsMu.Lock()
	root.dir.Materialize()
	entry, _ := root.dir.Entries.Get(mustComponent(t, "a.txt"))
	entry.Hash = hashNew
	root.dir.Entries.Set(mustComponent(t, "a.txt"), entry)
	root.contentsMu.Unlock()

	c := &collectedDiff{}
	root.Diff(ctx, tree, ignore.Empty, DiffOptions{}, c.callbacks())

	assert.ElementsMatch(t, []common.RelativePath{"a.txt"}, c.modified)
	assert.Empty(t, c.untracked)
	assert.Empty(t, c.removed)
}

func TestDiffIgnoredViaGitignore(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMap(t)
	ctx := context.Background()
	root := m.Root()

	gi, err := root.Create(ctx, mustComponent(t, ".gitignore"), 0o644)
	require.NoError(t, err)
	_, err = gi.Write(ctx, []byte("*.log\n"), 0)
	require.NoError(t, err)

	_, err = root.Create(ctx, mustComponent(t, "debug.log"), 0o644)
	require.NoError(t, err)

	c := &collectedDiff{}
	root.Diff(ctx, nil, ignore.Empty, DiffOptions{}, c.callbacks())

	assert.ElementsMatch(t, []common.RelativePath{"debug.log"}, c.ignored)
	assert.ElementsMatch(t, []common.RelativePath{".gitignore"}, c.untracked)

	c2 := &collectedDiff{}
	root.Diff(ctx, nil, ignore.Empty, DiffOptions{IncludeIgnored: true}, c2.callbacks())
	assert.Contains(t, c2.untracked, common.RelativePath("debug.log"))
	assert.Empty(t, c2.ignored)
}

func TestDiffFastPruneSkipsUnchangedSubtree(t *testing.T) {
	t.Parallel()
	ov, obj := newMemStores()

	hashDeep := putBlob(obj, "deep")
	subTree := putTree(obj, []objectstore.TreeEntry{
		{Name: mustComponent(t, "deep.txt"), Type: objectstore.EntryFile, Hash: hashDeep},
	})
	tree := objectstore.NewTree([]objectstore.TreeEntry{
		{Name: mustComponent(t, "dir"), Type: objectstore.EntryTree, Hash: subTree.Hash},
	})

	m, err := NewMap(context.Background(), ov, obj, nil, tree)
	require.NoError(t, err)
	ctx := context.Background()
	root := m.Root()

	// Touch root so the top-level prune doesn't short-circuit the whole
	// call; "dir" itself must still be skipped via the per-entry fast path.
	_, err = root.Create(ctx, mustComponent(t, "extra.txt"), 0o644)
	require.NoError(t, err)

	c := &collectedDiff{}
	root.Diff(ctx, tree, ignore.Empty, DiffOptions{}, c.callbacks())

	assert.ElementsMatch(t, []common.RelativePath{"extra.txt"}, c.untracked)
	assert.Empty(t, c.modified)
	assert.Empty(t, c.removed)
	assert.Equal(t, 0, obj.FetchCount(subTree.Hash), "unchanged subtree must not be fetched")
	assert.Equal(t, 0, obj.FetchCount(hashDeep), "unchanged subtree's blobs must not be fetched")
}

func TestDiffTopLevelPruneOnUntouchedRoot(t *testing.T) {
	t.Parallel()
	ov, obj := newMemStores()

	hashA := putBlob(obj, "a")
	tree := objectstore.NewTree([]objectstore.TreeEntry{
		{Name: mustComponent(t, "a.txt"), Type: objectstore.EntryFile, Hash: hashA},
	})
	m, err := NewMap(context.Background(), ov, obj, nil, tree)
	require.NoError(t, err)
	ctx := context.Background()
	root := m.Root()

	c := &collectedDiff{}
	root.Diff(ctx, tree, ignore.Empty, DiffOptions{}, c.callbacks())

	assert.Empty(t, c.untracked)
	assert.Empty(t, c.modified)
	assert.Empty(t, c.removed)
	assert.Equal(t, 0, obj.FetchCount(hashA))
}
