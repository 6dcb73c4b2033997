package inode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"treemount/internal/common"
	"treemount/internal/journal"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

// newTestMap builds a fresh, empty, fully materialized mount with
// in-memory backing stores, the shape every inode-graph test starts from.
func newTestMap(t *testing.T) (*Map, *overlay.MemStore, *objectstore.MemStore) {
	t.Helper()
	ov := overlay.NewMemStore()
	obj := objectstore.NewMemStore()
	m, err := NewMap(context.Background(), ov, obj, nil, nil)
	require.NoError(t, err)
	return m, ov, obj
}

func mustComponent(t *testing.T, s string) common.PathComponent {
	t.Helper()
	c, err := common.NewPathComponent(s)
	require.NoError(t, err)
	return c
}

// putBlob stores data as a blob and returns its hash.
func putBlob(obj *objectstore.MemStore, data string) objectstore.Hash {
	b := objectstore.NewBlob([]byte(data))
	obj.PutBlob(b)
	return b.Hash
}

// putTree builds a tree from entries, stores it, and returns it.
func putTree(obj *objectstore.MemStore, entries []objectstore.TreeEntry) *objectstore.Tree {
	tree := objectstore.NewTree(entries)
	obj.PutTree(tree)
	return tree
}

// newTestMapWithJournal is like newTestMap but backs the mount with a real
// on-disk journal, for tests asserting that create/remove/rename appends
// the delta they claim to.
func newTestMapWithJournal(t *testing.T) (*Map, *journal.Journal) {
	t.Helper()
	ov := overlay.NewMemStore()
	obj := objectstore.NewMemStore()
	j, err := journal.Open(t.TempDir() + "/journal.ndjson")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	m, err := NewMap(context.Background(), ov, obj, j, nil)
	require.NoError(t, err)
	return m, j
}
