package dispatch

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nfsfile "github.com/willscott/go-nfs/file"

	"treemount/internal/inode"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

// newTestAdapter builds an adapter over a mount seeded from tree (nil for
// an empty materialized mount), with in-memory backing stores.
func newTestAdapter(t *testing.T, tree *objectstore.Tree) (*Adapter, *objectstore.MemStore) {
	t.Helper()
	ov := overlay.NewMemStore()
	obj := objectstore.NewMemStore()
	if tree != nil {
		obj.PutTree(tree)
	}
	m, err := inode.NewMap(context.Background(), ov, obj, nil, tree)
	require.NoError(t, err)
	return NewAdapter(m), obj
}

func TestAdapterCreateWriteRead(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	f, err := ad.Create("/hello.txt")
	require.NoError(t, err)
	n, err := f.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	require.NoError(t, f.Close())

	g, err := ad.Open("/hello.txt")
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err = g.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf[:n]))

	// A second read at EOF reports io.EOF, not a zero-byte success.
	_, err = g.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, g.Close())
}

func TestAdapterOpenMissingWithoutCreate(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	_, err := ad.Open("/nope")
	assert.ErrorIs(t, err, ENOENT)
}

func TestAdapterExclusiveCreateOnExisting(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	f, err := ad.Create("/a")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = ad.OpenFile("/a", os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	assert.ErrorIs(t, err, EEXIST)
}

func TestAdapterMkdirAllAndReadDir(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	require.NoError(t, ad.MkdirAll("/a/b/c", 0o755))
	// Idempotent on an existing chain.
	require.NoError(t, ad.MkdirAll("/a/b", 0o755))

	f, err := ad.Create("/a/b/file")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	infos, err := ad.ReadDir("/a/b")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	// Entries arrive sorted by name.
	assert.Equal(t, "c", infos[0].Name())
	assert.True(t, infos[0].IsDir())
	assert.Equal(t, "file", infos[1].Name())
	assert.False(t, infos[1].IsDir())
}

func TestAdapterStatExposesInodeNumber(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	f, err := ad.Create("/x")
	require.NoError(t, err)
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fi, err := ad.Stat("/x")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fi.Size())

	sys, ok := fi.Sys().(*nfsfile.FileInfo)
	require.True(t, ok, "Sys() must return go-nfs file.FileInfo for stable file ids")
	assert.NotZero(t, sys.Fileid)
}

func TestAdapterRootNlinkCountsSubdirs(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	require.NoError(t, ad.MkdirAll("/d", 0o755))
	fi, err := ad.Stat("/")
	require.NoError(t, err)
	sys := fi.Sys().(*nfsfile.FileInfo)
	assert.Equal(t, uint32(3), sys.Nlink) // 2 + one subdirectory
}

func TestAdapterRenameAcrossParents(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	require.NoError(t, ad.MkdirAll("/d", 0o755))
	require.NoError(t, ad.MkdirAll("/e", 0o755))
	f, err := ad.Create("/d/c")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, ad.Rename("/d/c", "/e/f"))

	_, err = ad.Stat("/d/c")
	assert.ErrorIs(t, err, ENOENT)
	_, err = ad.Stat("/e/f")
	assert.NoError(t, err)
}

func TestAdapterRenameIntoOwnDescendant(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	require.NoError(t, ad.MkdirAll("/d/inner", 0o755))
	err := ad.Rename("/d", "/d/inner/d")
	assert.ErrorIs(t, err, EINVAL)

	// Nothing moved.
	_, err = ad.Stat("/d/inner")
	assert.NoError(t, err)
}

func TestAdapterRemoveFileAndDir(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	require.NoError(t, ad.MkdirAll("/d", 0o755))
	f, err := ad.Create("/d/file")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Non-empty directory refuses removal.
	err = ad.Remove("/d")
	assert.ErrorIs(t, err, ENOTEMPTY)

	require.NoError(t, ad.Remove("/d/file"))
	require.NoError(t, ad.Remove("/d"))

	_, err = ad.Stat("/d")
	assert.ErrorIs(t, err, ENOENT)
}

func TestAdapterSymlinkRoundTrip(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	require.NoError(t, ad.Symlink("target/path", "/link"))
	target, err := ad.Readlink("/link")
	require.NoError(t, err)
	assert.Equal(t, "target/path", target)

	// Readlink on a regular file is EINVAL.
	f, err := ad.Create("/plain")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = ad.Readlink("/plain")
	assert.ErrorIs(t, err, EINVAL)
}

func TestAdapterReadsTrackedContentLazily(t *testing.T) {
	obj := objectstore.NewMemStore()
	blob := objectstore.NewBlob([]byte("tracked bytes"))
	obj.PutBlob(blob)
	tree := objectstore.NewTree([]objectstore.TreeEntry{
		{Name: "a", Type: objectstore.EntryFile, Hash: blob.Hash},
	})
	obj.PutTree(tree)

	ov := overlay.NewMemStore()
	m, err := inode.NewMap(context.Background(), ov, obj, nil, tree)
	require.NoError(t, err)
	ad := NewAdapter(m)

	fi, err := ad.Stat("/a")
	require.NoError(t, err)
	assert.Equal(t, int64(len("tracked bytes")), fi.Size())

	f, err := ad.Open("/a")
	require.NoError(t, err)
	data := make([]byte, 64)
	n, err := f.Read(data)
	require.NoError(t, err)
	assert.Equal(t, "tracked bytes", string(data[:n]))
	require.NoError(t, f.Close())

	// Reading never materialized anything: a write does.
	w, err := ad.OpenFile("/a", os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.Write([]byte("LOCAL"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	g, err := ad.Open("/a")
	require.NoError(t, err)
	n, err = g.Read(data)
	require.NoError(t, err)
	assert.Equal(t, "LOCALed bytes", string(data[:n]))
	require.NoError(t, g.Close())
}

func TestAdapterSeekWhence(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	f, err := ad.Create("/s")
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)

	pos, err := f.Seek(2, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)

	pos, err = f.Seek(3, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)

	pos, err = f.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(9), pos)

	buf := make([]byte, 1)
	_, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "9", string(buf))
	require.NoError(t, f.Close())
}
