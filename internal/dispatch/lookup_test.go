package dispatch

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treemount/internal/overlay"
)

func TestLookupNegativeEntryIsCacheableSuccess(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	reply, err := ad.Lookup(context.Background(), overlay.RootInodeNumber, "nope")
	require.NoError(t, err, "a miss is a success reply, not an error")
	assert.True(t, reply.Negative())
	assert.Zero(t, reply.Ino)
	assert.Equal(t, uint64(math.MaxUint64), reply.EntryValid)
}

func TestLookupPositiveCarriesIdentityAndValidity(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	f, err := ad.Create("/a")
	require.NoError(t, err)
	_, err = f.Write([]byte("xyz"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reply, err := ad.Lookup(context.Background(), overlay.RootInodeNumber, "a")
	require.NoError(t, err)
	assert.False(t, reply.Negative())
	assert.NotZero(t, reply.Ino)
	assert.NotZero(t, reply.Generation)
	assert.Equal(t, int64(3), reply.Attr.Size)
	assert.Equal(t, EntryValiditySeconds, reply.EntryValid)
	assert.Equal(t, AttrValidity, reply.AttrValid)
}

func TestLookupOnFileParentFails(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	f, err := ad.Create("/file")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reply, err := ad.Lookup(context.Background(), overlay.RootInodeNumber, "file")
	require.NoError(t, err)

	_, err = ad.Lookup(context.Background(), reply.Ino, "child")
	assert.ErrorIs(t, err, ENOTDIR)
}

func TestForgetBalancesLookupReferences(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	f, err := ad.Create("/a")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reply, err := ad.Lookup(context.Background(), overlay.RootInodeNumber, "a")
	require.NoError(t, err)

	// Forgetting more than was handed out clamps rather than wrapping;
	// the inode stays resolvable either way (overlay state survives).
	ad.Forget(reply.Ino, 1)
	ad.Forget(reply.Ino, 5)

	attr, err := ad.Getattr(context.Background(), reply.Ino)
	require.NoError(t, err)
	assert.Equal(t, reply.Ino, attr.Ino)
}

func TestGetattrUnknownInode(t *testing.T) {
	ad, _ := newTestAdapter(t, nil)

	_, err := ad.Getattr(context.Background(), 999)
	assert.Error(t, err)
}
