package dispatch

import (
	"context"
	"math"
	"time"

	"treemount/internal/common"
	"treemount/internal/inode"
)

// Validity windows handed to the bridge with each lookup reply. A miss is
// cached forever (the bridge's own entry-invalidation callbacks clear it
// when the name is later created); positive entries expire so attribute
// drift from concurrent mounts is bounded.
const (
	// AttrValidity bounds how long the bridge may trust a reply's
	// attributes without re-asking.
	AttrValidity = time.Minute

	// EntryValiditySeconds bounds how long a positive name->inode binding
	// may be cached.
	EntryValiditySeconds uint64 = 60

	// NegativeEntryValiditySeconds is the validity of a synthesized
	// negative entry: effectively forever.
	NegativeEntryValiditySeconds uint64 = math.MaxUint64
)

// EntryReply is the typed reply to a bridge lookup: the resolved inode's
// identity and attributes plus the validity windows. A reply with Ino zero
// is a cacheable negative entry — the name does not exist, and the bridge
// may remember that without a round trip.
type EntryReply struct {
	Ino        inode.InodeNumber
	Generation uint64
	Attr       inode.Attr
	AttrValid  time.Duration
	EntryValid uint64
}

// Negative reports whether this reply encodes a cacheable miss.
func (r EntryReply) Negative() bool { return r.Ino == 0 }

// Lookup resolves name under the directory inode parent, handing the
// bridge one reference against the resolved inode (released later by
// Forget). A NotFound miss is translated into a success reply carrying
// inode number zero and maximum validity, so the bridge caches the miss
// instead of re-asking; every other failure surfaces as an errno.
func (a *Adapter) Lookup(ctx context.Context, parent inode.InodeNumber, name common.PathComponent) (EntryReply, error) {
	if _, ok := FromContext(ctx); !ok {
		ctx = NewRequestContext(ctx, nil)
	}

	dir, err := a.m.LookupTreeInode(ctx, parent)
	if err != nil {
		return EntryReply{}, toErrno(err)
	}
	child, err := dir.GetChild(ctx, name)
	if isNotExist(err) {
		return EntryReply{EntryValid: NegativeEntryValiditySeconds}, nil
	}
	if err != nil {
		return EntryReply{}, toErrno(err)
	}

	var attr inode.Attr
	switch n := child.(type) {
	case *inode.TreeInode:
		attr, err = n.Attr(ctx)
	case *inode.FileInode:
		attr, err = n.Attr(ctx)
	default:
		err = common.ErrBug
	}
	if err != nil {
		return EntryReply{}, toErrno(err)
	}

	a.m.IncFuseRefcount(child.Ino(), 1)
	return EntryReply{
		Ino:        child.Ino(),
		Generation: child.Generation(),
		Attr:       attr,
		AttrValid:  AttrValidity,
		EntryValid: EntryValiditySeconds,
	}, nil
}

// Forget releases count references the bridge holds against ino, making
// the inode eligible for unload once nothing else references it.
func (a *Adapter) Forget(ino inode.InodeNumber, count int) {
	a.m.DecFuseRefcount(ino, count)
}

// Getattr resolves ino and returns its current attributes.
func (a *Adapter) Getattr(ctx context.Context, ino inode.InodeNumber) (inode.Attr, error) {
	if _, ok := FromContext(ctx); !ok {
		ctx = NewRequestContext(ctx, nil)
	}
	in, err := a.m.LookupInode(ctx, ino)
	if err != nil {
		return inode.Attr{}, toErrno(err)
	}
	switch n := in.(type) {
	case *inode.TreeInode:
		attr, aerr := n.Attr(ctx)
		return attr, toErrno(aerr)
	case *inode.FileInode:
		attr, aerr := n.Attr(ctx)
		return attr, toErrno(aerr)
	}
	return inode.Attr{}, EIO
}
