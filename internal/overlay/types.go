// Package overlay defines the side store for local modifications: the
// persisted Dir listings, file contents, and inode-number allocator that
// make materialized state durable across process restarts. It is an
// external collaborator from the inode graph's point of view — this
// package specifies the Store interface plus the data model it persists,
// and two implementations (an in-memory one for tests, a SQLite-backed one
// for real mounts).
package overlay

import (
	"time"

	"treemount/internal/common"
	"treemount/internal/objectstore"
)

// InodeNumber is the 64-bit opaque identifier assigned to every inode.
// The root inode always has InodeNumber(1); numbers are allocated
// monotonically and, once assigned, are never reused.
type InodeNumber uint64

// RootInodeNumber is the mount's fixed, well-known root.
const RootInodeNumber InodeNumber = 1

// ReservedInodeNumber is the fixed inode number of the one reserved
// directory under root.
const ReservedInodeNumber InodeNumber = 2

// FirstAllocatableInodeNumber is the first number the allocator hands out;
// 1 and 2 are reserved for root and the reserved directory.
const FirstAllocatableInodeNumber InodeNumber = 3

// FileType is the type of a Tree/Dir entry.
type FileType int

const (
	FileTypeRegular FileType = iota
	FileTypeExecutable
	FileTypeSymlink
	FileTypeDir
	FileTypeSocket
)

// Mode packs a FileType and POSIX permission bits into one word, the
// usual (type-bits | permission-bits) convention for on-disk inode
// records.
type Mode uint32

const (
	modeTypeShift = 16
)

// NewMode packs a type and permission bits into a Mode.
func NewMode(t FileType, perm uint32) Mode {
	return Mode(uint32(t)<<modeTypeShift | (perm & 0o777))
}

func (m Mode) Type() FileType   { return FileType(uint32(m) >> modeTypeShift) }
func (m Mode) Perm() uint32     { return uint32(m) & 0o777 }
func (m Mode) IsDir() bool      { return m.Type() == FileTypeDir }
func (m Mode) IsSymlink() bool  { return m.Type() == FileTypeSymlink }
func (m Mode) IsRegular() bool  { return m.Type() == FileTypeRegular || m.Type() == FileTypeExecutable }
func (m Mode) IsSocket() bool   { return m.Type() == FileTypeSocket }

// Timestamps holds a directory or file's access/change/modify times.
type Timestamps struct {
	Atime time.Time
	Ctime time.Time
	Mtime time.Time
}

// Entry is one child slot of a Dir, capturing two orthogonal states:
// whether an inode number has been assigned, and
// whether the child is materialized (overlay-authoritative) or not
// (object-store-authoritative via Hash).
type Entry struct {
	Name         common.PathComponent
	Mode         Mode
	Ino          InodeNumber     // 0 means "unassigned"
	Materialized bool
	Hash         objectstore.Hash // valid only when !Materialized
}

// HasInodeNumber reports whether this entry has ever been referenced.
func (e Entry) HasInodeNumber() bool { return e.Ino != 0 }

// Dir is the mutable, persisted listing for one directory, keyed by name
// and kept sorted identically to the Tree it may be tracking.
type Dir struct {
	Entries    *common.PathMap[Entry]
	TreeHash   objectstore.Hash // zero means "materialized" (see IsMaterialized)
	hasTree    bool
	Timestamps Timestamps
}

// NewDir creates an empty, materialized Dir (no backing tree).
func NewDir() *Dir {
	return &Dir{Entries: common.NewPathMap[Entry]()}
}

// NewDirFromTree creates a Dir that tracks tree exactly (unmaterialized).
func NewDirFromTree(tree *objectstore.Tree) *Dir {
	d := &Dir{Entries: common.NewPathMap[Entry](), TreeHash: tree.Hash, hasTree: true}
	for _, e := range tree.Entries {
		ft := FileTypeRegular
		switch e.Type {
		case objectstore.EntryExecutable:
			ft = FileTypeExecutable
		case objectstore.EntrySymlink:
			ft = FileTypeSymlink
		case objectstore.EntryTree:
			ft = FileTypeDir
		}
		perm := uint32(0o644)
		if ft == FileTypeDir {
			perm = 0o755
		} else if ft == FileTypeExecutable {
			perm = 0o755
		}
		d.Entries.Set(e.Name, Entry{Name: e.Name, Mode: NewMode(ft, perm), Hash: e.Hash})
	}
	return d
}

// IsMaterialized reports whether this directory is authoritatively stored
// in the overlay rather than identical to a tracked source-control tree.
// Invariant: TreeHash absent ⟺ materialized.
func (d *Dir) IsMaterialized() bool { return !d.hasTree }

// Dematerialize clears the materialized flag and sets the tracked tree.
func (d *Dir) Dematerialize(hash objectstore.Hash) {
	d.hasTree = true
	d.TreeHash = hash
}

// Materialize marks the directory as authoritatively overlay-backed.
func (d *Dir) Materialize() {
	d.hasTree = false
	d.TreeHash = objectstore.ZeroHash
}

// Clone returns a deep-enough copy for snapshotting during diff/checkout.
func (d *Dir) Clone() *Dir {
	return &Dir{Entries: d.Entries.Clone(), TreeHash: d.TreeHash, hasTree: d.hasTree, Timestamps: d.Timestamps}
}
