package inode

import (
	"sync"

	"treemount/internal/common"
	"treemount/internal/overlay"
)

// Inode is the common identity surface shared by FileInode and TreeInode.
type Inode interface {
	Ino() InodeNumber
	Name() common.PathComponent
	Parent() *TreeInode
	Generation() uint64
	IsUnlinked() bool

	// MarkUnlinked detaches the inode from its parent, used by remove and
	// by rename when it displaces an existing destination entry.
	MarkUnlinked()

	// reparent updates the (parent, name) back-edge during a rename. It is
	// unexported deliberately: only this package's rename protocol may
	// call it, under the mount-wide rename lock.
	reparent(parent *TreeInode, name common.PathComponent)
}

// InodeBase holds identity state shared by both inode kinds: the inode
// number, the (parent, name) back-edge used for path reconstruction, the
// generation counter, and the unlinked flag. The back-edge is a
// non-owning reference validated under the rename lock — never treated as
// ownership, only as "where do I currently live".
type InodeBase struct {
	mu InodeBaseLock

	ino        InodeNumber
	parent     *TreeInode
	name       common.PathComponent
	generation uint64
	unlinked   bool
}

// InodeBaseLock guards the identity fields that change on rename/unlink.
// Named separately from a bare sync.Mutex so grep finds every place
// identity, as opposed to contents, is synchronized.
type InodeBaseLock struct {
	sync.Mutex
}

func newInodeBase(ino InodeNumber, parent *TreeInode, name common.PathComponent, gen uint64) InodeBase {
	return InodeBase{ino: ino, parent: parent, name: name, generation: gen}
}

func (b *InodeBase) Ino() InodeNumber { return b.ino }

func (b *InodeBase) Name() common.PathComponent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

func (b *InodeBase) Parent() *TreeInode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

func (b *InodeBase) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

func (b *InodeBase) IsUnlinked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unlinked
}

// reparent updates the (parent, name) back-edge, called under the rename
// lock during rename.
func (b *InodeBase) reparent(parent *TreeInode, name common.PathComponent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = parent
	b.name = name
}

// MarkUnlinked detaches the inode from its parent and flags it unlinked.
func (b *InodeBase) MarkUnlinked() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unlinked = true
	b.parent = nil
}

// bumpGeneration replaces the inode's generation number. Nothing in this
// package calls it: every load and create builds a new inode whose
// constructor takes a fresh number from Map.nextGeneration.
func (b *InodeBase) bumpGeneration(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation = gen
}

// Attr is the subset of POSIX attributes the dispatch adapter needs to
// answer getattr/lookup replies.
type Attr struct {
	Ino        InodeNumber
	Mode       overlay.Mode
	Size       int64
	Nlink      uint32
	Timestamps overlay.Timestamps
}
