// Package inode implements the core of treemount: the lazily-loaded
// inode graph (tree and file inodes), its materialization and checkout
// state machines, the directory diff engine, and the rename protocol.
package inode

import (
	"context"
	"runtime/debug"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"treemount/internal/common"
	"treemount/internal/journal"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

// InodeNumber is re-exported from the overlay package: the two packages
// share the same identity space, since the overlay persists it.
type InodeNumber = overlay.InodeNumber

// sweepIndexSize bounds the auxiliary LRU used to pick idle-sweep
// candidates; it never participates in correctness (an evicted entry is
// merely no longer a sweep candidate, not unloaded).
const sweepIndexSize = 4096

// loadResult is delivered to every waiter once a load finishes.
type loadResult struct {
	inode Inode
	err   error
}

type pendingLoad struct {
	waiters []chan loadResult
}

type tableEntry struct {
	inode        Inode
	fuseRefcount int
	strongCount  int
}

type parentRecord struct {
	parentIno InodeNumber
	name      common.PathComponent
}

// Map is the inode map (C4): inode-number allocation, single-flight load
// coordination, the global loaded-inode table, FUSE reference counts, and
// unload.
type Map struct {
	overlayStore overlay.Store
	objStore     objectstore.Store
	journal      *journal.Journal

	mu      sync.Mutex
	table   map[InodeNumber]*tableEntry
	pending map[InodeNumber]*pendingLoad
	parents map[InodeNumber]parentRecord

	// renameMu is the mount-wide rename lock: required for rename,
	// remove, checkout, and every materialization state transition.
	renameMu sync.Mutex

	// unloadMu serializes unload sweeps against each other; unload
	// additionally requires the relevant parent's contents write lock.
	unloadMu sync.Mutex

	sweepIndex *lru.Cache[InodeNumber, struct{}]

	root     *TreeInode
	reserved *TreeInode

	invalidator EntryInvalidator

	generation uint64
}

// reservedDirName is the fixed child name under root that resolves to the
// reserved sentinel directory.
const reservedDirName = common.PathComponent(".treemount")

// NewMap constructs an inode map rooted at a freshly loaded root directory
// for rootTree (or an empty materialized root if rootTree is nil).
func NewMap(ctx context.Context, overlayStore overlay.Store, objStore objectstore.Store, j *journal.Journal, rootTree *objectstore.Tree) (*Map, error) {
	sweepIndex, err := lru.New[InodeNumber, struct{}](sweepIndexSize)
	if err != nil {
		return nil, err
	}
	m := &Map{
		overlayStore: overlayStore,
		objStore:     objStore,
		journal:      j,
		table:        make(map[InodeNumber]*tableEntry),
		pending:      make(map[InodeNumber]*pendingLoad),
		parents:      make(map[InodeNumber]parentRecord),
		sweepIndex:   sweepIndex,
	}

	// A materialized root survives restarts in the overlay; its persisted
	// listing wins over rootTree, which only seeds a fresh mount.
	var dir *overlay.Dir
	if persisted, err := overlayStore.LoadDir(ctx, overlay.RootInodeNumber); err == nil {
		dir = persisted
	} else if rootTree != nil {
		dir = overlay.NewDirFromTree(rootTree)
	} else {
		dir = overlay.NewDir()
	}
	root := newTreeInode(m, overlay.RootInodeNumber, nil, "", dir, overlay.NewMode(overlay.FileTypeDir, 0o755))
	m.root = root
	m.registerLocked(overlay.RootInodeNumber, root, 1, 1)

	reserved := newTreeInode(m, overlay.ReservedInodeNumber, root, reservedDirName, overlay.NewDir(), overlay.NewMode(overlay.FileTypeDir, 0o755))
	m.reserved = reserved
	m.registerLocked(overlay.ReservedInodeNumber, reserved, 1, 1)
	m.parents[overlay.ReservedInodeNumber] = parentRecord{parentIno: overlay.RootInodeNumber, name: reservedDirName}

	return m, nil
}

func (m *Map) registerLocked(n InodeNumber, in Inode, fuseRef, strong int) {
	m.table[n] = &tableEntry{inode: in, fuseRefcount: fuseRef, strongCount: strong}
}

// registerNew adds a freshly created (not loaded) inode to the table with
// one FUSE reference (the creating caller's, released by a later forget)
// and records its parent-chain entry.
func (m *Map) registerNew(n InodeNumber, in Inode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(n, in, 1, 0)
	if parent := in.Parent(); parent != nil {
		m.parents[n] = parentRecord{parentIno: parent.Ino(), name: in.Name()}
	}
}

// loaded returns the table's inode for n, if present.
func (m *Map) loaded(n InodeNumber) (Inode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.table[n]
	if !ok {
		return nil, false
	}
	return e.inode, true
}

// Root returns the mount's root tree inode.
func (m *Map) Root() *TreeInode { return m.root }

// Reserved returns the fixed reserved-directory inode.
func (m *Map) Reserved() *TreeInode { return m.reserved }

// AllocateInodeNumber returns a fresh, never-before-used inode number,
// persisted immediately in the overlay's counter so a crash never reuses
// it.
func (m *Map) AllocateInodeNumber(ctx context.Context) (InodeNumber, error) {
	return m.overlayStore.AllocateInodeNumber(ctx)
}

// nextGeneration returns a fresh per-inode generation number, bumped each
// time an inode number's identity is (re)established, so a bridge can
// tell a stale cached handle from a reused one.
func (m *Map) nextGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	return m.generation
}

// ShouldLoadChild registers a waiter for inode n's load and reports
// whether the caller must perform the load itself (true) or merely wait
// for an in-flight load (false).
func (m *Map) ShouldLoadChild(n InodeNumber) (waiter chan loadResult, mustLoad bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiter = make(chan loadResult, 1)
	if p, ok := m.pending[n]; ok {
		p.waiters = append(p.waiters, waiter)
		return waiter, false
	}
	m.pending[n] = &pendingLoad{waiters: []chan loadResult{waiter}}
	return waiter, true
}

// InodeLoadComplete records the freshly loaded inode, registers its
// parent-chain record, and returns the waiter channels to fulfill. The
// caller must send the result to each channel after releasing any
// directory locks it holds.
func (m *Map) InodeLoadComplete(n InodeNumber, in Inode) []chan loadResult {
	m.mu.Lock()
	p := m.pending[n]
	delete(m.pending, n)
	m.registerLocked(n, in, 0, 0)
	if parent := in.Parent(); parent != nil {
		m.parents[n] = parentRecord{parentIno: parent.Ino(), name: in.Name()}
	}
	// A freshly loaded inode starts with no references at all, so it is
	// immediately a sweep candidate; Sweep re-checks the counts before
	// actually unloading.
	m.sweepIndex.Add(n, struct{}{})
	m.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.waiters
}

// InodeLoadFailed cancels every pending waiter for n with err. The inode
// number itself remains allocated (never reused).
func (m *Map) InodeLoadFailed(n InodeNumber, err error) []chan loadResult {
	m.mu.Lock()
	p := m.pending[n]
	delete(m.pending, n)
	m.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.waiters
}

// FulfillWaiters sends result to every waiter channel and closes them.
func FulfillWaiters(waiters []chan loadResult, in Inode, err error) {
	for _, w := range waiters {
		w <- loadResult{inode: in, err: err}
		close(w)
	}
}

// LookupInode resolves inode n, loading it by walking the recorded parent
// chain toward root if it is not currently in the table.
func (m *Map) LookupInode(ctx context.Context, n InodeNumber) (Inode, error) {
	m.mu.Lock()
	if e, ok := m.table[n]; ok {
		in := e.inode
		m.mu.Unlock()
		return in, nil
	}
	chain := m.buildLoadChainLocked(n)
	m.mu.Unlock()

	if chain == nil {
		return nil, common.ErrStale
	}

	// chain is root-to-n (exclusive of any already-loaded ancestor found).
	var cur Inode = m.root
	for _, step := range chain {
		tree, ok := cur.(*TreeInode)
		if !ok {
			return nil, common.ErrBug
		}
		child, err := tree.getOrLoadChild(ctx, step)
		if err != nil {
			return nil, err
		}
		cur = child
	}
	return cur, nil
}

// buildLoadChainLocked walks m.parents from n toward a loaded ancestor,
// returning the chain of names from that ancestor down to n (exclusive of
// the ancestor itself). Returns nil if n has no recorded parent chain
// (never loaded, or the chain has been severed by an unlink).
func (m *Map) buildLoadChainLocked(n InodeNumber) []common.PathComponent {
	var names []common.PathComponent
	cur := n
	for {
		if _, ok := m.table[cur]; ok {
			// Reverse names collected so far (they were appended leaf-first).
			for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
				names[i], names[j] = names[j], names[i]
			}
			return names
		}
		rec, ok := m.parents[cur]
		if !ok {
			return nil
		}
		names = append(names, rec.name)
		cur = rec.parentIno
	}
}

// LookupTreeInode resolves n and requires it to be a directory.
func (m *Map) LookupTreeInode(ctx context.Context, n InodeNumber) (*TreeInode, error) {
	in, err := m.LookupInode(ctx, n)
	if err != nil {
		return nil, err
	}
	t, ok := in.(*TreeInode)
	if !ok {
		return nil, common.ErrNotDir
	}
	return t, nil
}

// LookupFileInode resolves n and requires it to be a regular file.
func (m *Map) LookupFileInode(ctx context.Context, n InodeNumber) (*FileInode, error) {
	in, err := m.LookupInode(ctx, n)
	if err != nil {
		return nil, err
	}
	f, ok := in.(*FileInode)
	if !ok {
		return nil, common.ErrIsDir
	}
	return f, nil
}

// Resolve walks path from the root, loading each component, and returns
// the inode it names. The empty path resolves to the root itself. This is
// the dispatch adapter's entry point into the graph.
func (m *Map) Resolve(ctx context.Context, path common.RelativePath) (Inode, error) {
	if path == "" {
		return m.root, nil
	}
	return m.root.getChildRecursive(ctx, path)
}

// IncFuseRefcount records count additional kernel references against n
// (each successful lookup reply hands the bridge one reference it must
// later forget).
func (m *Map) IncFuseRefcount(n InodeNumber, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.table[n]; ok {
		e.fuseRefcount += count
	}
}

// DecFuseRefcount decrements n's FUSE-visible reference count by count (a
// kernel "forget"), marking it a sweep candidate once both reference
// counts reach zero.
func (m *Map) DecFuseRefcount(n InodeNumber, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.table[n]
	if !ok {
		return
	}
	e.fuseRefcount -= count
	if e.fuseRefcount < 0 {
		log.WithField("ino", n).Error("inode: fuse refcount went negative, clamping")
		e.fuseRefcount = 0
	}
	if e.fuseRefcount == 0 && e.strongCount == 0 {
		m.sweepIndex.Add(n, struct{}{})
	}
}

// incStrong and decStrong track internal strong references: an in-flight
// operation that holds an inode across a lock release pins it so the idle
// sweep cannot unload it mid-operation. A loaded inode at rest holds no
// strong references — table membership alone never pins.
func (m *Map) incStrong(n InodeNumber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.table[n]; ok {
		e.strongCount++
	}
}

func (m *Map) decStrong(n InodeNumber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.table[n]
	if !ok {
		return
	}
	e.strongCount--
	if e.strongCount < 0 {
		e.strongCount = 0
	}
	if e.fuseRefcount == 0 && e.strongCount == 0 {
		m.sweepIndex.Add(n, struct{}{})
	}
}

// LockForUnload acquires the exclusive privilege to unload inodes,
// returning a release function. The caller must additionally hold the
// relevant parent's contents write lock before actually unloading.
func (m *Map) LockForUnload() func() {
	m.unloadMu.Lock()
	return m.unloadMu.Unlock
}

// RenameLock acquires the mount-wide rename lock.
func (m *Map) RenameLock() { m.renameMu.Lock() }

// RenameUnlock releases the mount-wide rename lock.
func (m *Map) RenameUnlock() { m.renameMu.Unlock() }

// unloadIfIdle removes n from the table and severs its parent-chain record
// if both its reference counts are zero. Callers must hold LockForUnload's
// token and the relevant parent's contents write lock.
func (m *Map) unloadIfIdle(n InodeNumber) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.table[n]
	if !ok {
		return false
	}
	if e.fuseRefcount != 0 || e.strongCount != 0 {
		return false
	}
	delete(m.table, n)
	delete(m.parents, n)
	m.sweepIndex.Remove(n)
	return true
}

// Sweep is the periodic idle-unload pass: for each sweep-index candidate
// still idle, unload it. Best-effort; an inode that regained a reference
// since being indexed is simply skipped.
func (m *Map) Sweep(ctx context.Context) int {
	release := m.LockForUnload()
	defer release()

	unloaded := 0
	for _, n := range m.sweepIndex.Keys() {
		m.mu.Lock()
		e, ok := m.table[n]
		m.mu.Unlock()
		if !ok {
			continue
		}
		parent := e.inode.Parent()
		if parent == nil {
			// Unlinked inodes have no parent entry left to clear; the root
			// never unloads.
			if e.inode.IsUnlinked() && m.unloadIfIdle(n) {
				unloaded++
			}
			continue
		}
		parent.contentsMu.Lock()
		if m.unloadIfIdle(n) {
			parent.clearLoadedChildLocked(e.inode.Name())
			unloaded++
		}
		parent.contentsMu.Unlock()
	}
	return unloaded
}

// inodeLog returns the package-wide structured logger, tagged so log
// aggregation can filter to just the inode graph's activity.
func inodeLog() *log.Entry {
	return log.WithField("component", "inode")
}

// recoverInodePanic catches any panic inside an exported inode operation,
// logs it with a full stack trace, and surfaces ErrIO to the caller rather
// than crashing the bridge.
func recoverInodePanic(operation string, err *error) {
	if r := recover(); r != nil {
		log.Errorf("inode: PANIC RECOVERED in %s: %v\n%s", operation, r, debug.Stack())
		if err != nil {
			*err = common.ErrIO
		}
	}
}
