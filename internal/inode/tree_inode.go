package inode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"treemount/internal/common"
	"treemount/internal/journal"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

// maxRemoveRetries bounds the unlink/rmdir retry loop that tolerates a
// concurrent replace-then-remove race.
const maxRemoveRetries = 3

// maxRenameRestarts bounds the "load missing endpoint, restart from
// scratch" loop rename uses when an endpoint inode is not yet loaded,
// so a pathological case can't spin forever.
const maxRenameRestarts = 8

// TreeInode is the core of the package: a directory's in-memory state,
// lazily loaded children, and the materialization/checkout/diff/rename
// operations that act on it.
type TreeInode struct {
	InodeBase

	m            *Map
	overlayStore overlay.Store
	objStore     objectstore.Store

	// contentsMu guards dir. Named distinctly from InodeBaseLock so the
	// two locking domains (identity vs. directory contents) are never
	// confused in code or in lock-ordering reasoning.
	contentsMu sync.RWMutex
	dir        *overlay.Dir
	mode       overlay.Mode
}

func newTreeInode(m *Map, ino InodeNumber, parent *TreeInode, name common.PathComponent, dir *overlay.Dir, mode overlay.Mode) *TreeInode {
	return &TreeInode{
		InodeBase:    newInodeBase(ino, parent, name, m.nextGeneration()),
		m:            m,
		overlayStore: m.overlayStore,
		objStore:     m.objStore,
		dir:          dir,
		mode:         mode,
	}
}

// Path reconstructs this inode's root-relative path by walking the
// (parent, name) back-edge chain. Always computable for a loaded inode,
// since an inode can only be loaded through a chain of loaded ancestors.
func (t *TreeInode) Path() common.RelativePath {
	parent := t.Parent()
	if parent == nil {
		return ""
	}
	return parent.Path().Join(t.Name())
}

// Attr returns the directory's attributes, with nlink computed as
// 2 + subdirectory count, the usual directory nlink convention.
func (t *TreeInode) Attr(ctx context.Context) (Attr, error) {
	t.contentsMu.RLock()
	defer t.contentsMu.RUnlock()

	subdirs := 0
	t.dir.Entries.Range(func(_ common.PathComponent, e overlay.Entry) bool {
		if e.Mode.IsDir() {
			subdirs++
		}
		return true
	})
	return Attr{Ino: t.Ino(), Mode: t.mode, Nlink: uint32(2 + subdirs), Timestamps: t.dir.Timestamps}, nil
}

// ReadDir returns a snapshot of the directory's current entries, sorted
// by name.
func (t *TreeInode) ReadDir(ctx context.Context) ([]overlay.Entry, error) {
	return t.snapshotEntries(), nil
}

func (t *TreeInode) snapshotEntries() []overlay.Entry {
	t.contentsMu.RLock()
	defer t.contentsMu.RUnlock()
	out := make([]overlay.Entry, 0, t.dir.Entries.Len())
	t.dir.Entries.Range(func(_ common.PathComponent, e overlay.Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// --- load and lookup ----------------------------------------------------

// getOrLoadChild resolves name under t, loading the child if necessary.
func (t *TreeInode) getOrLoadChild(ctx context.Context, name common.PathComponent) (Inode, error) {
	t.contentsMu.Lock()
	in, err := t.getOrLoadChildLocked(ctx, name)
	t.contentsMu.Unlock()
	return in, err
}

// getOrLoadChildLocked assumes the contents write lock is already held.
// It is the building block both getOrLoadChild and the rename protocol
// (which must load a destination child while already holding the lock
// acquired per the multi-lock ordering rules) use.
func (t *TreeInode) getOrLoadChildLocked(ctx context.Context, name common.PathComponent) (Inode, error) {
	if t.IsUnlinked() {
		return nil, common.ErrNotFound
	}
	entry, ok := t.dir.Entries.Get(name)
	if !ok {
		if t.Ino() == overlay.RootInodeNumber && name == reservedDirName {
			return t.m.reserved, nil
		}
		return nil, common.ErrNotFound
	}
	if entry.Ino != 0 {
		if in, loaded := t.m.loaded(entry.Ino); loaded {
			return in, nil
		}
	} else {
		// Never referenced before: allocating a number here counts as a
		// new inode, and the load must start.
		newIno, err := t.m.AllocateInodeNumber(ctx)
		if err != nil {
			return nil, err
		}
		entry.Ino = newIno
		t.dir.Entries.Set(name, entry)
	}

	waiter, mustLoad := t.m.ShouldLoadChild(entry.Ino)
	if !mustLoad {
		// Only reachable if some other in-flight load already holds this
		// same entry's inode number pending — impossible while we hold
		// this directory's exclusive contents lock, since reaching this
		// entry requires that same lock. Kept for defensive completeness
		// (see DESIGN.md).
		res := <-waiter
		return res.inode, res.err
	}

	in, loadErr := t.performLoad(ctx, entry)
	var waiters []chan loadResult
	if loadErr == nil {
		waiters = t.m.InodeLoadComplete(entry.Ino, in)
	} else {
		waiters = t.m.InodeLoadFailed(entry.Ino, loadErr)
	}
	// Fulfilling while still holding the lock is safe here: the only
	// waiter in this synchronous, per-directory-serialized design is the
	// loader's own channel, which nothing else will ever read.
	FulfillWaiters(waiters, in, loadErr)
	return in, loadErr
}

// performLoad is the deterministic load policy: files construct
// immediately, unmaterialized directories fetch their Tree, materialized
// directories read their authoritative listing from the overlay.
func (t *TreeInode) performLoad(ctx context.Context, entry overlay.Entry) (Inode, error) {
	if !entry.Mode.IsDir() {
		return newFileInode(t.m, entry.Ino, t, entry.Name, entry.Mode, entry.Hash, entry.Materialized), nil
	}

	var d *overlay.Dir
	if entry.Materialized {
		loaded, err := t.overlayStore.LoadDir(ctx, entry.Ino)
		if err != nil {
			inodeLog().WithError(err).WithField("ino", entry.Ino).Error("inode: materialized directory missing overlay record")
			return nil, common.ErrBug
		}
		d = loaded
	} else {
		tree, err := t.objStore.GetTree(ctx, entry.Hash)
		if err != nil {
			return nil, err
		}
		d = overlay.NewDirFromTree(tree)
	}
	return newTreeInode(t.m, entry.Ino, t, entry.Name, d, entry.Mode), nil
}

// GetChild resolves one immediate child by name, loading it if necessary.
// Exported for the dispatch adapter; in-package callers use
// getOrLoadChild directly.
func (t *TreeInode) GetChild(ctx context.Context, name common.PathComponent) (Inode, error) {
	return t.getOrLoadChild(ctx, name)
}

// getChildRecursive resolves path by calling getOrLoadChild for each
// component, descending through intermediate directories.
func (t *TreeInode) getChildRecursive(ctx context.Context, path common.RelativePath) (Inode, error) {
	comps := path.Components()
	cur := t
	for i, c := range comps {
		in, err := cur.getOrLoadChild(ctx, c)
		if err != nil {
			return nil, err
		}
		if i == len(comps)-1 {
			return in, nil
		}
		next, ok := in.(*TreeInode)
		if !ok {
			return nil, common.ErrNotDir
		}
		cur = next
	}
	return cur, nil
}

// --- create / mkdir / mknod / symlink -----------------------------------

func (t *TreeInode) createChild(ctx context.Context, name common.PathComponent, fileType overlay.FileType, perm uint32, symlinkTarget string) (in Inode, err error) {
	defer recoverInodePanic("TreeInode.createChild", &err)

	if err := t.materialize(ctx); err != nil {
		return nil, err
	}

	child, ino, err := t.createChildLocked(ctx, name, fileType, perm, symlinkTarget)
	if err != nil {
		return nil, err
	}

	// A non-bridge caller (checkout, CLI) must drop the bridge's cached
	// negative lookup for this name; the bridge handles its own requests.
	t.m.invalidateEntry(ctx, t, name)

	if t.m.journal != nil {
		path := t.Path().Join(name)
		if jerr := t.m.journal.Append(journal.DeltaCreated, path, ino); jerr != nil {
			inodeLog().WithError(jerr).Warn("inode: failed to append created journal delta")
		}
	}
	return child, nil
}

func (t *TreeInode) createChildLocked(ctx context.Context, name common.PathComponent, fileType overlay.FileType, perm uint32, symlinkTarget string) (child Inode, ino InodeNumber, err error) {
	t.contentsMu.Lock()
	defer t.contentsMu.Unlock()

	if t.IsUnlinked() {
		return nil, 0, common.ErrNotFound
	}
	if _, exists := t.dir.Entries.Get(name); exists {
		return nil, 0, common.ErrExists
	}

	ino, err = t.m.AllocateInodeNumber(ctx)
	if err != nil {
		return nil, 0, err
	}

	mode := overlay.NewMode(fileType, perm)
	switch fileType {
	case overlay.FileTypeDir:
		if err = t.overlayStore.SaveDir(ctx, ino, overlay.NewDir()); err != nil {
			return nil, 0, err
		}
		child = newTreeInode(t.m, ino, t, name, overlay.NewDir(), mode)
	default:
		h, herr := t.overlayStore.OpenFile(ctx, ino, true)
		if herr != nil {
			return nil, 0, herr
		}
		h.Close()
		if fileType == overlay.FileTypeSymlink {
			if err = t.overlayStore.WriteSymlink(ctx, ino, symlinkTarget); err != nil {
				return nil, 0, err
			}
		}
		child = newFileInode(t.m, ino, t, name, mode, objectstore.ZeroHash, true)
	}

	entry := overlay.Entry{Name: name, Mode: mode, Ino: ino, Materialized: true}
	t.dir.Entries.Set(name, entry)
	now := time.Now().UTC()
	t.dir.Timestamps.Mtime = now
	t.dir.Timestamps.Ctime = now

	t.m.registerNew(ino, child)

	if err = t.overlayStore.SaveDir(ctx, t.Ino(), t.dir); err != nil {
		return nil, 0, err
	}
	return child, ino, nil
}

// Create makes a regular file. An already-present name fails: the
// dispatch layer deduplicates create requests before they reach here.
func (t *TreeInode) Create(ctx context.Context, name common.PathComponent, perm uint32) (*FileInode, error) {
	in, err := t.createChild(ctx, name, overlay.FileTypeRegular, perm, "")
	if err != nil {
		return nil, err
	}
	return in.(*FileInode), nil
}

// Mkdir makes a subdirectory.
func (t *TreeInode) Mkdir(ctx context.Context, name common.PathComponent, perm uint32) (*TreeInode, error) {
	in, err := t.createChild(ctx, name, overlay.FileTypeDir, perm, "")
	if err != nil {
		return nil, err
	}
	return in.(*TreeInode), nil
}

// Mknod is permitted only for unix-domain sockets.
func (t *TreeInode) Mknod(ctx context.Context, name common.PathComponent, mode overlay.Mode) (*FileInode, error) {
	if !mode.IsSocket() {
		return nil, common.ErrOperationNotPermitted
	}
	in, err := t.createChild(ctx, name, overlay.FileTypeSocket, mode.Perm(), "")
	if err != nil {
		return nil, err
	}
	return in.(*FileInode), nil
}

// Symlink creates a symlink pointing at target.
func (t *TreeInode) Symlink(ctx context.Context, name common.PathComponent, target string) (*FileInode, error) {
	in, err := t.createChild(ctx, name, overlay.FileTypeSymlink, 0o777, target)
	if err != nil {
		return nil, err
	}
	return in.(*FileInode), nil
}

// Link always refuses: hard links do not map to source control (Non-goal).
func (t *TreeInode) Link(ctx context.Context, name common.PathComponent, target Inode) error {
	return common.ErrOperationNotPermitted
}

// --- unlink / rmdir -----------------------------------------------------

// Unlink removes a file child.
func (t *TreeInode) Unlink(ctx context.Context, name common.PathComponent) error {
	return t.remove(ctx, name, false)
}

// Rmdir removes an empty directory child.
func (t *TreeInode) Rmdir(ctx context.Context, name common.PathComponent) error {
	return t.remove(ctx, name, true)
}

func (t *TreeInode) remove(ctx context.Context, name common.PathComponent, wantDir bool) (err error) {
	defer recoverInodePanic("TreeInode.remove", &err)

	if t.Ino() == overlay.ReservedInodeNumber {
		return common.ErrOperationNotPermitted
	}

	child, err := t.getOrLoadChild(ctx, name)
	if err != nil {
		return err
	}
	// Pin the child for the duration of the operation so the idle sweep
	// cannot unload it between lock releases; released on return.
	t.m.incStrong(child.Ino())
	defer func() { t.m.decStrong(child.Ino()) }()

	switch c := child.(type) {
	case *TreeInode:
		if !wantDir {
			return common.ErrIsDir
		}
		c.contentsMu.RLock()
		empty := c.dir.Entries.Len() == 0
		c.contentsMu.RUnlock()
		if !empty {
			return common.ErrNotEmpty
		}
	case *FileInode:
		if wantDir {
			return common.ErrNotDir
		}
	}

	if err := t.materialize(ctx); err != nil {
		return err
	}

	for attempt := 0; attempt < maxRemoveRetries; attempt++ {
		t.m.RenameLock()
		t.contentsMu.Lock()

		cur, ok := t.dir.Entries.Get(name)
		if !ok || cur.Ino != child.Ino() {
			t.contentsMu.Unlock()
			t.m.RenameUnlock()
			reloaded, rerr := t.getOrLoadChild(ctx, name)
			if rerr != nil {
				return rerr
			}
			t.m.incStrong(reloaded.Ino())
			t.m.decStrong(child.Ino())
			child = reloaded
			continue
		}

		child.MarkUnlinked()
		t.dir.Entries.Delete(name)
		now := time.Now().UTC()
		t.dir.Timestamps.Mtime = now
		t.dir.Timestamps.Ctime = now
		saveErr := t.overlayStore.SaveDir(ctx, t.Ino(), t.dir)

		t.contentsMu.Unlock()
		t.m.RenameUnlock()

		if saveErr != nil {
			return saveErr
		}

		t.m.invalidateEntry(ctx, t, name)

		if t.m.journal != nil {
			path := t.Path().Join(name)
			if jerr := t.m.journal.Append(journal.DeltaRemoved, path, child.Ino()); jerr != nil {
				inodeLog().WithError(jerr).Warn("inode: failed to append removed journal delta")
			}
		}
		return nil
	}

	return fmt.Errorf("inode: giveUpOnRemove after %d retries: %w", maxRemoveRetries, common.ErrIO)
}

// --- materialization ----------------------------------------------------

// materialize acquires the mount-wide rename lock and promotes t to
// materialized, propagating up the parent chain.
func (t *TreeInode) materialize(ctx context.Context) error {
	t.contentsMu.RLock()
	already := t.dir.IsMaterialized()
	t.contentsMu.RUnlock()
	if already {
		return nil
	}

	t.m.RenameLock()
	defer t.m.RenameUnlock()
	return t.materializeLocked(ctx)
}

// materializeLocked assumes the mount-wide rename lock is already held by
// the caller (used when materialize is one step of a larger rename-locked
// operation, e.g. Rename itself).
func (t *TreeInode) materializeLocked(ctx context.Context) error {
	t.contentsMu.Lock()
	if !t.dir.IsMaterialized() {
		t.dir.Materialize()
		if err := t.overlayStore.SaveDir(ctx, t.Ino(), t.dir); err != nil {
			t.contentsMu.Unlock()
			return err
		}
	}
	t.contentsMu.Unlock()

	parent := t.Parent()
	if parent != nil && !t.IsUnlinked() {
		return parent.childMaterializedLocked(ctx, t.Name(), t.Ino())
	}
	return nil
}

// childMaterialized records that the named child is now materialized with
// inode number n, marks self materialized, persists, and recurses up.
func (t *TreeInode) childMaterialized(ctx context.Context, name common.PathComponent, n InodeNumber) error {
	t.m.RenameLock()
	defer t.m.RenameUnlock()
	return t.childMaterializedLocked(ctx, name, n)
}

func (t *TreeInode) childMaterializedLocked(ctx context.Context, name common.PathComponent, n InodeNumber) error {
	t.contentsMu.Lock()
	if entry, ok := t.dir.Entries.Get(name); ok {
		entry.Materialized = true
		entry.Ino = n
		t.dir.Entries.Set(name, entry)
	}
	wasMaterialized := t.dir.IsMaterialized()
	if !wasMaterialized {
		t.dir.Materialize()
	}
	err := t.overlayStore.SaveDir(ctx, t.Ino(), t.dir)
	t.contentsMu.Unlock()
	if err != nil {
		return err
	}

	if !wasMaterialized {
		parent := t.Parent()
		if parent != nil && !t.IsUnlinked() {
			return parent.childMaterializedLocked(ctx, t.Name(), t.Ino())
		}
	}
	return nil
}

// childDematerialized is the inverse, used by checkout to collapse a
// subtree that now matches source control again. Self becomes
// materialized at this step (it still needs to record the child's hash
// authoritatively); a later saveOverlayPostCheckout pass may dematerialize
// self too.
func (t *TreeInode) childDematerialized(ctx context.Context, name common.PathComponent, hash objectstore.Hash) error {
	t.m.RenameLock()
	defer t.m.RenameUnlock()
	return t.childDematerializedLocked(ctx, name, hash)
}

func (t *TreeInode) childDematerializedLocked(ctx context.Context, name common.PathComponent, hash objectstore.Hash) error {
	t.contentsMu.Lock()
	if entry, ok := t.dir.Entries.Get(name); ok {
		entry.Materialized = false
		entry.Hash = hash
		t.dir.Entries.Set(name, entry)
	}
	wasMaterialized := t.dir.IsMaterialized()
	if !wasMaterialized {
		t.dir.Materialize()
	}
	err := t.overlayStore.SaveDir(ctx, t.Ino(), t.dir)
	t.contentsMu.Unlock()
	if err != nil {
		return err
	}

	if !wasMaterialized {
		parent := t.Parent()
		if parent != nil && !t.IsUnlinked() {
			return parent.childMaterializedLocked(ctx, t.Name(), t.Ino())
		}
	}
	return nil
}

// clearLoadedChildLocked exists for symmetry with the unload step's
// "parent entry clears its loaded pointer" framing. This
// implementation tracks "loaded" purely via Map's table membership rather
// than a pointer stored on the Entry, so there is nothing to clear here;
// kept as an explicit no-op hook rather than silently inlining that
// assumption at the one call site (Map.Sweep).
func (t *TreeInode) clearLoadedChildLocked(name common.PathComponent) {}

// --- rename --------------------------------------------------------------

// Rename moves srcName (a child of t) to destName under destParent.
// Lock order is deadlock-free: the mount-wide rename lock first, then
// ancestors before descendants, then destination before source for
// unrelated parents.
func (t *TreeInode) Rename(ctx context.Context, srcName common.PathComponent, destParent *TreeInode, destName common.PathComponent) (err error) {
	defer recoverInodePanic("TreeInode.Rename", &err)

	for attempt := 0; attempt < maxRenameRestarts; attempt++ {
		t.m.RenameLock()
		restart, rerr := t.renameAttempt(ctx, srcName, destParent, destName)
		t.m.RenameUnlock()
		if !restart {
			return rerr
		}
	}
	return fmt.Errorf("inode: rename: exceeded restart limit: %w", common.ErrIO)
}

// renameAttempt runs one pass of the rename protocol under the mount-wide
// rename lock (already held by the caller). It returns restart=true only
// when an endpoint needed to be loaded outside the lock it already had —
// in this implementation getOrLoadChildLocked always loads synchronously
// under the held lock, so restart is effectively unused; it is kept so a
// future asynchronous load path has somewhere to signal "try again".
func (t *TreeInode) renameAttempt(ctx context.Context, srcName common.PathComponent, destParent *TreeInode, destName common.PathComponent) (restart bool, err error) {
	// First-pass validation before any state change: a rename refused here
	// (including rename-into-own-descendant) must leave everything — the
	// parents' materialization included — exactly as it was.
	t.contentsMu.RLock()
	srcEntry, ok := t.dir.Entries.Get(srcName)
	t.contentsMu.RUnlock()
	if !ok {
		return false, common.ErrNotFound
	}
	if destParent.IsUnlinked() {
		return false, common.ErrNotFound
	}

	destParent.contentsMu.RLock()
	destEntry, destExists := destParent.dir.Entries.Get(destName)
	destParent.contentsMu.RUnlock()

	srcIsDir := srcEntry.Mode.IsDir()
	if destExists {
		if srcEntry.Ino == destEntry.Ino {
			return false, nil // same inode, same name: no-op success
		}
		if srcIsDir && !destEntry.Mode.IsDir() {
			return false, common.ErrNotDir
		}
		if !srcIsDir && destEntry.Mode.IsDir() {
			return false, common.ErrIsDir
		}
	}

	if srcIsDir {
		srcPath := t.Path().Join(srcName)
		destPath := destParent.Path().Join(destName)
		if srcPath == destPath || srcPath.IsAncestorOf(destPath) {
			return false, common.ErrInvalid
		}
	}

	if err := t.materializeLocked(ctx); err != nil {
		return false, err
	}
	if err := destParent.materializeLocked(ctx); err != nil {
		return false, err
	}

	sameParent := t == destParent
	var tIsAncestor bool
	if !sameParent {
		tIsAncestor = t.Path().IsAncestorOf(destParent.Path())
	}

	var unlocks []func()
	switch {
	case sameParent:
		t.contentsMu.Lock()
		unlocks = append(unlocks, t.contentsMu.Unlock)
	case tIsAncestor:
		t.contentsMu.Lock()
		unlocks = append(unlocks, t.contentsMu.Unlock)
		destParent.contentsMu.Lock()
		unlocks = append(unlocks, destParent.contentsMu.Unlock)
	default:
		// Destination before source when unrelated, and when destParent
		// is itself an ancestor of t — both cases want destParent first.
		destParent.contentsMu.Lock()
		unlocks = append(unlocks, destParent.contentsMu.Unlock)
		t.contentsMu.Lock()
		unlocks = append(unlocks, t.contentsMu.Unlock)
	}
	defer func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}()

	srcEntry, ok = t.dir.Entries.Get(srcName)
	if !ok {
		return false, common.ErrNotFound
	}
	srcIsDir = srcEntry.Mode.IsDir()
	destEntry, destExists = destParent.dir.Entries.Get(destName)
	if destExists && srcEntry.Ino == destEntry.Ino {
		return false, nil
	}
	// Re-run the type checks against the relocked state: a concurrent
	// create may have replaced either endpoint since the first pass.
	if destExists {
		if srcIsDir && !destEntry.Mode.IsDir() {
			return false, common.ErrNotDir
		}
		if !srcIsDir && destEntry.Mode.IsDir() {
			return false, common.ErrIsDir
		}
	}

	if destExists && destEntry.Mode.IsDir() {
		destChildInode, lerr := destParent.getOrLoadChildLocked(ctx, destName)
		if lerr != nil {
			return false, lerr
		}
		destChild, ok := destChildInode.(*TreeInode)
		if !ok {
			return false, common.ErrBug
		}
		destChild.contentsMu.RLock()
		empty := destChild.dir.Entries.Len() == 0
		destChild.contentsMu.RUnlock()
		if !empty {
			return false, common.ErrNotEmpty
		}
	}

	srcChild, lerr := t.getOrLoadChildLocked(ctx, srcName)
	if lerr != nil {
		return false, lerr
	}

	if destExists {
		if destOld, loaded := t.m.loaded(destEntry.Ino); loaded {
			destOld.MarkUnlinked()
		}
	}

	srcChild.reparent(destParent, destName)

	newEntry := srcEntry
	newEntry.Name = destName
	destParent.dir.Entries.Set(destName, newEntry)
	t.dir.Entries.Delete(srcName)

	now := time.Now().UTC()
	destParent.dir.Timestamps.Mtime = now
	if destParent != t {
		t.dir.Timestamps.Mtime = now
	}

	if serr := destParent.overlayStore.SaveDir(ctx, destParent.Ino(), destParent.dir); serr != nil {
		return false, serr
	}
	if destParent != t {
		if serr := t.overlayStore.SaveDir(ctx, t.Ino(), t.dir); serr != nil {
			return false, serr
		}
	}

	srcPath := t.Path().Join(srcName)
	destPath := destParent.Path().Join(destName)
	ino := srcEntry.Ino

	for i := len(unlocks) - 1; i >= 0; i-- {
		unlocks[i]()
	}
	unlocks = nil // defer above becomes a no-op now that we released manually

	if t.m.journal != nil {
		if jerr := t.m.journal.AppendRename(srcPath, destPath, ino); jerr != nil {
			inodeLog().WithError(jerr).Warn("inode: failed to append renamed journal delta")
		}
	}
	return false, nil
}
