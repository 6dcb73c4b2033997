package inode

import (
	"bytes"
	"context"

	"treemount/internal/common"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

// ConflictKind names one of the checkout engine's detectable conflicts.
type ConflictKind string

const (
	// ConflictMissingRemoved: the entry was deleted locally, and the
	// target revision removes it as well (it was present in the revision
	// being left).
	ConflictMissingRemoved ConflictKind = "missing_removed"

	// ConflictRemovedModified: the entry was deleted locally, but the
	// target revision modified it relative to the revision being left —
	// checking out would resurrect a file the user deliberately removed.
	ConflictRemovedModified ConflictKind = "removed_modified"

	// ConflictUntrackedAdded: a local, untracked entry occupies a name the
	// target revision wants to place something at.
	ConflictUntrackedAdded ConflictKind = "untracked_added"

	// ConflictModifiedModified: the entry was modified both locally and
	// between the two revisions, at paths that can't be merged
	// automatically.
	ConflictModifiedModified ConflictKind = "modified_modified"

	// ConflictDirectoryNotEmpty: the target revision wants this directory
	// gone (or replaced by a file), but it still has children that could
	// not be removed.
	ConflictDirectoryNotEmpty ConflictKind = "directory_not_empty"
)

// Conflict describes one path the checkout engine could not resolve
// without Force.
type Conflict struct {
	Path common.RelativePath
	Kind ConflictKind
}

// CheckoutOptions controls checkout's behavior.
type CheckoutOptions struct {
	// DryRun detects and reports conflicts without applying any change.
	DryRun bool
	// Force applies the target revision's state even where it would
	// normally be reported as a conflict, discarding local changes.
	Force bool
}

// CheckoutResult summarizes one checkout call.
type CheckoutResult struct {
	Conflicts []Conflict
	Applied   int
}

// entryPair is one name's (old, new) source-control state in the checkout
// merge walk. At least one side is present.
type entryPair struct {
	name    common.PathComponent
	from    objectstore.TreeEntry
	hasFrom bool
	to      objectstore.TreeEntry
	hasTo   bool
}

// Checkout switches t's tracked revision from fromTree to toTree, applying
// every entry that changed between the two and preserving every local
// modification that doesn't conflict with the move. Subdirectories check
// out recursively through their own inodes, so conflicts are reported at
// the paths that actually diverge, never on a whole subtree.
func (t *TreeInode) Checkout(ctx context.Context, fromTree, toTree *objectstore.Tree, opts CheckoutOptions) (CheckoutResult, error) {
	t.m.RenameLock()
	defer t.m.RenameUnlock()
	return t.checkoutLocked(ctx, fromTree, toTree, opts)
}

// checkoutLocked runs the per-directory checkout with the mount-wide
// rename lock held; recursive calls reuse the caller's lock.
func (t *TreeInode) checkoutLocked(ctx context.Context, fromTree, toTree *objectstore.Tree, opts CheckoutOptions) (CheckoutResult, error) {
	var result CheckoutResult

	t.contentsMu.RLock()
	materialized := t.dir.IsMaterialized()
	treeHash := t.dir.TreeHash
	t.contentsMu.RUnlock()

	// Already tracking the target tree: nothing to walk unless the
	// revision being left disagrees, in which case the walk below
	// re-verifies entry by entry and reports what it finds.
	if !materialized && toTree != nil && treeHash == toTree.Hash {
		if fromTree != nil && treeHash == fromTree.Hash {
			return result, nil
		}
		if fromTree == nil && opts.DryRun {
			return result, nil
		}
	}

	// Names present only locally are untracked in both revisions; the
	// walk deliberately never visits them.
	for _, pair := range mergeTreeEntries(fromTree, toTree) {
		if err := t.checkoutEntry(ctx, pair, opts, &result); err != nil {
			return result, err
		}
	}

	if opts.DryRun || len(result.Conflicts) > 0 && !opts.Force {
		return result, nil
	}
	if err := t.saveOverlayPostCheckout(ctx, toTree); err != nil {
		return result, err
	}
	return result, nil
}

// mergeTreeEntries merge-walks the two sorted trees, yielding one pair per
// name present in either.
func mergeTreeEntries(fromTree, toTree *objectstore.Tree) []entryPair {
	var from, to []objectstore.TreeEntry
	if fromTree != nil {
		from = fromTree.Entries
	}
	if toTree != nil {
		to = toTree.Entries
	}

	pairs := make([]entryPair, 0, len(from)+len(to))
	i, j := 0, 0
	for i < len(from) || j < len(to) {
		switch {
		case j >= len(to) || (i < len(from) && from[i].Name < to[j].Name):
			pairs = append(pairs, entryPair{name: from[i].Name, from: from[i], hasFrom: true})
			i++
		case i >= len(from) || to[j].Name < from[i].Name:
			pairs = append(pairs, entryPair{name: to[j].Name, to: to[j], hasTo: true})
			j++
		default:
			pairs = append(pairs, entryPair{name: from[i].Name, from: from[i], hasFrom: true, to: to[j], hasTo: true})
			i++
			j++
		}
	}
	return pairs
}

// checkoutEntry classifies one name of the merge walk and applies the
// target revision's state for it, recursing into a live child inode when
// one exists.
func (t *TreeInode) checkoutEntry(ctx context.Context, pair entryPair, opts CheckoutOptions, result *CheckoutResult) error {
	// Identical between the two revisions: whatever is local — edits,
	// deletion, nothing — stays as it is. A force checkout still processes
	// the entry, to revert local modifications to the target's state.
	if !opts.Force && pair.hasFrom && pair.hasTo && sameTreeContent(pair.from, pair.to) {
		return nil
	}

	path := t.Path().Join(pair.name)
	le, lok := t.entrySnapshot(pair.name)

	if !lok {
		switch {
		case !pair.hasFrom:
			// New in the target and absent locally: add it.
			if !opts.DryRun {
				t.applyTreeEntry(pair.name, pair.to, false)
				result.Applied++
			}
		case !pair.hasTo:
			// Removed in the target and already removed locally.
			result.Conflicts = append(result.Conflicts, Conflict{Path: path, Kind: ConflictMissingRemoved})
		default:
			// Removed locally, but the target revision modified it.
			result.Conflicts = append(result.Conflicts, Conflict{Path: path, Kind: ConflictRemovedModified})
			if opts.Force && !opts.DryRun {
				t.applyTreeEntry(pair.name, pair.to, false)
				result.Applied++
			}
		}
		return nil
	}

	// Any entry with an inode number is processed through its own inode —
	// materialized entries always have one — so a partially modified
	// subtree is never judged by its top-level hash alone.
	if le.Ino != 0 {
		return t.checkoutChild(ctx, pair, opts, result)
	}

	// Unloaded and never referenced: classify by hash against the
	// revision being left.
	var kind ConflictKind
	hasConflict := false
	switch {
	case !pair.hasFrom:
		kind, hasConflict = ConflictUntrackedAdded, true
	case le.Hash != pair.from.Hash || !entryModeMatchesTreeEntry(le.Mode, pair.from):
		kind, hasConflict = ConflictModifiedModified, true
	}
	if hasConflict {
		// A diverged directory has to be loaded and recursed into so the
		// conflicts are reported for the files that actually differ.
		if le.Mode.IsDir() {
			return t.checkoutChild(ctx, pair, opts, result)
		}
		result.Conflicts = append(result.Conflicts, Conflict{Path: path, Kind: kind})
		if !opts.Force {
			return nil
		}
	}

	if opts.DryRun {
		return nil
	}
	if pair.hasTo {
		t.applyTreeEntry(pair.name, pair.to, true)
	} else {
		t.eraseEntry(pair.name)
	}
	result.Applied++
	return nil
}

// checkoutChild loads the named child and recurses into it: a tree checks
// out its own contents, a file compares against the revision being left.
func (t *TreeInode) checkoutChild(ctx context.Context, pair entryPair, opts CheckoutOptions, result *CheckoutResult) error {
	child, err := t.getOrLoadChild(ctx, pair.name)
	if err != nil {
		return err
	}
	switch c := child.(type) {
	case *TreeInode:
		return t.checkoutTreeChild(ctx, pair, c, opts, result)
	case *FileInode:
		return t.checkoutFileChild(ctx, pair, c, opts, result)
	}
	return common.ErrBug
}

func (t *TreeInode) checkoutFileChild(ctx context.Context, pair entryPair, c *FileInode, opts CheckoutOptions, result *CheckoutResult) error {
	modified, err := t.fileChildModified(ctx, pair, c)
	if err != nil {
		return err
	}

	if modified {
		kind := ConflictModifiedModified
		if !pair.hasFrom {
			kind = ConflictUntrackedAdded
		}
		result.Conflicts = append(result.Conflicts, Conflict{Path: t.Path().Join(pair.name), Kind: kind})
		if !opts.Force {
			return nil
		}
	}

	if opts.DryRun {
		return nil
	}
	switch {
	case !pair.hasTo:
		t.eraseEntry(pair.name)
		c.MarkUnlinked()
	case pair.to.Type.IsTree():
		// file -> directory: the file inode is displaced outright; the
		// entry's identity does not survive a type change.
		t.applyTreeEntry(pair.name, pair.to, false)
		c.MarkUnlinked()
	default:
		c.retarget(ctx, pair.to.Hash, treeEntryMode(pair.to))
		t.applyTreeEntry(pair.name, pair.to, true)
	}
	result.Applied++
	return nil
}

// fileChildModified reports whether the loaded file diverges from the old
// revision's entry. A materialized file falls back to a byte comparison,
// so an overlay copy whose content still matches does not read as a
// conflict.
func (t *TreeInode) fileChildModified(ctx context.Context, pair entryPair, c *FileInode) (bool, error) {
	if !pair.hasFrom {
		return true, nil
	}
	materialized, hash, mode := c.snapshot()
	if !entryModeMatchesTreeEntry(mode, pair.from) {
		return true, nil
	}
	if !materialized {
		return hash != pair.from.Hash, nil
	}
	local, err := c.ReadAll(ctx)
	if err != nil {
		return false, err
	}
	blob, err := t.objStore.GetBlob(ctx, pair.from.Hash)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(local, blob.Data), nil
}

func (t *TreeInode) checkoutTreeChild(ctx context.Context, pair entryPair, c *TreeInode, opts CheckoutOptions, result *CheckoutResult) error {
	var oldTree, newTree *objectstore.Tree
	if pair.hasFrom && pair.from.Type.IsTree() {
		tr, err := t.objStore.GetTree(ctx, pair.from.Hash)
		if err != nil {
			return err
		}
		oldTree = tr
	}
	if pair.hasTo && pair.to.Type.IsTree() {
		tr, err := t.objStore.GetTree(ctx, pair.to.Hash)
		if err != nil {
			return err
		}
		newTree = tr
	}

	if newTree != nil {
		// directory -> directory: just recurse.
		sub, err := c.checkoutLocked(ctx, oldTree, newTree, opts)
		result.Conflicts = append(result.Conflicts, sub.Conflicts...)
		result.Applied += sub.Applied
		return err
	}

	// The target erases this directory or replaces it with a file. Either
	// way it must empty first: checking out against an absent tree removes
	// everything removable and reports conflicts for the rest.
	sub, err := c.checkoutLocked(ctx, oldTree, nil, opts)
	result.Conflicts = append(result.Conflicts, sub.Conflicts...)
	result.Applied += sub.Applied
	if err != nil {
		return err
	}

	if opts.DryRun {
		if !c.wouldEmpty(oldTree, opts) {
			result.Conflicts = append(result.Conflicts, Conflict{Path: t.Path().Join(pair.name), Kind: ConflictDirectoryNotEmpty})
		}
		return nil
	}

	c.contentsMu.RLock()
	empty := c.dir.Entries.Len() == 0
	c.contentsMu.RUnlock()
	if !empty {
		// Untracked children survive even a force checkout; the directory
		// stays.
		result.Conflicts = append(result.Conflicts, Conflict{Path: t.Path().Join(pair.name), Kind: ConflictDirectoryNotEmpty})
		return nil
	}

	if pair.hasTo {
		t.applyTreeEntry(pair.name, pair.to, false)
	} else {
		t.eraseEntry(pair.name)
	}
	c.MarkUnlinked()
	result.Applied++
	return nil
}

// wouldEmpty predicts, for a dry run, whether checking this directory out
// against an absent target would remove every entry. Untracked entries
// always survive; locally modified tracked entries survive unless the run
// is forced.
func (c *TreeInode) wouldEmpty(oldTree *objectstore.Tree, opts CheckoutOptions) bool {
	for _, e := range c.snapshotEntries() {
		var fe objectstore.TreeEntry
		fok := false
		if oldTree != nil {
			fe, fok = oldTree.Lookup(e.Name)
		}
		if !fok {
			return false
		}
		unchanged := !e.Materialized && e.Hash == fe.Hash && entryModeMatchesTreeEntry(e.Mode, fe)
		if !unchanged && !opts.Force {
			return false
		}
	}
	return true
}

// entrySnapshot reads one entry under the contents read lock.
func (t *TreeInode) entrySnapshot(name common.PathComponent) (overlay.Entry, bool) {
	t.contentsMu.RLock()
	defer t.contentsMu.RUnlock()
	return t.dir.Entries.Get(name)
}

// applyTreeEntry records te as name's state: unmaterialized, tracked by
// te's hash. The entry's inode number survives when keepIno is set (a
// content retarget preserves identity) and is dropped otherwise (a fresh
// or type-changed entry is a new identity).
func (t *TreeInode) applyTreeEntry(name common.PathComponent, te objectstore.TreeEntry, keepIno bool) {
	t.contentsMu.Lock()
	defer t.contentsMu.Unlock()
	entry, ok := t.dir.Entries.Get(name)
	if !ok || !keepIno {
		entry = overlay.Entry{Name: name}
	}
	entry.Materialized = false
	entry.Hash = te.Hash
	entry.Mode = treeEntryMode(te)
	t.dir.Entries.Set(name, entry)
}

// eraseEntry removes name from the entry table.
func (t *TreeInode) eraseEntry(name common.PathComponent) {
	t.contentsMu.Lock()
	defer t.contentsMu.Unlock()
	t.dir.Entries.Delete(name)
}

func sameTreeContent(a, b objectstore.TreeEntry) bool {
	return a.Hash == b.Hash && a.Type == b.Type
}

func treeEntryMode(te objectstore.TreeEntry) overlay.Mode {
	switch te.Type {
	case objectstore.EntryTree:
		return overlay.NewMode(overlay.FileTypeDir, 0o755)
	case objectstore.EntryExecutable:
		return overlay.NewMode(overlay.FileTypeExecutable, 0o755)
	case objectstore.EntrySymlink:
		return overlay.NewMode(overlay.FileTypeSymlink, 0o777)
	default:
		return overlay.NewMode(overlay.FileTypeRegular, 0o644)
	}
}

// saveOverlayPostCheckout persists the directory's updated entry table
// and, if it now exactly matches toTree, dematerializes back to a
// tree-tracking directory (the checkout-collapse step).
func (t *TreeInode) saveOverlayPostCheckout(ctx context.Context, toTree *objectstore.Tree) error {
	t.contentsMu.Lock()
	matches := toTree != nil && dirMatchesTree(t.dir, toTree)
	if matches {
		t.dir.Dematerialize(toTree.Hash)
	}
	err := t.overlayStore.SaveDir(ctx, t.Ino(), t.dir)
	t.contentsMu.Unlock()
	if err != nil {
		return err
	}

	if !matches {
		return nil
	}
	parent := t.Parent()
	if parent == nil || t.IsUnlinked() {
		return nil
	}
	return parent.childDematerializedLocked(ctx, t.Name(), toTree.Hash)
}

func dirMatchesTree(d *overlay.Dir, tree *objectstore.Tree) bool {
	if d.Entries.Len() != len(tree.Entries) {
		return false
	}
	for _, te := range tree.Entries {
		e, ok := d.Entries.Get(te.Name)
		if !ok || e.Materialized || e.Hash != te.Hash || !entryModeMatchesTreeEntry(e.Mode, te) {
			return false
		}
	}
	return true
}
