package inode

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"treemount/internal/common"
	"treemount/internal/ignore"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

// gitignoreFileName is the one file name the diff engine treats specially:
// its lines become an ignore-stack layer scoped to the directory it was
// found in.
const gitignoreFileName = common.PathComponent(".gitignore")

// DiffCallbacks receives every path the diff engine classifies. Any nil
// field is simply not called for that classification.
type DiffCallbacks struct {
	Untracked func(path common.RelativePath, isDir bool)
	Ignored   func(path common.RelativePath, isDir bool)
	Modified  func(path common.RelativePath)
	Removed   func(path common.RelativePath, isDir bool)
	Error     func(path common.RelativePath, err error)
}

// DiffOptions tunes the diff engine's behavior.
type DiffOptions struct {
	// IncludeIgnored, when true, reports ignored paths through Untracked
	// instead of Ignored (used by "status --ignored").
	IncludeIgnored bool
}

// Diff walks this directory against target (the corresponding source
// control tree, or nil if this subtree was added wholesale), classifying
// every contained path. Per directory:
// a fast prune for untouched unmaterialized subtrees, a merge-walk of
// sorted local entries against sorted tree entries, ignore-stack
// inheritance via a pushed .gitignore layer, and concurrent recursion into
// every directory or changed file found along the way.
func (t *TreeInode) Diff(ctx context.Context, target *objectstore.Tree, stack *ignore.Stack, opts DiffOptions, cb DiffCallbacks) {
	t.contentsMu.RLock()
	materialized := t.dir.IsMaterialized()
	treeHash := t.dir.TreeHash
	t.contentsMu.RUnlock()

	if !materialized && target != nil && treeHash == target.Hash {
		return // identical to source control and never touched: prune.
	}

	path := t.Path()
	entries := t.snapshotEntries()
	stack = t.pushIgnoreFile(ctx, path, entries, stack)

	var targetEntries []objectstore.TreeEntry
	if target != nil {
		targetEntries = target.Entries
	}

	var jobs []func()
	var cbMu sync.Mutex

	i, j := 0, 0
	for i < len(targetEntries) || j < len(entries) {
		switch {
		case j >= len(entries) || (i < len(targetEntries) && targetEntries[i].Name < entries[j].Name):
			se := targetEntries[i]
			t.deferRemoved(ctx, path, se, &jobs, cb, &cbMu)
			i++
		case i >= len(targetEntries) || (j < len(entries) && entries[j].Name < targetEntries[i].Name):
			le := entries[j]
			childPath := path.Join(le.Name)
			isDir := le.Mode.IsDir()
			ignored := stack.Match(childPath, isDir)
			switch {
			case ignored && !opts.IncludeIgnored:
				invoke(&cbMu, func() {
					if cb.Ignored != nil {
						cb.Ignored(childPath, isDir)
					}
				})
			default:
				invoke(&cbMu, func() {
					if cb.Untracked != nil {
						cb.Untracked(childPath, isDir)
					}
				})
			}
			j++
		default:
			se, le := targetEntries[i], entries[j]
			t.deferCommon(ctx, path, se, le, stack, opts, &jobs, cb, &cbMu)
			i++
			j++
		}
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		go func() {
			defer wg.Done()
			job()
		}()
	}
	wg.Wait()
}

func invoke(mu *sync.Mutex, fn func()) {
	mu.Lock()
	defer mu.Unlock()
	fn()
}

// deferRemoved queues reporting se (present only in source control) and
// everything beneath it as removed.
func (t *TreeInode) deferRemoved(ctx context.Context, path common.RelativePath, se objectstore.TreeEntry, jobs *[]func(), cb DiffCallbacks, cbMu *sync.Mutex) {
	childPath := path.Join(se.Name)
	*jobs = append(*jobs, func() {
		t.walkRemovedTree(ctx, childPath, se, cb, cbMu)
	})
}

func (t *TreeInode) walkRemovedTree(ctx context.Context, path common.RelativePath, se objectstore.TreeEntry, cb DiffCallbacks, cbMu *sync.Mutex) {
	isDir := se.Type.IsTree()
	invoke(cbMu, func() {
		if cb.Removed != nil {
			cb.Removed(path, isDir)
		}
	})
	if !isDir {
		return
	}
	tree, err := t.objStore.GetTree(ctx, se.Hash)
	if err != nil {
		invoke(cbMu, func() {
			if cb.Error != nil {
				cb.Error(path, err)
			}
		})
		return
	}
	for _, child := range tree.Entries {
		t.walkRemovedTree(ctx, path.Join(child.Name), child, cb, cbMu)
	}
}

// deferCommon handles a name present both locally and in source control:
// an unmaterialized, unchanged entry is a fast-path skip; an unmaterialized
// entry whose mode changed but content didn't is an immediate modified
// report; everything else (loaded, materialized, or content-changed) is
// deferred.
func (t *TreeInode) deferCommon(ctx context.Context, path common.RelativePath, se objectstore.TreeEntry, le overlay.Entry, stack *ignore.Stack, opts DiffOptions, jobs *[]func(), cb DiffCallbacks, cbMu *sync.Mutex) {
	childPath := path.Join(le.Name)
	sameHash := le.Hash == se.Hash
	modeMatches := entryModeMatchesTreeEntry(le.Mode, se)

	if !le.Materialized && sameHash && modeMatches {
		return
	}
	if !le.Materialized && sameHash && !modeMatches {
		*jobs = append(*jobs, func() {
			invoke(cbMu, func() {
				if cb.Modified != nil {
					cb.Modified(childPath)
				}
			})
		})
		return
	}

	*jobs = append(*jobs, func() {
		t.diffEntry(ctx, childPath, le, se, stack, opts, cb, cbMu)
	})
}

func entryModeMatchesTreeEntry(mode overlay.Mode, se objectstore.TreeEntry) bool {
	switch se.Type {
	case objectstore.EntryTree:
		return mode.IsDir()
	case objectstore.EntryExecutable:
		return mode.Type() == overlay.FileTypeExecutable
	case objectstore.EntrySymlink:
		return mode.IsSymlink()
	default:
		return mode.Type() == overlay.FileTypeRegular
	}
}

func (t *TreeInode) diffEntry(ctx context.Context, childPath common.RelativePath, le overlay.Entry, se objectstore.TreeEntry, stack *ignore.Stack, opts DiffOptions, cb DiffCallbacks, cbMu *sync.Mutex) {
	reportErr := func(err error) {
		invoke(cbMu, func() {
			if cb.Error != nil {
				cb.Error(childPath, err)
			}
		})
	}

	if le.Mode.IsDir() {
		child, err := t.getOrLoadChild(ctx, le.Name)
		if err != nil {
			reportErr(err)
			return
		}
		childTree, ok := child.(*TreeInode)
		if !ok {
			reportErr(common.ErrBug)
			return
		}
		var targetTree *objectstore.Tree
		if se.Type.IsTree() {
			tt, err := t.objStore.GetTree(ctx, se.Hash)
			if err != nil {
				reportErr(err)
				return
			}
			targetTree = tt
		}
		childTree.Diff(ctx, targetTree, stack, opts, cb)
		return
	}

	if !le.Materialized {
		if le.Hash != se.Hash {
			invoke(cbMu, func() {
				if cb.Modified != nil {
					cb.Modified(childPath)
				}
			})
		}
		return
	}

	child, err := t.getOrLoadChild(ctx, le.Name)
	if err != nil {
		reportErr(err)
		return
	}
	fi, ok := child.(*FileInode)
	if !ok {
		reportErr(common.ErrBug)
		return
	}
	localBytes, err := fi.ReadAll(ctx)
	if err != nil {
		reportErr(err)
		return
	}
	blob, err := t.objStore.GetBlob(ctx, se.Hash)
	if err != nil {
		reportErr(err)
		return
	}
	if !bytes.Equal(localBytes, blob.Data) {
		invoke(cbMu, func() {
			if cb.Modified != nil {
				cb.Modified(childPath)
			}
		})
	}
}

// pushIgnoreFile looks for a ".gitignore" entry among entries and, if
// present and readable, pushes its lines onto stack. Any failure to load
// it is logged and treated as "no rules added" rather than failing the
// whole diff.
func (t *TreeInode) pushIgnoreFile(ctx context.Context, path common.RelativePath, entries []overlay.Entry, stack *ignore.Stack) *ignore.Stack {
	for _, e := range entries {
		if e.Name != gitignoreFileName {
			continue
		}
		if e.Mode.IsDir() {
			inodeLog().WithField("path", string(path)).Warn("inode: diff: .gitignore is a directory, skipping")
			return stack
		}
		child, err := t.getOrLoadChild(ctx, e.Name)
		if err != nil {
			inodeLog().WithError(err).WithField("path", string(path)).Warn("inode: diff: failed to load .gitignore")
			return stack
		}
		fi, ok := child.(*FileInode)
		if !ok {
			return stack
		}
		data, err := fi.ReadAll(ctx)
		if err != nil {
			inodeLog().WithError(err).WithField("path", string(path)).Warn("inode: diff: failed to read .gitignore")
			return stack
		}
		return stack.Push(path, strings.Split(string(data), "\n"))
	}
	return stack
}
