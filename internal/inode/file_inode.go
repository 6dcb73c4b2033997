package inode

import (
	"context"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"treemount/internal/common"
	"treemount/internal/objectstore"
	"treemount/internal/overlay"
)

// FileInode is a regular file, symlink, or socket's in-memory state:
// either unmaterialized (content identified by Hash, fetched lazily from
// the object store) or materialized (bytes owned by the overlay).
type FileInode struct {
	InodeBase

	m            *Map
	overlayStore overlay.Store
	objStore     objectstore.Store

	mu           sync.RWMutex
	mode         overlay.Mode
	materialized bool
	hash         objectstore.Hash
	size         int64
	sizeKnown    bool
	timestamps   overlay.Timestamps
}

func newFileInode(m *Map, ino InodeNumber, parent *TreeInode, name common.PathComponent, mode overlay.Mode, hash objectstore.Hash, materialized bool) *FileInode {
	return &FileInode{
		InodeBase:    newInodeBase(ino, parent, name, m.nextGeneration()),
		m:            m,
		overlayStore: m.overlayStore,
		objStore:     m.objStore,
		mode:         mode,
		materialized: materialized,
		hash:         hash,
	}
}

// Attr returns the file's current attributes. The size is computed lazily
// on first ask: an unmaterialized file's size lives in its blob, a
// materialized one's in the overlay, and neither is consulted until
// something actually stats the file.
func (f *FileInode) Attr(ctx context.Context) (Attr, error) {
	f.mu.RLock()
	known, materialized, hash := f.sizeKnown, f.materialized, f.hash
	f.mu.RUnlock()

	if !known {
		var size int64
		if materialized {
			h, err := f.overlayStore.OpenFile(ctx, f.Ino(), false)
			if err != nil {
				return Attr{}, err
			}
			size, err = h.Size()
			h.Close()
			if err != nil {
				return Attr{}, err
			}
		} else if !hash.IsZero() && f.mode.IsRegular() {
			blob, err := f.objStore.GetBlob(ctx, hash)
			if err != nil {
				return Attr{}, err
			}
			size = int64(len(blob.Data))
		}
		f.mu.Lock()
		if !f.sizeKnown {
			f.size = size
			f.sizeKnown = true
		}
		f.mu.Unlock()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return Attr{Ino: f.Ino(), Mode: f.mode, Size: f.size, Nlink: 1, Timestamps: f.timestamps}, nil
}

// SetAttr applies mode/size changes, materializing first if the size
// changes (a truncate is a write).
func (f *FileInode) SetAttr(ctx context.Context, mode *overlay.Mode, size *int64) (err error) {
	defer recoverInodePanic("FileInode.SetAttr", &err)

	if size != nil {
		if err := f.Truncate(ctx, *size); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if mode != nil {
		f.mode = overlay.NewMode(f.mode.Type(), mode.Perm())
	}
	return nil
}

// Readlink returns the symlink target. Valid only for symlink entries.
func (f *FileInode) Readlink(ctx context.Context) (string, error) {
	if !f.mode.IsSymlink() {
		return "", common.ErrInvalid
	}
	f.mu.RLock()
	materialized, hash := f.materialized, f.hash
	f.mu.RUnlock()

	if materialized {
		return f.overlayStore.ReadSymlink(ctx, f.Ino())
	}
	blob, err := f.objStore.GetBlob(ctx, hash)
	if err != nil {
		return "", err
	}
	return string(blob.Data), nil
}

// Read fills p from offset off, fetching from the object store if the
// file is unmaterialized.
func (f *FileInode) Read(ctx context.Context, p []byte, off int64) (int, error) {
	f.mu.RLock()
	materialized, hash := f.materialized, f.hash
	f.mu.RUnlock()

	if materialized {
		h, err := f.overlayStore.OpenFile(ctx, f.Ino(), false)
		if err != nil {
			return 0, err
		}
		defer h.Close()
		n, err := h.ReadAt(p, off)
		if err != nil && n == 0 {
			return 0, err
		}
		return n, nil
	}

	blob, err := f.objStore.GetBlob(ctx, hash)
	if err != nil {
		return 0, err
	}
	if off >= int64(len(blob.Data)) {
		return 0, nil
	}
	n := copy(p, blob.Data[off:])
	return n, nil
}

// Write materializes the file (propagating up the parent chain) and then
// writes p at offset off.
func (f *FileInode) Write(ctx context.Context, p []byte, off int64) (n int, err error) {
	defer recoverInodePanic("FileInode.Write", &err)

	if err := f.materialize(ctx); err != nil {
		return 0, err
	}

	h, err := f.overlayStore.OpenFile(ctx, f.Ino(), true)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	n, err = h.WriteAt(p, off)
	if err != nil {
		return n, err
	}

	f.mu.Lock()
	if sz, serr := h.Size(); serr == nil {
		f.size = sz
		f.sizeKnown = true
	} else if end := off + int64(n); end > f.size {
		f.size = end
	}
	f.mu.Unlock()
	return n, nil
}

// Truncate materializes the file and resizes it.
func (f *FileInode) Truncate(ctx context.Context, size int64) error {
	if err := f.materialize(ctx); err != nil {
		return err
	}
	h, err := f.overlayStore.OpenFile(ctx, f.Ino(), true)
	if err != nil {
		return err
	}
	defer h.Close()
	if err := h.Truncate(size); err != nil {
		return err
	}
	f.mu.Lock()
	f.size = size
	f.sizeKnown = true
	f.mu.Unlock()
	return nil
}

// materialize promotes this file from object-store-backed to
// overlay-backed, copying existing bytes across exactly once, then
// notifies the parent so materialization propagates up the tree.
func (f *FileInode) materialize(ctx context.Context) error {
	f.mu.RLock()
	already := f.materialized
	f.mu.RUnlock()
	if already {
		return nil
	}

	parent := f.Parent()
	if parent == nil {
		return common.ErrStale
	}
	if err := parent.materialize(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	if f.materialized {
		f.mu.Unlock()
		return nil
	}
	hash := f.hash
	f.mu.Unlock()

	h, err := f.overlayStore.OpenFile(ctx, f.Ino(), true)
	if err != nil {
		return err
	}
	if !f.mode.IsDir() && !hash.IsZero() && f.mode.IsRegular() {
		blob, err := f.objStore.GetBlob(ctx, hash)
		if err == nil {
			if _, werr := h.WriteAt(blob.Data, 0); werr != nil {
				h.Close()
				return werr
			}
		} else {
			log.WithError(err).WithField("ino", f.Ino()).Warn("inode: materialize: source blob missing, starting empty")
		}
	}
	h.Close()

	f.mu.Lock()
	f.materialized = true
	f.hash = objectstore.ZeroHash
	f.mu.Unlock()

	return parent.childMaterialized(ctx, f.Name(), f.Ino())
}

// retarget repoints the file at a different tracked blob during checkout,
// dropping any overlay bytes it owned. The caller holds the mount-wide
// rename lock.
func (f *FileInode) retarget(ctx context.Context, hash objectstore.Hash, mode overlay.Mode) {
	f.mu.Lock()
	wasMaterialized := f.materialized
	f.materialized = false
	f.hash = hash
	f.mode = mode
	f.size = 0
	f.sizeKnown = false
	f.mu.Unlock()

	if wasMaterialized {
		if err := f.overlayStore.RemoveFile(ctx, f.Ino()); err != nil {
			log.WithError(err).WithField("ino", f.Ino()).Warn("inode: checkout: failed to remove overlay content")
		}
	}
}

// ReadAll returns the file's entire current content, used by the diff
// engine (byte comparison against a tracked blob) and by the ignore stack
// (reading a .gitignore file's lines).
func (f *FileInode) ReadAll(ctx context.Context) ([]byte, error) {
	f.mu.RLock()
	materialized, hash := f.materialized, f.hash
	f.mu.RUnlock()

	if !materialized {
		blob, err := f.objStore.GetBlob(ctx, hash)
		if err != nil {
			return nil, err
		}
		return blob.Data, nil
	}

	h, err := f.overlayStore.OpenFile(ctx, f.Ino(), false)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	size, err := h.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, err := h.ReadAt(buf, 0); err != nil && err != io.EOF {
			return nil, err
		}
	}
	return buf, nil
}

// snapshot returns the diff/checkout engine's view of this
// file: whether it is materialized, and if not, its tracked hash/mode.
func (f *FileInode) snapshot() (materialized bool, hash objectstore.Hash, mode overlay.Mode) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.materialized, f.hash, f.mode
}
