// Package dispatch adapts the inode graph to the filesystem bridge: it
// implements billy.Filesystem (the surface go-nfs serves) on top of
// internal/inode, translating path-based bridge operations into inode
// method calls and sentinel errors into the syscall errnos clients expect.
package dispatch

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"time"

	billy "github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"
	nfsfile "github.com/willscott/go-nfs/file"

	"treemount/internal/common"
	"treemount/internal/inode"
	"treemount/internal/overlay"
)

// Adapter implements billy.Filesystem over an inode.Map. Every exported
// method mints a fresh RequestContext so the inode graph can distinguish
// bridge-originated calls (which must not redundantly invalidate the
// bridge's caches) from internal ones.
type Adapter struct {
	m   *inode.Map
	uid uint32 // cached os.Getuid() — avoids a syscall per FileInfo.Sys()
	gid uint32
}

// NewAdapter creates an adapter serving m.
func NewAdapter(m *inode.Map) *Adapter {
	return &Adapter{
		m:   m,
		uid: uint32(os.Getuid()),
		gid: uint32(os.Getgid()),
	}
}

// Map exposes the adapter's underlying inode map (used by the daemon's
// sweep loop and by the protocol-level Lookup/Forget surface).
func (a *Adapter) Map() *inode.Map { return a.m }

// requestCtx mints the per-request context threaded into every inode call.
func (a *Adapter) requestCtx() context.Context {
	return NewRequestContext(context.Background(), nil)
}

// resolve walks filename from the root.
func (a *Adapter) resolve(ctx context.Context, filename string) (inode.Inode, error) {
	return a.m.Resolve(ctx, common.NewRelativePath(filename))
}

// resolveParent resolves filename's parent directory and returns it with
// filename's final component.
func (a *Adapter) resolveParent(ctx context.Context, filename string) (*inode.TreeInode, common.PathComponent, error) {
	rel := common.NewRelativePath(filename)
	if rel == "" {
		return nil, "", EINVAL
	}
	name, err := common.NewPathComponent(string(rel.Base()))
	if err != nil {
		return nil, "", EINVAL
	}
	in, err := a.m.Resolve(ctx, rel.Parent())
	if err != nil {
		return nil, "", err
	}
	tree, ok := in.(*inode.TreeInode)
	if !ok {
		return nil, "", common.ErrNotDir
	}
	return tree, name, nil
}

func (a *Adapter) Create(filename string) (billy.File, error) {
	return a.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
}

func (a *Adapter) Open(filename string) (billy.File, error) {
	return a.OpenFile(filename, os.O_RDONLY, 0)
}

func (a *Adapter) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	ctx := a.requestCtx()
	if log.IsLevelEnabled(log.TraceLevel) {
		log.Tracef("[Adapter.OpenFile] filename=%q flag=%#x", filename, flag)
	}

	in, err := a.resolve(ctx, filename)
	switch {
	case err == nil:
		if flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 {
			return nil, EEXIST
		}
	case isNotExist(err) && flag&os.O_CREATE != 0:
		parent, name, perr := a.resolveParent(ctx, filename)
		if perr != nil {
			return nil, toErrno(perr)
		}
		f, cerr := parent.Create(ctx, name, uint32(perm)&0o777)
		if cerr != nil {
			return nil, toErrno(cerr)
		}
		in = f
	default:
		return nil, toErrno(err)
	}

	f, ok := in.(*inode.FileInode)
	if !ok {
		return nil, EISDIR
	}
	if flag&os.O_TRUNC != 0 {
		if err := f.Truncate(ctx, 0); err != nil {
			return nil, toErrno(err)
		}
	}
	h := &AdapterFile{adapter: a, file: f, name: filename, flags: flag}
	if flag&os.O_APPEND != 0 {
		attr, aerr := f.Attr(ctx)
		if aerr != nil {
			return nil, toErrno(aerr)
		}
		h.offset = attr.Size
	}
	return h, nil
}

func (a *Adapter) Stat(filename string) (os.FileInfo, error) {
	ctx := a.requestCtx()
	in, err := a.resolve(ctx, filename)
	if err != nil {
		return nil, toErrno(err)
	}
	return a.fileInfo(ctx, path.Base(path.Clean("/"+filename)), in)
}

// Lstat and Stat are identical here: the inode graph never follows
// symlinks on the server side, the bridge's client does.
func (a *Adapter) Lstat(filename string) (os.FileInfo, error) {
	return a.Stat(filename)
}

func (a *Adapter) fileInfo(ctx context.Context, name string, in inode.Inode) (os.FileInfo, error) {
	var attr inode.Attr
	var err error
	switch n := in.(type) {
	case *inode.TreeInode:
		attr, err = n.Attr(ctx)
	case *inode.FileInode:
		attr, err = n.Attr(ctx)
	default:
		err = common.ErrBug
	}
	if err != nil {
		return nil, toErrno(err)
	}
	if name == "/" || name == "." {
		name = "/"
	}
	return &AdapterFileInfo{name: name, attr: attr, uid: a.uid, gid: a.gid}, nil
}

func (a *Adapter) Rename(oldpath, newpath string) error {
	ctx := a.requestCtx()
	srcParent, srcName, err := a.resolveParent(ctx, oldpath)
	if err != nil {
		return toErrno(err)
	}
	destParent, destName, err := a.resolveParent(ctx, newpath)
	if err != nil {
		return toErrno(err)
	}
	return toErrno(srcParent.Rename(ctx, srcName, destParent, destName))
}

// Remove handles both unlink and rmdir: the NFS layer routes both through
// billy's single Remove, so the entry's own type picks the operation.
func (a *Adapter) Remove(filename string) error {
	ctx := a.requestCtx()
	parent, name, err := a.resolveParent(ctx, filename)
	if err != nil {
		return toErrno(err)
	}
	// The type probe is a nested self-call, not a fresh client request.
	in, err := parent.GetChild(WithBridgeCall(ctx), name)
	if err != nil {
		return toErrno(err)
	}
	if _, isDir := in.(*inode.TreeInode); isDir {
		return toErrno(parent.Rmdir(ctx, name))
	}
	return toErrno(parent.Unlink(ctx, name))
}

func (a *Adapter) Join(elem ...string) string {
	return path.Join(elem...)
}

func (a *Adapter) TempFile(dir, prefix string) (billy.File, error) {
	return nil, os.ErrInvalid
}

func (a *Adapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	ctx := a.requestCtx()
	in, err := a.resolve(ctx, dirname)
	if err != nil {
		return nil, toErrno(err)
	}
	tree, ok := in.(*inode.TreeInode)
	if !ok {
		return nil, ENOTDIR
	}
	entries, err := tree.ReadDir(ctx)
	if err != nil {
		return nil, toErrno(err)
	}

	result := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		child, cerr := tree.GetChild(ctx, e.Name)
		if cerr != nil {
			log.WithError(cerr).WithField("name", string(e.Name)).Warn("dispatch: readdir: skipping unloadable entry")
			continue
		}
		fi, ferr := a.fileInfo(ctx, string(e.Name), child)
		if ferr != nil {
			continue
		}
		result = append(result, fi)
	}
	return result, nil
}

func (a *Adapter) MkdirAll(filename string, perm os.FileMode) error {
	ctx := a.requestCtx()
	rel := common.NewRelativePath(filename)
	if rel == "" {
		return nil
	}

	cur := a.m.Root()
	for _, comp := range rel.Components() {
		in, err := cur.GetChild(ctx, comp)
		if errors.Is(err, common.ErrNotFound) {
			in, err = cur.Mkdir(ctx, comp, uint32(perm)&0o777)
		}
		if err != nil {
			return toErrno(err)
		}
		next, ok := in.(*inode.TreeInode)
		if !ok {
			return ENOTDIR
		}
		cur = next
	}
	return nil
}

func (a *Adapter) Symlink(target, link string) error {
	ctx := a.requestCtx()
	parent, name, err := a.resolveParent(ctx, link)
	if err != nil {
		return toErrno(err)
	}
	_, err = parent.Symlink(ctx, name, target)
	return toErrno(err)
}

func (a *Adapter) Readlink(link string) (string, error) {
	ctx := a.requestCtx()
	in, err := a.resolve(ctx, link)
	if err != nil {
		return "", toErrno(err)
	}
	f, ok := in.(*inode.FileInode)
	if !ok {
		return "", EINVAL
	}
	target, err := f.Readlink(ctx)
	return target, toErrno(err)
}

func (a *Adapter) Chroot(path string) (billy.Filesystem, error) {
	return nil, os.ErrInvalid
}

func (a *Adapter) Root() string {
	return "/"
}

// billy.Change interface

func (a *Adapter) Chmod(name string, mode os.FileMode) error {
	ctx := a.requestCtx()
	in, err := a.resolve(ctx, name)
	if err != nil {
		return toErrno(err)
	}
	f, ok := in.(*inode.FileInode)
	if !ok {
		// Directory permission bits are not tracked per-mount; accept and
		// ignore, as with chown/chtimes below.
		return nil
	}
	m := overlay.NewMode(overlay.FileTypeRegular, uint32(mode)&0o777)
	return toErrno(f.SetAttr(ctx, &m, nil))
}

func (a *Adapter) Lchown(name string, uid, gid int) error            { return nil }
func (a *Adapter) Chown(name string, uid, gid int) error             { return nil }
func (a *Adapter) Chtimes(name string, atime, mtime time.Time) error { return nil }

func (a *Adapter) Capabilities() billy.Capability {
	return billy.WriteCapability | billy.ReadCapability |
		billy.ReadAndWriteCapability | billy.SeekCapability | billy.TruncateCapability
}

// AdapterFile is one open handle on a FileInode, carrying the seek offset
// billy.File requires.
type AdapterFile struct {
	adapter *Adapter
	file    *inode.FileInode
	name    string
	flags   int
	offset  int64
}

func (f *AdapterFile) Name() string { return f.name }

func (f *AdapterFile) Write(p []byte) (n int, err error) {
	n, err = f.file.Write(f.adapter.requestCtx(), p, f.offset)
	if err == nil {
		f.offset += int64(n)
	}
	return n, toErrno(err)
}

func (f *AdapterFile) Read(p []byte) (n int, err error) {
	n, err = f.file.Read(f.adapter.requestCtx(), p, f.offset)
	if err == nil {
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		f.offset += int64(n)
	}
	return n, toErrno(err)
}

func (f *AdapterFile) ReadAt(p []byte, off int64) (n int, err error) {
	n, err = f.file.Read(f.adapter.requestCtx(), p, off)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, toErrno(err)
}

func (f *AdapterFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		attr, err := f.file.Attr(f.adapter.requestCtx())
		if err != nil {
			return 0, toErrno(err)
		}
		f.offset = attr.Size + offset
	}
	return f.offset, nil
}

func (f *AdapterFile) Close() error { return nil }

func (f *AdapterFile) Lock() error   { return nil }
func (f *AdapterFile) Unlock() error { return nil }

func (f *AdapterFile) Truncate(size int64) error {
	return toErrno(f.file.Truncate(f.adapter.requestCtx(), size))
}

// AdapterFileInfo renders an inode.Attr as the os.FileInfo go-nfs reads,
// with Sys() returning the file.FileInfo go-nfs requires for stable file
// ids across the wire.
type AdapterFileInfo struct {
	name string
	attr inode.Attr
	uid  uint32
	gid  uint32
}

func (fi *AdapterFileInfo) Name() string { return fi.name }
func (fi *AdapterFileInfo) Size() int64  { return fi.attr.Size }

func (fi *AdapterFileInfo) Mode() os.FileMode {
	perm := os.FileMode(fi.attr.Mode.Perm())
	switch {
	case fi.attr.Mode.IsDir():
		return os.ModeDir | perm
	case fi.attr.Mode.IsSymlink():
		return os.ModeSymlink | perm
	case fi.attr.Mode.IsSocket():
		return os.ModeSocket | perm
	default:
		return perm
	}
}

func (fi *AdapterFileInfo) ModTime() time.Time { return fi.attr.Timestamps.Mtime }
func (fi *AdapterFileInfo) IsDir() bool        { return fi.attr.Mode.IsDir() }

func (fi *AdapterFileInfo) Sys() interface{} {
	return &nfsfile.FileInfo{
		Nlink:  fi.attr.Nlink,
		UID:    fi.uid,
		GID:    fi.gid,
		Fileid: uint64(fi.attr.Ino),
	}
}

var (
	_ billy.Filesystem = (*Adapter)(nil)
	_ billy.Change     = (*Adapter)(nil)
	_ billy.File       = (*AdapterFile)(nil)
	_ os.FileInfo      = (*AdapterFileInfo)(nil)
)
