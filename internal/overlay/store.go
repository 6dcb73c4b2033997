package overlay

import (
	"context"
	"errors"
	"io"

	"treemount/internal/common"
)

// ErrNotFound is returned when a requested inode's Dir/file data is not
// present in the overlay.
var ErrNotFound = errors.New("overlay: not found")

// FileHandle is an open regular file's content in the overlay, seekable and
// truncatable the way the dispatch adapter's billy.File needs.
type FileHandle interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Truncate(size int64) error
	Size() (int64, error)
}

// Store is the overlay's persistence interface: durable Dir listings for
// materialized directories, durable byte content for materialized files,
// and the inode-number allocator. Every method may be called concurrently;
// implementations serialize as needed internally.
//
// Store is an external collaborator from the inode graph's point of view —
// this
// package provides a SQLite-backed production implementation and an
// in-memory one for tests.
type Store interface {
	// AllocateInodeNumber returns the next never-before-used inode number.
	AllocateInodeNumber(ctx context.Context) (InodeNumber, error)

	// LoadDir returns the persisted Dir for ino, or ErrNotFound if ino has
	// no materialized directory record.
	LoadDir(ctx context.Context, ino InodeNumber) (*Dir, error)

	// SaveDir persists dir as the listing for ino, creating or overwriting
	// the record.
	SaveDir(ctx context.Context, ino InodeNumber, dir *Dir) error

	// RemoveDir deletes ino's directory record.
	RemoveDir(ctx context.Context, ino InodeNumber) error

	// OpenFile opens ino's materialized file content for read/write,
	// creating an empty record first if create is true and none exists.
	OpenFile(ctx context.Context, ino InodeNumber, create bool) (FileHandle, error)

	// RemoveFile deletes ino's file content record, if any.
	RemoveFile(ctx context.Context, ino InodeNumber) error

	// WriteSymlink persists target as ino's symlink target.
	WriteSymlink(ctx context.Context, ino InodeNumber, target string) error

	// ReadSymlink returns ino's persisted symlink target.
	ReadSymlink(ctx context.Context, ino InodeNumber) (string, error)

	// Close releases any resources (database handles, open files) held by
	// the store.
	Close() error
}

// direntHeader is the identifier byte EncodeDir/DecodeDir prepend to a
// serialized Dir, ahead of the timestamp header and the entry list.
const direntHeader byte = 0xD1

// EncodeDir serializes dir into the header-byte-plus-timestamps-plus-entries
// layout used by the overlay's directory records.
func EncodeDir(dir *Dir) []byte {
	var buf []byte
	buf = append(buf, direntHeader)
	buf = appendTime(buf, dir.Timestamps.Atime)
	buf = appendTime(buf, dir.Timestamps.Ctime)
	buf = appendTime(buf, dir.Timestamps.Mtime)

	if dir.IsMaterialized() {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = append(buf, dir.TreeHash[:]...)
	}

	buf = appendUint32(buf, uint32(dir.Entries.Len()))
	dir.Entries.Range(func(name common.PathComponent, e Entry) bool {
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)
		buf = appendUint32(buf, uint32(e.Mode))
		buf = appendUint64(buf, uint64(e.Ino))
		if e.Materialized {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = append(buf, e.Hash[:]...)
		return true
	})
	return buf
}

// DecodeDir is the inverse of EncodeDir.
func DecodeDir(data []byte) (*Dir, error) {
	r := &reader{data: data}
	hdr, err := r.byte_()
	if err != nil || hdr != direntHeader {
		return nil, errors.New("overlay: bad directory record header")
	}

	dir := NewDir()
	if dir.Timestamps.Atime, err = r.time(); err != nil {
		return nil, err
	}
	if dir.Timestamps.Ctime, err = r.time(); err != nil {
		return nil, err
	}
	if dir.Timestamps.Mtime, err = r.time(); err != nil {
		return nil, err
	}

	hasTree, err := r.byte_()
	if err != nil {
		return nil, err
	}
	if hasTree == 1 {
		h, err := r.hash()
		if err != nil {
			return nil, err
		}
		dir.hasTree = true
		dir.TreeHash = h
	}

	count, err := r.uint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < count; i++ {
		nameLen, err := r.byte_()
		if err != nil {
			return nil, err
		}
		nameBytes, err := r.bytes(int(nameLen))
		if err != nil {
			return nil, err
		}
		name, err := common.NewPathComponent(string(nameBytes))
		if err != nil {
			return nil, err
		}
		modeVal, err := r.uint32()
		if err != nil {
			return nil, err
		}
		inoVal, err := r.uint64()
		if err != nil {
			return nil, err
		}
		matByte, err := r.byte_()
		if err != nil {
			return nil, err
		}
		hash, err := r.hash()
		if err != nil {
			return nil, err
		}
		dir.Entries.Set(name, Entry{
			Name:         name,
			Mode:         Mode(modeVal),
			Ino:          InodeNumber(inoVal),
			Materialized: matByte == 1,
			Hash:         hash,
		})
	}
	return dir, nil
}
