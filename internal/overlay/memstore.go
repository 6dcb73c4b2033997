package overlay

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// MemStore is an in-memory Store used by inode-graph unit tests so they do
// not need a real SQLite file to exercise materialization, rename, and
// checkout behavior.
type MemStore struct {
	mu       sync.Mutex
	dirs     map[InodeNumber]*Dir
	files    map[InodeNumber]*memFile
	symlinks map[InodeNumber]string
	nextIno  atomic.Uint64
}

// NewMemStore creates an empty store with allocation starting after the
// reserved inode numbers.
func NewMemStore() *MemStore {
	s := &MemStore{
		dirs:     make(map[InodeNumber]*Dir),
		files:    make(map[InodeNumber]*memFile),
		symlinks: make(map[InodeNumber]string),
	}
	s.nextIno.Store(uint64(FirstAllocatableInodeNumber) - 1)
	return s
}

func (s *MemStore) AllocateInodeNumber(ctx context.Context) (InodeNumber, error) {
	return InodeNumber(s.nextIno.Add(1)), nil
}

func (s *MemStore) LoadDir(ctx context.Context, ino InodeNumber) (*Dir, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dirs[ino]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *MemStore) SaveDir(ctx context.Context, ino InodeNumber, dir *Dir) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[ino] = dir.Clone()
	return nil
}

func (s *MemStore) RemoveDir(ctx context.Context, ino InodeNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirs, ino)
	return nil
}

func (s *MemStore) OpenFile(ctx context.Context, ino InodeNumber, create bool) (FileHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[ino]
	if !ok {
		if !create {
			return nil, ErrNotFound
		}
		f = &memFile{}
		s.files[ino] = f
	}
	return f, nil
}

func (s *MemStore) RemoveFile(ctx context.Context, ino InodeNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, ino)
	return nil
}

func (s *MemStore) WriteSymlink(ctx context.Context, ino InodeNumber, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symlinks[ino] = target
	return nil
}

func (s *MemStore) ReadSymlink(ctx context.Context, ino InodeNumber) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.symlinks[ino]
	if !ok {
		return "", ErrNotFound
	}
	return t, nil
}

func (s *MemStore) Close() error { return nil }

// memFile is a growable in-memory FileHandle backing MemStore's file
// content; it mirrors a real overlay file closely enough for inode-graph
// tests that never observe disk layout.
type memFile struct {
	mu   sync.Mutex
	data []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], p)
	return len(p), nil
}

func (f *memFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case size == int64(len(f.data)):
	case size < int64(len(f.data)):
		f.data = f.data[:size]
	default:
		f.data = append(f.data, bytes.Repeat([]byte{0}, int(size)-len(f.data))...)
	}
	return nil
}

func (f *memFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), nil
}

func (f *memFile) Close() error { return nil }
