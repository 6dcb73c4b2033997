package objectstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"treemount/internal/common"
	"treemount/internal/util"
)

// FileStore is a content-addressed Store backed by a directory of files
// named by hex hash, one subdirectory for trees and one for blobs. It is the
// on-disk counterpart to MemStore.
type FileStore struct {
	root   string
	trees  *util.Group[Hash, *Tree]
	blobs  *util.Group[Hash, *Blob]
}

// NewFileStore opens (creating if necessary) a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"trees", "blobs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("objectstore: create %s dir: %w", sub, err)
		}
	}
	return &FileStore{
		root:  dir,
		trees: util.NewGroup[Hash, *Tree](),
		blobs: util.NewGroup[Hash, *Blob](),
	}, nil
}

// PutTree writes a tree's encoded entries to disk.
func (s *FileStore) PutTree(t *Tree) error {
	return os.WriteFile(s.treePath(t.Hash), encodeTree(t), 0o644)
}

// PutBlob writes a blob to disk.
func (s *FileStore) PutBlob(b *Blob) error {
	return os.WriteFile(s.blobPath(b.Hash), b.Data, 0o644)
}

func (s *FileStore) GetTree(ctx context.Context, hash Hash) (*Tree, error) {
	return s.trees.Do(hash, func() (*Tree, error) {
		data, err := os.ReadFile(s.treePath(hash))
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		if err != nil {
			return nil, err
		}
		return decodeTree(hash, data)
	})
}

func (s *FileStore) GetBlob(ctx context.Context, hash Hash) (*Blob, error) {
	return s.blobs.Do(hash, func() (*Blob, error) {
		data, err := os.ReadFile(s.blobPath(hash))
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		if err != nil {
			return nil, err
		}
		return &Blob{Hash: hash, Data: data}, nil
	})
}

func (s *FileStore) treePath(h Hash) string { return filepath.Join(s.root, "trees", h.String()) }
func (s *FileStore) blobPath(h Hash) string { return filepath.Join(s.root, "blobs", h.String()) }

// encodeTree/decodeTree serialize a Tree's entries: count, then per-entry
// [type byte][name length][name][hash].
func encodeTree(t *Tree) []byte {
	buf := make([]byte, 0, 4+len(t.Entries)*64)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(t.Entries)))
	buf = append(buf, countBuf[:]...)
	for _, e := range t.Entries {
		buf = append(buf, byte(e.Type), byte(len(e.Name)))
		buf = append(buf, e.Name...)
		buf = append(buf, e.Hash[:]...)
	}
	return buf
}

func decodeTree(hash Hash, data []byte) (*Tree, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("objectstore: truncated tree %s", hash)
	}
	count := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	entries := make([]TreeEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < 2 {
			return nil, fmt.Errorf("objectstore: truncated tree %s", hash)
		}
		typ := EntryType(data[0])
		nameLen := int(data[1])
		data = data[2:]
		if len(data) < nameLen+HashSize {
			return nil, fmt.Errorf("objectstore: truncated tree %s", hash)
		}
		name, err := common.NewPathComponent(string(data[:nameLen]))
		if err != nil {
			return nil, err
		}
		data = data[nameLen:]
		var h Hash
		copy(h[:], data[:HashSize])
		data = data[HashSize:]
		entries = append(entries, TreeEntry{Name: name, Type: typ, Hash: h})
	}
	return &Tree{Hash: hash, Entries: entries}, nil
}
