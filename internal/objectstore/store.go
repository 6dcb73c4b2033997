// Package objectstore defines the read-only, content-addressed store of
// immutable trees and blobs that source control publishes and the mount
// fetches lazily. It is an external collaborator: this package only
// specifies the interface and two reference implementations used by tests
// and by the standalone CLI, not a production object-store client.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"

	"treemount/internal/common"
)

// HashSize is the width of a content address.
const HashSize = 32

// Hash is a fixed-width content address identifying a Tree or Blob.
type Hash [HashSize]byte

// ZeroHash is the never-valid hash, used as a sentinel for "absent".
var ZeroHash Hash

// String renders the hash as lowercase hex, matching the debug format used
// throughout the dispatch adapter's trace logging.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool { return h == ZeroHash }

// HashBytes computes the content address of arbitrary bytes. Blob and tree
// hashes in this package are always HashBytes of their canonical encoding.
func HashBytes(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(sum)
}

// EntryType is the type of one Tree entry.
type EntryType int

const (
	EntryFile EntryType = iota
	EntryExecutable
	EntrySymlink
	EntryTree
)

func (t EntryType) IsTree() bool { return t == EntryTree }

// TreeEntry is one child of a Tree: name, type, and the hash of its content
// (a Blob hash for files/symlinks, a Tree hash for subdirectories).
type TreeEntry struct {
	Name common.PathComponent
	Type EntryType
	Hash Hash
}

// Tree is an immutable, sorted directory listing fetched by hash. The
// checkout and diff algorithms depend on entries being sorted by Name.
type Tree struct {
	Hash    Hash
	Entries []TreeEntry
}

// NewTree builds a Tree from entries in any order, sorting them and
// computing its hash deterministically from the sorted encoding.
func NewTree(entries []TreeEntry) *Tree {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	t := &Tree{Entries: sorted}
	t.Hash = HashBytes(t.encode())
	return t
}

// Lookup returns the entry for name, if present.
func (t *Tree) Lookup(name common.PathComponent) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
		if e.Name > name {
			break
		}
	}
	return TreeEntry{}, false
}

func (t *Tree) encode() []byte {
	var buf []byte
	for _, e := range t.Entries {
		buf = append(buf, byte(e.Type))
		buf = append(buf, byte(len(e.Name)))
		buf = append(buf, e.Name...)
		buf = append(buf, e.Hash[:]...)
	}
	return buf
}

// Blob is an immutable file's content, fetched by hash.
type Blob struct {
	Hash Hash
	Data []byte
}

// NewBlob hashes data and wraps it as a Blob.
func NewBlob(data []byte) *Blob {
	return &Blob{Hash: HashBytes(data), Data: data}
}

// ErrObjectNotFound is returned when a hash is not present in the store.
var ErrObjectNotFound = errors.New("object not found")

// Store fetches immutable Trees and Blobs by hash. Identical-hash calls may
// share their result (see the in-flight de-duplication in FileStore)
// because the content behind a hash never changes.
type Store interface {
	GetTree(ctx context.Context, hash Hash) (*Tree, error)
	GetBlob(ctx context.Context, hash Hash) (*Blob, error)
}
