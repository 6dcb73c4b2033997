// Package journal implements the append-only mutation log a mount writes
// so that external watchers (or a future replay/undo feature) can observe
// every Create/Remove/Rename applied to the tree without re-diffing it.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"treemount/internal/common"
	"treemount/internal/overlay"
)

// DeltaKind identifies the shape of one journal entry.
type DeltaKind string

const (
	DeltaCreated DeltaKind = "created"
	DeltaRemoved DeltaKind = "removed"
	DeltaRenamed DeltaKind = "renamed"
	DeltaChanged DeltaKind = "changed" // content or mode modified in place
)

// Delta is one entry appended to the journal.
type Delta struct {
	Sequence uint64                 `json:"sequence"`
	Kind     DeltaKind              `json:"kind"`
	Path     common.RelativePath    `json:"path"`
	OldPath  common.RelativePath    `json:"old_path,omitempty"`
	Ino      overlay.InodeNumber    `json:"ino"`
}

// Journal is an append-only, JSON-lines mutation log backed by a single
// file. Writers append; nothing is ever rewritten in place, so a crash
// mid-append leaves a truncated final line rather than corrupting prior
// entries.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	seq  uint64
}

// Open opens (creating if necessary) the journal file at path in append
// mode and positions the sequence counter after the last recorded entry.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	last, err := lastSequence(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Journal{file: f, enc: json.NewEncoder(f), seq: last}, nil
}

func lastSequence(path string) (uint64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	var last uint64
	for {
		var d Delta
		if err := dec.Decode(&d); err != nil {
			break
		}
		last = d.Sequence
	}
	return last, nil
}

// Append writes one delta, assigning it the next sequence number.
func (j *Journal) Append(kind DeltaKind, path common.RelativePath, ino overlay.InodeNumber) error {
	return j.appendDelta(Delta{Kind: kind, Path: path, Ino: ino})
}

// AppendRename records a rename, carrying the entry's path before the move.
func (j *Journal) AppendRename(oldPath, newPath common.RelativePath, ino overlay.InodeNumber) error {
	return j.appendDelta(Delta{Kind: DeltaRenamed, Path: newPath, OldPath: oldPath, Ino: ino})
}

func (j *Journal) appendDelta(d Delta) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	d.Sequence = j.seq
	if err := j.enc.Encode(d); err != nil {
		j.seq--
		return fmt.Errorf("journal: append: %w", err)
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		log.WithFields(log.Fields{"seq": d.Sequence, "kind": d.Kind, "path": string(d.Path)}).Trace("journal: appended delta")
	}
	return nil
}

// Since returns every delta with sequence strictly greater than after, in
// order, for a watcher catching up from a known position.
func (j *Journal) Since(after uint64) ([]Delta, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.file.Name())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Delta
	dec := json.NewDecoder(f)
	for {
		var d Delta
		if err := dec.Decode(&d); err != nil {
			break
		}
		if d.Sequence > after {
			out = append(out, d)
		}
	}
	return out, nil
}

// Close closes the underlying file. Nothing is buffered: each Append has
// already written its delta to the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
