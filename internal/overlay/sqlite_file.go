package overlay

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/uptrace/bun"

	"treemount/internal/util"
)

// sqliteFile is a FileHandle over a whole-row blob in file_content. It
// buffers the content in memory and flushes on every mutating call, which
// is simple and correct for the file sizes a source-tree mount deals
// with; a store serving very large working files would want a chunked
// content table instead.
type sqliteFile struct {
	db  *bun.DB
	ino InodeNumber

	mu   sync.Mutex
	data []byte
}

func (f *sqliteFile) ReadAt(p []byte, off int64) (int, error) {
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

func (f *sqliteFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], p)
	data := append([]byte(nil), f.data...)
	f.mu.Unlock()
	if err := f.flush(data); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *sqliteFile) Truncate(size int64) error {
	f.mu.Lock()
	switch {
	case size == int64(len(f.data)):
	case size < int64(len(f.data)):
		f.data = f.data[:size]
	default:
		f.data = append(f.data, bytes.Repeat([]byte{0}, int(size)-len(f.data))...)
	}
	data := append([]byte(nil), f.data...)
	f.mu.Unlock()
	return f.flush(data)
}

func (f *sqliteFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), nil
}

func (f *sqliteFile) Close() error { return nil }

func (f *sqliteFile) flush(data []byte) error {
	if data == nil {
		// An empty file is stored as an empty blob: the column is NOT NULL.
		data = []byte{}
	}
	return util.Retry(context.Background(), func() error {
		_, err := f.db.NewUpdate().
			Model((*fileContentModel)(nil)).
			Set("data = ?", data).
			Where("ino = ?", int64(f.ino)).
			Exec(context.Background())
		return err
	})
}
