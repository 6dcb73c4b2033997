package overlay

import "github.com/uptrace/bun"

// schemaInfoModel records the on-disk schema version.
type schemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// inodeCounterModel holds the single-row monotonic inode-number allocator.
type inodeCounterModel struct {
	bun.BaseModel `bun:"table:inode_counter"`

	ID   int   `bun:"id,pk"`
	Next int64 `bun:"next,notnull"`
}

// dirModel persists one directory's encoded Dir record, keyed by inode
// number.
type dirModel struct {
	bun.BaseModel `bun:"table:dirs"`

	Ino  int64  `bun:"ino,pk"`
	Data []byte `bun:"data,notnull"`
}

// fileContentModel persists one materialized file's bytes, keyed by inode
// number. Large files are stored whole rather than chunked;
// the overlay has no garbage-collection pass whose churn would make
// chunking pay for itself.
type fileContentModel struct {
	bun.BaseModel `bun:"table:file_content"`

	Ino  int64  `bun:"ino,pk"`
	Data []byte `bun:"data,notnull"`
}

// symlinkModel persists one symlink's target, keyed by inode number.
type symlinkModel struct {
	bun.BaseModel `bun:"table:symlinks"`

	Ino    int64  `bun:"ino,pk"`
	Target string `bun:"target,notnull"`
}
