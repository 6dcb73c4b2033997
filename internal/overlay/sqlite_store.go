package overlay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/tursodatabase/go-libsql"

	"treemount/internal/util"
)

// SchemaVersion identifies the on-disk layout SQLiteStore writes.
const SchemaVersion = "1"

// BusyTimeoutMillis bounds how long a writer waits on SQLITE_BUSY before
// giving up.
const BusyTimeoutMillis = 30000

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS inode_counter (id INTEGER PRIMARY KEY, next INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS dirs (ino INTEGER PRIMARY KEY, data BLOB NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS file_content (ino INTEGER PRIMARY KEY, data BLOB NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS symlinks (ino INTEGER PRIMARY KEY, target TEXT NOT NULL)`,
}

// SQLiteStore is the production overlay.Store, backed by a single SQLite
// file accessed through bun and the libsql driver.
type SQLiteStore struct {
	db *bun.DB
}

// BuildDSN builds the libsql DSN for path with the WAL/synchronous/busy
// pragmas encoded. libsql ignores DSN-encoded pragma parameters, so
// applyPragmas re-applies them via explicit statements after connecting.
func BuildDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", path, BusyTimeoutMillis)
}

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed overlay
// store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("libsql", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("overlay: open %s: %w", path, err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("overlay: create schema: %w", err)
		}
	}
	if err := seedCounter(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := seedSchemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// applyPragmas sets busy_timeout, WAL, and synchronous explicitly, since
// libsql ignores the DSN-encoded pragma parameters.
func applyPragmas(db *sql.DB) error {
	if err := execPragma(db, fmt.Sprintf("PRAGMA busy_timeout = %d", BusyTimeoutMillis)); err != nil {
		return fmt.Errorf("overlay: set busy_timeout: %w", err)
	}
	if err := execPragma(db, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("overlay: set journal_mode: %w", err)
	}
	if err := execPragma(db, "PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("overlay: set synchronous: %w", err)
	}
	return nil
}

// execPragma uses Query rather than Exec: libsql returns rows for PRAGMA
// statements, and they must be drained before the connection is reused.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	return rows.Close()
}

func seedCounter(db *bun.DB) error {
	ctx := context.Background()
	exists, err := db.NewSelect().Model((*inodeCounterModel)(nil)).Where("id = 0").Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.NewInsert().Model(&inodeCounterModel{ID: 0, Next: int64(FirstAllocatableInodeNumber)}).Exec(ctx)
	return err
}

func seedSchemaVersion(db *bun.DB) error {
	_, err := db.NewInsert().
		Model(&schemaInfoModel{Key: "version", Value: SchemaVersion}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(context.Background())
	return err
}

func (s *SQLiteStore) AllocateInodeNumber(ctx context.Context) (InodeNumber, error) {
	return util.RetryWithResult(ctx, func() (InodeNumber, error) {
		return s.allocateInodeNumberInternal(ctx)
	})
}

func (s *SQLiteStore) allocateInodeNumberInternal(ctx context.Context) (InodeNumber, error) {
	var next int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model((*inodeCounterModel)(nil)).Column("next").Where("id = 0").Scan(ctx, &next); err != nil {
			return err
		}
		_, err := tx.NewUpdate().Model((*inodeCounterModel)(nil)).Set("next = ?", next+1).Where("id = 0").Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return InodeNumber(next), nil
}

func (s *SQLiteStore) LoadDir(ctx context.Context, ino InodeNumber) (*Dir, error) {
	return util.RetryWithResult(ctx, func() (*Dir, error) {
		var m dirModel
		err := s.db.NewSelect().Model(&m).Where("ino = ?", int64(ino)).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return DecodeDir(m.Data)
	})
}

func (s *SQLiteStore) SaveDir(ctx context.Context, ino InodeNumber, dir *Dir) error {
	return util.Retry(ctx, func() error {
		_, err := s.db.NewInsert().
			Model(&dirModel{Ino: int64(ino), Data: EncodeDir(dir)}).
			On("CONFLICT (ino) DO UPDATE").
			Set("data = EXCLUDED.data").
			Exec(ctx)
		return err
	})
}

func (s *SQLiteStore) RemoveDir(ctx context.Context, ino InodeNumber) error {
	return util.Retry(ctx, func() error {
		_, err := s.db.NewDelete().Model((*dirModel)(nil)).Where("ino = ?", int64(ino)).Exec(ctx)
		return err
	})
}

func (s *SQLiteStore) OpenFile(ctx context.Context, ino InodeNumber, create bool) (FileHandle, error) {
	var m fileContentModel
	err := s.db.NewSelect().Model(&m).Where("ino = ?", int64(ino)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		if !create {
			return nil, ErrNotFound
		}
		if _, err := s.db.NewInsert().Model(&fileContentModel{Ino: int64(ino), Data: []byte{}}).Exec(ctx); err != nil {
			return nil, err
		}
		return &sqliteFile{db: s.db, ino: ino, data: nil}, nil
	}
	if err != nil {
		return nil, err
	}
	return &sqliteFile{db: s.db, ino: ino, data: append([]byte(nil), m.Data...)}, nil
}

func (s *SQLiteStore) RemoveFile(ctx context.Context, ino InodeNumber) error {
	return util.Retry(ctx, func() error {
		_, err := s.db.NewDelete().Model((*fileContentModel)(nil)).Where("ino = ?", int64(ino)).Exec(ctx)
		return err
	})
}

func (s *SQLiteStore) WriteSymlink(ctx context.Context, ino InodeNumber, target string) error {
	return util.Retry(ctx, func() error {
		_, err := s.db.NewInsert().
			Model(&symlinkModel{Ino: int64(ino), Target: target}).
			On("CONFLICT (ino) DO UPDATE").
			Set("target = EXCLUDED.target").
			Exec(ctx)
		return err
	})
}

func (s *SQLiteStore) ReadSymlink(ctx context.Context, ino InodeNumber) (string, error) {
	var m symlinkModel
	err := s.db.NewSelect().Model(&m).Where("ino = ?", int64(ino)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return m.Target, nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		log.WithError(err).Warn("overlay: error closing store")
		return err
	}
	return nil
}
