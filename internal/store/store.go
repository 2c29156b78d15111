// Package store provides the durable local store backing the offline
// cache and the outbox queue.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "github.com/qualivida/portalsync/internal/errors"
)

// DB wraps the sql.DB handle for the local sync database.
type DB struct {
	*sql.DB
}

// Open opens the local sync database under dataDir and applies pending
// schema migrations.
func Open(dataDir string) (*DB, error) {
	db, err := OpenUnmigrated(dataDir)
	if err != nil {
		return nil, err
	}

	if err := NewMigrator(db.DB).Up(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenUnmigrated opens the local sync database without applying
// migrations, for explicit schema management. The database is opened
// with:
// - WAL mode for concurrent reads during writes
// - a busy timeout so short write contention doesn't surface as errors
// - foreign key constraints enabled
func OpenUnmigrated(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to create data directory", err)
	}

	dbPath := filepath.Join(dataDir, "portalsync.db")

	// modernc.org/sqlite: pure Go, no CGO
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to open database", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to apply %q", pragma), err)
		}
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
