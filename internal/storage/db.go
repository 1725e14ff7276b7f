// Package storage persists calibration tables and a log of every pipeline
// run in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/piecefinder/internal/monitoring"
)

var logs = monitoring.For("storage")

// DB wraps the SQLite handle.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies all
// pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?"+connPragmas)
	if err != nil {
		return nil, err
	}
	db := &DB{DB: sqlDB, path: path}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// connPragmas are applied by the driver to every pooled connection.
var connPragmas = url.Values{"_pragma": {
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}}.Encode()
