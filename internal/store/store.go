// Package store wraps the recorder SQLite database: a read path for
// classification and reporting, and a single-transaction write path for
// applying a changeset.
//
// The database belongs to the recorder, not to us. Open never creates a
// file, never migrates, and leaves the journal mode alone; the only pragmas
// applied are a busy timeout and foreign-key enforcement. All mutation goes
// through Apply as parameterized statements - stored rows are never mutated
// in place by any other path.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/statsync/internal/schema"
)

// KnownSchemaVersion is the newest recorder schema this tool was written
// against. Newer databases get a compatibility warning, not an error.
const KnownSchemaVersion = 50

// Store is the handle passed into each component; one read connection
// during classification, one write transaction during apply.
type Store struct {
	db     *sqlx.DB
	tables *schema.Set
}

// Open opens an existing recorder database. The file must already exist:
// a missing database is an operator error, and silently creating an empty
// one would turn every run into a pile of insert statements.
func Open(path string, tables *schema.Set) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite allows one writer at a time; a second connection would just
	// trade SQLITE_BUSY errors for queueing.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, tables: tables}, nil
}

// NewWithDB wraps an existing database handle. Used by tests that inject
// an in-memory or mocked connection.
func NewWithDB(db *sqlx.DB, tables *schema.Set) *Store {
	return &Store{db: db, tables: tables}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion returns the recorder's current schema version, or ok=false
// when the database has no schema_changes table to report one.
func (s *Store) SchemaVersion(ctx context.Context) (int, bool, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `
		SELECT schema_version FROM schema_changes
		ORDER BY change_id DESC LIMIT 1
	`).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("schema version: %w", err)
	}
	return version, true, nil
}

// Fetch returns the persisted row for (table, id), or found=false. The
// column set is whatever the table actually has, scanned into a map, since
// the declared schema is a subset of the physical one.
func (s *Store) Fetch(ctx context.Context, table string, id int64) (map[string]any, bool, error) {
	if _, ok := s.tables.Table(table); !ok {
		return nil, false, fmt.Errorf("undeclared table: %s", table)
	}

	row := s.db.QueryRowxContext(ctx, "SELECT * FROM "+table+" WHERE id = ?", id)
	dest := make(map[string]any)
	if err := row.MapScan(dest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch %s id %d: %w", table, id, err)
	}
	return dest, true, nil
}

func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

// isMissingTable matches SQLite's "no such table" error, which the driver
// surfaces only as text.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
