// Package testutil provides in-memory recorder database fixtures for tests.
package testutil

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// recorderDDL mirrors the subset of the recorder schema the tool touches.
// Column types follow schema version 50, where timestamps are REAL epoch
// seconds.
var recorderDDL = []string{
	`CREATE TABLE statistics_meta (
		id INTEGER PRIMARY KEY,
		statistic_id TEXT,
		source TEXT,
		unit_of_measurement TEXT,
		has_mean BOOLEAN,
		has_sum BOOLEAN,
		name TEXT
	)`,
	`CREATE TABLE statistics (
		id INTEGER PRIMARY KEY,
		created_ts REAL,
		metadata_id INTEGER,
		start_ts REAL,
		mean REAL,
		min REAL,
		max REAL,
		last_reset_ts REAL,
		state REAL,
		sum REAL
	)`,
	`CREATE TABLE statistics_short_term (
		id INTEGER PRIMARY KEY,
		created_ts REAL,
		metadata_id INTEGER,
		start_ts REAL,
		mean REAL,
		min REAL,
		max REAL,
		last_reset_ts REAL,
		state REAL,
		sum REAL
	)`,
	`CREATE TABLE schema_changes (
		change_id INTEGER PRIMARY KEY,
		schema_version INTEGER,
		changed TEXT
	)`,
}

// OpenMemory opens a fresh in-memory recorder database with the statistics
// tables created and the schema version recorded.
func OpenMemory(schemaVersion int) (*sqlx.DB, error) {
	return openRecorder(":memory:", schemaVersion)
}

// OpenFile creates a recorder database at path. Used by command-level tests
// that exercise the real open-by-path flow.
func OpenFile(path string, schemaVersion int) (*sqlx.DB, error) {
	return openRecorder(path, schemaVersion)
}

func openRecorder(dsn string, schemaVersion int) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps every statement on the same in-memory
	// database; a second connection would see an empty one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, ddl := range recorderDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := db.Exec(
		"INSERT INTO schema_changes (schema_version, changed) VALUES (?, ?)",
		schemaVersion, "2024-01-01 00:00:00",
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("record schema version: %w", err)
	}
	return db, nil
}

// MustOpenMemory is OpenMemory for tests, closed automatically on cleanup.
func MustOpenMemory(t *testing.T, schemaVersion int) *sqlx.DB {
	t.Helper()
	db, err := OpenMemory(schemaVersion)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedMeta inserts a statistics_meta row linking an entity id to a
// metadata id.
func SeedMeta(db *sqlx.DB, id int64, statisticID, unit string) error {
	_, err := db.Exec(
		"INSERT INTO statistics_meta (id, statistic_id, source, unit_of_measurement) VALUES (?, ?, ?, ?)",
		id, statisticID, "recorder", unit,
	)
	if err != nil {
		return fmt.Errorf("seed meta %d: %w", id, err)
	}
	return nil
}

// SeedRow inserts one row into a series table from a column/value map.
// Columns are applied in sorted order so the statement text is stable.
func SeedRow(db *sqlx.DB, table string, values map[string]any) error {
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	marks := make([]string, 0, len(cols))
	for _, col := range cols {
		args = append(args, values[col])
		marks = append(marks, "?")
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := db.Exec(stmt, args...); err != nil {
		return fmt.Errorf("seed %s: %w", table, err)
	}
	return nil
}

// MustSeedMeta is SeedMeta for tests.
func MustSeedMeta(t *testing.T, db *sqlx.DB, id int64, statisticID, unit string) {
	t.Helper()
	require.NoError(t, SeedMeta(db, id, statisticID, unit))
}

// MustSeedRow is SeedRow for tests.
func MustSeedRow(t *testing.T, db *sqlx.DB, table string, values map[string]any) {
	t.Helper()
	require.NoError(t, SeedRow(db, table, values))
}
