package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/statsync/internal/schema"
)

// BytesPerField is the rough per-field storage estimate used for size
// reporting. Inherited guesswork, good enough for relative comparisons.
const BytesPerField = 8

// TableStat summarizes one physical table for the status report.
type TableStat struct {
	Name string
	Rows int64
	Cols int64
}

// Records returns the field count estimate (rows x cols).
func (t TableStat) Records() int64 {
	return t.Rows * t.Cols
}

// TableStats collects row and column counts for every table in the
// database, sorted by name for stable output.
func (s *Store) TableStats(ctx context.Context) ([]TableStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	stats := make([]TableStat, 0, len(names))
	for _, name := range names {
		cols, err := s.columnCount(ctx, name)
		if err != nil {
			return nil, err
		}
		var count int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		stats = append(stats, TableStat{Name: name, Rows: count, Cols: cols})
	}
	return stats, nil
}

// EntitySummary aggregates one entity's statistics across both series
// tables for the list report.
type EntitySummary struct {
	Entity string
	Count  int64
	First  float64 // earliest start_ts
	Last   float64 // latest start_ts
	KB     float64
	Unit   string
}

// EntitySummaries aggregates per-entity counts and date ranges across all
// declared series tables, optionally bounded by start_ts. Results come
// back sorted by entity id for stable default output.
func (s *Store) EntitySummaries(ctx context.Context, after, before *float64) ([]EntitySummary, error) {
	type agg struct {
		count int64
		first float64
		last  float64
	}
	byMeta := make(map[int64]*agg)

	for _, table := range s.tables.TableNames() {
		query := "SELECT metadata_id, MIN(start_ts), MAX(start_ts), COUNT(*) FROM " + table
		var conds []string
		var args []any
		if after != nil {
			conds = append(conds, "start_ts >= ?")
			args = append(args, *after)
		}
		if before != nil {
			conds = append(conds, "start_ts <= ?")
			args = append(args, *before)
		}
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += " GROUP BY metadata_id ORDER BY metadata_id ASC"

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", table, err)
		}
		for rows.Next() {
			var mid int64
			var first, last float64
			var count int64
			if err := rows.Scan(&mid, &first, &last, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("aggregate %s: %w", table, err)
			}
			a, ok := byMeta[mid]
			if !ok {
				byMeta[mid] = &agg{count: count, first: first, last: last}
				continue
			}
			a.count += count
			if first < a.first {
				a.first = first
			}
			if last > a.last {
				a.last = last
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("aggregate %s: %w", table, err)
		}
		rows.Close()
	}

	// Size estimate uses the first declared table's physical width, the
	// same approximation the rest of the report family uses.
	var cols int64
	if names := s.tables.TableNames(); len(names) > 0 {
		var err error
		cols, err = s.columnCount(ctx, names[0])
		if err != nil {
			return nil, err
		}
	}

	mids := make([]int64, 0, len(byMeta))
	for mid := range byMeta {
		mids = append(mids, mid)
	}
	sort.Slice(mids, func(i, j int) bool { return mids[i] < mids[j] })

	summaries := make([]EntitySummary, 0, len(mids))
	for _, mid := range mids {
		a := byMeta[mid]
		entity, unit, err := s.metaFor(ctx, mid)
		if err != nil {
			return nil, err
		}
		kb := float64(a.count*cols*BytesPerField) / 1024
		summaries = append(summaries, EntitySummary{
			Entity: entity,
			Count:  a.count,
			First:  a.first,
			Last:   a.last,
			KB:     kb,
			Unit:   unit,
		})
	}
	return summaries, nil
}

// MetadataIDFor resolves an entity id (statistic_id) to its metadata row
// id, or found=false when the entity is unknown.
func (s *Store) MetadataIDFor(ctx context.Context, entity string) (int64, bool, error) {
	var mid int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM "+s.tables.Meta().Name+" WHERE statistic_id = ?", entity,
	).Scan(&mid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("metadata lookup %q: %w", entity, err)
	}
	return mid, true, nil
}

// ExportFilter bounds an export query. Threshold matching follows the
// report convention: a row qualifies when ANY of mean/min/max falls inside
// the bounds (strictly between when both are set).
type ExportFilter struct {
	After  *float64
	Before *float64
	Above  *float64
	Below  *float64
}

// ExportRows returns the declared columns of every matching row for one
// entity in one table, ordered by id for deterministic output.
func (s *Store) ExportRows(ctx context.Context, table schema.Table, metadataID int64, f ExportFilter) ([][]any, error) {
	query := "SELECT " + strings.Join(table.Columns, ", ") + " FROM " + table.Name +
		" WHERE metadata_id = ?"
	args := []any{metadataID}

	if f.After != nil {
		query += " AND start_ts >= ?"
		args = append(args, *f.After)
	}
	if f.Before != nil {
		query += " AND start_ts <= ?"
		args = append(args, *f.Before)
	}
	switch {
	case f.Above != nil && f.Below != nil:
		query += " AND ((mean > ? AND mean < ?) OR (min > ? AND min < ?) OR (max > ? AND max < ?))"
		args = append(args, *f.Above, *f.Below, *f.Above, *f.Below, *f.Above, *f.Below)
	case f.Above != nil:
		query += " AND (mean > ? OR min > ? OR max > ?)"
		args = append(args, *f.Above, *f.Above, *f.Above)
	case f.Below != nil:
		query += " AND (mean < ? OR min < ? OR max < ?)"
		args = append(args, *f.Below, *f.Below, *f.Below)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", table.Name, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", table.Name, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export %s: %w", table.Name, err)
	}
	return out, nil
}

// metaFor fetches the entity id and unit for one metadata row. Missing
// metadata yields empty strings, matching rows orphaned by the recorder.
func (s *Store) metaFor(ctx context.Context, mid int64) (entity, unit string, err error) {
	var e, u sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT statistic_id, unit_of_measurement FROM "+s.tables.Meta().Name+" WHERE id = ?", mid,
	).Scan(&e, &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("metadata for id %d: %w", mid, err)
	}
	return e.String, u.String, nil
}

func (s *Store) columnCount(ctx context.Context, table string) (int64, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return 0, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("table info %s: %w", table, err)
	}
	return count, nil
}

// quoteIdent quotes an identifier that came from the database itself
// (sqlite_master), not from user input.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
