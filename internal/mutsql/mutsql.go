// Package mutsql turns mutation descriptors into SQL for the recorder
// database, in two forms: human-readable preview text and parameterized
// statements for execution.
//
// Both forms walk columns in sorted order and format numbers through
// record.Value, so the preview is byte-for-byte reproducible and exactly
// predicts what apply will execute. Values are never interpolated into the
// executed form; table names only ever come from the declared schema.
package mutsql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/statsync/internal/plan"
	"github.com/roach88/statsync/internal/record"
)

// Render returns the preview statement for one descriptor. Skips render as
// a comment so the preview still shows one line per input record.
func Render(d plan.Descriptor) (string, error) {
	switch d.Kind {
	case plan.OpInsert:
		cols := sortedColumns(d.Fields)
		vals := make([]string, len(cols))
		for i, col := range cols {
			vals[i] = d.Fields[col].String()
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
			d.Table, strings.Join(cols, ", "), strings.Join(vals, ", ")), nil

	case plan.OpUpdate:
		cols := sortedColumns(d.Fields)
		parts := make([]string, len(cols))
		for i, col := range cols {
			parts[i] = fmt.Sprintf("%s = %s", col, d.Fields[col].String())
		}
		return fmt.Sprintf("UPDATE %s SET %s WHERE id = %d;",
			d.Table, strings.Join(parts, ", "), d.ID), nil

	case plan.OpDelete:
		return fmt.Sprintf("DELETE FROM %s WHERE id = %d;", d.Table, d.ID), nil

	case plan.OpSkip:
		return fmt.Sprintf("-- SKIP %s id=%d (no change);", d.Table, d.ID), nil

	default:
		return "", fmt.Errorf("unsupported descriptor kind: %q", d.Kind)
	}
}

// Compile returns the parameterized statement and arguments for one
// descriptor. Skip descriptors compile to an empty statement; the executor
// passes over them.
func Compile(d plan.Descriptor) (string, []any, error) {
	switch d.Kind {
	case plan.OpInsert:
		cols := sortedColumns(d.Fields)
		placeholders := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, col := range cols {
			placeholders[i] = "?"
			args[i] = d.Fields[col].Arg()
		}
		sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		return sql, args, nil

	case plan.OpUpdate:
		cols := sortedColumns(d.Fields)
		parts := make([]string, len(cols))
		args := make([]any, 0, len(cols)+1)
		for i, col := range cols {
			parts[i] = col + " = ?"
			args = append(args, d.Fields[col].Arg())
		}
		args = append(args, d.ID)
		sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", d.Table, strings.Join(parts, ", "))
		return sql, args, nil

	case plan.OpDelete:
		return fmt.Sprintf("DELETE FROM %s WHERE id = ?", d.Table), []any{d.ID}, nil

	case plan.OpSkip:
		return "", nil, nil

	default:
		return "", nil, fmt.Errorf("unsupported descriptor kind: %q", d.Kind)
	}
}

// sortedColumns returns the field names in ascending order for
// deterministic output.
func sortedColumns(fields map[string]record.Value) []string {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
