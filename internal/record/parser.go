// Package record parses delimited export files into typed records.
//
// The expected header is: table, two ignored positional columns, then the
// target table's column names. Row values are text; an empty string means
// "field not supplied", which is distinct from zero.
package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/statsync/internal/schema"
)

// Positions of the fixed leading header columns.
const (
	colTable = 0
	// Columns 1 and 2 (entity, date) are informational in exports and
	// ignored on import.
	firstDataCol = 3
)

// Row is one raw input row: untyped text fields keyed by header column
// name, tagged with the originating line number and target table.
type Row struct {
	Line   int
	Table  string
	Fields map[string]string
}

// Record is a Row after per-column numeric conversion.
type Record struct {
	Line   int
	Table  string
	Values map[string]Value
}

// Has reports whether the record carries a value for col.
func (r Record) Has(col string) bool {
	_, ok := r.Values[col]
	return ok
}

// Parse reads the whole input, validating that every data row matches the
// header's field count. A count mismatch is a StructuralError and aborts
// the run; nothing downstream sees a partially parsed file.
//
// Line numbers are 1-based row ordinals (header is line 1), matching what
// a spreadsheet shows the person who edited the export.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // count checked below, with our own error

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []Row
	for line := 2; ; line++ {
		raw, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(raw) != len(header) {
			return nil, &StructuralError{Line: line, Expected: len(header), Got: len(raw)}
		}

		row := Row{Line: line, Fields: make(map[string]string)}
		row.Table = strings.TrimSpace(raw[colTable])
		for i := firstDataCol; i < len(raw); i++ {
			val := strings.TrimSpace(raw[i])
			if val == "" {
				continue // not supplied
			}
			row.Fields[strings.TrimSpace(header[i])] = val
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Convert applies per-column conversion rules to one row: identifier-like
// columns parse as int64, every other declared column as float64. A field
// that fails conversion is dropped with a warning; the record carries on
// with whatever converted cleanly.
//
// Returns ok=false when the row's target table is not declared, in which
// case the row is excluded entirely.
func Convert(row Row, tables *schema.Set) (Record, []error, bool) {
	tbl, known := tables.Table(row.Table)
	if !known {
		return Record{}, []error{&UnknownTableWarning{Line: row.Line, Table: row.Table}}, false
	}

	rec := Record{Line: row.Line, Table: row.Table, Values: make(map[string]Value, len(row.Fields))}
	var warns []error

	for col, raw := range row.Fields {
		if !tbl.HasColumn(col) {
			warns = append(warns, &UnknownColumnWarning{Line: row.Line, Table: row.Table, Column: col})
			continue
		}
		if tables.IsInteger(col) {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				warns = append(warns, &FieldConversionWarning{Line: row.Line, Column: col, Raw: raw})
				continue
			}
			rec.Values[col] = IntValue(n)
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			warns = append(warns, &FieldConversionWarning{Line: row.Line, Column: col, Raw: raw})
			continue
		}
		rec.Values[col] = RealValue(f)
	}

	return rec, warns, true
}
