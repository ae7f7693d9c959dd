// Package schema holds the declarative table definitions for the recorder
// database surfaces statsync touches.
//
// Definitions live in an embedded CUE file and are compiled once at startup.
// Every import row is validated against the declared column set for its
// target table; unknown columns are rejected explicitly rather than passed
// through to the store.
package schema

import (
	_ "embed"
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// Table describes one mutable statistics table.
type Table struct {
	Name    string
	Columns []string

	columnSet map[string]bool
}

// HasColumn reports whether col is declared for this table.
func (t Table) HasColumn(col string) bool {
	return t.columnSet[col]
}

// Meta describes the entity/metadata lookup table. Read-only to statsync.
type Meta struct {
	Name    string
	Columns []string
}

// Set is the compiled schema: the mutable tables plus the column
// classification rules shared across them.
type Set struct {
	tables map[string]Table
	order  []string

	meta        Meta
	integer     map[string]bool
	bookkeeping map[string]bool
	anchors     []string
}

// Load compiles the embedded CUE declarations into a Set.
func Load() (*Set, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	s := &Set{
		tables:      make(map[string]Table),
		integer:     make(map[string]bool),
		bookkeeping: make(map[string]bool),
	}

	if err := decodeStringSet(v, "integer", s.integer); err != nil {
		return nil, err
	}
	if err := decodeStringSet(v, "bookkeeping", s.bookkeeping); err != nil {
		return nil, err
	}

	anchors, err := decodeStringList(v.LookupPath(cue.ParsePath("anchor")))
	if err != nil {
		return nil, fmt.Errorf("schema anchor: %w", err)
	}
	s.anchors = anchors

	metaVal := v.LookupPath(cue.ParsePath("meta"))
	metaName, err := metaVal.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, fmt.Errorf("schema meta name: %w", err)
	}
	metaCols, err := decodeStringList(metaVal.LookupPath(cue.ParsePath("columns")))
	if err != nil {
		return nil, fmt.Errorf("schema meta columns: %w", err)
	}
	s.meta = Meta{Name: metaName, Columns: metaCols}

	tablesVal := v.LookupPath(cue.ParsePath("table"))
	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("schema tables: %w", err)
	}
	for iter.Next() {
		name := iter.Label()
		cols, err := decodeStringList(iter.Value().LookupPath(cue.ParsePath("columns")))
		if err != nil {
			return nil, fmt.Errorf("schema table %s: %w", name, err)
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("schema table %s: no columns declared", name)
		}
		tbl := Table{Name: name, Columns: cols, columnSet: make(map[string]bool, len(cols))}
		for _, c := range cols {
			tbl.columnSet[c] = true
		}
		s.tables[name] = tbl
		s.order = append(s.order, name)
	}
	if len(s.tables) == 0 {
		return nil, fmt.Errorf("schema: no tables declared")
	}
	sort.Strings(s.order)

	return s, nil
}

// Table returns the declared table by name.
func (s *Set) Table(name string) (Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// TableNames returns all declared mutable table names, sorted.
func (s *Set) TableNames() []string {
	return s.order
}

// Meta returns the entity/metadata lookup table declaration.
func (s *Set) Meta() Meta {
	return s.meta
}

// IsInteger reports whether col converts as an integer. All other declared
// numeric columns convert as float64.
func (s *Set) IsInteger(col string) bool {
	return s.integer[col]
}

// IsBookkeeping reports whether col is metadata that never becomes a
// mutation target.
func (s *Set) IsBookkeeping(col string) bool {
	return s.bookkeeping[col]
}

// Anchors returns the columns required to create a new record.
func (s *Set) Anchors() []string {
	return s.anchors
}

func decodeStringSet(v cue.Value, path string, dst map[string]bool) error {
	list, err := decodeStringList(v.LookupPath(cue.ParsePath(path)))
	if err != nil {
		return fmt.Errorf("schema %s: %w", path, err)
	}
	for _, item := range list {
		dst[item] = true
	}
	return nil
}

func decodeStringList(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, fmt.Errorf("missing declaration")
	}
	var out []string
	if err := v.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
