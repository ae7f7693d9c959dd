package plan

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/statsync/internal/record"
	"github.com/roach88/statsync/internal/schema"
)

// Reader looks up the current persisted row by identifier. Read-only
// collaborator of the store; used only for update candidates. Lookups are
// never cached - each one must reflect persisted state at lookup time.
type Reader interface {
	Fetch(ctx context.Context, table string, id int64) (map[string]any, bool, error)
}

// Builder assembles the changeset for one run.
type Builder struct {
	reader Reader
	tables *schema.Set
}

// NewBuilder creates a Builder over the given store reader and schema.
func NewBuilder(reader Reader, tables *schema.Set) *Builder {
	return &Builder{reader: reader, tables: tables}
}

// Build converts each record into exactly one descriptor, preserving input
// order. Records that cannot be classified are excluded with a warning and
// do not touch the summary.
func (b *Builder) Build(ctx context.Context, records []record.Record) (*Plan, error) {
	p := &Plan{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		desc, err := b.classify(ctx, rec)
		if err != nil {
			p.Warnings = append(p.Warnings, err)
			continue
		}
		p.Descriptors = append(p.Descriptors, desc)
		p.Summary.Add(desc.Kind)
	}
	return p, nil
}

// classify maps one record to its descriptor. Pure except for the store
// lookup on update candidates. A non-nil error is a per-row warning; the
// record is excluded from the changeset.
func (b *Builder) classify(ctx context.Context, rec record.Record) (Descriptor, error) {
	id, hasID := rec.Values["id"]

	dataFields := make(map[string]record.Value)
	for col, val := range rec.Values {
		if b.tables.IsBookkeeping(col) {
			continue
		}
		dataFields[col] = val
	}

	// Identifier and nothing to write: the caller wants the row gone.
	if hasID && len(dataFields) == 0 {
		return Descriptor{Table: rec.Table, Kind: OpDelete, ID: id.Int(), HasID: true}, nil
	}

	// No identifier: a new record, which needs its anchor fields.
	if !hasID {
		// No identifier and nothing to write is not a meaningful row.
		if len(dataFields) == 0 {
			return Descriptor{}, &ClassificationWarning{
				Line:   rec.Line,
				Reason: "no data fields for insert, skipping",
			}
		}
		for _, anchor := range b.tables.Anchors() {
			if !rec.Has(anchor) {
				return Descriptor{}, &ClassificationWarning{
					Line:   rec.Line,
					Reason: fmt.Sprintf("missing %s for insert, skipping", anchor),
				}
			}
		}
		return Descriptor{Table: rec.Table, Kind: OpInsert, Fields: insertFields(rec)}, nil
	}

	// Identifier plus data fields: an update candidate. If the stored row
	// vanished between export and import, fall back to insert so re-runs
	// stay idempotent.
	stored, found, err := b.reader.Fetch(ctx, rec.Table, id.Int())
	if err != nil {
		return Descriptor{}, &ClassificationWarning{
			Line:   rec.Line,
			Reason: fmt.Sprintf("lookup %s id %d: %v", rec.Table, id.Int(), err),
		}
	}
	if !found {
		return Descriptor{Table: rec.Table, Kind: OpInsert, Fields: insertFields(rec)}, nil
	}

	changed := diffFields(dataFields, stored)
	if len(changed) == 0 {
		return Descriptor{Table: rec.Table, Kind: OpSkip, ID: id.Int(), HasID: true}, nil
	}
	return Descriptor{Table: rec.Table, Kind: OpUpdate, ID: id.Int(), HasID: true, Fields: changed}, nil
}

// insertFields copies a record's values for an insert descriptor,
// defaulting created_ts to start_ts when absent. A record's creation time
// defaults to its observation time unless explicitly supplied.
func insertFields(rec record.Record) map[string]record.Value {
	fields := make(map[string]record.Value, len(rec.Values)+1)
	for col, val := range rec.Values {
		fields[col] = val
	}
	if _, ok := fields["created_ts"]; !ok {
		if start, ok := fields["start_ts"]; ok {
			fields["created_ts"] = start
		}
	}
	return fields
}

// diffFields returns the subset of supplied fields whose value differs from
// the stored one by more than Tolerance. Stored values that are missing or
// not numeric always count as differing.
func diffFields(supplied map[string]record.Value, stored map[string]any) map[string]record.Value {
	changed := make(map[string]record.Value)
	for col, val := range supplied {
		old, ok := asFloat(stored[col])
		if !ok {
			changed[col] = val
			continue
		}
		if math.Abs(old-val.Float()) > Tolerance {
			changed[col] = val
		}
	}
	return changed
}

// asFloat coerces a scanned database value to float64 for comparison.
func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case []byte:
		f, err := strconv.ParseFloat(string(val), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
