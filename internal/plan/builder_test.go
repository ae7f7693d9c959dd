package plan

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statsync/internal/record"
	"github.com/roach88/statsync/internal/schema"
)

// fakeReader serves canned stored rows keyed by "table/id".
type fakeReader struct {
	rows map[string]map[string]any
	err  error
}

func (f *fakeReader) Fetch(_ context.Context, table string, id int64) (map[string]any, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	row, ok := f.rows[fmt.Sprintf("%s/%d", table, id)]
	return row, ok, nil
}

func newTestBuilder(t *testing.T, reader Reader) *Builder {
	t.Helper()
	tables, err := schema.Load()
	require.NoError(t, err)
	return NewBuilder(reader, tables)
}

func rec(line int, table string, values map[string]record.Value) record.Record {
	return record.Record{Line: line, Table: table, Values: values}
}

func TestBuild_Delete(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{})

	p, err := b.Build(context.Background(), []record.Record{
		rec(2, "statistics", map[string]record.Value{"id": record.IntValue(11)}),
	})
	require.NoError(t, err)
	require.Len(t, p.Descriptors, 1)

	d := p.Descriptors[0]
	assert.Equal(t, OpDelete, d.Kind)
	assert.Equal(t, int64(11), d.ID)
	assert.True(t, d.HasID)
	assert.Empty(t, d.Fields)
	assert.Equal(t, "0 inserts, 0 updates, 1 deletes, 0 skips", p.Summary.String())
}

func TestBuild_IdWithOnlyBookkeepingIsDelete(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{})

	// metadata_id and start_ts are bookkeeping, not data: still a delete.
	p, err := b.Build(context.Background(), []record.Record{
		rec(2, "statistics", map[string]record.Value{
			"id":          record.IntValue(11),
			"metadata_id": record.IntValue(1),
			"start_ts":    record.RealValue(1700000000),
		}),
	})
	require.NoError(t, err)
	require.Len(t, p.Descriptors, 1)
	assert.Equal(t, OpDelete, p.Descriptors[0].Kind)
}

func TestBuild_InsertDefaultsCreatedTS(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{})

	p, err := b.Build(context.Background(), []record.Record{
		rec(2, "statistics", map[string]record.Value{
			"metadata_id": record.IntValue(1),
			"start_ts":    record.RealValue(1700000000),
			"sum":         record.RealValue(100.5),
		}),
	})
	require.NoError(t, err)
	require.Len(t, p.Descriptors, 1)

	d := p.Descriptors[0]
	assert.Equal(t, OpInsert, d.Kind)
	assert.False(t, d.HasID)
	require.Contains(t, d.Fields, "created_ts")
	assert.Equal(t, 1700000000.0, d.Fields["created_ts"].Float())
}

func TestBuild_InsertKeepsExplicitCreatedTS(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{})

	p, err := b.Build(context.Background(), []record.Record{
		rec(2, "statistics", map[string]record.Value{
			"metadata_id": record.IntValue(1),
			"start_ts":    record.RealValue(1700000000),
			"created_ts":  record.RealValue(1690000000),
			"sum":         record.RealValue(100.5),
		}),
	})
	require.NoError(t, err)
	require.Len(t, p.Descriptors, 1)
	assert.Equal(t, 1690000000.0, p.Descriptors[0].Fields["created_ts"].Float())
}

func TestBuild_InsertMissingAnchorWarns(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{})

	p, err := b.Build(context.Background(), []record.Record{
		rec(3, "statistics", map[string]record.Value{
			"start_ts": record.RealValue(1700000000),
			"sum":      record.RealValue(100.5),
		}),
	})
	require.NoError(t, err)
	assert.Empty(t, p.Descriptors)
	require.Len(t, p.Warnings, 1)

	assert.Contains(t, p.Warnings[0].Error(), "line 3")
	assert.Contains(t, p.Warnings[0].Error(), "metadata_id")
	assert.Equal(t, "0 inserts, 0 updates, 0 deletes, 0 skips", p.Summary.String())
}

func TestBuild_NoIDNoDataFieldsRejected(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{})

	// Anchors alone do not make an insert: there is nothing to write.
	p, err := b.Build(context.Background(), []record.Record{
		rec(2, "statistics", map[string]record.Value{
			"metadata_id": record.IntValue(1),
			"start_ts":    record.RealValue(1700000000),
		}),
	})
	require.NoError(t, err)
	assert.Empty(t, p.Descriptors)
	require.Len(t, p.Warnings, 1)
	assert.Contains(t, p.Warnings[0].Error(), "no data fields")
}

func TestBuild_UpdateMinimalFields(t *testing.T) {
	reader := &fakeReader{rows: map[string]map[string]any{
		"statistics/10": {"id": int64(10), "state": 1.5, "sum": 100.5},
	}}
	b := newTestBuilder(t, reader)

	p, err := b.Build(context.Background(), []record.Record{
		rec(2, "statistics", map[string]record.Value{
			"id":    record.IntValue(10),
			"state": record.RealValue(1.5),   // unchanged
			"sum":   record.RealValue(101.0), // changed
		}),
	})
	require.NoError(t, err)
	require.Len(t, p.Descriptors, 1)

	d := p.Descriptors[0]
	assert.Equal(t, OpUpdate, d.Kind)
	assert.Equal(t, int64(10), d.ID)
	require.Len(t, d.Fields, 1)
	assert.Contains(t, d.Fields, "sum")
}

func TestBuild_ToleranceProducesSkip(t *testing.T) {
	reader := &fakeReader{rows: map[string]map[string]any{
		"statistics/10": {"id": int64(10), "sum": 100.5},
	}}
	b := newTestBuilder(t, reader)

	tests := []struct {
		name string
		sum  float64
		want Kind
	}{
		{"identical", 100.5, OpSkip},
		{"below tolerance", 100.5000004, OpSkip},
		{"above tolerance", 100.5001, OpUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := b.Build(context.Background(), []record.Record{
				rec(2, "statistics", map[string]record.Value{
					"id":  record.IntValue(10),
					"sum": record.RealValue(tt.sum),
				}),
			})
			require.NoError(t, err)
			require.Len(t, p.Descriptors, 1)
			assert.Equal(t, tt.want, p.Descriptors[0].Kind)
		})
	}
}

func TestBuild_VanishedUpdateTargetBecomesInsert(t *testing.T) {
	b := newTestBuilder(t, &fakeReader{}) // nothing stored

	p, err := b.Build(context.Background(), []record.Record{
		rec(2, "statistics", map[string]record.Value{
			"id":  record.IntValue(99),
			"sum": record.RealValue(50.0),
		}),
	})
	require.NoError(t, err)
	require.Len(t, p.Descriptors, 1)

	d := p.Descriptors[0]
	assert.Equal(t, OpInsert, d.Kind)
	assert.False(t, d.HasID)
	// The supplied id survives as an ordinary field so the row comes back
	// under its old identifier.
	require.Contains(t, d.Fields, "id")
	assert.Equal(t, int64(99), d.Fields["id"].Int())
}

func TestBuild_LookupErrorWarnsAndContinues(t *testing.T) {
	reader := &fakeReader{err: fmt.Errorf("disk exploded")}
	b := newTestBuilder(t, reader)

	p, err := b.Build(context.Background(), []record.Record{
		rec(2, "statistics", map[string]record.Value{
			"id":  record.IntValue(10),
			"sum": record.RealValue(50.0),
		}),
		rec(3, "statistics", map[string]record.Value{"id": record.IntValue(11)}),
	})
	require.NoError(t, err)

	// The failed lookup is a warning; the delete after it still lands.
	require.Len(t, p.Warnings, 1)
	assert.Contains(t, p.Warnings[0].Error(), "disk exploded")
	require.Len(t, p.Descriptors, 1)
	assert.Equal(t, OpDelete, p.Descriptors[0].Kind)
}

func TestBuild_PreservesInputOrder(t *testing.T) {
	reader := &fakeReader{rows: map[string]map[string]any{
		"statistics/10": {"id": int64(10), "sum": 100.5},
	}}
	b := newTestBuilder(t, reader)

	p, err := b.Build(context.Background(), []record.Record{
		rec(2, "statistics", map[string]record.Value{"id": record.IntValue(11)}),
		rec(3, "statistics", map[string]record.Value{
			"metadata_id": record.IntValue(1),
			"start_ts":    record.RealValue(1700000000),
			"sum":         record.RealValue(1.0),
		}),
		rec(4, "statistics", map[string]record.Value{
			"id":  record.IntValue(10),
			"sum": record.RealValue(100.5),
		}),
	})
	require.NoError(t, err)
	require.Len(t, p.Descriptors, 3)
	assert.Equal(t, OpDelete, p.Descriptors[0].Kind)
	assert.Equal(t, OpInsert, p.Descriptors[1].Kind)
	assert.Equal(t, OpSkip, p.Descriptors[2].Kind)
}

func TestBuild_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := newTestBuilder(t, &fakeReader{})
	_, err := b.Build(ctx, []record.Record{
		rec(2, "statistics", map[string]record.Value{"id": record.IntValue(1)}),
	})
	require.ErrorIs(t, err, context.Canceled)
}
