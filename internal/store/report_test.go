package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statsync/internal/testutil"
)

func seedReportFixture(t *testing.T) *Store {
	t.Helper()
	db := testutil.MustOpenMemory(t, KnownSchemaVersion)
	testutil.MustSeedMeta(t, db, 1, "sensor.energy", "kWh")
	testutil.MustSeedMeta(t, db, 2, "sensor.power", "W")

	testutil.MustSeedRow(t, db, "statistics", map[string]any{
		"id": 10, "metadata_id": 1, "start_ts": 1700000000.0, "mean": 5.0, "min": 1.0, "max": 9.0, "sum": 100.5,
	})
	testutil.MustSeedRow(t, db, "statistics", map[string]any{
		"id": 11, "metadata_id": 1, "start_ts": 1700003600.0, "mean": 6.0, "min": 2.0, "max": 12.0, "sum": 101.1,
	})
	testutil.MustSeedRow(t, db, "statistics_short_term", map[string]any{
		"id": 20, "metadata_id": 1, "start_ts": 1700001800.0, "sum": 100.8,
	})
	testutil.MustSeedRow(t, db, "statistics", map[string]any{
		"id": 12, "metadata_id": 2, "start_ts": 1700007200.0, "mean": 250.0, "sum": 0.0,
	})
	return NewWithDB(db, loadTables(t))
}

func TestTableStats(t *testing.T) {
	st := seedReportFixture(t)

	stats, err := st.TableStats(context.Background())
	require.NoError(t, err)

	byName := make(map[string]TableStat, len(stats))
	var names []string
	for _, s := range stats {
		byName[s.Name] = s
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"schema_changes", "statistics", "statistics_meta", "statistics_short_term"}, names)

	assert.Equal(t, int64(3), byName["statistics"].Rows)
	assert.Equal(t, int64(10), byName["statistics"].Cols)
	assert.Equal(t, int64(30), byName["statistics"].Records())
	assert.Equal(t, int64(1), byName["statistics_short_term"].Rows)
}

func TestEntitySummaries(t *testing.T) {
	st := seedReportFixture(t)

	summaries, err := st.EntitySummaries(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Sorted by metadata id.
	energy := summaries[0]
	assert.Equal(t, "sensor.energy", energy.Entity)
	assert.Equal(t, int64(3), energy.Count, "counts span both series tables")
	assert.Equal(t, 1700000000.0, energy.First)
	assert.Equal(t, 1700003600.0, energy.Last)
	assert.Equal(t, "kWh", energy.Unit)
	assert.Greater(t, energy.KB, 0.0)

	power := summaries[1]
	assert.Equal(t, "sensor.power", power.Entity)
	assert.Equal(t, int64(1), power.Count)
}

func TestEntitySummaries_DateBounds(t *testing.T) {
	st := seedReportFixture(t)

	after := 1700003000.0
	summaries, err := st.EntitySummaries(context.Background(), &after, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, int64(1), summaries[0].Count, "bounded to rows at or after the cutoff")

	before := 1700000500.0
	summaries, err = st.EntitySummaries(context.Background(), nil, &before)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "sensor.energy", summaries[0].Entity)
}

func TestMetadataIDFor(t *testing.T) {
	st := seedReportFixture(t)

	mid, found, err := st.MetadataIDFor(context.Background(), "sensor.energy")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), mid)

	_, found, err = st.MetadataIDFor(context.Background(), "sensor.unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExportRows(t *testing.T) {
	st := seedReportFixture(t)
	tables := loadTables(t)
	tbl, ok := tables.Table("statistics")
	require.True(t, ok)

	rows, err := st.ExportRows(context.Background(), tbl, 1, ExportFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], len(tbl.Columns))
	// Ordered by id.
	assert.Equal(t, int64(10), rows[0][0])
	assert.Equal(t, int64(11), rows[1][0])
}

func TestExportRows_Thresholds(t *testing.T) {
	st := seedReportFixture(t)
	tables := loadTables(t)
	tbl, _ := tables.Table("statistics")
	ctx := context.Background()

	above := 10.0
	rows, err := st.ExportRows(ctx, tbl, 1, ExportFilter{Above: &above})
	require.NoError(t, err)
	// Only id=11 has any of mean/min/max above 10 (max=12).
	require.Len(t, rows, 1)
	assert.Equal(t, int64(11), rows[0][0])

	below := 1.5
	rows, err = st.ExportRows(ctx, tbl, 1, ExportFilter{Below: &below})
	require.NoError(t, err)
	// Only id=10 has any of mean/min/max below 1.5 (min=1).
	require.Len(t, rows, 1)
	assert.Equal(t, int64(10), rows[0][0])

	lo, hi := 1.5, 5.5
	rows, err = st.ExportRows(ctx, tbl, 1, ExportFilter{Above: &lo, Below: &hi})
	require.NoError(t, err)
	// Strictly between: id=10 qualifies via mean=5, id=11 via min=2.
	require.Len(t, rows, 2)
}

func TestExportRows_DateRange(t *testing.T) {
	st := seedReportFixture(t)
	tables := loadTables(t)
	tbl, _ := tables.Table("statistics")

	after, before := 1700000000.0, 1700003000.0
	rows, err := st.ExportRows(context.Background(), tbl, 1, ExportFilter{After: &after, Before: &before})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(10), rows[0][0])
}
