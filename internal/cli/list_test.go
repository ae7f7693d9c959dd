package cli

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statsync/internal/store"
)

func TestList_CSV(t *testing.T) {
	dbPath := newRecorderFile(t)

	stdout, _, err := runCommand(t, "--db", dbPath, "list", "--csv")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"Entity", "Count", "First", "Last", "~ KB", "Unit"}, records[0])
	assert.Equal(t, "sensor.energy", records[1][0])
	assert.Equal(t, "2", records[1][1])
	assert.Equal(t, "2023-11-14 22:13:20", records[1][2])
	assert.Equal(t, "2023-11-14 23:13:20", records[1][3])
	assert.Equal(t, "kWh", records[1][5])
}

func TestList_Table(t *testing.T) {
	dbPath := newRecorderFile(t)

	stdout, _, err := runCommand(t, "--db", dbPath, "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Entity")
	assert.Contains(t, stdout, "sensor.energy")
}

func TestList_InvalidSortKey(t *testing.T) {
	dbPath := newRecorderFile(t)

	_, _, err := runCommand(t, "--db", dbPath, "list", "--sort", "alphabetical")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid sort key")
}

func TestSortSummaries(t *testing.T) {
	base := []store.EntitySummary{
		{Entity: "a", Count: 3, First: 30, Last: 300, KB: 1.0},
		{Entity: "b", Count: 1, First: 10, Last: 100, KB: 3.0},
		{Entity: "c", Count: 2, First: 20, Last: 200, KB: 2.0},
	}
	clone := func() []store.EntitySummary {
		out := make([]store.EntitySummary, len(base))
		copy(out, base)
		return out
	}
	order := func(s []store.EntitySummary) string {
		names := make([]string, len(s))
		for i, e := range s {
			names[i] = e.Entity
		}
		return strings.Join(names, "")
	}

	tests := []struct {
		key     string
		reverse bool
		want    string
	}{
		{"", false, "abc"}, // no key keeps input order
		{"count", false, "bca"},
		{"count", true, "acb"},
		{"first", false, "bca"},
		{"last", false, "bca"},
		{"kb", false, "acb"},
		{"kb", true, "bca"},
	}
	for _, tt := range tests {
		s := clone()
		sortSummaries(s, tt.key, tt.reverse)
		assert.Equal(t, tt.want, order(s), "key=%s reverse=%v", tt.key, tt.reverse)
	}
}

func TestStatus(t *testing.T) {
	dbPath := newRecorderFile(t)

	stdout, _, err := runCommand(t, "--db", dbPath, "status")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Database type: sqlite, schema 50")
	assert.Contains(t, stdout, "statistics")
	assert.Contains(t, stdout, "statistics_meta")
	assert.Contains(t, stdout, "TOTAL RECORDS:")
	assert.Contains(t, stdout, "TOTAL SIZE:")
}
