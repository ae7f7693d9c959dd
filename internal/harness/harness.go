// Package harness provides a conformance framework for the import
// pipeline. A scenario seeds a fresh in-memory recorder database, runs a
// CSV document through parsing, classification and statement rendering,
// and checks the rendered changeset against expectations and a golden
// file. With apply enabled the changeset is also executed and final row
// state verified, so the same scenario proves the preview and the apply
// agree.
package harness

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/statsync/internal/mutsql"
	"github.com/roach88/statsync/internal/plan"
	"github.com/roach88/statsync/internal/record"
	"github.com/roach88/statsync/internal/schema"
	"github.com/roach88/statsync/internal/store"
	"github.com/roach88/statsync/internal/testutil"
)

// Result captures one scenario execution.
type Result struct {
	Summary    plan.Summary
	Statements []string
	Warnings   []string

	// Errors lists expectation failures. Empty means the scenario passed.
	Errors []string
}

// Preview renders the changeset the way the dry-run output does: the
// summary line followed by one statement per descriptor.
func (r *Result) Preview() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Operations summary: %s\n", r.Summary)
	for _, stmt := range r.Statements {
		b.WriteString(stmt)
		b.WriteByte('\n')
	}
	return b.String()
}

// Run executes a scenario against a fresh in-memory database and
// evaluates its expectations. Expectation failures land in Result.Errors;
// an error return means the scenario itself could not run.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	tables, err := schema.Load()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	db, err := testutil.OpenMemory(store.KnownSchemaVersion)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	for _, m := range scenario.Seed.Meta {
		if err := testutil.SeedMeta(db, m.ID, m.Entity, m.Unit); err != nil {
			return nil, err
		}
	}
	for _, r := range scenario.Seed.Rows {
		if err := testutil.SeedRow(db, r.Table, r.Values); err != nil {
			return nil, err
		}
	}

	st := store.NewWithDB(db, tables)

	rows, err := record.Parse(strings.NewReader(scenario.CSV))
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	result := &Result{}
	var records []record.Record
	for _, row := range rows {
		rec, warns, ok := record.Convert(row, tables)
		for _, w := range warns {
			result.Warnings = append(result.Warnings, w.Error())
		}
		if ok {
			records = append(records, rec)
		}
	}

	p, err := plan.NewBuilder(st, tables).Build(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("build changeset: %w", err)
	}
	for _, w := range p.Warnings {
		result.Warnings = append(result.Warnings, w.Error())
	}
	result.Summary = p.Summary

	for _, d := range p.Descriptors {
		stmt, err := mutsql.Render(d)
		if err != nil {
			return nil, fmt.Errorf("render statement: %w", err)
		}
		result.Statements = append(result.Statements, stmt)
	}

	if scenario.Apply {
		execWarns, err := st.Apply(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("apply changeset: %w", err)
		}
		for _, w := range execWarns {
			result.Warnings = append(result.Warnings, w.Error())
		}
	}

	evaluateExpectations(ctx, scenario, st, result)
	return result, nil
}

func evaluateExpectations(ctx context.Context, scenario *Scenario, st *store.Store, result *Result) {
	if want := scenario.Expect.Summary; want != "" && want != result.Summary.String() {
		result.Errors = append(result.Errors,
			fmt.Sprintf("summary mismatch: want %q, got %q", want, result.Summary))
	}
	if want := scenario.Expect.Warnings; want != len(result.Warnings) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("warning count mismatch: want %d, got %d %v",
				want, len(result.Warnings), result.Warnings))
	}

	for i, check := range scenario.Expect.Final {
		row, found, err := st.Fetch(ctx, check.Table, check.ID)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("final[%d]: fetch failed: %v", i, err))
			continue
		}
		if check.Absent {
			if found {
				result.Errors = append(result.Errors,
					fmt.Sprintf("final[%d]: %s id=%d should be absent", i, check.Table, check.ID))
			}
			continue
		}
		if !found {
			result.Errors = append(result.Errors,
				fmt.Sprintf("final[%d]: %s id=%d not found", i, check.Table, check.ID))
			continue
		}
		for col, want := range check.Expect {
			got, ok := row[col]
			if !ok {
				result.Errors = append(result.Errors,
					fmt.Sprintf("final[%d]: %s id=%d has no column %q", i, check.Table, check.ID, col))
				continue
			}
			if !valuesMatch(want, got) {
				result.Errors = append(result.Errors,
					fmt.Sprintf("final[%d]: %s id=%d column %q: want %v, got %v",
						i, check.Table, check.ID, col, want, got))
			}
		}
	}
}

// valuesMatch compares a YAML expectation against a scanned database
// value. Numerics compare under the classification tolerance so a check
// written as an integer matches a REAL column.
func valuesMatch(want, got any) bool {
	wf, wok := toFloat(want)
	gf, gok := toFloat(got)
	if wok && gok {
		return math.Abs(wf-gf) <= plan.Tolerance
	}
	return fmt.Sprintf("%v", want) == fmt.Sprintf("%v", got)
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}
