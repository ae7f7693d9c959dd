package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test for the import pipeline.
// A scenario seeds a fresh in-memory recorder database, runs a CSV
// through parse, classification and rendering, and checks the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed establishes the database state before the CSV runs.
	Seed Seed `yaml:"seed,omitempty"`

	// CSV is the literal input document, header line included.
	CSV string `yaml:"csv"`

	// Apply executes the changeset against the seeded database after
	// rendering, enabling final-state checks.
	Apply bool `yaml:"apply,omitempty"`

	// Expect validates the rendered changeset and, after apply, the
	// database state.
	Expect Expect `yaml:"expect"`
}

// Seed lists metadata and series rows inserted before the run.
type Seed struct {
	Meta []MetaEntry `yaml:"meta,omitempty"`
	Rows []RowEntry  `yaml:"rows,omitempty"`
}

// MetaEntry seeds one statistics_meta row.
type MetaEntry struct {
	ID     int64  `yaml:"id"`
	Entity string `yaml:"entity"`
	Unit   string `yaml:"unit,omitempty"`
}

// RowEntry seeds one series table row.
type RowEntry struct {
	Table  string         `yaml:"table"`
	Values map[string]any `yaml:"values"`
}

// Expect validates a scenario outcome.
type Expect struct {
	// Summary is the expected operation count line,
	// e.g. "1 inserts, 0 updates, 0 deletes, 2 skips".
	Summary string `yaml:"summary,omitempty"`

	// Warnings is the expected number of per-row warnings.
	Warnings int `yaml:"warnings,omitempty"`

	// Final checks rows after apply. Requires apply: true.
	Final []StateCheck `yaml:"final,omitempty"`
}

// StateCheck verifies one row in the database after apply.
type StateCheck struct {
	Table string `yaml:"table"`
	ID    int64  `yaml:"id"`

	// Expect is a subset match on column values.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts the row does not exist (after a delete).
	Absent bool `yaml:"absent,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so that typos fail loudly instead of silently passing.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.CSV == "" {
		return fmt.Errorf("csv is required")
	}
	for i, m := range s.Seed.Meta {
		if m.Entity == "" {
			return fmt.Errorf("seed.meta[%d]: entity is required", i)
		}
	}
	for i, r := range s.Seed.Rows {
		if r.Table == "" {
			return fmt.Errorf("seed.rows[%d]: table is required", i)
		}
		if len(r.Values) == 0 {
			return fmt.Errorf("seed.rows[%d]: values is required", i)
		}
	}
	if len(s.Expect.Final) > 0 && !s.Apply {
		return fmt.Errorf("expect.final requires apply: true")
	}
	for i, c := range s.Expect.Final {
		if c.Table == "" {
			return fmt.Errorf("expect.final[%d]: table is required", i)
		}
		if !c.Absent && len(c.Expect) == 0 {
			return fmt.Errorf("expect.final[%d]: expect is required unless absent", i)
		}
	}
	return nil
}
