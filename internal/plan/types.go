// Package plan turns parsed records into an ordered changeset: the minimal
// set of mutations needed to bring the store into agreement with the input.
//
// Classification is a pure function of which fields a record carries.
// Update candidates are compared field-by-field against the stored row under
// a fixed absolute tolerance, so floating-point noise introduced by text
// round-trips never generates spurious statements. Descriptor order always
// matches input order; that is what makes preview output reproducible and
// apply's statement order predictable.
package plan

import (
	"fmt"

	"github.com/roach88/statsync/internal/record"
)

// Tolerance is the maximum absolute numeric difference below which two
// values are considered equal for diffing purposes.
const Tolerance = 1e-6

// Kind is the operation a descriptor performs.
type Kind string

const (
	OpInsert Kind = "insert"
	OpUpdate Kind = "update"
	OpDelete Kind = "delete"
	OpSkip   Kind = "skip"
)

// Descriptor is one ordered mutation: target table, operation kind,
// optional identifier, and the field/value payload.
//
// Invariants:
//   - delete: HasID, empty Fields
//   - insert: !HasID, Fields carry at least the anchor columns (except when
//     reclassified from a vanished update target, which keeps its supplied id
//     as an ordinary field)
//   - update: HasID, Fields non-empty after tolerance filtering
//   - skip: HasID, Fields emptied by tolerance filtering
type Descriptor struct {
	Table  string
	Kind   Kind
	ID     int64
	HasID  bool
	Fields map[string]record.Value
}

// Summary counts descriptors by kind. Counters only ever go up.
type Summary struct {
	Inserts int
	Updates int
	Deletes int
	Skips   int
}

// Add increments the counter for kind.
func (s *Summary) Add(k Kind) {
	switch k {
	case OpInsert:
		s.Inserts++
	case OpUpdate:
		s.Updates++
	case OpDelete:
		s.Deletes++
	case OpSkip:
		s.Skips++
	}
}

// String renders the terminal report line.
func (s Summary) String() string {
	return fmt.Sprintf("%d inserts, %d updates, %d deletes, %d skips",
		s.Inserts, s.Updates, s.Deletes, s.Skips)
}

// Plan is the ordered changeset for one run, plus everything that went
// wrong along the way. Warnings are accumulated, never swallowed.
type Plan struct {
	Descriptors []Descriptor
	Summary     Summary
	Warnings    []error
}

// ClassificationWarning is recoverable: a record lacks the fields required
// for its inferred operation kind and is excluded from the changeset.
type ClassificationWarning struct {
	Line   int
	Reason string
}

func (w *ClassificationWarning) Error() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
}
