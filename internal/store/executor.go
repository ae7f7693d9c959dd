package store

import (
	"context"
	"fmt"

	"github.com/roach88/statsync/internal/mutsql"
	"github.com/roach88/statsync/internal/plan"
)

// ExecutionWarning is recoverable: one mutation statement failed against
// the store. The run continues with the remaining statements.
type ExecutionWarning struct {
	Table string
	ID    int64
	HasID bool
	Stmt  string
	Err   error
}

func (w *ExecutionWarning) Error() string {
	if w.HasID {
		return fmt.Sprintf("%s id %d: executing %q: %v", w.Table, w.ID, w.Stmt, w.Err)
	}
	return fmt.Sprintf("%s: executing %q: %v", w.Table, w.Stmt, w.Err)
}

func (w *ExecutionWarning) Unwrap() error {
	return w.Err
}

// Apply executes every descriptor in plan order inside a single
// transaction. Failure isolation is per-operation, not per-run: a failed
// statement becomes an ExecutionWarning and the batch carries on, so one
// bad row does not discard an otherwise clean import. Callers that need
// all-or-nothing must wrap the run themselves.
func (s *Store) Apply(ctx context.Context, p *plan.Plan) ([]*ExecutionWarning, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("apply: begin tx: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	var warns []*ExecutionWarning
	for _, d := range p.Descriptors {
		stmt, args, err := mutsql.Compile(d)
		if err != nil {
			return nil, fmt.Errorf("apply: %w", err)
		}
		if stmt == "" {
			continue // skip descriptor
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			warns = append(warns, &ExecutionWarning{
				Table: d.Table,
				ID:    d.ID,
				HasID: d.HasID,
				Stmt:  stmt,
				Err:   err,
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return warns, fmt.Errorf("apply: commit: %w", err)
	}
	return warns, nil
}
