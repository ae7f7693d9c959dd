package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/statsync/internal/mutsql"
	"github.com/roach88/statsync/internal/plan"
	"github.com/roach88/statsync/internal/record"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	DryRun bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <csv-file>",
		Short: "Import a statistics CSV, applying only actual changes",
		Long: `Import statistics rows from a CSV export.

Each row is classified by the fields it carries: an id with no data fields
is a delete, no id is an insert, and an id with data fields is an update
candidate compared against the stored row under a small numeric tolerance.
Values that only differ by float round-trip noise produce no statement.

With --dry-run, the statements are printed and the database is left
untouched; the dry-run output exactly predicts what an apply would do.

Example:
  statsync import export.csv --dry-run
  statsync --db ./home-assistant_v2.db import export.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the statements without modifying the database")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	runID := uuid.Must(uuid.NewV7()).String()

	in, err := openInput(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open input", err)
	}
	defer in.Close()

	// A structural error means the file shape is broken; abort before any
	// classification, before the database is even touched.
	rows, err := record.Parse(in)
	if err != nil {
		var structural *record.StructuralError
		if errors.As(err, &structural) {
			return WrapExitError(ExitFailure, "input rejected", structural)
		}
		return WrapExitError(ExitFailure, "failed to read input", err)
	}

	st, tables, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	slog.Info("import starting", "run_id", runID, "rows", len(rows), "dry_run", opts.DryRun)

	var records []record.Record
	warnings := 0
	for _, row := range rows {
		rec, warns, ok := record.Convert(row, tables)
		for _, w := range warns {
			slog.Warn(w.Error(), "run_id", runID)
		}
		warnings += len(warns)
		if ok {
			records = append(records, rec)
		}
	}

	builder := plan.NewBuilder(st, tables)
	p, err := builder.Build(ctx, records)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build changeset", err)
	}
	for _, w := range p.Warnings {
		slog.Warn(w.Error(), "run_id", runID)
	}
	warnings += len(p.Warnings)

	if opts.DryRun {
		fmt.Fprintln(out, "=== DRY RUN MODE: statements that would be executed ===")
		fmt.Fprintln(out, strings.Repeat("=", 75))
		fmt.Fprintf(out, "Operations summary: %s\n", p.Summary)
		fmt.Fprintln(out, "SQL to execute:")
		for _, d := range p.Descriptors {
			stmt, err := mutsql.Render(d)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to render statement", err)
			}
			fmt.Fprintln(out, stmt)
		}
		fmt.Fprintln(out, "Dry run complete, no changes applied.")
		slog.Info("dry run complete", "run_id", runID, "warnings", warnings)
		return nil
	}

	execWarns, err := st.Apply(ctx, p)
	for _, w := range execWarns {
		slog.Warn(w.Error(), "run_id", runID)
	}
	warnings += len(execWarns)
	if err != nil {
		return WrapExitError(ExitFailure, "apply failed", err)
	}

	fmt.Fprintf(out, "Import done: %s\n", p.Summary)
	slog.Info("import complete", "run_id", runID, "warnings", warnings)
	return nil
}

// openInput opens the CSV path, with "-" meaning stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
