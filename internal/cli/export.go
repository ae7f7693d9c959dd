package cli

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/statsync/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Above  float64
	Below  float64
	After  string
	Before string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <entity>...",
		Short: "Export statistics rows to CSV",
		Long: `Export statistics rows for the named entities as CSV on stdout.

The output uses the import header convention (table, two informational
columns, then the table columns), so an export can be edited and fed
straight back into import. Floats are written with full round-trip
precision; re-importing an unmodified export produces only skips.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.Above, "above", 0, "only include rows with a value above this threshold")
	cmd.Flags().Float64Var(&opts.Below, "below", 0, "only include rows with a value below this threshold")
	cmd.Flags().StringVar(&opts.After, "after", "", "only include data after this date")
	cmd.Flags().StringVar(&opts.Before, "before", "", "only include data before this date")

	return cmd
}

func runExport(opts *ExportOptions, entities []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	var filter store.ExportFilter
	if cmd.Flags().Changed("above") {
		filter.Above = &opts.Above
	}
	if cmd.Flags().Changed("below") {
		filter.Below = &opts.Below
	}
	if opts.After != "" {
		ts, err := parseDate(opts.After)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --after", err)
		}
		filter.After = &ts
	}
	if opts.Before != "" {
		ts, err := parseDate(opts.Before)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --before", err)
		}
		filter.Before = &ts
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

	names := tables.TableNames()
	first, _ := tables.Table(names[0])
	startIdx := columnIndex(first.Columns, "start_ts")

	w := csv.NewWriter(out)
	header := append([]string{"table", "entity (ignored)", "date (ignored)"}, first.Columns...)
	if err := w.Write(header); err != nil {
		return WrapExitError(ExitCommandError, "failed to write csv", err)
	}

	for _, entity := range entities {
		mid, found, err := st.MetadataIDFor(ctx, entity)
		if err != nil {
			return WrapExitError(ExitCommandError, "metadata lookup failed", err)
		}
		if !found {
			fmt.Fprintf(errOut, "Warning: entity %q not found\n", entity)
			continue
		}

		for _, name := range names {
			tbl, _ := tables.Table(name)
			rows, err := st.ExportRows(ctx, tbl, mid, filter)
			if err != nil {
				return WrapExitError(ExitCommandError, "export query failed", err)
			}
			for _, vals := range rows {
				date := ""
				if startIdx >= 0 && startIdx < len(vals) {
					if ts, ok := cellFloat(vals[startIdx]); ok {
						date = formatTS(ts)
					}
				}
				rec := make([]string, 0, len(vals)+3)
				rec = append(rec, name, entity, date)
				for _, v := range vals {
					rec = append(rec, formatCell(v))
				}
				if err := w.Write(rec); err != nil {
					return WrapExitError(ExitCommandError, "failed to write csv", err)
				}
			}
		}
	}

	w.Flush()
	return w.Error()
}

// formatCell renders a database value for CSV. Floats use shortest
// round-trip formatting so an unmodified re-import compares equal.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func cellFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}

func columnIndex(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
