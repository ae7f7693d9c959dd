package cli

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/roach88/statsync/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Sort    string
	Reverse bool
	CSV     bool
	After   string
	Before  string
}

var listSortKeys = []string{"count", "first", "last", "kb"}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List entities with counts, date ranges and size",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort by column (count|first|last|kb)")
	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "reverse sort order")
	cmd.Flags().BoolVar(&opts.CSV, "csv", false, "output in CSV format")
	cmd.Flags().StringVar(&opts.After, "after", "", "only consider data after this date")
	cmd.Flags().StringVar(&opts.Before, "before", "", "only consider data before this date")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.Sort != "" && !validSortKey(opts.Sort) {
		return WrapExitError(ExitCommandError, "invalid sort key",
			fmt.Errorf("%q: must be one of %v", opts.Sort, listSortKeys))
	}

	var after, before *float64
	if opts.After != "" {
		ts, err := parseDate(opts.After)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --after", err)
		}
		after = &ts
	}
	if opts.Before != "" {
		ts, err := parseDate(opts.Before)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --before", err)
		}
		before = &ts
	}

	st, _, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	summaries, err := st.EntitySummaries(ctx, after, before)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to aggregate entities", err)
	}

	sortSummaries(summaries, opts.Sort, opts.Reverse)

	headers := []string{"Entity", "Count", "First", "Last", "~ KB", "Unit"}
	if opts.CSV {
		w := csv.NewWriter(out)
		if err := w.Write(headers); err != nil {
			return WrapExitError(ExitCommandError, "failed to write csv", err)
		}
		for _, e := range summaries {
			rec := []string{
				e.Entity,
				fmt.Sprintf("%d", e.Count),
				formatTS(e.First),
				formatTS(e.Last),
				fmt.Sprintf("%.1f", e.KB),
				e.Unit,
			}
			if err := w.Write(rec); err != nil {
				return WrapExitError(ExitCommandError, "failed to write csv", err)
			}
		}
		w.Flush()
		return w.Error()
	}

	data := pterm.TableData{headers}
	for _, e := range summaries {
		data = append(data, []string{
			e.Entity,
			fmt.Sprintf("%d", e.Count),
			formatTS(e.First),
			formatTS(e.Last),
			fmt.Sprintf("%.1f", e.KB),
			e.Unit,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
		return WrapExitError(ExitCommandError, "failed to render table", err)
	}
	return nil
}

func validSortKey(key string) bool {
	for _, k := range listSortKeys {
		if k == key {
			return true
		}
	}
	return false
}

// sortSummaries sorts in place by the requested key. Stable so that
// entities tied on the key keep their metadata-id order.
func sortSummaries(summaries []store.EntitySummary, key string, reverse bool) {
	if key == "" {
		return
	}
	less := func(a, b store.EntitySummary) bool { return false }
	switch key {
	case "count":
		less = func(a, b store.EntitySummary) bool { return a.Count < b.Count }
	case "first":
		less = func(a, b store.EntitySummary) bool { return a.First < b.First }
	case "last":
		less = func(a, b store.EntitySummary) bool { return a.Last < b.Last }
	case "kb":
		less = func(a, b store.EntitySummary) bool { return a.KB < b.KB }
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		if reverse {
			return less(summaries[j], summaries[i])
		}
		return less(summaries[i], summaries[j])
	})
}
