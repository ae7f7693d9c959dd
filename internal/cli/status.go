package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/statsync/internal/store"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Summarize database tables and storage usage",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, _, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	version, ok, err := st.SchemaVersion(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read schema version", err)
	}
	schemaDesc := "unknown"
	if ok {
		schemaDesc = fmt.Sprintf("%d", version)
	}

	fmt.Fprintf(out, "Database type: sqlite, schema %s\n", schemaDesc)
	fmt.Fprintf(out, "Time: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintln(out, strings.Repeat("-", 70))

	stats, err := st.TableStats(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to collect table stats", err)
	}

	var totalRecords, totalBytes int64
	for _, t := range stats {
		totalRecords += t.Records()
		totalBytes += t.Records() * store.BytesPerField
	}

	data := pterm.TableData{{"Table", "Rows", "Cols", "Records", "% total", "~ MB"}}
	for _, t := range stats {
		recs := t.Records()
		pct := 0.0
		if totalRecords > 0 {
			pct = float64(recs) / float64(totalRecords) * 100
		}
		mb := float64(recs*store.BytesPerField) / (1024 * 1024)
		data = append(data, []string{
			t.Name,
			fmt.Sprintf("%d", t.Rows),
			fmt.Sprintf("%d", t.Cols),
			fmt.Sprintf("%d", recs),
			fmt.Sprintf("%.1f%%", pct),
			fmt.Sprintf("%.1f", mb),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
		return WrapExitError(ExitCommandError, "failed to render table", err)
	}

	pr := message.NewPrinter(language.English)
	fmt.Fprintln(out, strings.Repeat("-", 70))
	pr.Fprintf(out, "TOTAL RECORDS: %d\n", totalRecords)
	pr.Fprintf(out, "TOTAL SIZE: %.2f MB\n", float64(totalBytes)/(1024*1024))
	return nil
}
