// Package cli wires the statsync commands: import (the reconciliation
// core), and the read-only status/list/export reports.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/statsync/internal/schema"
	"github.com/roach88/statsync/internal/store"
)

// DefaultDatabase is the recorder database in the working directory.
const DefaultDatabase = "home-assistant_v2.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Database string
}

// NewRootCommand creates the root command for the statsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "statsync",
		Short: "Reconcile exported statistics against the recorder database",
		Long: `statsync manages Home Assistant recorder statistics.

It exports statistics rows to CSV, and imports edited CSVs back by
computing the minimal changeset (inserts, updates, deletes) against the
current database state. Import supports a dry run that prints the exact
statements an apply would execute.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlag("db", cmd.Flags().Lookup("db")); err != nil {
				return err
			}
			opts.Database = v.GetString("db")

			logLevel := slog.LevelInfo
			if opts.Verbose {
				logLevel = slog.LevelDebug
			}
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: logLevel,
			})
			slog.SetDefault(slog.New(handler))
			return nil
		},
	}

	// Database path resolves flag > STATSYNC_DB > default.
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().String("db", "", fmt.Sprintf("path to recorder database (default %q)", DefaultDatabase))
	_ = v.BindEnv("db", "STATSYNC_DB")
	v.SetDefault("db", DefaultDatabase)

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// openStore loads the declared schema and opens the recorder database,
// logging a compatibility warning for schemas newer than we know.
func openStore(ctx context.Context, opts *RootOptions) (*store.Store, *schema.Set, error) {
	tables, err := schema.Load()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load table schema", err)
	}

	st, err := store.Open(opts.Database, tables)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	version, ok, err := st.SchemaVersion(ctx)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to read schema version", err)
	}
	if ok && version > store.KnownSchemaVersion {
		slog.Warn("recorder schema is newer than this tool knows",
			"schema_version", version, "known_version", store.KnownSchemaVersion)
	}

	return st, tables, nil
}
