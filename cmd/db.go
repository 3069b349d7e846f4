package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/database"
)

func newDBCmd(a *app) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Maintain the scan history database",
		Long: `Inspect and maintain the schema of the scan history database.

Requires --db-dsn (or IDLSCAN_DB_DSN). Scans and the history command migrate
the schema automatically; these commands exist for inspection and recovery.`,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, runner, err := a.openMigrations()
			if err != nil {
				return err
			}
			defer db.Close()

			status, err := runner.GetMigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			printMigrationStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, runner, err := a.openMigrations()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := runner.RunMigrations(cmd.Context()); err != nil {
				return err
			}
			status, err := runner.GetMigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			printMigrationStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback <version>",
		Short: "Roll back one applied schema migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil || version < 1 {
				return fmt.Errorf("invalid migration version %q", args[0])
			}
			cmd.SilenceUsage = true

			db, runner, err := a.openMigrations()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := runner.RollbackMigration(cmd.Context(), version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %d\n", version)
			return nil
		},
	}

	dbCmd.AddCommand(statusCmd, migrateCmd, rollbackCmd)
	return dbCmd
}

func (a *app) openMigrations() (*sqlx.DB, *database.MigrationRunner, error) {
	db, err := database.Open(a.cfg.Database)
	if errors.Is(err, database.ErrNotConfigured) {
		return nil, nil, fmt.Errorf("%w: set --db-dsn or IDLSCAN_DB_DSN", err)
	}
	if err != nil {
		return nil, nil, err
	}
	return db, database.NewMigrationRunner(db, a.log.WithComponent("database")), nil
}

func printMigrationStatus(w io.Writer, s *database.MigrationStatus) {
	fmt.Fprintf(w, "Schema version:   %d (latest %d)\n", s.CurrentVersion, s.LatestVersion)
	fmt.Fprintf(w, "Applied:          %d\n", s.Applied)
	fmt.Fprintf(w, "Pending:          %d\n", s.Pending)
	if s.UpToDate() {
		fmt.Fprintln(w, "Status:           up to date")
	} else {
		fmt.Fprintln(w, "Status:           migrations pending")
	}
}
