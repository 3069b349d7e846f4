package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/core"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/database"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/report"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [program-id]",
		Short: "List stored scan reports",
		Long: `List scan reports saved in the history database, newest first.

Requires --db-dsn (or IDLSCAN_DB_DSN). Optionally restrict the listing to one
program and/or one verdict.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := core.ReportFilter{}
			if len(args) == 1 {
				program, err := address.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid program address %q: %w", args[0], err)
				}
				filter.Program = program.String()
			}

			verdict, _ := cmd.Flags().GetString("verdict")
			switch types.Verdict(verdict) {
			case "", types.VerdictInconclusive, types.VerdictLikelyVulnerable, types.VerdictLikelySafe:
				filter.Verdict = types.Verdict(verdict)
			default:
				return fmt.Errorf("unknown verdict %q", verdict)
			}
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			cmd.SilenceUsage = true

			store, err := database.NewStore(a.cfg.Database, a.log)
			if errors.Is(err, database.ErrNotConfigured) {
				return fmt.Errorf("%w: set --db-dsn or IDLSCAN_DB_DSN", err)
			}
			if err != nil {
				return err
			}
			defer store.Close()

			reports, err := store.ListReports(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return report.RenderHistory(cmd.OutOrStdout(), reports)
		},
	}

	cmd.Flags().String("verdict", "", "only show this verdict (inconclusive, likely_vulnerable, likely_safe)")
	cmd.Flags().Int("limit", 20, "maximum number of reports (0 = all)")
	return cmd
}
