package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/core"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/database"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/ledger"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/report"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/scanner"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/staging"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/shutdown"
)

const (
	envPrefix = "IDLSCAN"

	// bounds telemetry flush and store close after a scan
	shutdownTimeout = 5 * time.Second
)

// newLedger is replaced in tests.
var newLedger = func(cfg config.RPCConfig, log *logger.Logger, tel core.Telemetry) (core.Ledger, error) {
	return ledger.NewClient(cfg, log, tel)
}

// app holds what PersistentPreRunE builds for the subcommands.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *logger.Logger
}

func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "idlscan <program-id>",
		Short: "Check a Solana program for IDL account squatting exposure",
		Long: `idlscan - IDL account squatting scanner

Retrieves the deployed binary of a program, looks for Anchor IDL tooling
(the "anchor:idl" seed and the IdlCreateAccount instruction) and, when both
are present, derives the program's IDL account and checks whether it exists.

An IDL account that does not exist yet sits at an address anyone can compute
and claim first. The scanner is read-only: it never submits transactions.

USAGE:
  idlscan <program-id>            Scan one program
  idlscan history [program-id]    List stored scans (requires --db-dsn)
  idlscan config show             Print the effective configuration
  idlscan db status               Show history schema migrations (also: migrate, rollback)

ENVIRONMENT:
  Every flag has an IDLSCAN_* equivalent, e.g. IDLSCAN_RPC_URL, IDLSCAN_DB_DSN.`,
		Args: cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := address.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid program address %q: %w", args[0], err)
			}
			cmd.SilenceUsage = true

			showProgress, _ := cmd.Flags().GetBool("progress")
			return a.runScan(cmd, program, showProgress)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				// Sync errors on stdout/stderr are expected on Linux
				if err := a.log.Sync(); err != nil && !strings.Contains(err.Error(), "invalid argument") && !strings.Contains(err.Error(), "inappropriate ioctl") {
					fmt.Fprintf(os.Stderr, "Warning: failed to sync logger: %v\n", err)
				}
			}
		},
	}

	defaults := config.Default()
	flags := rootCmd.PersistentFlags()

	flags.String("rpc-url", defaults.RPC.Endpoint, "Solana JSON-RPC endpoint")
	flags.String("commitment", defaults.RPC.Commitment, "commitment level (processed, confirmed, finalized)")
	flags.Duration("timeout", defaults.RPC.Timeout, "deadline for the whole scan, also applied to each RPC request")
	flags.Int("max-retries", defaults.RPC.MaxRetries, "retries for transient RPC failures (0 = single attempt)")
	flags.Float64("rate-limit", defaults.RPC.RequestsPerSecond, "maximum RPC requests per second")
	flags.String("staging-dir", "", "directory for the transient binary dump (default: OS temp dir)")
	flags.String("log-level", defaults.Logger.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Logger.Format, "log format (json, console)")
	flags.String("db-dsn", "", "scan history database DSN (disabled when empty)")
	flags.String("db-driver", defaults.Database.Driver, "scan history database driver (sqlite3, postgres)")
	rootCmd.Flags().Bool("progress", false, "show a progress bar on stderr")

	bindings := map[string]string{
		"rpc.endpoint":            "rpc-url",
		"rpc.commitment":          "commitment",
		"rpc.timeout":             "timeout",
		"rpc.max_retries":         "max-retries",
		"rpc.requests_per_second": "rate-limit",
		"staging.dir":             "staging-dir",
		"logger.level":            "log-level",
		"logger.format":           "log-format",
		"database.dsn":            "db-dsn",
		"database.driver":         "db-driver",
	}
	for key, flag := range bindings {
		a.v.BindPFlag(key, flags.Lookup(flag))
	}

	a.v.BindEnv("rpc.endpoint", envPrefix+"_RPC_URL", envPrefix+"_RPC_ENDPOINT")
	a.v.BindEnv("database.dsn", envPrefix+"_DB_DSN", envPrefix+"_DATABASE_DSN")
	a.v.BindEnv("database.driver", envPrefix+"_DB_DRIVER", envPrefix+"_DATABASE_DRIVER")

	setDefaults(a.v, defaults)

	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newDBCmd(a))
	return rootCmd
}

func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("logger.output_paths", d.Logger.OutputPaths)
	v.SetDefault("rpc.retry_delay", d.RPC.RetryDelay)
	v.SetDefault("rpc.burst_size", d.RPC.BurstSize)
	v.SetDefault("rpc.min_interval", d.RPC.MinInterval)
	v.SetDefault("rpc.block_private", d.RPC.BlockPrivate)
	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)
}

func (a *app) init() error {
	// No config files - flags + env vars only
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	cfg := config.Default()
	if err := a.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = &cfg

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.log = log
	return nil
}

func (a *app) runScan(cmd *cobra.Command, program address.Address, showProgress bool) error {
	handler := shutdown.NewHandler(a.log)
	defer func() {
		if err := handler.ShutdownWithTimeout(shutdownTimeout); err != nil {
			a.log.Warnw("Shutdown incomplete", "error", err)
		}
	}()

	ctx, cancel := handler.WatchSignals(cmd.Context())
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, a.cfg.RPC.Timeout)
	defer cancelTimeout()

	tel, err := telemetry.New(ctx, a.cfg.Telemetry)
	if err != nil {
		a.log.Warnw("Telemetry disabled", "error", err)
		tel = telemetry.NewNoop()
	}
	handler.RegisterShutdownFunc(tel.Close)

	client, err := newLedger(a.cfg.RPC, a.log, tel)
	if err != nil {
		return err
	}

	opts := []scanner.Option{
		scanner.WithLogger(a.log),
		scanner.WithTelemetry(tel),
	}
	if a.cfg.Database.DSN != "" {
		store, err := database.NewStore(a.cfg.Database, a.log)
		if err != nil {
			return fmt.Errorf("failed to initialize scan history: %w", err)
		}
		handler.RegisterShutdownFunc(store.Close)
		opts = append(opts, scanner.WithStore(store))
	}
	if showProgress {
		opts = append(opts, scanner.WithProgress(cmd.ErrOrStderr()))
	}

	s := scanner.New(client, staging.NewOS(a.cfg.Staging.Dir), opts...)
	result, err := s.Scan(ctx, program)
	if err != nil {
		return err
	}

	return report.Render(cmd.OutOrStdout(), result)
}
