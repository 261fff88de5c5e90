package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/perflens/perflens/internal/adapter"
	"github.com/perflens/perflens/internal/config"
	"github.com/perflens/perflens/internal/logging"
	"github.com/perflens/perflens/internal/profile"
	"github.com/perflens/perflens/internal/session"
	"github.com/perflens/perflens/internal/store"
	"github.com/perflens/perflens/internal/workload"
)

// newRunCmd creates the run command.
func newRunCmd() *cobra.Command {
	var (
		configPath string
		workName   string
		size       int
		chunk      int
		out        string
		dbPath     string
		topN       int
		timeout    time.Duration
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Profile a demo workload and print the merged report",
		Long: `Run one of the built-in demo workloads under all enabled adapters and
print the merged report, detected patterns, and recommendations.

Workloads:
  fib     naive recursive Fibonacci (exponential recursion)
  growth  unbounded allocation loop (memory growth)
  pairs   all-pairs scan (dominant and quadratic statements)
  lookup  per-element point lookups (batching candidate)
  all     every workload in sequence

Examples:
  # Profile naive Fibonacci and save the report
  perflens run --workload fib --size 25 --out report.json

  # Persist the session for later analysis
  perflens run --workload all --db sessions.duckdb`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Session.Timeout = timeout
			}
			if cmd.Flags().Changed("top") {
				cfg.Session.TopN = topN
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if dbPath != "" {
				cfg.Store = dbPath
			}

			logger := logging.New(cfg.Logging)

			timer := adapter.NewCallTimer()
			watcher := adapter.NewHeapWatch(cfg.Adapters.AllocInterval, logger)
			lines := adapter.NewLineTimer()

			var adapters []adapter.Adapter
			if cfg.Adapters.CallTime {
				adapters = append(adapters, timer)
			}
			if cfg.Adapters.Alloc {
				adapters = append(adapters, watcher)
			}
			if cfg.Adapters.LineTime {
				adapters = append(adapters, lines)
			}

			target, err := workload.BuildTarget(workName, size, chunk, cfg.Adapters.AllocInterval, timer, lines)
			if err != nil {
				return err
			}

			coord := session.New(logger,
				session.WithTimeout(cfg.Session.Timeout),
				session.WithThresholds(cfg.Analyze),
			)
			if err := coord.Run(target, adapters...); err != nil {
				return err
			}

			report, err := coord.Report()
			if err != nil {
				return err
			}
			findings, err := coord.Findings()
			if err != nil {
				return err
			}
			recs, err := coord.Recommendations()
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), report, cfg.Session.TopN)
			printFindings(cmd.OutOrStdout(), findings)
			printRecommendations(cmd.OutOrStdout(), recs)

			if out != "" {
				data, err := profile.Encode(report)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return fmt.Errorf("write report %s: %w", out, err)
				}
				logger.Info().Str("path", out).Msg("Report written")
			}

			if cfg.Store != "" {
				db, err := store.Open(cfg.Store, logger)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				if err := db.SaveSession(context.Background(), report, recs); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().StringVarP(&workName, "workload", "w", "fib", "Workload to profile (fib, growth, pairs, lookup, all)")
	cmd.Flags().IntVar(&size, "size", 0, "Workload size (default depends on workload)")
	cmd.Flags().IntVar(&chunk, "chunk", 4096, "Allocation chunk size in bytes for the growth workload")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the report as JSON to this path")
	cmd.Flags().StringVar(&dbPath, "db", "", "Persist the session in this DuckDB database")
	cmd.Flags().IntVar(&topN, "top", 50, "Entries to print per adapter kind")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Advisory session timeout (0 disables)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

