package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/perflens/perflens/internal/analyze"
	"github.com/perflens/perflens/internal/logging"
	"github.com/perflens/perflens/internal/profile"
	"github.com/perflens/perflens/internal/store"
)

// newAnalyzeCmd creates the analyze command.
func newAnalyzeCmd() *cobra.Command {
	var (
		configPath string
		in         string
		dbPath     string
		sessionID  string
		topN       int
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Re-run pattern analysis on a saved report",
		Long: `Load a previously saved report and re-run the pattern matcher and
recommendation synthesizer on it. Matching is deterministic: analyzing the
same report twice produces identical findings.

Examples:
  # Analyze a JSON report written by 'perflens run --out'
  perflens analyze --in report.json

  # Analyze a session persisted with 'perflens run --db'
  perflens analyze --db sessions.duckdb --session 5d0f0c3e-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging)

			report, err := loadReport(in, dbPath, sessionID, logger)
			if err != nil {
				return err
			}

			matcher := analyze.NewMatcher(cfg.Analyze, logger)
			findings := matcher.Match(report)
			recs := analyze.Synthesize(findings)

			printReport(cmd.OutOrStdout(), report, topN)
			printFindings(cmd.OutOrStdout(), findings)
			printRecommendations(cmd.OutOrStdout(), recs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().StringVarP(&in, "in", "i", "", "Path to a JSON report")
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB session database")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to load from the database")
	cmd.Flags().IntVar(&topN, "top", 50, "Entries to print per adapter kind")
	return cmd
}

// loadReport resolves the report source: a JSON file, or a session in the
// database (the most recent one when no ID is given).
func loadReport(in, dbPath, sessionID string, logger zerolog.Logger) (*profile.Report, error) {
	switch {
	case in != "" && dbPath != "":
		return nil, fmt.Errorf("--in and --db are mutually exclusive")
	case in != "":
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, fmt.Errorf("read report %s: %w", in, err)
		}
		return profile.Decode(data)
	case dbPath != "":
		db, err := store.Open(dbPath, logger)
		if err != nil {
			return nil, err
		}
		defer func() { _ = db.Close() }()

		ctx := context.Background()
		if sessionID == "" {
			sessions, err := db.ListSessions(ctx)
			if err != nil {
				return nil, err
			}
			if len(sessions) == 0 {
				return nil, fmt.Errorf("no sessions in %s", dbPath)
			}
			sessionID = sessions[0].SessionID
			logger.Info().Str("session_id", sessionID).Msg("Using most recent session")
		}
		return db.LoadReport(ctx, sessionID)
	}
	return nil, fmt.Errorf("either --in or --db is required")
}
