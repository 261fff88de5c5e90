package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/perflens/perflens/internal/logging"
	"github.com/perflens/perflens/internal/store"
)

// newSessionsCmd creates the sessions command.
func newSessionsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted profiling sessions",
		Long: `List the sessions stored in a DuckDB database, most recent first.

Example:
  perflens sessions --db sessions.duckdb`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}
			logger := logging.New(logging.Config{Level: "warn", Pretty: true})

			db, err := store.Open(dbPath, logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			sessions, err := db.ListSessions(context.Background())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions stored.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tSTARTED\tDURATION\tADAPTERS\tENTRIES\tRECS\tSTATUS")
			for _, s := range sessions {
				status := "ok"
				switch {
				case s.TargetError != "":
					status = "target failed"
				case len(s.Failed) > 0:
					status = "partial"
				case s.TimedOut:
					status = "timed out"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					s.SessionID,
					s.StartedAt.Format(time.RFC3339),
					s.Duration.Round(time.Microsecond),
					kindList(s.Adapters),
					s.Entries,
					s.Recommendations,
					status)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB session database")
	return cmd
}
