package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/perflens/perflens/internal/export"
	"github.com/perflens/perflens/internal/logging"
)

// newExportCmd creates the export command.
func newExportCmd() *cobra.Command {
	var (
		in        string
		dbPath    string
		sessionID string
		out       string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a saved report in pprof format",
		Long: `Convert a saved report's timing stats to a gzip-compressed pprof
protobuf, viewable with standard tooling.

Examples:
  perflens export --in report.json --out profile.pb.gz
  go tool pprof -top profile.pb.gz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			logger := logging.New(logging.Config{Level: "warn", Pretty: true})

			report, err := loadReport(in, dbPath, sessionID, logger)
			if err != nil {
				return err
			}

			f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			defer func() { _ = f.Close() }()

			if err := export.WritePprof(f, report); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "Path to a JSON report")
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB session database")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to load from the database")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path for the pprof profile")
	return cmd
}
