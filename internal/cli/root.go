// Package cli implements the perflens command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/perflens/perflens/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "perflens",
	Short: "Perflens - unified performance profiling and analysis",
	Long: `Profile a unit of work with call timing, allocation tracking, and
statement timing at once, then get a single merged report with detected
inefficiency patterns and ranked optimization recommendations.

Typical flow:
  # Profile a built-in demo workload and print the report
  perflens run --workload fib --out report.json

  # Re-run pattern analysis on a saved report
  perflens analyze --in report.json

  # Export a saved report for go tool pprof
  perflens export --in report.json --out profile.pb.gz`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Perflens version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
