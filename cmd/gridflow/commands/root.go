package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gridflow",
		Short: "GridFlow - Steady-State Power Network Solver",
		Long: `GridFlow compiles component-based network cases into electrical graphs and
solves them in steady state.

Features:
  - Newton-Raphson, linear and iterative linear power flow
  - Weighted least squares state estimation from sensor readings
  - Parallel batch execution of scenario variants
  - SQLite archive of batch runs and results`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newSolveCommand())
	rootCmd.AddCommand(newBatchCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
