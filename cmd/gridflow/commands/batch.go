package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gridflow/gridflow/pkg/batch"
	"github.com/gridflow/gridflow/pkg/caseio"
	"github.com/gridflow/gridflow/pkg/network"
	"github.com/gridflow/gridflow/pkg/solver"
	"github.com/gridflow/gridflow/pkg/stores"
	"github.com/gridflow/gridflow/pkg/telemetry"
)

func newBatchCommand() *cobra.Command {
	var (
		scenarioFile  string
		calculation   string
		method        string
		tolerance     float64
		maxIterations int
		parallel      int
		outFile       string
		archivePath   string
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "batch <case-file>",
		Short: "Solve scenario variants of a case in parallel",
		Long: `Compile a case file once and solve every scenario of a scenario file
against it. Each scenario is a sparse update set applied to a private copy of
the compiled network, so scenarios never observe each other.

A scenario failure is reported with its position but does not stop sibling
scenarios.`,
		Example: `  # N-1 contingency scan over 8 workers
  gridflow batch case.yaml --scenarios outages.yaml --parallel 8

  # Sequential run archived to SQLite
  gridflow batch case.yaml --scenarios outages.yaml --parallel -1 --archive runs.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, err := caseio.ReadCaseFile(args[0])
			if err != nil {
				return err
			}
			net, err := network.Compile(dataset)
			if err != nil {
				return err
			}
			scenarios, err := caseio.ReadScenarioFile(scenarioFile)
			if err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Format: "console"})
			if err != nil {
				return err
			}

			engine := batch.NewEngine(
				batch.Calculation(calculation),
				solver.Options{
					Symmetric:     true,
					Method:        solver.Method(method),
					Tolerance:     tolerance,
					MaxIterations: maxIterations,
				},
				parallel,
			)
			engine.Logger = logger
			engine.CasePath = args[0]

			if archivePath != "" {
				store, err := stores.NewSQLiteStore(stores.Config{Path: archivePath})
				if err != nil {
					return err
				}
				if err := store.Init(cmd.Context()); err != nil {
					return err
				}
				defer store.Close()
				if err := store.Migrate(cmd.Context()); err != nil {
					return err
				}
				engine.Store = store
			}

			if metricsListen != "" {
				metrics := telemetry.NewMetrics(telemetry.MetricsConfig{
					Enabled:       true,
					ListenAddress: metricsListen,
				})
				engine.Metrics = metrics
				go func() {
					if err := metrics.Serve(); err != nil {
						log.Warn().Err(err).Msg("Metrics endpoint stopped")
					}
				}()
			}

			results, err := engine.Run(cmd.Context(), net, scenarios)
			if err != nil {
				var agg *batch.AggregateError
				if errors.As(err, &agg) {
					for _, f := range agg.Failures {
						log.Error().Int("scenario", f.Scenario).Err(f.Err).Msg("Scenario failed")
					}
				}
				return err
			}

			log.Info().Int("scenarios", len(results)).Msg("Batch completed")
			return writeBatchResults(outFile, results)
		},
	}

	cmd.Flags().StringVarP(&scenarioFile, "scenarios", "s", "", "scenario file path")
	cmd.Flags().StringVar(&calculation, "calculation", "power_flow", "calculation type (power_flow, state_estimation)")
	cmd.Flags().StringVarP(&method, "method", "m", "newton_raphson", "calculation method (newton_raphson, linear, iterative_linear)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "convergence tolerance (0 = default)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration cap (0 = default)")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "worker count (-1 sequential, 0 auto, N explicit)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file path (default stdout)")
	cmd.Flags().StringVar(&archivePath, "archive", "", "SQLite database path for the run archive")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "address for the Prometheus /metrics endpoint")
	cmd.MarkFlagRequired("scenarios")

	return cmd
}

func writeBatchResults(path string, results []*solver.ResultSet) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return caseio.WriteBatchResults(w, results)
}
