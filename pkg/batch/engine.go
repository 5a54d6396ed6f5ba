// Package batch executes many scenario variants of one compiled network.
// The base network is shared read-only across all workers; every scenario
// solves a private working copy produced by the update applier. Results are
// returned in input scenario order regardless of completion order.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridflow/gridflow/pkg/model"
	"github.com/gridflow/gridflow/pkg/network"
	"github.com/gridflow/gridflow/pkg/solver"
	"github.com/gridflow/gridflow/pkg/stores"
	"github.com/gridflow/gridflow/pkg/telemetry"
)

// Calculation selects which solver a batch run uses.
type Calculation string

const (
	// CalculationPowerFlow runs the forward power-flow solver.
	CalculationPowerFlow Calculation = "power_flow"

	// CalculationStateEstimation runs the weighted-least-squares estimator.
	CalculationStateEstimation Calculation = "state_estimation"
)

// Parallelism degrees for Engine.Parallel.
const (
	// Sequential executes scenarios one by one on the calling goroutine.
	Sequential = -1

	// AutoParallel sizes the worker pool to the available hardware.
	AutoParallel = 0
)

// Engine dispatches scenario solves over a bounded worker pool.
type Engine struct {
	// Calculation selects the solver; power flow by default.
	Calculation Calculation

	// Solver holds the per-scenario solve options.
	Solver solver.Options

	// Parallel is the worker count: Sequential, AutoParallel or an
	// explicit positive degree.
	Parallel int

	// Logger receives per-run and per-scenario events. Nil disables
	// engine logging.
	Logger *telemetry.Logger

	// Metrics receives instrumentation. Nil disables it.
	Metrics *telemetry.Metrics

	// Store archives runs and scenario outcomes. Nil disables archiving;
	// archive failures are logged but never fail the run.
	Store stores.Store

	// CasePath labels archived runs with their source case file.
	CasePath string
}

// NewEngine creates a batch engine with default power-flow settings.
func NewEngine(calculation Calculation, solverOpts solver.Options, parallel int) *Engine {
	if calculation == "" {
		calculation = CalculationPowerFlow
	}
	return &Engine{
		Calculation: calculation,
		Solver:      solverOpts,
		Parallel:    parallel,
	}
}

// ScenarioFailure is one failed scenario inside an aggregate batch error.
type ScenarioFailure struct {
	// Scenario is the zero-based input position of the failed scenario.
	Scenario int

	// Err is the scenario's solve or update error.
	Err error
}

// AggregateError reports every failed scenario of a batch run, in scenario
// order. The batch call as a whole fails when any scenario failed, even
// though sibling scenarios completed.
type AggregateError struct {
	// Total is the number of scenarios in the run.
	Total int

	// Failures lists the failed scenarios in input order.
	Failures []ScenarioFailure
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d scenarios failed:", len(e.Failures), e.Total)
	for _, f := range e.Failures {
		fmt.Fprintf(&sb, "\n  scenario %d: %v", f.Scenario, f.Err)
	}
	return sb.String()
}

// Unwrap exposes the individual scenario errors for errors.Is/As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Run solves every scenario against the shared base network and returns one
// result set per scenario, in input order. A scenario failure never stops
// sibling scenarios; if any scenario failed the whole call returns an
// AggregateError and no results.
func (e *Engine) Run(ctx context.Context, base *network.Network, scenarios []model.UpdateSet) ([]*solver.ResultSet, error) {
	runID := uuid.New().String()
	started := time.Now()

	logger := e.Logger
	if logger != nil {
		logger = logger.WithRunID(runID)
		logger.Infof("batch run started: %d scenarios, parallel=%d", len(scenarios), e.Parallel)
	}

	if e.Store != nil {
		err := e.Store.CreateRun(ctx, &stores.Run{
			ID:            runID,
			CasePath:      e.CasePath,
			Calculation:   string(e.Calculation),
			Method:        string(e.Solver.Method),
			ScenarioCount: len(scenarios),
			Status:        stores.RunStatusRunning,
			StartedAt:     started,
		})
		if err != nil && logger != nil {
			logger.WithError(err).Warn("run archive unavailable")
		}
	}

	results := make([]*solver.ResultSet, len(scenarios))
	errs := make([]error, len(scenarios))

	workers := e.workerCount(len(scenarios))
	if workers <= 1 {
		for i := range scenarios {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				continue
			}
			results[i], errs[i] = e.solveScenario(base, &scenarios[i])
		}
	} else {
		work := make(chan int, len(scenarios))
		for i := range scenarios {
			work <- i
		}
		close(work)

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range work {
					if err := ctx.Err(); err != nil {
						errs[i] = err
						continue
					}
					results[i], errs[i] = e.solveScenario(base, &scenarios[i])
				}
			}()
		}
		wg.Wait()
	}

	var failures []ScenarioFailure
	for i, err := range errs {
		if e.Metrics != nil {
			e.Metrics.RecordScenario(err)
		}
		if err != nil {
			failures = append(failures, ScenarioFailure{Scenario: i, Err: err})
			if logger != nil {
				logger.WithScenario(i).WithError(err).Error("scenario failed")
			}
		}
		e.archiveScenario(ctx, logger, runID, i, results[i], err)
	}
	if e.Metrics != nil {
		e.Metrics.RecordBatch(time.Since(started), len(failures))
	}
	e.finishRun(ctx, logger, runID, len(failures))

	if len(failures) > 0 {
		if logger != nil {
			logger.Errorf("batch run failed: %d of %d scenarios", len(failures), len(scenarios))
		}
		return nil, &AggregateError{Total: len(scenarios), Failures: failures}
	}
	if logger != nil {
		logger.Infof("batch run completed in %s", time.Since(started))
	}
	return results, nil
}

// archiveScenario stores one scenario outcome when archiving is configured.
func (e *Engine) archiveScenario(ctx context.Context, logger *telemetry.Logger, runID string, index int, rs *solver.ResultSet, solveErr error) {
	if e.Store == nil {
		return
	}
	rec := &stores.ScenarioRecord{
		RunID:    runID,
		Scenario: index,
		Status:   stores.RunStatusCompleted,
	}
	if solveErr != nil {
		rec.Status = stores.RunStatusFailed
		msg := solveErr.Error()
		rec.Error = &msg
	} else if rs != nil {
		data, err := json.Marshal(rs)
		if err == nil {
			rec.Result = data
		}
	}
	if err := e.Store.AppendScenario(ctx, rec); err != nil && logger != nil {
		logger.WithScenario(index).WithError(err).Warn("scenario archive failed")
	}
}

func (e *Engine) finishRun(ctx context.Context, logger *telemetry.Logger, runID string, failed int) {
	if e.Store == nil {
		return
	}
	status := stores.RunStatusCompleted
	var errMsg *string
	if failed > 0 {
		status = stores.RunStatusFailed
		msg := fmt.Sprintf("%d scenarios failed", failed)
		errMsg = &msg
	}
	if err := e.Store.FinishRun(ctx, runID, status, failed, errMsg); err != nil && logger != nil {
		logger.WithError(err).Warn("run archive update failed")
	}
}

// solveScenario derives a private working copy, applies the scenario update
// and runs the selected solver on it. The base network is never touched.
func (e *Engine) solveScenario(base *network.Network, update *model.UpdateSet) (*solver.ResultSet, error) {
	if e.Metrics != nil {
		e.Metrics.ScenarioStarted()
		defer e.Metrics.ScenarioFinished()
	}
	started := time.Now()

	work := base.Clone()
	if err := work.ApplyUpdate(update); err != nil {
		e.recordSolve(started, err)
		return nil, err
	}

	var rs *solver.ResultSet
	var err error
	switch e.Calculation {
	case CalculationStateEstimation:
		rs, err = solver.Estimate(work, e.Solver)
	default:
		rs, err = solver.Solve(work, e.Solver)
	}
	e.recordSolve(started, err)
	return rs, err
}

func (e *Engine) recordSolve(started time.Time, err error) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.RecordSolve(string(e.Calculation), string(e.Solver.Method), time.Since(started), err)
	if err != nil {
		e.Metrics.RecordSolveFailure(string(model.KindOf(err)))
	}
}

// workerCount resolves the configured parallelism degree against the
// scenario count.
func (e *Engine) workerCount(scenarios int) int {
	switch {
	case e.Parallel <= Sequential:
		return 1
	case e.Parallel == AutoParallel:
		if n := runtime.NumCPU(); n < scenarios {
			return n
		}
		return scenarios
	case e.Parallel < scenarios:
		return e.Parallel
	default:
		return scenarios
	}
}
