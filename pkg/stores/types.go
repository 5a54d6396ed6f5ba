package stores

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of an archived batch run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one archived batch run.
type Run struct {
	// ID is the uuid assigned by the batch engine.
	ID string

	// CasePath is the case file the run solved, empty for in-memory runs.
	CasePath string

	// Calculation and Method identify the solver configuration.
	Calculation string
	Method      string

	// ScenarioCount and FailedCount summarize the run.
	ScenarioCount int
	FailedCount   int

	Status      RunStatus
	Error       *string
	StartedAt   time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// ScenarioRecord is the archived outcome of one scenario inside a run.
type ScenarioRecord struct {
	RunID string

	// Scenario is the zero-based input position within the run.
	Scenario int

	Status RunStatus
	Error  *string

	// Result is the JSON-encoded result set, nil for failed scenarios.
	Result []byte
}

// Store archives batch runs and their per-scenario results.
type Store interface {
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
	HealthCheck(ctx context.Context) error

	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, failed int, errMsg *string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	AppendScenario(ctx context.Context, rec *ScenarioRecord) error
	ListScenariosByRun(ctx context.Context, runID string) ([]*ScenarioRecord, error)
}
