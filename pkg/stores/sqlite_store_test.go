package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "runs.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return store
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("NewSQLiteStore() should reject an empty path")
	}
}

func TestPoolSettingsApplied(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path:            filepath.Join(t.TempDir(), "runs.db"),
		MaxOpenConns:    3,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer store.Close()

	if got := store.db.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("MaxOpenConnections = %d, want 3", got)
	}
}

func TestPoolSettingsDefaulted(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: "runs.db"})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	if store.cfg.MaxOpenConns != 25 || store.cfg.MaxIdleConns != 5 || store.cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("zero pool settings not defaulted: %+v", store.cfg)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{
		ID:            "run-1",
		CasePath:      "case.yaml",
		Calculation:   "power_flow",
		Method:        "newton_raphson",
		ScenarioCount: 3,
		Status:        RunStatusRunning,
		StartedAt:     time.Now(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if got.Calculation != "power_flow" || got.ScenarioCount != 3 || got.Status != RunStatusRunning {
		t.Errorf("GetRun() = %+v, fields not persisted", got)
	}

	msg := "1 scenarios failed"
	if err := store.FinishRun(ctx, "run-1", RunStatusFailed, 1, &msg); err != nil {
		t.Fatalf("FinishRun() error: %v", err)
	}
	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if got.Status != RunStatusFailed || got.FailedCount != 1 {
		t.Errorf("finished run = %+v, want failed with 1 failure", got)
	}
	if got.CompletedAt == nil {
		t.Error("FinishRun() should set completed_at")
	}
	if got.Error == nil || *got.Error != msg {
		t.Errorf("error = %v, want %q", got.Error, msg)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRun() error: %v", err)
	}
	if _, err := store.GetRun(ctx, "run-1"); err == nil {
		t.Error("GetRun() should fail after deletion")
	}
}

func TestFinishRunNotFound(t *testing.T) {
	store := newTestStore(t)
	if err := store.FinishRun(context.Background(), "missing", RunStatusCompleted, 0, nil); err == nil {
		t.Fatal("FinishRun() should fail for an unknown run")
	}
}

func TestScenarioRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{
		ID:          "run-2",
		Calculation: "power_flow",
		Method:      "linear",
		Status:      RunStatusRunning,
		StartedAt:   time.Now(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}

	errMsg := "[id-not-found] update references a component that does not exist"
	records := []*ScenarioRecord{
		{RunID: "run-2", Scenario: 1, Status: RunStatusFailed, Error: &errMsg},
		{RunID: "run-2", Scenario: 0, Status: RunStatusCompleted, Result: []byte(`{"node":[]}`)},
	}
	for _, rec := range records {
		if err := store.AppendScenario(ctx, rec); err != nil {
			t.Fatalf("AppendScenario() error: %v", err)
		}
	}

	got, err := store.ListScenariosByRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("ListScenariosByRun() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	// Listed in scenario order regardless of insertion order.
	if got[0].Scenario != 0 || got[1].Scenario != 1 {
		t.Errorf("records out of order: %d, %d", got[0].Scenario, got[1].Scenario)
	}
	if string(got[0].Result) != `{"node":[]}` {
		t.Errorf("result payload = %q, not persisted", got[0].Result)
	}
	if got[1].Error == nil || *got[1].Error != errMsg {
		t.Errorf("scenario error = %v, want %q", got[1].Error, errMsg)
	}

	// Deleting the run cascades to its scenario records.
	if err := store.DeleteRun(ctx, "run-2"); err != nil {
		t.Fatalf("DeleteRun() error: %v", err)
	}
	got, err = store.ListScenariosByRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("ListScenariosByRun() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records after run deletion, want 0", len(got))
	}
}

func TestListRunsPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		run := &Run{
			ID:          string(rune('a' + i)),
			Calculation: "power_flow",
			Method:      "newton_raphson",
			Status:      RunStatusCompleted,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun() error: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	// Newest first.
	if runs[0].ID != "e" || runs[1].ID != "d" {
		t.Errorf("ListRuns order = %s, %s; want e, d", runs[0].ID, runs[1].ID)
	}

	runs, err = store.ListRuns(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "a" {
		t.Errorf("offset page = %+v, want the single oldest run", runs)
	}
}

func TestHealthCheck(t *testing.T) {
	store := newTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}

	uninitialized := &SQLiteStore{cfg: Config{Path: "x.db"}}
	if err := uninitialized.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on an uninitialized store should fail")
	}
}
