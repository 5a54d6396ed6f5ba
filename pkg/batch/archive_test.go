package batch

import (
	"context"
	"sync"
	"testing"

	"github.com/gridflow/gridflow/pkg/model"
	"github.com/gridflow/gridflow/pkg/solver"
	"github.com/gridflow/gridflow/pkg/stores"
)

// Mock store for testing archive wiring
type mockStore struct {
	mu        sync.Mutex
	runs      []*stores.Run
	scenarios []*stores.ScenarioRecord
	finished  map[string]stores.RunStatus
}

func newMockStore() *mockStore {
	return &mockStore{finished: make(map[string]stores.RunStatus)}
}

func (m *mockStore) Init(context.Context) error    { return nil }
func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }
func (m *mockStore) HealthCheck(context.Context) error {
	return nil
}

func (m *mockStore) CreateRun(_ context.Context, run *stores.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) FinishRun(_ context.Context, id string, status stores.RunStatus, failed int, _ *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[id] = status
	return nil
}

func (m *mockStore) GetRun(context.Context, string) (*stores.Run, error) { return nil, nil }
func (m *mockStore) ListRuns(context.Context, int, int) ([]*stores.Run, error) {
	return nil, nil
}
func (m *mockStore) DeleteRun(context.Context, string) error { return nil }

func (m *mockStore) AppendScenario(_ context.Context, rec *stores.ScenarioRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios = append(m.scenarios, rec)
	return nil
}

func (m *mockStore) ListScenariosByRun(context.Context, string) ([]*stores.ScenarioRecord, error) {
	return nil, nil
}

func TestRunArchivesOutcomes(t *testing.T) {
	net := compileRing(t)
	store := newMockStore()

	engine := NewEngine(CalculationPowerFlow, solver.DefaultOptions(), 2)
	engine.Store = store
	engine.CasePath = "ring.yaml"

	scenarios := []model.UpdateSet{
		lineOutages()[0],
		{Sources: []model.SourceUpdate{{ID: 999, Status: model.Bool(false)}}},
	}

	_, err := engine.Run(context.Background(), net, scenarios)
	if err == nil {
		t.Fatal("Run() = nil, want aggregate error")
	}

	if len(store.runs) != 1 {
		t.Fatalf("archived %d runs, want 1", len(store.runs))
	}
	run := store.runs[0]
	if run.CasePath != "ring.yaml" || run.ScenarioCount != 2 || run.Status != stores.RunStatusRunning {
		t.Errorf("archived run = %+v, header fields wrong", run)
	}
	if store.finished[run.ID] != stores.RunStatusFailed {
		t.Errorf("run finished as %q, want failed", store.finished[run.ID])
	}

	if len(store.scenarios) != 2 {
		t.Fatalf("archived %d scenario records, want 2", len(store.scenarios))
	}
	// Appended in scenario order during result collection.
	if store.scenarios[0].Scenario != 0 || store.scenarios[0].Status != stores.RunStatusCompleted {
		t.Errorf("record 0 = %+v, want completed scenario 0", store.scenarios[0])
	}
	if len(store.scenarios[0].Result) == 0 {
		t.Error("completed scenario should carry a result payload")
	}
	if store.scenarios[1].Status != stores.RunStatusFailed || store.scenarios[1].Error == nil {
		t.Errorf("record 1 = %+v, want failed with error text", store.scenarios[1])
	}
}

func TestRunWithoutStoreSkipsArchiving(t *testing.T) {
	net := compileRing(t)
	engine := NewEngine(CalculationPowerFlow, solver.DefaultOptions(), Sequential)

	if _, err := engine.Run(context.Background(), net, lineOutages()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}
