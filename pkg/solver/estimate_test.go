package solver

import (
	"math"
	"strings"
	"testing"

	"github.com/gridflow/gridflow/pkg/model"
	"github.com/gridflow/gridflow/pkg/network"
)

// sensoredDataset runs a power flow on the three-node ring and attaches
// sensors reporting the exact solved values, so estimation should reproduce
// the power-flow state.
func sensoredDataset(t *testing.T) *model.Dataset {
	t.Helper()
	net := compileThreeNode(t)
	rs, err := Solve(net, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	d := threeNodeDataset()
	for i, nr := range rs.Nodes {
		d.SymVoltageSensors = append(d.SymVoltageSensors, model.SymVoltageSensor{
			ID:             100 + i,
			MeasuredObject: d.Nodes[i].ID,
			USigma:         10,
			UMeasured:      nr.U,
		})
	}
	d.SymPowerSensors = append(d.SymPowerSensors, model.SymPowerSensor{
		ID:                   110,
		MeasuredObject:       10,
		MeasuredTerminalType: model.TerminalSource,
		PowerSigma:           1e4,
		PMeasured:            rs.Sources[0].P,
		QMeasured:            rs.Sources[0].Q,
	})
	for i, ar := range rs.SymLoads {
		d.SymPowerSensors = append(d.SymPowerSensors, model.SymPowerSensor{
			ID:                   111 + i,
			MeasuredObject:       ar.ID,
			MeasuredTerminalType: model.TerminalLoad,
			PowerSigma:           1e4,
			PMeasured:            ar.P,
			QMeasured:            ar.Q,
		})
	}
	return d
}

func TestEstimateReproducesPowerFlowState(t *testing.T) {
	d := sensoredDataset(t)
	net, err := network.Compile(d)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	reference, err := Solve(net, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	rs, err := Estimate(net, Options{Symmetric: true, Tolerance: 1e-8, MaxIterations: 50})
	if err != nil {
		t.Fatalf("Estimate() error: %v", err)
	}

	for i := range rs.Nodes {
		if !rs.Nodes[i].Energized {
			t.Fatalf("node %d should be energized", rs.Nodes[i].ID)
		}
		ref := reference.Nodes[i].U
		if math.Abs(rs.Nodes[i].U-ref)/ref > 1e-3 {
			t.Errorf("node %d estimated voltage = %.1f V, power flow gives %.1f V",
				rs.Nodes[i].ID, rs.Nodes[i].U, ref)
		}
		if math.Abs(rs.Nodes[i].UAngle-reference.Nodes[i].UAngle) > 1e-3 {
			t.Errorf("node %d estimated angle = %g, power flow gives %g",
				rs.Nodes[i].ID, rs.Nodes[i].UAngle, reference.Nodes[i].UAngle)
		}
	}
}

// weightedResidualSum evaluates the weighted-least-squares objective at a
// given per-unit state.
func weightedResidualSum(s *system, ms []measurement, vm, va []float64) float64 {
	aOf := make([]int, s.n)
	for i := range aOf {
		aOf[i] = -1
	}
	total := 0.0
	for i := range ms {
		linearizeMeasurement(s, &ms[i], vm, va, aOf, 0,
			func(_ []jacobianEntry, residual, weight float64) {
				total += weight * residual * residual
			})
	}
	return total
}

func TestEstimateInconsistentReadingsSettleAtWeightedOptimum(t *testing.T) {
	d := sensoredDataset(t)
	// Skew the redundant readings so no state satisfies them all. The
	// estimate must then settle where the weighted squared residuals are
	// minimal: perturbing any state coordinate may not lower the objective.
	d.SymVoltageSensors[1].UMeasured *= 1.01
	d.SymVoltageSensors[2].UMeasured *= 0.99
	for i := range d.SymPowerSensors {
		d.SymPowerSensors[i].PMeasured *= 1.05
		d.SymPowerSensors[i].QMeasured *= 0.95
	}
	net, err := network.Compile(d)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	rs, err := Estimate(net, Options{Symmetric: true, Tolerance: 1e-10, MaxIterations: 100})
	if err != nil {
		t.Fatalf("Estimate() error: %v", err)
	}

	s := newSystem(net)
	ms, err := assembleMeasurements(s)
	if err != nil {
		t.Fatalf("assembleMeasurements() error: %v", err)
	}

	vm := make([]float64, s.n)
	va := make([]float64, s.n)
	for si := 0; si < s.n; si++ {
		ni := s.energ.NodeOf[si]
		vm[si] = rs.Nodes[ni].U / net.Nodes[ni].URated
		va[si] = rs.Nodes[ni].UAngle
	}

	base := weightedResidualSum(s, ms, vm, va)
	if base <= 0 {
		t.Fatal("skewed readings should leave nonzero residuals")
	}

	// The first source node is the fixed angle reference, not a state
	// variable, so the objective is only stationary in the other angles.
	ref := 0
	for i := 0; i < s.n; i++ {
		if s.slack[i] {
			ref = i
			break
		}
	}

	const h = 1e-6
	for si := 0; si < s.n; si++ {
		for _, delta := range []float64{h, -h} {
			vm[si] += delta
			if j := weightedResidualSum(s, ms, vm, va); j < base*(1-1e-7) {
				t.Errorf("magnitude perturbation at node %d lowers the objective: %g -> %g",
					net.Nodes[s.energ.NodeOf[si]].ID, base, j)
			}
			vm[si] -= delta

			if si == ref {
				continue
			}
			va[si] += delta
			if j := weightedResidualSum(s, ms, vm, va); j < base*(1-1e-7) {
				t.Errorf("angle perturbation at node %d lowers the objective: %g -> %g",
					net.Nodes[s.energ.NodeOf[si]].ID, base, j)
			}
			va[si] -= delta
		}
	}
}

func TestEstimateUnderDeterminedBeforeIterating(t *testing.T) {
	d := threeNodeDataset()
	// A single voltage reading cannot fix six state variables.
	d.SymVoltageSensors = []model.SymVoltageSensor{
		{ID: 100, MeasuredObject: 1, USigma: 10, UMeasured: 10.5e3},
	}
	net, err := network.Compile(d)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	_, err = Estimate(net, DefaultOptions())
	if !model.IsUnderDetermined(err) {
		t.Fatalf("Estimate() = %v, want under-determined error", err)
	}
	if !strings.Contains(err.Error(), "insufficient measurements") {
		t.Errorf("error should explain the shortfall, got %q", err.Error())
	}
}

func TestEstimatePartialApplianceCoverageIsNotUsed(t *testing.T) {
	d := sensoredDataset(t)
	// Add a second, unmeasured load at node 2: its injection measurement
	// must drop, leaving the node constrained by its voltage sensor only.
	d.SymLoads = append(d.SymLoads, model.SymLoad{
		ID: 13, Node: 2, Status: true, Type: model.LoadConstPower, PSpecified: 1e6,
	})
	net, err := network.Compile(d)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	// Still observable thanks to the remaining sensors, so this must solve,
	// but the reported node-2 voltage should now follow the voltage sensor
	// rather than any stale injection reading.
	rs, err := Estimate(net, Options{Symmetric: true, Tolerance: 1e-8, MaxIterations: 50})
	if err != nil {
		t.Fatalf("Estimate() error: %v", err)
	}
	if !rs.Nodes[1].Energized {
		t.Error("node 2 should be energized")
	}
}

func TestEstimateZeroInjectionJunction(t *testing.T) {
	// Chain 1 - 2 - 6 where node 2 is a bare junction: it contributes a
	// virtual zero-injection constraint instead of needing a sensor.
	d := &model.Dataset{
		Nodes: []model.Node{
			{ID: 1, URated: 10.5e3},
			{ID: 2, URated: 10.5e3},
			{ID: 6, URated: 10.5e3},
		},
		Lines: []model.Line{
			{ID: 3, FromNode: 1, ToNode: 2, FromStatus: true, ToStatus: true, R1: 0.25, X1: 0.2, C1: 10e-6, IN: 1000},
			{ID: 5, FromNode: 2, ToNode: 6, FromStatus: true, ToStatus: true, R1: 0.25, X1: 0.2, C1: 10e-6, IN: 1000},
		},
		Sources: []model.Source{
			{ID: 10, Node: 1, Status: true, URef: 1.0},
		},
		SymLoads: []model.SymLoad{
			{ID: 12, Node: 6, Status: true, Type: model.LoadConstPower, PSpecified: 10e6, QSpecified: 2e6},
		},
	}
	net, err := network.Compile(d)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	flow, err := Solve(net, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	d.SymVoltageSensors = []model.SymVoltageSensor{
		{ID: 100, MeasuredObject: 1, USigma: 10, UMeasured: flow.Nodes[0].U},
		{ID: 101, MeasuredObject: 6, USigma: 10, UMeasured: flow.Nodes[2].U},
	}
	d.SymPowerSensors = []model.SymPowerSensor{
		{ID: 110, MeasuredObject: 10, MeasuredTerminalType: model.TerminalSource,
			PowerSigma: 1e4, PMeasured: flow.Sources[0].P, QMeasured: flow.Sources[0].Q},
		{ID: 111, MeasuredObject: 12, MeasuredTerminalType: model.TerminalLoad,
			PowerSigma: 1e4, PMeasured: flow.SymLoads[0].P, QMeasured: flow.SymLoads[0].Q},
	}
	net, err = network.Compile(d)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	rs, err := Estimate(net, Options{Symmetric: true, Tolerance: 1e-8, MaxIterations: 50})
	if err != nil {
		t.Fatalf("Estimate() error: %v", err)
	}

	// The junction voltage is recovered without a dedicated sensor.
	ref := flow.Nodes[1].U
	if math.Abs(rs.Nodes[1].U-ref)/ref > 1e-3 {
		t.Errorf("junction voltage = %.1f V, power flow gives %.1f V", rs.Nodes[1].U, ref)
	}
}

func TestEstimateNoActiveSource(t *testing.T) {
	d := sensoredDataset(t)
	d.Sources[0].Status = false
	net, err := network.Compile(d)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	rs, err := Estimate(net, DefaultOptions())
	if err != nil {
		t.Fatalf("Estimate() error: %v", err)
	}
	for _, nr := range rs.Nodes {
		if nr.Energized {
			t.Errorf("node %d should be de-energized", nr.ID)
		}
	}
}
