package solver

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/gridflow/gridflow/pkg/model"
	"github.com/gridflow/gridflow/pkg/network"
)

// zeroInjectionSigma is the per-unit standard deviation assigned to the
// virtual zero-injection constraint of nodes without appliances.
const zeroInjectionSigma = 1e-4

type measurementKind int

const (
	measureVoltage measurementKind = iota
	measureInjection
	measureFlowFrom
	measureFlowTo
)

// measurement is one per-unit measurement constraint. Voltage measurements
// carry a single value in zP; power measurements carry both zP and zQ.
type measurement struct {
	kind  measurementKind
	node  int // solve index, voltage and injection kinds
	line  int // dense line index, flow kinds
	zP    float64
	zQ    float64
	sigma float64
}

func (m *measurement) scalarCount() int {
	if m.kind == measureVoltage {
		return 1
	}
	return 2
}

// Estimate runs an iterative weighted-least-squares state estimation from
// the sensor records attached to the network. It fails with an
// under-determined error when the measurement set cannot fix the state, and
// with a convergence error under the same iteration-cap contract as
// Newton-Raphson power flow.
func Estimate(net *network.Network, opts Options) (*ResultSet, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	s := newSystem(net)
	if !s.hasReference() {
		vm := make([]float64, 0)
		return deriveResults(s, vm, vm), nil
	}

	ms, err := assembleMeasurements(s)
	if err != nil {
		return nil, err
	}
	if err := checkObservability(s, ms); err != nil {
		return nil, err
	}

	vm, va, err := solveWLS(s, ms, o)
	if err != nil {
		return nil, err
	}
	return deriveResults(s, vm, va), nil
}

// assembleMeasurements converts sensor records into per-unit measurement
// constraints on the energized subnetwork.
//
// Appliance power sensors only constrain the state through the nodal
// injection, so they are aggregated per node; a node contributes an
// injection measurement only when every active appliance on it is measured.
// Nodes without any appliance contribute a virtual zero-injection
// constraint. Branch sensors on half-open lines are skipped: the open
// terminal carries no flow, and the closed terminal only the charging
// current of its own node.
func assembleMeasurements(s *system) ([]measurement, error) {
	net, energ := s.net, s.energ
	var ms []measurement

	for _, sen := range net.SymVoltageSensors {
		nodeIdx, _ := net.NodeIndex(sen.MeasuredObject)
		si := energ.SolveOf[nodeIdx]
		if si < 0 {
			continue
		}
		uRated := net.Nodes[nodeIdx].URated
		ms = append(ms, measurement{
			kind:  measureVoltage,
			node:  si,
			zP:    sen.UMeasured / uRated,
			sigma: sen.USigma / uRated,
		})
	}

	// Weighted-mean power readings per measured appliance.
	type reading struct {
		p, q, weight float64
	}
	sourceReadings := make(map[int]*reading)
	loadReadings := make(map[int]*reading)

	accumulate := func(m map[int]*reading, idx int, sen model.SymPowerSensor) {
		r := m[idx]
		if r == nil {
			r = &reading{}
			m[idx] = r
		}
		w := 1 / (sen.PowerSigma * sen.PowerSigma)
		r.p += sen.PMeasured * w
		r.q += sen.QMeasured * w
		r.weight += w
	}

	for _, sen := range net.SymPowerSensors {
		switch sen.MeasuredTerminalType {
		case model.TerminalBranchFrom, model.TerminalBranchTo:
			li, _ := net.LineIndex(sen.MeasuredObject)
			ln := net.Lines[li]
			if !energ.LineEnergized[li] || !ln.FromStatus || !ln.ToStatus {
				continue
			}
			kind := measureFlowFrom
			if sen.MeasuredTerminalType == model.TerminalBranchTo {
				kind = measureFlowTo
			}
			ms = append(ms, measurement{
				kind:  kind,
				line:  li,
				zP:    sen.PMeasured / network.BasePower,
				zQ:    sen.QMeasured / network.BasePower,
				sigma: sen.PowerSigma / network.BasePower,
			})
		case model.TerminalSource:
			si, _ := net.SourceIndex(sen.MeasuredObject)
			if energ.SourceEnergized[si] {
				accumulate(sourceReadings, si, sen)
			}
		case model.TerminalLoad:
			li, _ := net.LoadIndex(sen.MeasuredObject)
			if energ.LoadEnergized[li] {
				accumulate(loadReadings, li, sen)
			}
		}
	}

	// Nodal injection aggregation over complete appliance coverage.
	for si := 0; si < s.n; si++ {
		node := energ.NodeOf[si]

		activeAppliances := 0
		covered := true
		var p, q, variance float64

		for _, srcIdx := range net.SourcesAt(node) {
			if !energ.SourceEnergized[srcIdx] {
				continue
			}
			activeAppliances++
			r, ok := sourceReadings[srcIdx]
			if !ok {
				covered = false
				break
			}
			p += r.p / r.weight
			q += r.q / r.weight
			variance += 1 / r.weight
		}
		if covered {
			for _, ldIdx := range net.LoadsAt(node) {
				if !energ.LoadEnergized[ldIdx] {
					continue
				}
				activeAppliances++
				r, ok := loadReadings[ldIdx]
				if !ok {
					covered = false
					break
				}
				p -= r.p / r.weight
				q -= r.q / r.weight
				variance += 1 / r.weight
			}
		}

		switch {
		case activeAppliances == 0:
			ms = append(ms, measurement{
				kind:  measureInjection,
				node:  si,
				sigma: zeroInjectionSigma,
			})
		case covered:
			ms = append(ms, measurement{
				kind:  measureInjection,
				node:  si,
				zP:    p / network.BasePower,
				zQ:    q / network.BasePower,
				sigma: math.Sqrt(variance) / network.BasePower,
			})
		}
	}

	return ms, nil
}

// checkObservability enforces the structural precondition before any
// iteration: at least two independent constraints per energized node in
// total, and every energized node touched by some measurement chain.
func checkObservability(s *system, ms []measurement) error {
	count := 0
	covered := make([]bool, s.n)
	for i := range ms {
		m := &ms[i]
		count += m.scalarCount()
		switch m.kind {
		case measureVoltage, measureInjection:
			covered[m.node] = true
		case measureFlowFrom, measureFlowTo:
			from, to := s.net.LineEndpoints(m.line)
			covered[s.energ.SolveOf[from]] = true
			covered[s.energ.SolveOf[to]] = true
		}
	}

	if need := 2 * s.n; count < need {
		return model.NewError(model.KindUnderDetermined,
			fmt.Sprintf("insufficient measurements: %d independent values for %d energized nodes (need at least %d)",
				count, s.n, need)).
			WithOp("state_estimation").
			WithDetail("measurements", count).
			WithDetail("energized_nodes", s.n)
	}
	for si, ok := range covered {
		if !ok {
			return model.NewError(model.KindUnderDetermined,
				fmt.Sprintf("node %d is not covered by any measurement", s.net.Nodes[s.energ.NodeOf[si]].ID)).
				WithOp("state_estimation")
		}
	}
	return nil
}

// jacobianEntry is one sparse entry of a measurement equation row.
type jacobianEntry struct {
	col int
	val float64
}

// solveWLS runs Gauss-Newton on the weighted measurement residuals: the
// normal equations (H' W H) dx = H' W r are formed from the linearized
// measurement equations and solved by Cholesky factorization each step.
func solveWLS(s *system, ms []measurement, o Options) (vm, va []float64, err error) {
	vm, va = s.flatStart()
	for i := 0; i < s.n; i++ {
		// Estimation does not pin source magnitudes; start flat everywhere.
		vm[i] = 1.0
	}

	// Angle reference: the first source node keeps angle zero and is not a
	// state variable. Everything else contributes an angle and a magnitude.
	ref := 0
	for i := 0; i < s.n; i++ {
		if s.slack[i] {
			ref = i
			break
		}
	}
	aOf := make([]int, s.n)
	nvars := 0
	for i := 0; i < s.n; i++ {
		if i == ref {
			aOf[i] = -1
		} else {
			aOf[i] = nvars
			nvars++
		}
	}
	vBase := nvars
	nvars += s.n

	g := mat.NewSymDense(nvars, nil)
	rhs := mat.NewVecDense(nvars, nil)
	dx := mat.NewVecDense(nvars, nil)
	var chol mat.Cholesky

	rows := make([][]jacobianEntry, 0, 2*len(ms))
	residuals := make([]float64, 0, 2*len(ms))
	weights := make([]float64, 0, 2*len(ms))

	for iter := 0; ; iter++ {
		rows = rows[:0]
		residuals = residuals[:0]
		weights = weights[:0]

		for i := range ms {
			linearizeMeasurement(s, &ms[i], vm, va, aOf, vBase,
				func(row []jacobianEntry, residual, weight float64) {
					rows = append(rows, row)
					residuals = append(residuals, residual)
					weights = append(weights, weight)
				})
		}

		// Normal equations from the sparse measurement rows.
		g.Zero()
		rhs.Zero()
		for r, row := range rows {
			w := weights[r]
			for _, a := range row {
				rhs.SetVec(a.col, rhs.AtVec(a.col)+w*a.val*residuals[r])
				for _, b := range row {
					if b.col >= a.col {
						g.SetSym(a.col, b.col, g.At(a.col, b.col)+w*a.val*b.val)
					}
				}
			}
		}

		if ok := chol.Factorize(g); !ok {
			return nil, nil, model.NewError(model.KindUnderDetermined,
				"measurement equations are numerically rank deficient").
				WithOp("state_estimation")
		}
		if err := chol.SolveVecTo(dx, rhs); err != nil {
			return nil, nil, err
		}

		maxDev := 0.0
		for i := 0; i < s.n; i++ {
			if k := aOf[i]; k >= 0 {
				va[i] += dx.AtVec(k)
				maxDev = math.Max(maxDev, math.Abs(dx.AtVec(k)))
			}
			vm[i] += dx.AtVec(vBase + i)
			maxDev = math.Max(maxDev, math.Abs(dx.AtVec(vBase+i)))
		}

		if maxDev < o.Tolerance {
			log.Debug().
				Int("iterations", iter+1).
				Int("measurements", len(residuals)).
				Float64("max_deviation", maxDev).
				Msg("state estimation converged")
			return vm, va, nil
		}
		if iter+1 >= o.MaxIterations {
			return nil, nil, convergenceError("state_estimation", o.MaxIterations, maxDev, o.Tolerance)
		}
	}
}

// linearizeMeasurement evaluates one measurement's residual(s) and sparse
// Jacobian row(s) at the current state and emits them through sink.
func linearizeMeasurement(
	s *system,
	m *measurement,
	vm, va []float64,
	aOf []int,
	vBase int,
	sink func(row []jacobianEntry, residual, weight float64),
) {
	w := 1 / (m.sigma * m.sigma)

	switch m.kind {
	case measureVoltage:
		sink([]jacobianEntry{{col: vBase + m.node, val: 1}}, m.zP-vm[m.node], w)

	case measureInjection:
		i := m.node
		p, q := s.calculatedInjection(i, vm, va)
		var pRow, qRow []jacobianEntry
		for _, en := range s.adm.Rows[i] {
			j := en.Col
			gij, bij := real(en.Y), imag(en.Y)
			var dPdA, dPdV, dQdA, dQdV float64
			if j == i {
				dPdA = -q - bij*vm[i]*vm[i]
				dPdV = p/vm[i] + gij*vm[i]
				dQdA = p - gij*vm[i]*vm[i]
				dQdV = q/vm[i] - bij*vm[i]
			} else {
				d := va[i] - va[j]
				cos, sin := math.Cos(d), math.Sin(d)
				vv := vm[i] * vm[j]
				dPdA = vv * (gij*sin - bij*cos)
				dPdV = vm[i] * (gij*cos + bij*sin)
				dQdA = -vv * (gij*cos + bij*sin)
				dQdV = vm[i] * (gij*sin - bij*cos)
			}
			if k := aOf[j]; k >= 0 {
				pRow = append(pRow, jacobianEntry{col: k, val: dPdA})
				qRow = append(qRow, jacobianEntry{col: k, val: dQdA})
			}
			pRow = append(pRow, jacobianEntry{col: vBase + j, val: dPdV})
			qRow = append(qRow, jacobianEntry{col: vBase + j, val: dQdV})
		}
		sink(pRow, m.zP-p, w)
		sink(qRow, m.zQ-q, w)

	case measureFlowFrom, measureFlowTo:
		series, shunt := s.net.LineAdmittance(m.line)
		fromNode, toNode := s.net.LineEndpoints(m.line)
		f := s.energ.SolveOf[fromNode]
		t := s.energ.SolveOf[toNode]
		if m.kind == measureFlowTo {
			f, t = t, f
		}

		gs, bs := real(series), imag(series)
		gff := gs + real(shunt)/2
		bff := bs + imag(shunt)/2
		d := va[f] - va[t]
		cos, sin := math.Cos(d), math.Sin(d)

		p := vm[f]*vm[f]*gff - vm[f]*vm[t]*(gs*cos+bs*sin)
		q := -vm[f]*vm[f]*bff - vm[f]*vm[t]*(gs*sin-bs*cos)

		dPdAf := vm[f] * vm[t] * (gs*sin - bs*cos)
		dPdVf := 2*vm[f]*gff - vm[t]*(gs*cos+bs*sin)
		dPdVt := -vm[f] * (gs*cos + bs*sin)
		dQdAf := -vm[f] * vm[t] * (gs*cos + bs*sin)
		dQdVf := -2*vm[f]*bff - vm[t]*(gs*sin-bs*cos)
		dQdVt := -vm[f] * (gs*sin - bs*cos)

		var pRow, qRow []jacobianEntry
		if k := aOf[f]; k >= 0 {
			pRow = append(pRow, jacobianEntry{col: k, val: dPdAf})
			qRow = append(qRow, jacobianEntry{col: k, val: dQdAf})
		}
		if k := aOf[t]; k >= 0 {
			pRow = append(pRow, jacobianEntry{col: k, val: -dPdAf})
			qRow = append(qRow, jacobianEntry{col: k, val: -dQdAf})
		}
		pRow = append(pRow,
			jacobianEntry{col: vBase + f, val: dPdVf},
			jacobianEntry{col: vBase + t, val: dPdVt})
		qRow = append(qRow,
			jacobianEntry{col: vBase + f, val: dQdVf},
			jacobianEntry{col: vBase + t, val: dQdVt})

		sink(pRow, m.zP-p, w)
		sink(qRow, m.zQ-q, w)
	}
}
