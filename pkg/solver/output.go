package solver

import (
	"math"
	"math/cmplx"

	"github.com/gridflow/gridflow/pkg/model"
	"github.com/gridflow/gridflow/pkg/network"
)

// deriveResults converts a solved per-unit state into SI result records for
// every component, energized or not.
func deriveResults(s *system, vm, va []float64) *ResultSet {
	net, energ := s.net, s.energ
	v := complexVoltages(vm, va)

	rs := &ResultSet{
		Nodes:    make([]NodeResult, len(net.Nodes)),
		Lines:    make([]LineResult, len(net.Lines)),
		Sources:  make([]ApplianceResult, len(net.Sources)),
		SymLoads: make([]ApplianceResult, len(net.SymLoads)),
	}

	for i, nd := range net.Nodes {
		rs.Nodes[i] = NodeResult{ID: nd.ID}
		si := energ.SolveOf[i]
		if si < 0 {
			continue
		}
		rs.Nodes[i].Energized = true
		rs.Nodes[i].UPU = vm[si]
		rs.Nodes[i].U = vm[si] * nd.URated
		rs.Nodes[i].UAngle = va[si]
	}

	for i, ln := range net.Lines {
		rs.Lines[i] = LineResult{ID: ln.ID}
		if !energ.LineEnergized[i] {
			continue
		}
		rs.Lines[i].Energized = true

		series, shunt := net.LineAdmittance(i)
		fromNode, toNode := net.LineEndpoints(i)
		var iFrom, iTo, vFrom, vTo complex128

		switch {
		case ln.FromStatus && ln.ToStatus:
			vFrom = v[energ.SolveOf[fromNode]]
			vTo = v[energ.SolveOf[toNode]]
			iFrom = series*(vFrom-vTo) + shunt/2*vFrom
			iTo = series*(vTo-vFrom) + shunt/2*vTo
		case ln.FromStatus:
			vFrom = v[energ.SolveOf[fromNode]]
			iFrom = network.OneSideAdmittance(series, shunt) * vFrom
		case ln.ToStatus:
			vTo = v[energ.SolveOf[toNode]]
			iTo = network.OneSideAdmittance(series, shunt) * vTo
		}

		sFrom := vFrom * cmplx.Conj(iFrom)
		sTo := vTo * cmplx.Conj(iTo)
		rs.Lines[i].PFrom = real(sFrom) * network.BasePower
		rs.Lines[i].QFrom = imag(sFrom) * network.BasePower
		rs.Lines[i].PTo = real(sTo) * network.BasePower
		rs.Lines[i].QTo = imag(sTo) * network.BasePower

		iBase := net.IBase(fromNode)
		rs.Lines[i].IFrom = cmplx.Abs(iFrom) * iBase
		rs.Lines[i].ITo = cmplx.Abs(iTo) * iBase
		if ln.IN > 0 {
			rs.Lines[i].Loading = math.Max(rs.Lines[i].IFrom, rs.Lines[i].ITo) / ln.IN
		}
	}

	for i, ld := range net.SymLoads {
		rs.SymLoads[i] = ApplianceResult{ID: ld.ID}
		if !energ.LoadEnergized[i] {
			continue
		}
		si := energ.SolveOf[net.LoadNode(i)]
		scale := loadScale(ld.Type, vm[si])
		rs.SymLoads[i].Energized = true
		rs.SymLoads[i].P = ld.PSpecified * scale
		rs.SymLoads[i].Q = ld.QSpecified * scale
	}

	// A source supplies the net injection of its node plus the local load
	// consumption; co-located active sources share the total evenly.
	for i := range net.Sources {
		rs.Sources[i] = ApplianceResult{ID: net.Sources[i].ID}
	}
	for si := 0; si < s.n; si++ {
		if !s.slack[si] {
			continue
		}
		node := energ.NodeOf[si]
		active := 0
		for _, srcIdx := range net.SourcesAt(node) {
			if energ.SourceEnergized[srcIdx] {
				active++
			}
		}
		if active == 0 {
			continue
		}

		pInj, qInj := s.calculatedInjection(si, vm, va)
		pGen := pInj * network.BasePower
		qGen := qInj * network.BasePower
		for _, ldIdx := range net.LoadsAt(node) {
			if energ.LoadEnergized[ldIdx] {
				ld := net.SymLoads[ldIdx]
				scale := loadScale(ld.Type, vm[si])
				pGen += ld.PSpecified * scale
				qGen += ld.QSpecified * scale
			}
		}

		for _, srcIdx := range net.SourcesAt(node) {
			if energ.SourceEnergized[srcIdx] {
				rs.Sources[srcIdx].Energized = true
				rs.Sources[srcIdx].P = pGen / float64(active)
				rs.Sources[srcIdx].Q = qGen / float64(active)
			}
		}
	}

	return rs
}

// loadScale is the voltage-characteristic multiplier on specified power.
func loadScale(t model.LoadType, vpu float64) float64 {
	switch t {
	case model.LoadConstCurrent:
		return vpu
	case model.LoadConstImpedance:
		return vpu * vpu
	default:
		return 1.0
	}
}
