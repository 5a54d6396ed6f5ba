package solver

import (
	"math"

	"github.com/gridflow/gridflow/pkg/model"
	"github.com/gridflow/gridflow/pkg/network"
)

// system is the per-unit solve view of one scenario: the energized
// subnetwork, its admittance matrix, reference (slack) nodes and aggregated
// load characteristics per solve index. It is scratch state owned by a
// single solve call.
type system struct {
	net   *network.Network
	energ *network.Energization
	adm   *network.Admittance

	// n is the energized node count; arrays below are indexed by solve index.
	n int

	// slack marks nodes hosting an active source; their voltage is held at
	// vref per-unit and angle zero.
	slack []bool
	vref  []float64

	// Aggregated load consumption in per-unit, split by characteristic.
	pConst, qConst []float64 // const_power
	pCurr, qCurr   []float64 // const_current
	pImp, qImp     []float64 // const_impedance
}

func newSystem(net *network.Network) *system {
	energ := net.Energize()
	s := &system{
		net:    net,
		energ:  energ,
		adm:    net.AdmittanceMatrix(energ),
		n:      energ.EnergizedNodeCount(),
		slack:  make([]bool, energ.EnergizedNodeCount()),
		vref:   make([]float64, energ.EnergizedNodeCount()),
		pConst: make([]float64, energ.EnergizedNodeCount()),
		qConst: make([]float64, energ.EnergizedNodeCount()),
		pCurr:  make([]float64, energ.EnergizedNodeCount()),
		qCurr:  make([]float64, energ.EnergizedNodeCount()),
		pImp:   make([]float64, energ.EnergizedNodeCount()),
		qImp:   make([]float64, energ.EnergizedNodeCount()),
	}

	for i, src := range net.Sources {
		if !energ.SourceEnergized[i] {
			continue
		}
		si := energ.SolveOf[net.SourceNode(i)]
		if !s.slack[si] {
			s.slack[si] = true
			s.vref[si] = src.URef
		}
	}

	for i, ld := range net.SymLoads {
		if !energ.LoadEnergized[i] {
			continue
		}
		si := energ.SolveOf[net.LoadNode(i)]
		p := ld.PSpecified / network.BasePower
		q := ld.QSpecified / network.BasePower
		switch ld.Type {
		case model.LoadConstPower:
			s.pConst[si] += p
			s.qConst[si] += q
		case model.LoadConstCurrent:
			s.pCurr[si] += p
			s.qCurr[si] += q
		case model.LoadConstImpedance:
			s.pImp[si] += p
			s.qImp[si] += q
		}
	}

	return s
}

// specifiedInjection returns the specified per-unit power injection at a
// solve node for voltage magnitude v: the negated load consumption with its
// voltage characteristic applied.
func (s *system) specifiedInjection(i int, v float64) (p, q float64) {
	p = -(s.pConst[i] + s.pCurr[i]*v + s.pImp[i]*v*v)
	q = -(s.qConst[i] + s.qCurr[i]*v + s.qImp[i]*v*v)
	return p, q
}

// specifiedInjectionSlope returns d(specified injection)/dV at magnitude v.
func (s *system) specifiedInjectionSlope(i int, v float64) (dp, dq float64) {
	dp = -(s.pCurr[i] + 2*v*s.pImp[i])
	dq = -(s.qCurr[i] + 2*v*s.qImp[i])
	return dp, dq
}

// calculatedInjection evaluates the per-unit power injection at solve node i
// implied by the admittance matrix and the current voltage state.
func (s *system) calculatedInjection(i int, vm, va []float64) (p, q float64) {
	for _, en := range s.adm.Rows[i] {
		g, b := real(en.Y), imag(en.Y)
		d := va[i] - va[en.Col]
		cos, sin := math.Cos(d), math.Sin(d)
		vv := vm[i] * vm[en.Col]
		p += vv * (g*cos + b*sin)
		q += vv * (g*sin - b*cos)
	}
	return p, q
}

// complexVoltages converts polar per-unit state to phasors per solve index.
func complexVoltages(vm, va []float64) []complex128 {
	v := make([]complex128, len(vm))
	for i := range vm {
		v[i] = complex(vm[i]*math.Cos(va[i]), vm[i]*math.Sin(va[i]))
	}
	return v
}

// flatStart initializes the polar state: slack nodes at their reference
// magnitude, all other nodes at 1 pu, all angles zero.
func (s *system) flatStart() (vm, va []float64) {
	vm = make([]float64, s.n)
	va = make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		if s.slack[i] {
			vm[i] = s.vref[i]
		} else {
			vm[i] = 1.0
		}
	}
	return vm, va
}

// hasReference reports whether any energized node carries a source; without
// one the reduced system is empty and every component reports zero output.
func (s *system) hasReference() bool {
	return s.n > 0
}
