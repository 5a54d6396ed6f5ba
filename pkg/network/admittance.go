package network

import (
	"math"
	"math/cmplx"
)

// Entry is one off-diagonal or diagonal admittance element in a row.
type Entry struct {
	// Col is the solve index of the coupled node.
	Col int

	// Y is the per-unit admittance.
	Y complex128
}

// Admittance is the per-unit nodal admittance matrix of the energized
// subnetwork, stored row-wise over solve indices. The first entry of every
// row is its diagonal.
type Admittance struct {
	// N is the number of energized nodes.
	N int

	// Rows holds the sparse admittance entries per solve index.
	Rows [][]Entry
}

// ZBase returns the impedance base of a node in ohm.
func (n *Network) ZBase(node int) float64 {
	u := n.Nodes[node].URated
	return u * u / BasePower
}

// IBase returns the current base of a node in ampere.
func (n *Network) IBase(node int) float64 {
	return BasePower / (math.Sqrt(3) * n.Nodes[node].URated)
}

// LineAdmittance returns the per-unit series admittance and total shunt
// admittance of a line. The shunt is split evenly between both sides of the
// pi equivalent.
func (n *Network) LineAdmittance(line int) (series, shunt complex128) {
	ln := &n.Lines[line]
	zBase := n.ZBase(n.lineFrom[line])

	z := complex(ln.R1, ln.X1)
	if z != 0 {
		series = complex(zBase, 0) / z
	}
	b := 2 * math.Pi * Frequency * ln.C1
	shunt = complex(b*ln.Tan1, b) * complex(zBase, 0)
	return series, shunt
}

// AdmittanceMatrix assembles the per-unit nodal admittance matrix for the
// energized subnetwork of one scenario.
//
// A line closed on both sides stamps the full pi equivalent. A line closed
// on one side only contributes, at its closed terminal, the half shunt plus
// the series admittance chained with the far half shunt; the open far side
// carries no current.
func (n *Network) AdmittanceMatrix(e *Energization) *Admittance {
	a := &Admittance{N: len(e.NodeOf)}
	diag := make([]complex128, a.N)
	type off struct {
		row, col int
		y        complex128
	}
	offs := make([]off, 0, 2*len(n.Lines))

	for i, ln := range n.Lines {
		if !e.LineEnergized[i] {
			continue
		}
		series, shunt := n.LineAdmittance(i)
		from := e.SolveOf[n.lineFrom[i]]
		to := e.SolveOf[n.lineTo[i]]

		switch {
		case ln.FromStatus && ln.ToStatus:
			diag[from] += series + shunt/2
			diag[to] += series + shunt/2
			offs = append(offs,
				off{from, to, -series},
				off{to, from, -series})
		case ln.FromStatus && from >= 0:
			diag[from] += OneSideAdmittance(series, shunt)
		case ln.ToStatus && to >= 0:
			diag[to] += OneSideAdmittance(series, shunt)
		}
	}

	a.Rows = make([][]Entry, a.N)
	for i := 0; i < a.N; i++ {
		a.Rows[i] = append(a.Rows[i], Entry{Col: i, Y: diag[i]})
	}
	for _, o := range offs {
		a.Rows[o.row] = append(a.Rows[o.row], Entry{Col: o.col, Y: o.y})
	}
	return a
}

// OneSideAdmittance is the admittance seen from the closed terminal of a
// half-open line: the near half shunt in parallel with the series element
// chained into the far half shunt.
func OneSideAdmittance(series, shunt complex128) complex128 {
	y := shunt / 2
	if series != 0 && shunt != 0 {
		y += series * (shunt / 2) / (series + shunt/2)
	}
	return y
}

// SelfAdmittance returns the diagonal element of a solve row.
func (a *Admittance) SelfAdmittance(row int) complex128 {
	return a.Rows[row][0].Y
}

// InjectedCurrent computes I = Y V for one row, in per-unit.
func (a *Admittance) InjectedCurrent(row int, v []complex128) complex128 {
	var sum complex128
	for _, en := range a.Rows[row] {
		sum += en.Y * v[en.Col]
	}
	return sum
}

// MaxAbs returns the largest element magnitude, used for diagnostics.
func (a *Admittance) MaxAbs() float64 {
	var m float64
	for _, row := range a.Rows {
		for _, en := range row {
			if v := cmplx.Abs(en.Y); v > m {
				m = v
			}
		}
	}
	return m
}
