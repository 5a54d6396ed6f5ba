package solver

import (
	"math"

	"github.com/edp1096/sparse"
	"github.com/rs/zerolog/log"

	"github.com/gridflow/gridflow/pkg/network"
)

// Solve runs a forward power-flow calculation on a compiled network and
// returns one result record per component. De-energized components are
// excluded from the numerical system but reported with zero output.
func Solve(net *network.Network, opts Options) (*ResultSet, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	s := newSystem(net)
	if !s.hasReference() {
		vm := make([]float64, 0)
		return deriveResults(s, vm, vm), nil
	}

	var vm, va []float64
	switch o.Method {
	case MethodNewtonRaphson:
		vm, va, err = solveNewtonRaphson(s, o)
	case MethodLinear:
		vm, va, err = solveLinear(s)
	case MethodIterativeLinear:
		vm, va, err = solveIterativeLinear(s, o)
	}
	if err != nil {
		return nil, err
	}
	return deriveResults(s, vm, va), nil
}

// sparseConfig is the shared factorization setup for all real-valued
// systems assembled by the solvers.
func sparseConfig() *sparse.Configuration {
	return &sparse.Configuration{
		Real:           true,
		Expandable:     true,
		Translate:      true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
	}
}

// solveNewtonRaphson iterates the polar power-mismatch equations with a
// sparse LU factorization of the Jacobian at every step.
func solveNewtonRaphson(s *system, o Options) (vm, va []float64, err error) {
	vm, va = s.flatStart()

	// Variable layout: angles then magnitudes of non-slack nodes.
	varOf := make([]int, s.n)
	nv := 0
	for i := 0; i < s.n; i++ {
		if s.slack[i] {
			varOf[i] = -1
		} else {
			varOf[i] = nv
			nv++
		}
	}
	if nv == 0 {
		return vm, va, nil
	}

	jac, err := sparse.Create(int64(2*nv), sparseConfig())
	if err != nil {
		return nil, nil, err
	}
	defer jac.Destroy()

	mismatch := make([]float64, 2*nv+1)

	for iter := 0; ; iter++ {
		maxDev := 0.0
		pCalc := make([]float64, s.n)
		qCalc := make([]float64, s.n)
		for i := 0; i < s.n; i++ {
			pCalc[i], qCalc[i] = s.calculatedInjection(i, vm, va)
			if varOf[i] < 0 {
				continue
			}
			pSpec, qSpec := s.specifiedInjection(i, vm[i])
			dp := pSpec - pCalc[i]
			dq := qSpec - qCalc[i]
			mismatch[1+varOf[i]] = dp
			mismatch[1+nv+varOf[i]] = dq
			maxDev = math.Max(maxDev, math.Max(math.Abs(dp), math.Abs(dq)))
		}

		if maxDev < o.Tolerance {
			log.Debug().
				Int("iterations", iter).
				Float64("max_deviation", maxDev).
				Msg("newton-raphson converged")
			return vm, va, nil
		}
		if iter >= o.MaxIterations {
			return nil, nil, convergenceError("newton_raphson", o.MaxIterations, maxDev, o.Tolerance)
		}

		jac.Clear()
		for i := 0; i < s.n; i++ {
			ki := varOf[i]
			if ki < 0 {
				continue
			}
			for _, en := range s.adm.Rows[i] {
				j := en.Col
				kj := varOf[j]
				if kj < 0 {
					continue
				}
				g, b := real(en.Y), imag(en.Y)

				var dPdA, dPdV, dQdA, dQdV float64
				if j == i {
					dPdA = -qCalc[i] - b*vm[i]*vm[i]
					dPdV = pCalc[i]/vm[i] + g*vm[i]
					dQdA = pCalc[i] - g*vm[i]*vm[i]
					dQdV = qCalc[i]/vm[i] - b*vm[i]
					dpSpec, dqSpec := s.specifiedInjectionSlope(i, vm[i])
					dPdV -= dpSpec
					dQdV -= dqSpec
				} else {
					d := va[i] - va[j]
					cos, sin := math.Cos(d), math.Sin(d)
					vv := vm[i] * vm[j]
					dPdA = vv * (g*sin - b*cos)
					dPdV = vm[i] * (g*cos + b*sin)
					dQdA = -vv * (g*cos + b*sin)
					dQdV = vm[i] * (g*sin - b*cos)
				}

				jac.GetElement(int64(1+ki), int64(1+kj)).Real += dPdA
				jac.GetElement(int64(1+ki), int64(1+nv+kj)).Real += dPdV
				jac.GetElement(int64(1+nv+ki), int64(1+kj)).Real += dQdA
				jac.GetElement(int64(1+nv+ki), int64(1+nv+kj)).Real += dQdV
			}
		}

		if err := jac.Factor(); err != nil {
			return nil, nil, err
		}
		dx, err := jac.Solve(mismatch)
		if err != nil {
			return nil, nil, err
		}

		for i := 0; i < s.n; i++ {
			if k := varOf[i]; k >= 0 {
				va[i] += dx[1+k]
				vm[i] += dx[1+nv+k]
			}
		}
	}
}
