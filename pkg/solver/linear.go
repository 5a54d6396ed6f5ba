package solver

import (
	"math"
	"math/cmplx"

	"github.com/edp1096/sparse"
	"github.com/rs/zerolog/log"
)

// linearSystem is the real expansion of the reduced complex nodal equations
// Y v = i over non-slack nodes, with slack voltages held fixed. The matrix
// is factored once; iterative-linear re-solves it with fresh right-hand
// sides only.
type linearSystem struct {
	s     *system
	nv    int
	varOf []int
	mat   *sparse.Matrix
}

// newLinearSystem stamps and factors [G -B; B G] for the non-slack nodes,
// with extraDiag added on the diagonal (load admittances).
func newLinearSystem(s *system, extraDiag []complex128) (*linearSystem, error) {
	ls := &linearSystem{s: s, varOf: make([]int, s.n)}
	for i := 0; i < s.n; i++ {
		if s.slack[i] {
			ls.varOf[i] = -1
		} else {
			ls.varOf[i] = ls.nv
			ls.nv++
		}
	}
	if ls.nv == 0 {
		return ls, nil
	}

	mat, err := sparse.Create(int64(2*ls.nv), sparseConfig())
	if err != nil {
		return nil, err
	}
	ls.mat = mat

	stamp := func(row, col int, y complex128) {
		g, b := real(y), imag(y)
		mat.GetElement(int64(1+row), int64(1+col)).Real += g
		mat.GetElement(int64(1+row), int64(1+ls.nv+col)).Real += -b
		mat.GetElement(int64(1+ls.nv+row), int64(1+col)).Real += b
		mat.GetElement(int64(1+ls.nv+row), int64(1+ls.nv+col)).Real += g
	}

	for i := 0; i < s.n; i++ {
		ki := ls.varOf[i]
		if ki < 0 {
			continue
		}
		for _, en := range s.adm.Rows[i] {
			if kj := ls.varOf[en.Col]; kj >= 0 {
				y := en.Y
				if en.Col == i {
					y += extraDiag[i]
				}
				stamp(ki, kj, y)
			}
		}
	}

	if err := mat.Factor(); err != nil {
		ls.destroy()
		return nil, err
	}
	return ls, nil
}

func (ls *linearSystem) destroy() {
	if ls.mat != nil {
		ls.mat.Destroy()
	}
}

// solve computes node phasors for the given per-unit current injections.
// Slack coupling terms are folded into the right-hand side so fixed
// voltages stay exact.
func (ls *linearSystem) solve(inj []complex128) ([]complex128, error) {
	s := ls.s
	v := make([]complex128, s.n)
	for i := 0; i < s.n; i++ {
		if s.slack[i] {
			v[i] = complex(s.vref[i], 0)
		}
	}
	if ls.nv == 0 {
		return v, nil
	}

	rhs := make([]float64, 2*ls.nv+1)
	for i := 0; i < s.n; i++ {
		ki := ls.varOf[i]
		if ki < 0 {
			continue
		}
		b := inj[i]
		for _, en := range s.adm.Rows[i] {
			if ls.varOf[en.Col] < 0 {
				b -= en.Y * v[en.Col]
			}
		}
		rhs[1+ki] = real(b)
		rhs[1+ls.nv+ki] = imag(b)
	}

	x, err := ls.mat.Solve(rhs)
	if err != nil {
		return nil, err
	}
	for i := 0; i < s.n; i++ {
		if ki := ls.varOf[i]; ki >= 0 {
			v[i] = complex(x[1+ki], x[1+ls.nv+ki])
		}
	}
	return v, nil
}

// solveLinear treats every load as a constant impedance referenced to rated
// voltage and solves a single linear system. It is a deliberate
// approximation with no convergence failure mode.
func solveLinear(s *system) (vm, va []float64, err error) {
	extraDiag := make([]complex128, s.n)
	for i := 0; i < s.n; i++ {
		p := s.pConst[i] + s.pCurr[i] + s.pImp[i]
		q := s.qConst[i] + s.qCurr[i] + s.qImp[i]
		extraDiag[i] = complex(p, -q)
	}

	ls, err := newLinearSystem(s, extraDiag)
	if err != nil {
		return nil, nil, err
	}
	defer ls.destroy()

	v, err := ls.solve(make([]complex128, s.n))
	if err != nil {
		return nil, nil, err
	}
	vm, va = polar(v)
	return vm, va, nil
}

// solveIterativeLinear keeps constant-impedance loads in the matrix and
// re-solves it with constant-power and constant-current loads converted to
// current injections at the previous voltage estimate. The factorization is
// reused across iterations.
func solveIterativeLinear(s *system, o Options) (vm, va []float64, err error) {
	extraDiag := make([]complex128, s.n)
	for i := 0; i < s.n; i++ {
		extraDiag[i] = complex(s.pImp[i], -s.qImp[i])
	}

	ls, err := newLinearSystem(s, extraDiag)
	if err != nil {
		return nil, nil, err
	}
	defer ls.destroy()

	vm, va = s.flatStart()
	v := complexVoltages(vm, va)
	inj := make([]complex128, s.n)

	for iter := 0; ; iter++ {
		for i := 0; i < s.n; i++ {
			mag := cmplx.Abs(v[i])
			cons := complex(
				s.pConst[i]+s.pCurr[i]*mag,
				s.qConst[i]+s.qCurr[i]*mag,
			)
			if v[i] != 0 {
				inj[i] = -cmplx.Conj(cons / v[i])
			} else {
				inj[i] = 0
			}
		}

		next, err := ls.solve(inj)
		if err != nil {
			return nil, nil, err
		}

		maxDev := 0.0
		for i := 0; i < s.n; i++ {
			maxDev = math.Max(maxDev, cmplx.Abs(next[i]-v[i]))
		}
		v = next

		if maxDev < o.Tolerance {
			log.Debug().
				Int("iterations", iter+1).
				Float64("max_deviation", maxDev).
				Msg("iterative linear converged")
			vm, va = polar(v)
			return vm, va, nil
		}
		if iter+1 >= o.MaxIterations {
			return nil, nil, convergenceError("iterative_linear", o.MaxIterations, maxDev, o.Tolerance)
		}
	}
}

// polar splits phasors into magnitude and angle arrays.
func polar(v []complex128) (vm, va []float64) {
	vm = make([]float64, len(v))
	va = make([]float64, len(v))
	for i, c := range v {
		vm[i] = cmplx.Abs(c)
		va[i] = cmplx.Phase(c)
	}
	return vm, va
}
