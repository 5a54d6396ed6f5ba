// Package solver computes steady-state solutions of a compiled network:
// forward power flow (Newton-Raphson, linear and iterative-linear methods)
// and weighted-least-squares state estimation from sensor records.
package solver

import (
	"fmt"

	"github.com/gridflow/gridflow/pkg/model"
)

// Method selects the power-flow calculation method.
type Method string

const (
	// MethodNewtonRaphson iterates full nonlinear power-mismatch equations.
	MethodNewtonRaphson Method = "newton_raphson"

	// MethodLinear treats every load as a constant impedance at rated
	// voltage and solves one linear system. It is an approximation and has
	// no convergence failure mode.
	MethodLinear Method = "linear"

	// MethodIterativeLinear re-solves a fixed linear system with load
	// currents updated from the previous voltage estimate.
	MethodIterativeLinear Method = "iterative_linear"
)

// Defaults for Options fields left at their zero value.
const (
	DefaultTolerance     = 1e-8
	DefaultMaxIterations = 20
)

// Options controls a single solve.
type Options struct {
	// Symmetric selects the single-phase equivalent calculation. The data
	// model carries symmetric components only, so this must be true.
	Symmetric bool

	// Method is the calculation method; power flow only.
	Method Method

	// Tolerance is the convergence threshold on the maximum per-unit
	// mismatch. Zero means DefaultTolerance.
	Tolerance float64

	// MaxIterations caps the iteration count of iterative methods.
	// Zero means DefaultMaxIterations.
	MaxIterations int
}

// DefaultOptions returns the standard symmetric Newton-Raphson settings.
func DefaultOptions() Options {
	return Options{
		Symmetric:     true,
		Method:        MethodNewtonRaphson,
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
	}
}

// withDefaults fills zero fields and rejects option combinations the data
// model cannot express.
func (o Options) withDefaults() (Options, error) {
	if !o.Symmetric {
		return o, model.NewError(model.KindNotSupported,
			"asymmetric calculation requires asymmetric component data, which the data model does not carry")
	}
	if o.Tolerance == 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.Tolerance < 0 {
		return o, model.NewError(model.KindValidation,
			fmt.Sprintf("tolerance must be positive, got %g", o.Tolerance))
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxIterations < 0 {
		return o, model.NewError(model.KindValidation,
			fmt.Sprintf("max iterations must be positive, got %d", o.MaxIterations))
	}
	switch o.Method {
	case "":
		o.Method = MethodNewtonRaphson
	case MethodNewtonRaphson, MethodLinear, MethodIterativeLinear:
	default:
		return o, model.NewError(model.KindValidation,
			fmt.Sprintf("unknown calculation method %q", o.Method))
	}
	return o, nil
}

// convergenceError builds the failure for an iterative solve that exhausted
// its cap, reporting the achieved deviation against the tolerance.
func convergenceError(method string, iterations int, maxDeviation, tolerance float64) error {
	return model.NewError(model.KindConvergence,
		fmt.Sprintf("%s did not converge within %d iterations: max deviation %.3e exceeds tolerance %.3e",
			method, iterations, maxDeviation, tolerance)).
		WithOp("solve").
		WithDetail("iterations", iterations).
		WithDetail("max_deviation", maxDeviation).
		WithDetail("tolerance", tolerance)
}
