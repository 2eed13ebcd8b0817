package balance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Guards the scaling ratio when a row/column sum is very close to zero.
const rasEpsilon = 1e-10

// RASBalancer balances a non-negative matrix with classical RAS
// bi-proportional scaling: alternately rescale every row to its target
// sum, then every column, until the residuals drop below tolerance.
//
// Because each step multiplies by a ratio of non-negative sums, zero
// cells stay zero and no cell ever changes sign. RAS ignores
// uncertainty entirely: every target is treated as exact.
type RASBalancer struct {
	Opts RASOptions
}

// NewRASBalancer returns a balancer with default options.
func NewRASBalancer() *RASBalancer {
	return &RASBalancer{Opts: DefaultRASOptions()}
}

// Balance runs RAS on the prior and returns the scaled matrix together
// with its realized sums and residuals. The prior is not modified.
//
// If the iteration budget runs out before the tolerance is met, the
// best matrix found so far is still returned with Converged=false.
// It is closer to feasible than the input, so this is a diagnostic,
// not an error.
func (b *RASBalancer) Balance(prior *mat.Dense, targets Targets) (*BalancedResult, error) {
	opts, err := b.Opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := validatePrior(prior, targets); err != nil {
		return nil, err
	}
	// A feasible fixed point only exists when both totals agree.
	if err := validateGrandTotals(targets); err != nil {
		return nil, err
	}

	rows, cols := prior.Dims()
	balanced := mat.DenseCopyOf(prior)

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		// 1. Row scaling (the "R" step).
		for i := 0; i < rows; i++ {
			row := balanced.RawRowView(i)
			sum := floats.Sum(row)
			if sum == 0 {
				// All-zero row: nothing to scale. With a zero target
				// this is the degenerate factor-one case.
				continue
			}
			factor := targets.Row[i] / (sum + rasEpsilon)
			floats.Scale(factor, row)
		}

		// 2. Column scaling (the "S" step).
		cs := colSums(balanced)
		for j := 0; j < cols; j++ {
			if cs[j] == 0 {
				continue
			}
			factor := targets.Col[j] / (cs[j] + rasEpsilon)
			for i := 0; i < rows; i++ {
				balanced.Set(i, j, balanced.At(i, j)*factor)
			}
		}

		// 3. Convergence check: total absolute residual over all
		// constraints.
		residual := floats.Sum(absResiduals(rowSums(balanced), targets.Row)) +
			floats.Sum(absResiduals(colSums(balanced), targets.Col))
		if residual < opts.Tolerance {
			if opts.Logger != nil {
				opts.Logger.Debug("RAS converged", "iterations", iter, "residual", residual)
			}
			return newBalancedResult(balanced, targets, true, iter), nil
		}
	}

	if opts.Logger != nil {
		opts.Logger.Warn("RAS reached max iterations without converging",
			"max_iterations", opts.MaxIterations, "tolerance", opts.Tolerance)
	}
	return newBalancedResult(balanced, targets, false, opts.MaxIterations), nil
}

// withDefaults fills in zero-valued options and rejects invalid ones.
func (o RASOptions) withDefaults() (RASOptions, error) {
	if o.Tolerance == 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Tolerance < 0 || math.IsNaN(o.Tolerance) {
		return o, fmt.Errorf("%w: tolerance %v must be > 0", ErrBadOption, o.Tolerance)
	}
	if o.MaxIterations < 1 {
		return o, fmt.Errorf("%w: max iterations %d must be >= 1", ErrBadOption, o.MaxIterations)
	}
	return o, nil
}
