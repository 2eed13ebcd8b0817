// Package balance reconciles a matrix of preliminary flow-of-funds
// estimates against externally supplied row and column totals. Two
// methods are provided: classical RAS bi-proportional scaling, and an
// uncertainty-weighted penalized least-squares optimizer. A comparison
// engine runs both on the same inputs and reports where they disagree.
package balance

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"
)

// Default tuning values. Tolerance and MaxIterations match the classic
// RAS setup; Sweeps matches the fixed optimizer budget the method was
// originally calibrated with.
const (
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 1000
	DefaultSweeps        = 5000

	// Cells whose average value is below the negligible floor are never
	// flagged as divergent, to avoid flagging near-zero noise.
	DefaultDivergenceThreshold = 0.10
	DefaultNegligibleFloor     = 1.0
)

// Targets holds the externally asserted totals each row and column of
// the balanced matrix must (approximately) sum to. These usually come
// from administrative data and are more reliable than the interior.
type Targets struct {
	Row []float64
	Col []float64
}

// Uncertainty holds one positive scale per row and column expressing
// how strictly its target must be honored: smaller means stricter.
// Values must be strictly positive (they appear as denominators).
type Uncertainty struct {
	Row []float64
	Col []float64
}

// BalancedResult is the output of a single balancing run: the adjusted
// matrix plus its realized sums and per-constraint residual errors.
type BalancedResult struct {
	// The balanced matrix. Same dimensions as the prior; the prior is
	// never mutated.
	Matrix *mat.Dense

	// Realized sums of the balanced matrix.
	RowSums []float64
	ColSums []float64

	// Absolute residuals |sum - target| per row and column.
	RowErrors []float64
	ColErrors []float64

	// False when RAS exhausted MaxIterations before meeting Tolerance,
	// or when the weighted balancer never met a requested
	// StepTolerance within its sweep budget. The matrix is still
	// returned: it is strictly closer to feasible than the input, so
	// this is a warning, not a failure. Fixed-budget weighted runs
	// (StepTolerance zero) always report true, since the budget itself
	// is the stopping rule.
	Converged bool

	// How many iterations (RAS) or full coordinate sweeps (weighted)
	// were actually performed.
	Iterations int
}

// Balancer adjusts a prior matrix so its sums approach the targets.
type Balancer interface {
	Balance(prior *mat.Dense, targets Targets) (*BalancedResult, error)
}

// RASOptions tunes the bi-proportional scaling loop.
type RASOptions struct {
	// Stop when the total absolute row + column residual drops below
	// this. Zero means DefaultTolerance.
	Tolerance float64

	// Iteration budget. Zero means DefaultMaxIterations.
	MaxIterations int

	// Optional progress/diagnostic channel. Nil means silent.
	Logger *slog.Logger
}

// DefaultRASOptions returns the standard RAS configuration.
func DefaultRASOptions() RASOptions {
	return RASOptions{Tolerance: DefaultTolerance, MaxIterations: DefaultMaxIterations}
}

// WeightedOptions tunes the coordinate-descent optimizer.
type WeightedOptions struct {
	// Number of full sweeps over the cells. Zero means DefaultSweeps.
	// The sweep budget is the stopping rule; there is no convergence
	// requirement.
	Sweeps int

	// Optional early exit: stop once the largest single-cell change in
	// a sweep falls below this. Zero disables the check, preserving the
	// fixed-budget behavior. If set but never met within Sweeps, the
	// result carries Converged=false.
	StepTolerance float64

	// Optional progress/diagnostic channel. Nil means silent.
	Logger *slog.Logger
}

// DefaultWeightedOptions returns the fixed-budget configuration.
func DefaultWeightedOptions() WeightedOptions {
	return WeightedOptions{Sweeps: DefaultSweeps}
}

// --- SHARED RESULT CONSTRUCTION ---

// newBalancedResult fills in sums and residuals for a finished matrix.
func newBalancedResult(m *mat.Dense, targets Targets, converged bool, iterations int) *BalancedResult {
	rs := rowSums(m)
	cs := colSums(m)
	return &BalancedResult{
		Matrix:     m,
		RowSums:    rs,
		ColSums:    cs,
		RowErrors:  absResiduals(rs, targets.Row),
		ColErrors:  absResiduals(cs, targets.Col),
		Converged:  converged,
		Iterations: iterations,
	}
}
