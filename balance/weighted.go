package balance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Prior standard deviation scaling: a cell's prior is trusted in
// proportion to its own magnitude, with sd = 0.5 * prior. Zero-prior
// cells get the floor instead, which makes their prior very stiff (the
// cell stays near zero) without the hard pin that multiplicative
// scaling gives RAS.
const (
	priorSigmaScale = 0.5
	minPriorSigma   = 1e-3
)

// WeightedBalancer treats each cell as a latent value with a Gaussian
// prior centered at the preliminary estimate, and each row/column
// target as a noisy observation of the corresponding sum with noise
// scale Sigma. It minimizes the resulting penalized least-squares
// objective:
//
//	cost(B) = sum_rc  w(r,c)        * (B[r,c] - prior[r,c])^2
//	        + sum_r  (1/sigmaR[r]^2) * (rowSum(B,r) - rowTarget[r])^2
//	        + sum_c  (1/sigmaC[c]^2) * (colSum(B,c) - colTarget[c])^2
//
// by exact per-cell coordinate descent: holding every other cell
// fixed, the objective is a univariate quadratic in B[r,c] with a
// closed-form minimizer, so each update is cheap and unconditionally
// stable. The sweep budget is the stopping rule.
//
// Residual constraint violation comes out inversely proportional to
// uncertainty: near-zero sigma rows/columns are satisfied almost
// exactly while high-sigma ones keep visible residuals. That trade-off
// is the point of the method. Unlike RAS, cells may go negative when
// priors are small and constraints pull hard; values are deliberately
// not clamped.
type WeightedBalancer struct {
	Sigma Uncertainty
	Opts  WeightedOptions
}

// NewWeightedBalancer returns a balancer for the given uncertainties
// with default options.
func NewWeightedBalancer(sigma Uncertainty) *WeightedBalancer {
	return &WeightedBalancer{Sigma: sigma, Opts: DefaultWeightedOptions()}
}

// Balance optimizes the cells against the prior and targets. The prior
// is not modified. Grand-total mismatch between row and column targets
// is fine here: the soft constraints absorb it, splitting the
// discrepancy according to the stated uncertainties.
func (b *WeightedBalancer) Balance(prior *mat.Dense, targets Targets) (*BalancedResult, error) {
	opts, err := b.Opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := validatePrior(prior, targets); err != nil {
		return nil, err
	}
	rows, cols := prior.Dims()
	if err := validateSigma(b.Sigma, rows, cols); err != nil {
		return nil, err
	}

	// Constraint weights 1/sigma^2: small sigma = strong penalty.
	aRow := make([]float64, rows)
	for i, s := range b.Sigma.Row {
		aRow[i] = 1 / (s * s)
	}
	aCol := make([]float64, cols)
	for j, s := range b.Sigma.Col {
		aCol[j] = 1 / (s * s)
	}

	// Per-cell prior weights (inverse variance of the proportional
	// prior).
	wPrior := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sd := math.Max(priorSigmaScale*prior.At(i, j), minPriorSigma)
			wPrior[i*cols+j] = 1 / (sd * sd)
		}
	}

	balanced := mat.DenseCopyOf(prior)
	rs := rowSums(balanced)
	cs := colSums(balanced)

	sweeps := 0
	hitTolerance := false
	for s := 1; s <= opts.Sweeps; s++ {
		sweeps = s
		maxStep := 0.0
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				old := balanced.At(i, j)
				// Row/column sums excluding this cell.
				rowRest := rs[i] - old
				colRest := cs[j] - old

				// Closed-form minimizer of the univariate quadratic.
				w := wPrior[i*cols+j]
				num := w*prior.At(i, j) +
					aRow[i]*(targets.Row[i]-rowRest) +
					aCol[j]*(targets.Col[j]-colRest)
				next := num / (w + aRow[i] + aCol[j])

				balanced.Set(i, j, next)
				rs[i] += next - old
				cs[j] += next - old
				if step := math.Abs(next - old); step > maxStep {
					maxStep = step
				}
			}
		}
		if opts.StepTolerance > 0 && maxStep < opts.StepTolerance {
			hitTolerance = true
			if opts.Logger != nil {
				opts.Logger.Debug("weighted balancer exited early", "sweeps", s, "max_step", maxStep)
			}
			break
		}
	}

	// With no step tolerance the sweep budget itself is the stopping
	// rule, so finishing it is convergence. A requested tolerance that
	// was never met is worth flagging.
	converged := opts.StepTolerance == 0 || hitTolerance
	if !converged && opts.Logger != nil {
		opts.Logger.Warn("weighted balancer exhausted sweeps above step tolerance",
			"sweeps", sweeps, "step_tolerance", opts.StepTolerance)
	}
	if opts.Logger != nil {
		opts.Logger.Debug("weighted balancing finished", "sweeps", sweeps)
	}
	return newBalancedResult(balanced, targets, converged, sweeps), nil
}

// withDefaults fills in zero-valued options and rejects invalid ones.
func (o WeightedOptions) withDefaults() (WeightedOptions, error) {
	if o.Sweeps == 0 {
		o.Sweeps = DefaultSweeps
	}
	if o.Sweeps < 1 {
		return o, fmt.Errorf("%w: sweeps %d must be >= 1", ErrBadOption, o.Sweeps)
	}
	if o.StepTolerance < 0 || math.IsNaN(o.StepTolerance) {
		return o, fmt.Errorf("%w: step tolerance %v must be >= 0", ErrBadOption, o.StepTolerance)
	}
	return o, nil
}
