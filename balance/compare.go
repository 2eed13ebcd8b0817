package balance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CompareOptions tunes the comparison run and both balancers.
type CompareOptions struct {
	RAS      RASOptions
	Weighted WeightedOptions

	// Cells where the relative difference between the two methods
	// exceeds this are flagged as divergent. Zero means
	// DefaultDivergenceThreshold.
	DivergenceThreshold float64

	// Cells whose average value across methods is at or below this are
	// never flagged. Zero means DefaultNegligibleFloor.
	NegligibleFloor float64
}

// DefaultCompareOptions returns the standard comparison configuration.
func DefaultCompareOptions() CompareOptions {
	return CompareOptions{
		RAS:                 DefaultRASOptions(),
		Weighted:            DefaultWeightedOptions(),
		DivergenceThreshold: DefaultDivergenceThreshold,
		NegligibleFloor:     DefaultNegligibleFloor,
	}
}

// Divergence flags one cell where the two methods disagree beyond the
// threshold. These concentrate where both the row and the column
// uncertainty are high: there the weighted balancer is free to stay
// near the prior while RAS enforces the targets exactly.
type Divergence struct {
	Row, Col int
	RAS      float64
	Weighted float64
	RelDiff  float64
}

// Comparison holds both balancers' outcomes side by side. The two runs
// are independent: a failure in one (RASErr/WeightedErr) never blocks
// the other, and Metrics covers whatever succeeded.
type Comparison struct {
	RAS    *BalancedResult
	RASErr error

	Weighted    *BalancedResult
	WeightedErr error

	// Named scalar metrics. Per-method keys are present when that
	// method succeeded; the inter-method keys require both.
	Metrics map[string]float64

	// Cell-level disagreements above the threshold. Only computed when
	// both methods succeeded.
	Divergences []Divergence
}

// Compare runs RAS and the uncertainty-weighted balancer on identical
// inputs (RAS ignores sigma) and computes divergence metrics. Shared
// input validation failures are returned as an error with nothing
// computed; per-method failures land in the result instead.
func Compare(prior *mat.Dense, targets Targets, sigma Uncertainty, opts CompareOptions) (*Comparison, error) {
	if err := validatePrior(prior, targets); err != nil {
		return nil, err
	}
	rows, cols := prior.Dims()
	if err := validateSigma(sigma, rows, cols); err != nil {
		return nil, err
	}
	if opts.DivergenceThreshold == 0 {
		opts.DivergenceThreshold = DefaultDivergenceThreshold
	}
	if opts.NegligibleFloor == 0 {
		opts.NegligibleFloor = DefaultNegligibleFloor
	}
	if opts.DivergenceThreshold < 0 || opts.NegligibleFloor < 0 {
		return nil, fmt.Errorf("%w: divergence threshold %v and negligible floor %v must be >= 0",
			ErrBadOption, opts.DivergenceThreshold, opts.NegligibleFloor)
	}

	cmp := &Comparison{Metrics: make(map[string]float64)}

	ras := RASBalancer{Opts: opts.RAS}
	cmp.RAS, cmp.RASErr = ras.Balance(prior, targets)

	weighted := WeightedBalancer{Sigma: sigma, Opts: opts.Weighted}
	cmp.Weighted, cmp.WeightedErr = weighted.Balance(prior, targets)

	if cmp.RAS != nil {
		cmp.Metrics["ras_max_row_error"] = floats.Max(cmp.RAS.RowErrors)
		cmp.Metrics["ras_max_col_error"] = floats.Max(cmp.RAS.ColErrors)
		cmp.Metrics["ras_total_adjustment"] = totalAdjustment(cmp.RAS.Matrix, prior)
	}
	if cmp.Weighted != nil {
		cmp.Metrics["weighted_max_row_error"] = floats.Max(cmp.Weighted.RowErrors)
		cmp.Metrics["weighted_max_col_error"] = floats.Max(cmp.Weighted.ColErrors)
		cmp.Metrics["weighted_total_adjustment"] = totalAdjustment(cmp.Weighted.Matrix, prior)
		cmp.Metrics["weighted_residual_norm"] = weightedResidualNorm(cmp.Weighted, sigma)
	}
	if cmp.RAS != nil && cmp.Weighted != nil {
		cmp.Metrics["method_difference_abs"] = totalAdjustment(cmp.RAS.Matrix, cmp.Weighted.Matrix)
		cmp.Metrics["method_difference_pct"] = methodDifferencePct(cmp.RAS.Matrix, cmp.Weighted.Matrix)
		cmp.Divergences = findDivergences(cmp.RAS.Matrix, cmp.Weighted.Matrix,
			opts.DivergenceThreshold, opts.NegligibleFloor)
	}
	return cmp, nil
}

// AssessQuality reports how well an arbitrary matrix satisfies the
// targets: maximum, RMS and percentage errors per axis. Percentage
// errors skip zero targets.
func AssessQuality(m *mat.Dense, targets Targets) (map[string]float64, error) {
	r, c := m.Dims()
	if len(targets.Row) != r || len(targets.Col) != c {
		return nil, fmt.Errorf("%w: %d/%d targets for %dx%d matrix",
			ErrDimensionMismatch, len(targets.Row), len(targets.Col), r, c)
	}
	rowErr := absResiduals(rowSums(m), targets.Row)
	colErr := absResiduals(colSums(m), targets.Col)
	return map[string]float64{
		"max_row_error":     floats.Max(rowErr),
		"max_col_error":     floats.Max(colErr),
		"rms_row_error":     rms(rowErr),
		"rms_col_error":     rms(colErr),
		"max_row_pct_error": maxPctError(rowErr, targets.Row),
		"max_col_pct_error": maxPctError(colErr, targets.Col),
	}, nil
}

// --- METRIC HELPERS ---

// totalAdjustment is the total absolute cell-wise difference sum|a-b|.
func totalAdjustment(a, b *mat.Dense) float64 {
	r, c := a.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total += math.Abs(a.At(i, j) - b.At(i, j))
		}
	}
	return total
}

// methodDifferencePct expresses the total absolute difference between
// the two outputs as a percentage of their average total magnitude.
// Always >= 0, and 0 exactly when the outputs coincide.
func methodDifferencePct(a, b *mat.Dense) float64 {
	r, c := a.Dims()
	diff, magnitude := 0.0, 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			diff += math.Abs(a.At(i, j) - b.At(i, j))
			magnitude += (math.Abs(a.At(i, j)) + math.Abs(b.At(i, j))) / 2
		}
	}
	if magnitude == 0 {
		return 0
	}
	return 100 * diff / magnitude
}

// weightedResidualNorm is the Euclidean norm of the residuals scaled
// by their stated uncertainties. It quantifies how well the weighted
// balancer honored its own trust levels: tight constraints contribute
// heavily when violated, loose ones barely at all.
func weightedResidualNorm(res *BalancedResult, sigma Uncertainty) float64 {
	scaled := make([]float64, 0, len(res.RowErrors)+len(res.ColErrors))
	for i, e := range res.RowErrors {
		scaled = append(scaled, e/sigma.Row[i])
	}
	for j, e := range res.ColErrors {
		scaled = append(scaled, e/sigma.Col[j])
	}
	return floats.Norm(scaled, 2)
}

// findDivergences flags cells where the methods' relative difference
// exceeds the threshold and the values are non-negligible.
func findDivergences(ras, weighted *mat.Dense, threshold, floor float64) []Divergence {
	r, c := ras.Dims()
	var out []Divergence
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			rv, wv := ras.At(i, j), weighted.At(i, j)
			avg := (math.Abs(rv) + math.Abs(wv)) / 2
			if avg <= floor {
				continue
			}
			rel := math.Abs(rv-wv) / avg
			if rel > threshold {
				out = append(out, Divergence{Row: i, Col: j, RAS: rv, Weighted: wv, RelDiff: rel})
			}
		}
	}
	return out
}

func rms(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range v {
		total += x * x
	}
	return math.Sqrt(total / float64(len(v)))
}

// maxPctError is the largest |error|/target in percent over nonzero
// targets.
func maxPctError(errs, targets []float64) float64 {
	maxPct := 0.0
	for i, e := range errs {
		if targets[i] == 0 {
			continue
		}
		if pct := 100 * e / math.Abs(targets[i]); pct > maxPct {
			maxPct = pct
		}
	}
	return maxPct
}
