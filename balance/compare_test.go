package balance_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/roguetrainer/bayesian-inference-system-national-accounts/balance"
)

// TestCompare_StatsCanMetrics runs the full comparison on the 4x4
// scenario and checks the metric set is complete and sane.
func TestCompare_StatsCanMetrics(t *testing.T) {
	cmp, err := balance.Compare(statscanPrior(), statscanTargets(), statscanSigma(),
		balance.DefaultCompareOptions())
	require.NoError(t, err)
	require.NoError(t, cmp.RASErr)
	require.NoError(t, cmp.WeightedErr)

	for _, key := range []string{
		"ras_max_row_error", "ras_max_col_error", "ras_total_adjustment",
		"weighted_max_row_error", "weighted_max_col_error", "weighted_total_adjustment",
		"weighted_residual_norm", "method_difference_abs", "method_difference_pct",
	} {
		assert.Contains(t, cmp.Metrics, key)
	}

	// RAS converged, so its constraint errors are tiny; the weighted
	// method keeps visible residuals on the loose constraints.
	assert.Less(t, cmp.Metrics["ras_max_row_error"], 1e-4)
	assert.Less(t, cmp.Metrics["ras_max_col_error"], 1e-4)
	assert.Greater(t, cmp.Metrics["weighted_max_row_error"], cmp.Metrics["ras_max_row_error"])

	assert.GreaterOrEqual(t, cmp.Metrics["method_difference_pct"], 0.0)
	assert.Greater(t, cmp.Metrics["weighted_residual_norm"], 0.0)

	// Both methods moved the matrix: the prior's totals were off by
	// hundreds.
	assert.Greater(t, cmp.Metrics["ras_total_adjustment"], 100.0)
	assert.Greater(t, cmp.Metrics["weighted_total_adjustment"], 100.0)
}

// TestCompare_DegenerateAgreement: when the prior already satisfies
// the targets, the RAS fixed point and the weighted optimum coincide
// at the prior, so the inter-method difference is zero.
func TestCompare_DegenerateAgreement(t *testing.T) {
	prior := mat.NewDense(2, 2, []float64{10, 20, 30, 40})
	targets := balance.Targets{Row: []float64{30, 70}, Col: []float64{40, 60}}
	sigma := balance.Uncertainty{Row: []float64{0.001, 0.001}, Col: []float64{0.001, 0.001}}

	cmp, err := balance.Compare(prior, targets, sigma, balance.DefaultCompareOptions())
	require.NoError(t, err)
	require.NoError(t, cmp.RASErr)
	require.NoError(t, cmp.WeightedErr)

	assert.InDelta(t, 0, cmp.Metrics["method_difference_pct"], 1e-6)
	assert.InDelta(t, 0, cmp.Metrics["method_difference_abs"], 1e-6)
	assert.Empty(t, cmp.Divergences)
}

// TestCompare_FlagsHighUncertaintyCells: divergence flags are expected
// exactly where both the row and the column are loose. There RAS still
// enforces the targets while the weighted balancer stays on the prior.
func TestCompare_FlagsHighUncertaintyCells(t *testing.T) {
	prior := mat.NewDense(2, 2, []float64{10, 10, 10, 10})
	// Row 0 must double under RAS; row 1 is already right.
	targets := balance.Targets{Row: []float64{40, 20}, Col: []float64{30, 30}}
	sigma := balance.Uncertainty{Row: []float64{1e6, 1e6}, Col: []float64{1e6, 1e6}}

	cmp, err := balance.Compare(prior, targets, sigma, balance.DefaultCompareOptions())
	require.NoError(t, err)
	require.NoError(t, cmp.RASErr)
	require.NoError(t, cmp.WeightedErr)

	require.Len(t, cmp.Divergences, 2, "both row-0 cells should be flagged")
	for _, d := range cmp.Divergences {
		assert.Equal(t, 0, d.Row)
		assert.Greater(t, d.RelDiff, balance.DefaultDivergenceThreshold)
		assert.InDelta(t, 20, d.RAS, 1e-4)
		assert.InDelta(t, 10, d.Weighted, 0.1)
	}
}

// TestCompare_IsolatesRASFailure: a grand-total mismatch sinks RAS but
// must not stop the weighted run from being reported.
func TestCompare_IsolatesRASFailure(t *testing.T) {
	prior := mat.NewDense(2, 2, []float64{10, 10, 10, 10})
	targets := balance.Targets{Row: []float64{40, 20}, Col: []float64{10, 10}}
	sigma := balance.Uncertainty{Row: []float64{1, 1}, Col: []float64{1, 1}}

	cmp, err := balance.Compare(prior, targets, sigma, balance.DefaultCompareOptions())
	require.NoError(t, err, "per-method failures must not abort the comparison")

	assert.ErrorIs(t, cmp.RASErr, balance.ErrGrandTotalMismatch)
	assert.Nil(t, cmp.RAS)

	require.NoError(t, cmp.WeightedErr)
	require.NotNil(t, cmp.Weighted)
	assert.Contains(t, cmp.Metrics, "weighted_max_row_error")
	assert.NotContains(t, cmp.Metrics, "ras_max_row_error")
	assert.NotContains(t, cmp.Metrics, "method_difference_pct")
	assert.Empty(t, cmp.Divergences)
}

// TestCompare_SharedInputValidation: bad shared inputs abort the whole
// comparison with nothing computed.
func TestCompare_SharedInputValidation(t *testing.T) {
	targets := balance.Targets{Row: []float64{3, 7}, Col: []float64{4, 6}}
	sigma := balance.Uncertainty{Row: []float64{1, 1}, Col: []float64{1, 1}}

	negative := mat.NewDense(2, 2, []float64{1, -2, 3, 4})
	cmp, err := balance.Compare(negative, targets, sigma, balance.DefaultCompareOptions())
	assert.ErrorIs(t, err, balance.ErrNegativePrior)
	assert.Nil(t, cmp)

	prior := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	badSigma := balance.Uncertainty{Row: []float64{1, -1}, Col: []float64{1, 1}}
	cmp, err = balance.Compare(prior, targets, badSigma, balance.DefaultCompareOptions())
	assert.ErrorIs(t, err, balance.ErrNonPositiveSigma)
	assert.Nil(t, cmp)
}

func TestAssessQuality(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	// Row sums are [3,7], col sums [4,6].
	targets := balance.Targets{Row: []float64{4, 7}, Col: []float64{4, 5}}

	q, err := balance.AssessQuality(m, targets)
	require.NoError(t, err)

	assert.InDelta(t, 1, q["max_row_error"], 1e-12)
	assert.InDelta(t, 1, q["max_col_error"], 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), q["rms_row_error"], 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), q["rms_col_error"], 1e-12)
	assert.InDelta(t, 25, q["max_row_pct_error"], 1e-12)
	assert.InDelta(t, 20, q["max_col_pct_error"], 1e-12)
}

func TestAssessQuality_DimensionMismatch(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	_, err := balance.AssessQuality(m, balance.Targets{Row: []float64{1}, Col: []float64{1, 1}})
	assert.ErrorIs(t, err, balance.ErrDimensionMismatch)
}
