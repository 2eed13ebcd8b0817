package balance

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Validation errors. All of them abort a balancing call before any
// computation happens; nothing is partially computed.
var (
	// ErrDimensionMismatch means the target or uncertainty vector
	// lengths do not match the matrix dimensions.
	ErrDimensionMismatch = errors.New("balance: vector length does not match matrix dimensions")

	// ErrNegativePrior means the prior matrix contains a negative entry.
	ErrNegativePrior = errors.New("balance: prior matrix entries must be non-negative")

	// ErrNonPositiveSigma means an uncertainty value is zero or
	// negative. Uncertainties are used as scale denominators and must
	// be strictly positive.
	ErrNonPositiveSigma = errors.New("balance: uncertainty values must be strictly positive")

	// ErrGrandTotalMismatch means sum(row targets) != sum(col targets).
	// No bi-proportional fixed point exists in that case, so RAS
	// rejects the input rather than iterating forever.
	ErrGrandTotalMismatch = errors.New("balance: row and column targets disagree on the grand total")

	// ErrBadOption means a tuning parameter is out of range.
	ErrBadOption = errors.New("balance: option value out of range")
)

// Relative slack allowed when checking that the two grand totals agree.
const grandTotalSlack = 1e-9

// validatePrior checks dimensions against the targets and rejects
// negative entries.
func validatePrior(prior *mat.Dense, targets Targets) error {
	if prior == nil {
		return fmt.Errorf("%w: nil prior matrix", ErrDimensionMismatch)
	}
	r, c := prior.Dims()
	if len(targets.Row) != r {
		return fmt.Errorf("%w: %d row targets for %d rows", ErrDimensionMismatch, len(targets.Row), r)
	}
	if len(targets.Col) != c {
		return fmt.Errorf("%w: %d col targets for %d cols", ErrDimensionMismatch, len(targets.Col), c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if prior.At(i, j) < 0 {
				return fmt.Errorf("%w: prior[%d,%d] = %v", ErrNegativePrior, i, j, prior.At(i, j))
			}
		}
	}
	return nil
}

// validateSigma checks uncertainty vector lengths and positivity.
func validateSigma(sigma Uncertainty, rows, cols int) error {
	if len(sigma.Row) != rows {
		return fmt.Errorf("%w: %d row uncertainties for %d rows", ErrDimensionMismatch, len(sigma.Row), rows)
	}
	if len(sigma.Col) != cols {
		return fmt.Errorf("%w: %d col uncertainties for %d cols", ErrDimensionMismatch, len(sigma.Col), cols)
	}
	for i, s := range sigma.Row {
		if s <= 0 {
			return fmt.Errorf("%w: row uncertainty[%d] = %v", ErrNonPositiveSigma, i, s)
		}
	}
	for j, s := range sigma.Col {
		if s <= 0 {
			return fmt.Errorf("%w: col uncertainty[%d] = %v", ErrNonPositiveSigma, j, s)
		}
	}
	return nil
}

// validateGrandTotals rejects targets whose row and column totals
// disagree beyond relative slack.
func validateGrandTotals(targets Targets) error {
	rowTotal := floats.Sum(targets.Row)
	colTotal := floats.Sum(targets.Col)
	scale := math.Max(1, math.Max(math.Abs(rowTotal), math.Abs(colTotal)))
	if math.Abs(rowTotal-colTotal) > grandTotalSlack*scale {
		return fmt.Errorf("%w: sum(row targets) = %v, sum(col targets) = %v",
			ErrGrandTotalMismatch, rowTotal, colTotal)
	}
	return nil
}

// --- SUM / RESIDUAL HELPERS ---

func rowSums(m *mat.Dense) []float64 {
	r, _ := m.Dims()
	sums := make([]float64, r)
	for i := 0; i < r; i++ {
		sums[i] = floats.Sum(m.RawRowView(i))
	}
	return sums
}

func colSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	sums := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sums[j] += m.At(i, j)
		}
	}
	return sums
}

func absResiduals(sums, targets []float64) []float64 {
	res := make([]float64, len(sums))
	for i := range sums {
		res[i] = math.Abs(sums[i] - targets[i])
	}
	return res
}
