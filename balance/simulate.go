package balance

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dimensions of the simulated flow-of-funds matrix: five sectors
// (households, non-financial corps, financial corps, government,
// non-residents) by six instruments (deposits, bonds, equity, loans,
// pensions, other). The core itself never labels them; labeling is the
// reporting layer's job.
const (
	SimulatedSectors     = 5
	SimulatedInstruments = 6
)

// Stylized "true" holdings in billions at scale 1000, based on
// national balance sheet stylized facts: households big in equity and
// pensions, financial corps dominant in loans, government issuing
// bonds, non-residents diversified.
var simTrueMatrix = []float64{
	100, 50, 300, 20, 400, 80,
	80, 100, 200, 150, 50, 70,
	50, 150, 100, 300, 100, 50,
	30, 200, 20, 50, 30, 20,
	40, 100, 80, 80, 20, 30,
}

// Relative measurement-error scale per sector and instrument.
// Household and cash figures are the noisiest, government and bonds
// the cleanest.
var (
	simSectorNoise     = []float64{0.15, 0.10, 0.05, 0.02, 0.08}
	simInstrumentNoise = []float64{0.20, 0.05, 0.10, 0.08, 0.12, 0.15}
)

// SimulateFlowOfFunds generates a noisy preliminary estimate of a
// stylized national flow-of-funds matrix together with the true row
// (sector asset) and column (instrument issuance) totals. The noisy
// interior will generally not add up to the targets; balancing it back
// is the whole exercise.
//
// scale sets the overall economy size (the stylized facts are
// calibrated at 1000), noiseLevel scales the measurement error, and
// seed makes the draw reproducible. There is no process-global
// randomness.
func SimulateFlowOfFunds(scale, noiseLevel float64, seed uint64) (*mat.Dense, Targets) {
	truth := mat.NewDense(SimulatedSectors, SimulatedInstruments, nil)
	for i := 0; i < SimulatedSectors; i++ {
		for j := 0; j < SimulatedInstruments; j++ {
			truth.Set(i, j, simTrueMatrix[i*SimulatedInstruments+j]*scale/1000)
		}
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, seed)}
	noisy := mat.NewDense(SimulatedSectors, SimulatedInstruments, nil)
	for i := 0; i < SimulatedSectors; i++ {
		for j := 0; j < SimulatedInstruments; j++ {
			relNoise := simSectorNoise[i] * simInstrumentNoise[j] * noiseLevel
			v := truth.At(i, j) * (1 + normal.Rand()*relNoise)
			// No negative asset holdings.
			noisy.Set(i, j, math.Max(v, 0))
		}
	}

	// The targets come from the true matrix, standing in for reliable
	// administrative totals. Their grand totals agree by construction.
	return noisy, Targets{Row: rowSums(truth), Col: colSums(truth)}
}

// Quarter is one simulated period: a noisy preliminary matrix plus the
// administrative totals it should be balanced against.
type Quarter struct {
	Prior   *mat.Dense
	Targets Targets
}

// SimulateQuarterlySeries generates n quarters of flow-of-funds data
// with trend growth and a weak seasonal swing. Each quarter is an
// independent balancing problem; periods can be balanced in parallel
// if the caller wants, since every balancing call is pure.
func SimulateQuarterlySeries(n int, scale, growthRate float64, seed uint64) []Quarter {
	series := make([]Quarter, 0, n)
	current := scale
	for q := 0; q < n; q++ {
		seasonal := 1 + 0.03*math.Sin(2*math.Pi*float64(q)/4)
		prior, targets := SimulateFlowOfFunds(current*seasonal, 0.1, seed+uint64(q))
		series = append(series, Quarter{Prior: prior, Targets: targets})
		current *= 1 + growthRate
	}
	return series
}

// SectoralBalance holds net lending (+) or borrowing (-) per sector,
// derived from an asset matrix and a stylized allocation of total
// liabilities across sectors.
type SectoralBalance struct {
	Assets      []float64
	Liabilities []float64
	Net         []float64
}

// SectoralBalances computes each sector's financial balance from its
// asset holdings. Without whom-to-whom data the liability side is
// approximated by allocating the grand total across sectors with the
// given shares (one non-negative share per row).
func SectoralBalances(assets *mat.Dense, liabilityShares []float64) (*SectoralBalance, error) {
	rows, _ := assets.Dims()
	if len(liabilityShares) != rows {
		return nil, fmt.Errorf("%w: %d liability shares for %d sectors",
			ErrDimensionMismatch, len(liabilityShares), rows)
	}
	for i, s := range liabilityShares {
		if s < 0 {
			return nil, fmt.Errorf("%w: liability share[%d] = %v must be >= 0", ErrBadOption, i, s)
		}
	}

	assetTotals := rowSums(assets)
	grand := floats.Sum(assetTotals)
	sb := &SectoralBalance{
		Assets:      assetTotals,
		Liabilities: make([]float64, rows),
		Net:         make([]float64, rows),
	}
	for i := range sb.Liabilities {
		sb.Liabilities[i] = liabilityShares[i] * grand
		sb.Net[i] = sb.Assets[i] - sb.Liabilities[i]
	}
	return sb, nil
}
