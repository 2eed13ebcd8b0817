package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/lmittmann/tint"
	"gonum.org/v1/gonum/mat"

	"github.com/roguetrainer/bayesian-inference-system-national-accounts/balance"
)

// Sector and instrument labels for the simulated StatsCan-style data.
// Labeling lives here, not in the core: the balancers only see numbers.
var (
	simSectorLabels    = []string{"HH", "NFC", "FC", "Gov", "ROW"}
	simLiabilityShares = []float64{0.1, 0.3, 0.3, 0.2, 0.1}
	statscanRowLabels  = []string{"HH", "Corp", "Gov", "ROW"}
	statscanColLabels  = []string{"Cash", "Bonds", "Shares", "Mtgs"}
)

func main() {
	// expect 1 argument: scenario name
	scenario := "statscan"
	if len(os.Args) > 1 {
		scenario = os.Args[1]
	}

	// Diagnostic side channel; the balancers log convergence info here.
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))

	switch scenario {
	case "statscan":
		runStatsCan(logger)
	case "simulate":
		// optional 2nd argument: seed
		seed := uint64(42)
		if len(os.Args) > 2 {
			s, err := strconv.ParseUint(os.Args[2], 10, 64)
			if err != nil {
				panic("invalid seed: " + os.Args[2])
			}
			seed = s
		}
		runSimulated(logger, seed)
	default:
		fmt.Println("Usage: go run . [statscan|simulate [seed]]")
	}
}

// runStatsCan balances the classic 4x4 synthetic national balance
// sheet example: noisy survey interior vs reliable admin totals.
func runStatsCan(logger *slog.Logger) {
	fmt.Println("Balancing the 4x4 StatsCan synthetic flow-of-funds example")
	fmt.Println("Sectors:", statscanRowLabels, " Instruments:", statscanColLabels)

	// 1. The noisy survey interior. Households imply 700 vs an admin
	// total of 1000: big underreporting.
	prior := mat.NewDense(4, 4, []float64{
		150, 50, 200, 300,
		100, 100, 100, 50,
		50, 200, 50, 0,
		20, 100, 50, 10,
	})

	// 2. The reliable admin-data totals (grand totals agree: 2000).
	targets := balance.Targets{
		Row: []float64{1000, 500, 300, 200},
		Col: []float64{400, 600, 500, 500},
	}

	// 3. Trust levels: government and bonds are near-exact, households
	// and cash are loose.
	sigma := balance.Uncertainty{
		Row: []float64{10, 5, 0.1, 5},
		Col: []float64{10, 0.1, 5, 5},
	}

	// 4. Run both methods and compare.
	opts := balance.DefaultCompareOptions()
	opts.RAS.Logger = logger
	opts.Weighted.Logger = logger
	cmp, err := balance.Compare(prior, targets, sigma, opts)
	if err != nil {
		panic(err)
	}

	// 5. Report.
	PrintMatrix("Prior (noisy survey data)", prior)
	if cmp.RASErr != nil {
		fmt.Println("RAS failed:", cmp.RASErr)
	} else {
		PrintBalanced("RAS Balanced Matrix", cmp.RAS)
	}
	if cmp.WeightedErr != nil {
		fmt.Println("weighted balancer failed:", cmp.WeightedErr)
	} else {
		PrintBalanced("Uncertainty-Weighted Balanced Matrix", cmp.Weighted)
	}
	PrintMetrics("Comparison Metrics", cmp.Metrics)
	PrintDivergences(cmp.Divergences)
}

// runSimulated balances a seeded simulation of Canadian-style
// flow-of-funds data and walks a short quarterly series.
func runSimulated(logger *slog.Logger, seed uint64) {
	fmt.Println("Balancing simulated flow-of-funds data, seed =", seed)

	// 1. Simulate one period of noisy data plus true totals.
	prior, targets := balance.SimulateFlowOfFunds(2000, 1.0, seed)

	// 2. Trust levels mirroring the simulated noise structure:
	// households noisy, government tight.
	sigma := balance.Uncertainty{
		Row: []float64{15, 10, 5, 2, 8},
		Col: []float64{20, 5, 10, 8, 12, 15},
	}

	// 3. Compare the two methods.
	opts := balance.DefaultCompareOptions()
	opts.RAS.Logger = logger
	opts.Weighted.Logger = logger
	cmp, err := balance.Compare(prior, targets, sigma, opts)
	if err != nil {
		panic(err)
	}

	PrintMatrix("Prior (simulated preliminary estimates)", prior)
	if cmp.RASErr == nil {
		PrintBalanced("RAS Balanced Matrix", cmp.RAS)
	}
	if cmp.WeightedErr == nil {
		PrintBalanced("Uncertainty-Weighted Balanced Matrix", cmp.Weighted)
	}
	PrintMetrics("Comparison Metrics", cmp.Metrics)
	PrintDivergences(cmp.Divergences)

	// 4. How far off was the raw prior before balancing?
	quality, err := balance.AssessQuality(prior, targets)
	if err != nil {
		panic(err)
	}
	PrintMetrics("Prior Quality (before balancing)", quality)

	// 5. Sectoral net positions from the RAS-balanced matrix.
	if cmp.RASErr == nil {
		sb, err := balance.SectoralBalances(cmp.RAS.Matrix, simLiabilityShares)
		if err != nil {
			panic(err)
		}
		PrintSectoralBalances(simSectorLabels, sb)
	}

	// 6. A short quarterly series, each quarter balanced with RAS.
	fmt.Println("\n=== Quarterly Series (RAS) ===")
	ras := balance.NewRASBalancer()
	ras.Opts.Logger = logger
	for q, quarter := range balance.SimulateQuarterlySeries(4, 2000, 0.02, seed) {
		res, err := ras.Balance(quarter.Prior, quarter.Targets)
		if err != nil {
			fmt.Printf(" quarter %d: %v\n", q+1, err)
			continue
		}
		quality, err := balance.AssessQuality(res.Matrix, quarter.Targets)
		if err != nil {
			panic(err)
		}
		fmt.Printf(" quarter %d: converged=%v iterations=%d max row err=%.2e max col err=%.2e\n",
			q+1, res.Converged, res.Iterations,
			quality["max_row_error"], quality["max_col_error"])
	}
}
