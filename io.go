package main

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/roguetrainer/bayesian-inference-system-national-accounts/balance"
)

// Helper function to print a matrix with a heading
func PrintMatrix(title string, m *mat.Dense) {
	fmt.Printf("\n=== %s ===\n", title)
	fmt.Printf("%.2f\n", mat.Formatted(m, mat.Prefix(" ")))
}

// Helper function to print a balancing result: matrix, realized sums
// and residuals, and whether the run converged
func PrintBalanced(title string, res *balance.BalancedResult) {
	PrintMatrix(title, res.Matrix)
	fmt.Printf(" row sums:  %.2f\n", res.RowSums)
	fmt.Printf(" col sums:  %.2f\n", res.ColSums)
	fmt.Printf(" row error: %.4f\n", res.RowErrors)
	fmt.Printf(" col error: %.4f\n", res.ColErrors)
	if res.Converged {
		fmt.Printf(" converged in %d iterations\n", res.Iterations)
	} else {
		fmt.Printf(" did NOT converge within %d iterations\n", res.Iterations)
	}
}

// Helper function to print a metric map in a stable order
func PrintMetrics(title string, metrics map[string]float64) {
	fmt.Printf("\n=== %s ===\n", title)
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf(" %-28s %12.4f\n", k, metrics[k])
	}
}

// Helper function to print flagged cell-level divergences
func PrintDivergences(divs []balance.Divergence) {
	fmt.Println("\n=== Significant Divergences (RAS vs weighted) ===")
	if len(divs) == 0 {
		fmt.Println(" none")
		return
	}
	for _, d := range divs {
		fmt.Printf(" cell [%d,%d]: RAS=%.2f weighted=%.2f (rel diff %.1f%%)\n",
			d.Row, d.Col, d.RAS, d.Weighted, 100*d.RelDiff)
	}
}

// Helper function to print sectoral net lending/borrowing positions
func PrintSectoralBalances(labels []string, sb *balance.SectoralBalance) {
	fmt.Println("\n=== Sectoral Financial Balances ===")
	fmt.Printf(" %-6s %12s %12s %12s\n", "sector", "assets", "liabilities", "net")
	for i, label := range labels {
		fmt.Printf(" %-6s %12.1f %12.1f %12.1f\n", label, sb.Assets[i], sb.Liabilities[i], sb.Net[i])
	}
	fmt.Println(" (positive net = lender, negative = borrower)")
}
