package backtest

import "math"

// Turnover is the one-way sum of absolute weight changes between the prior
// and next allocations, taken over the union of their holdings. A position
// present on only one side contributes its full weight.
func Turnover(prior, next map[string]float64) float64 {
	seen := make(map[string]bool, len(prior)+len(next))
	var sum float64
	for sym, w := range next {
		sum += math.Abs(w - prior[sym])
		seen[sym] = true
	}
	for sym, w := range prior {
		if !seen[sym] {
			sum += math.Abs(w)
		}
	}
	return sum
}

// TransactionCost converts turnover into a currency charge at the given
// basis-point rate on the traded notional.
func TransactionCost(turnover, portfolioValue, costBps float64) float64 {
	return turnover * portfolioValue * costBps / 10000
}
