package backtest

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"quantbt/internal/market"
)

// runBenchmarks compounds reference strategies over the same dates as the
// strategy's equity curve: an equal-weight portfolio bought at the first
// rebalance and held, and one rebalanced back to equal weight every period.
// Both are gross of costs; the two curves are independent and run
// concurrently.
func runBenchmarks(prices *market.PriceTable, curve []EquityPoint, cfg Config) []Benchmark {
	dates := make([]EquityPoint, len(curve))
	copy(dates, curve)

	symbols := make([]string, 0, len(prices.Symbols))
	for _, sym := range prices.Symbols {
		if prices.Valid(sym, cfg.MinValidFraction) {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return nil
	}
	equal := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		equal[sym] = 1 / float64(len(symbols))
	}

	out := make([]Benchmark, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		out[0] = benchCurve("buy_and_hold", prices, dates, cfg, equal, false)
	}()
	go func() {
		defer wg.Done()
		out[1] = benchCurve("equal_weight", prices, dates, cfg, equal, true)
	}()
	wg.Wait()
	return out
}

// benchCurve compounds one benchmark along the strategy's dates. When
// rebalance is true the weights reset to the target every period, which for
// an equal-weight target removes drift; otherwise the initial buy drifts
// with prices.
func benchCurve(name string, prices *market.PriceTable, curve []EquityPoint, cfg Config, target map[string]float64, rebalance bool) Benchmark {
	b := Benchmark{Name: name}
	value := cfg.InitialValue
	b.Curve = append(b.Curve, EquityPoint{Date: curve[0].Date, Value: value})

	// Buy-and-hold tracks evolving position values; periodic rebalance keeps
	// resetting them to the target split.
	positions := make(map[string]float64, len(target))
	for sym, w := range target {
		positions[sym] = w * value
	}

	for i := 1; i < len(curve); i++ {
		from, to := curve[i-1].Date, curve[i].Date
		value = 0
		for sym, pos := range positions {
			r := segmentReturn(prices, map[string]float64{sym: 1}, from, to)
			positions[sym] = pos * (1 + r)
			value += positions[sym]
		}
		if rebalance {
			for sym, w := range target {
				positions[sym] = w * value
			}
		}
		b.Curve = append(b.Curve, EquityPoint{Date: to, Value: value})
	}

	b.TotalReturn = value/cfg.InitialValue - 1
	returns := periodReturns(b.Curve)
	if len(returns) > 0 && b.TotalReturn > -1 {
		ppy := cfg.Frequency.PeriodsPerYear()
		b.AnnualizedReturn = math.Pow(1+b.TotalReturn, ppy/float64(len(returns))) - 1
		if len(returns) > 1 {
			if vol := stat.StdDev(returns, nil) * math.Sqrt(ppy); vol > 0 {
				b.SharpeRatio = (b.AnnualizedReturn - cfg.Optimizer.RiskFreeRate) / vol
			}
		}
	}
	return b
}

// fillRelative computes strategy-versus-benchmark metrics from the two
// equity curves, which share one date axis by construction.
func fillRelative(b *Benchmark, strategy Summary, strategyCurve []EquityPoint, ppy float64) {
	b.ExcessReturn = strategy.TotalReturn - b.TotalReturn
	b.SharpeDiff = strategy.SharpeRatio - b.SharpeRatio

	stratR := periodReturns(strategyCurve)
	benchR := periodReturns(b.Curve)
	if len(stratR) != len(benchR) || len(stratR) < 2 {
		return
	}
	active := make([]float64, len(stratR))
	for i := range stratR {
		active[i] = stratR[i] - benchR[i]
	}
	b.TrackingError = stat.StdDev(active, nil) * math.Sqrt(ppy)
	if b.TrackingError > 0 {
		b.InformationRatio = stat.Mean(active, nil) * ppy / b.TrackingError
	}
}
