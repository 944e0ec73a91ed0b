package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// computeSummary derives run-level performance from the equity curve and the
// event stream. An empty or single-point curve yields a zeroed summary.
func computeSummary(result *Result, cfg Config) Summary {
	s := Summary{
		RebalancesApplied: len(result.Events),
		RebalancesSkipped: len(result.Skipped),
		PeriodsPerYear:    cfg.Frequency.PeriodsPerYear(),
		FinalValue:        cfg.InitialValue,
	}
	for _, ev := range result.Events {
		s.TotalCosts += ev.TransactionCost
		s.AverageTurnover += ev.Turnover
	}
	s.TotalCostsPct = s.TotalCosts / cfg.InitialValue
	if len(result.Events) > 0 {
		s.AverageTurnover /= float64(len(result.Events))
		s.FirstRebalanceDate = result.Events[0].Date.Format("2006-01-02")
		s.LastRebalanceDate = result.Events[len(result.Events)-1].Date.Format("2006-01-02")
	}

	curve := result.EquityCurve
	if len(curve) < 2 {
		return s
	}
	s.FinalValue = curve[len(curve)-1].Value
	s.TotalReturn = s.FinalValue/curve[0].Value - 1

	returns := periodReturns(curve)
	periods := float64(len(returns))
	ppy := s.PeriodsPerYear

	if s.TotalReturn > -1 {
		s.AnnualizedReturn = math.Pow(1+s.TotalReturn, ppy/periods) - 1
	} else {
		s.AnnualizedReturn = -1
	}
	if len(returns) > 1 {
		s.AnnualizedVol = stat.StdDev(returns, nil) * math.Sqrt(ppy)
	}
	if s.AnnualizedVol > 0 {
		s.SharpeRatio = (s.AnnualizedReturn - cfg.Optimizer.RiskFreeRate) / s.AnnualizedVol
	}
	s.MaxDrawdown, s.DrawdownPeriods = maxDrawdown(curve)
	return s
}

// periodReturns converts an equity curve into per-period simple returns.
func periodReturns(curve []EquityPoint) []float64 {
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1].Value > 0 {
			out = append(out, curve[i].Value/curve[i-1].Value-1)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// maxDrawdown returns the deepest peak-to-trough decline as a positive
// fraction, along with the longest stretch of periods spent below a prior
// peak.
func maxDrawdown(curve []EquityPoint) (float64, int) {
	var worst float64
	var longest, below int
	peak := curve[0].Value
	for _, p := range curve[1:] {
		if p.Value >= peak {
			peak = p.Value
			below = 0
			continue
		}
		below++
		if below > longest {
			longest = below
		}
		if peak > 0 {
			if dd := 1 - p.Value/peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst, longest
}
