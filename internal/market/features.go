package market

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Trading-day approximations used when converting month lags to offsets.
const tradingDaysPerMonth = 21

// IndicatorProvider is the default FeatureProvider. It derives a monthly
// feature table from adjusted closes: multi-lag compounded returns, realized
// volatility, RSI, a normalized MACD and Bollinger %B. Rows with incomplete
// history are dropped rather than imputed.
type IndicatorProvider struct {
	ReturnLags []int // in months
	RSIPeriod  int
	VolDays    int
}

// NewIndicatorProvider returns a provider with the standard feature set.
func NewIndicatorProvider() *IndicatorProvider {
	return &IndicatorProvider{
		ReturnLags: []int{1, 3, 6, 12},
		RSIPeriod:  14,
		VolDays:    63,
	}
}

// FeatureNames lists the features in the order they appear in each row.
func (p *IndicatorProvider) FeatureNames() []string {
	names := make([]string, 0, len(p.ReturnLags)+4)
	for _, lag := range p.ReturnLags {
		names = append(names, fmt.Sprintf("ret_%dm", lag))
	}
	return append(names, "vol_3m", "rsi", "macd_norm", "boll_pctb")
}

// Features computes the feature table for every month-end trading date
// inside the window. History older than the window is used for lag
// computation; nothing at or after window.End is ever read.
func (p *IndicatorProvider) Features(prices *PriceTable, window ObservationWindow) (*FeatureTable, error) {
	visible := prices.Slice(ObservationWindow{Start: prices.Earliest(), End: window.End})

	table := &FeatureTable{Names: p.FeatureNames()}
	for _, date := range visible.MonthEnds() {
		if !window.Contains(date) {
			continue
		}
		idx := visible.SearchDate(date)
		for _, sym := range visible.Symbols {
			row := p.rowAt(visible.Prices[sym], idx)
			if row == nil {
				continue
			}
			table.Rows = append(table.Rows, FeatureRow{Date: date, Symbol: sym, Values: row})
		}
	}
	return table, nil
}

// rowAt computes one feature vector from the series ending at index i, or
// nil when the history is too short or gappy.
func (p *IndicatorProvider) rowAt(series []float64, i int) []float64 {
	maxLag := p.ReturnLags[len(p.ReturnLags)-1]
	need := maxLag * tradingDaysPerMonth
	if i < need || math.IsNaN(series[i]) {
		return nil
	}

	values := make([]float64, 0, len(p.ReturnLags)+4)
	for _, lag := range p.ReturnLags {
		r := compoundedMonthlyReturn(series, i, lag)
		if math.IsNaN(r) {
			return nil
		}
		values = append(values, r)
	}

	vol := realizedVol(series, i, p.VolDays)
	rsi := rsiAt(series, i, p.RSIPeriod)
	macd := macdNorm(series, i)
	pctb := bollingerPctB(series, i, 20)
	for _, v := range []float64{vol, rsi, macd, pctb} {
		if math.IsNaN(v) {
			return nil
		}
	}
	return append(values, vol, rsi, macd, pctb)
}

// compoundedMonthlyReturn is the per-month geometric return over lag months.
func compoundedMonthlyReturn(series []float64, i, lagMonths int) float64 {
	j := i - lagMonths*tradingDaysPerMonth
	if j < 0 || math.IsNaN(series[j]) || series[j] <= 0 {
		return math.NaN()
	}
	total := series[i]/series[j] - 1
	return math.Pow(1+total, 1/float64(lagMonths)) - 1
}

// realizedVol is the annualized standard deviation of daily returns over the
// trailing days.
func realizedVol(series []float64, i, days int) float64 {
	if i < days {
		return math.NaN()
	}
	rets := make([]float64, 0, days)
	for k := i - days + 1; k <= i; k++ {
		a, b := series[k-1], series[k]
		if math.IsNaN(a) || math.IsNaN(b) || a == 0 {
			return math.NaN()
		}
		rets = append(rets, b/a-1)
	}
	return stat.StdDev(rets, nil) * math.Sqrt(252)
}

// rsiAt computes Wilder's RSI at index i.
func rsiAt(series []float64, i, period int) float64 {
	if i < period {
		return math.NaN()
	}
	var avgGain, avgLoss float64
	for k := i - period + 1; k <= i; k++ {
		d := series[k] - series[k-1]
		if math.IsNaN(d) {
			return math.NaN()
		}
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// macdNorm is the MACD line (EMA12 − EMA26) divided by the current price so
// the feature is comparable across instruments.
func macdNorm(series []float64, i int) float64 {
	if i < 26 || series[i] == 0 {
		return math.NaN()
	}
	fast := ema(series, i, 12)
	slow := ema(series, i, 26)
	if math.IsNaN(fast) || math.IsNaN(slow) {
		return math.NaN()
	}
	return (fast - slow) / series[i]
}

// ema computes an exponential moving average ending at index i, seeded with
// the simple average of the first span values.
func ema(series []float64, i, span int) float64 {
	start := i - 4*span
	if start < 0 {
		start = 0
	}
	if i-start < span {
		return math.NaN()
	}
	var seed float64
	for k := start; k < start+span; k++ {
		if math.IsNaN(series[k]) {
			return math.NaN()
		}
		seed += series[k]
	}
	v := seed / float64(span)
	alpha := 2.0 / (float64(span) + 1)
	for k := start + span; k <= i; k++ {
		if math.IsNaN(series[k]) {
			return math.NaN()
		}
		v = alpha*series[k] + (1-alpha)*v
	}
	return v
}

// bollingerPctB is the position of the price inside its Bollinger band,
// 0 at the lower band and 1 at the upper.
func bollingerPctB(series []float64, i, period int) float64 {
	if i+1 < period {
		return math.NaN()
	}
	window := series[i-period+1 : i+1]
	for _, v := range window {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}
	mean, std := stat.MeanStdDev(window, nil)
	if std == 0 {
		return 0.5
	}
	lower := mean - 2*std
	return (series[i] - lower) / (4 * std)
}
