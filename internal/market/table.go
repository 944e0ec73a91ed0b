package market

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PriceTable holds adjusted daily close prices for a universe of instruments.
// Dates are strictly ascending; every price series is aligned to Dates with
// NaN marking missing observations. Tables are treated as immutable once
// built and are shared by reference across pipeline stages.
type PriceTable struct {
	Dates   []time.Time
	Symbols []string
	Prices  map[string][]float64
}

// NewPriceTable builds a table from per-symbol series aligned to dates.
func NewPriceTable(dates []time.Time, prices map[string][]float64) (*PriceTable, error) {
	if len(dates) == 0 {
		return nil, fmt.Errorf("price table requires at least one date")
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("dates must be strictly ascending: %s >= %s",
				dates[i-1].Format("2006-01-02"), dates[i].Format("2006-01-02"))
		}
	}

	symbols := make([]string, 0, len(prices))
	for sym, series := range prices {
		if len(series) != len(dates) {
			return nil, fmt.Errorf("series length mismatch for %s: got %d, want %d", sym, len(series), len(dates))
		}
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("price table requires at least one symbol")
	}
	sort.Strings(symbols)

	return &PriceTable{Dates: dates, Symbols: symbols, Prices: prices}, nil
}

// Earliest returns the first observation date.
func (t *PriceTable) Earliest() time.Time { return t.Dates[0] }

// Latest returns the last observation date.
func (t *PriceTable) Latest() time.Time { return t.Dates[len(t.Dates)-1] }

// SearchDate returns the index of the first date >= target, or len(Dates)
// if every date is earlier.
func (t *PriceTable) SearchDate(target time.Time) int {
	return sort.Search(len(t.Dates), func(i int) bool {
		return !t.Dates[i].Before(target)
	})
}

// Price returns the adjusted close for symbol at date index i, or NaN when
// the symbol is unknown.
func (t *PriceTable) Price(symbol string, i int) float64 {
	series, ok := t.Prices[symbol]
	if !ok {
		return math.NaN()
	}
	return series[i]
}

// Slice returns a view restricted to [window.Start, window.End). The
// underlying arrays are shared, never copied.
func (t *PriceTable) Slice(window ObservationWindow) *PriceTable {
	lo := t.SearchDate(window.Start)
	hi := t.SearchDate(window.End)
	sub := make(map[string][]float64, len(t.Prices))
	for sym, series := range t.Prices {
		sub[sym] = series[lo:hi]
	}
	return &PriceTable{Dates: t.Dates[lo:hi], Symbols: t.Symbols, Prices: sub}
}

// Valid reports whether the symbol has at least minFrac non-NaN observations
// within the table.
func (t *PriceTable) Valid(symbol string, minFrac float64) bool {
	series, ok := t.Prices[symbol]
	if !ok || len(series) == 0 {
		return false
	}
	n := 0
	for _, p := range series {
		if !math.IsNaN(p) {
			n++
		}
	}
	return float64(n) >= minFrac*float64(len(series))
}

// DailyReturns computes simple daily returns for symbol over the table,
// forward-filling across missing prices. The result has len(Dates)-1 entries.
func (t *PriceTable) DailyReturns(symbol string) []float64 {
	series := t.Prices[symbol]
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	prev := math.NaN()
	for i := 0; i < len(series); i++ {
		p := series[i]
		if math.IsNaN(p) {
			p = prev
		}
		if i > 0 {
			if math.IsNaN(prev) || math.IsNaN(p) || prev == 0 {
				out = append(out, 0)
			} else {
				out = append(out, p/prev-1)
			}
		}
		prev = p
	}
	return out
}

// MonthEnds returns the last trading date of each calendar month present in
// the table, in ascending order.
func (t *PriceTable) MonthEnds() []time.Time {
	var out []time.Time
	for i, d := range t.Dates {
		last := i == len(t.Dates)-1
		if !last {
			next := t.Dates[i+1]
			if next.Month() == d.Month() && next.Year() == d.Year() {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// FeatureRow is one (date, instrument) observation produced by a
// FeatureProvider. Values align with the table's feature names.
type FeatureRow struct {
	Date   time.Time
	Symbol string
	Values []float64
}

// FeatureTable is a dated per-instrument feature table, ordered by date.
// Consumers treat it as read-only.
type FeatureTable struct {
	Names []string
	Rows  []FeatureRow
}

// Dates returns the distinct observation dates in ascending order.
func (f *FeatureTable) DistinctDates() []time.Time {
	var out []time.Time
	for _, r := range f.Rows {
		if len(out) == 0 || r.Date.After(out[len(out)-1]) {
			out = append(out, r.Date)
		}
	}
	return out
}

// At returns the feature vectors observed at exactly date, keyed by symbol.
func (f *FeatureTable) At(date time.Time) map[string][]float64 {
	out := make(map[string][]float64)
	for _, r := range f.Rows {
		if r.Date.Equal(date) {
			out[r.Symbol] = r.Values
		}
	}
	return out
}

// LatestDate returns the most recent observation date, or the zero time for
// an empty table.
func (f *FeatureTable) LatestDate() time.Time {
	if len(f.Rows) == 0 {
		return time.Time{}
	}
	return f.Rows[len(f.Rows)-1].Date
}

// FeatureProvider produces a dated feature table for the instruments in a
// price table. Implementations may read history older than the window but
// must only emit rows whose dates fall inside it.
type FeatureProvider interface {
	Features(prices *PriceTable, window ObservationWindow) (*FeatureTable, error)
}
