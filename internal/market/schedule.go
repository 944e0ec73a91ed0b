package market

import (
	"fmt"
	"time"
)

// Frequency is the rebalance cadence.
type Frequency string

const (
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

// PeriodsPerYear returns the annualization factor for the cadence.
func (f Frequency) PeriodsPerYear() float64 {
	switch f {
	case Weekly:
		return 52
	case Quarterly:
		return 4
	default:
		return 12
	}
}

// step advances a target date by one rebalance period.
func (f Frequency) step(t time.Time) time.Time {
	switch f {
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Quarterly:
		return t.AddDate(0, 3, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// Valid reports whether the frequency is one of the supported cadences.
func (f Frequency) Valid() bool {
	switch f {
	case Weekly, Monthly, Quarterly:
		return true
	}
	return false
}

// Schedule generates the rebalance dates for a price table. The first date
// is the first trading date with a full risk lookback behind it; each
// subsequent target is aligned forward to the next actual trading date.
// An empty schedule (date range shorter than the risk lookback) is returned
// as an empty slice, not an error — the caller decides how to surface it.
func Schedule(table *PriceTable, freq Frequency, riskMonths int) ([]time.Time, error) {
	if !freq.Valid() {
		return nil, fmt.Errorf("unsupported rebalance frequency %q", freq)
	}
	if riskMonths <= 0 {
		return nil, fmt.Errorf("risk lookback months must be positive, got %d", riskMonths)
	}

	var out []time.Time
	target := table.Earliest().AddDate(0, riskMonths, 0)
	for !target.After(table.Latest()) {
		idx := table.SearchDate(target)
		if idx >= len(table.Dates) {
			break
		}
		aligned := table.Dates[idx]
		if len(out) == 0 || aligned.After(out[len(out)-1]) {
			out = append(out, aligned)
		}
		target = freq.step(target)
	}
	return out, nil
}
