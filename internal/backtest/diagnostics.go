package backtest

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"quantbt/internal/alpha"
)

// Forecast quality labels, assigned from the run-wide mean Information
// Coefficient.
const (
	QualityStrong   = "strong"
	QualityModerate = "moderate"
	QualityWeak     = "weak"
	QualityInverted = "inverted"
	QualityUnknown  = "unknown"
)

// computeDiagnostics aggregates per-rebalance cross-validation ICs into a
// run-level forecast quality report. Events without an IC (cross-validation
// skipped or failed for that date) are excluded.
func computeDiagnostics(events []RebalanceEvent, importance []alpha.ImportanceEntry) Diagnostics {
	d := Diagnostics{ForecastQuality: QualityUnknown, FeatureImportance: importance}

	var ics []float64
	positive := 0
	for _, ev := range events {
		if ev.IC == nil {
			continue
		}
		ics = append(ics, *ev.IC)
		d.ICHistory = append(d.ICHistory, ICPoint{Date: ev.Date, IC: *ev.IC})
		if *ev.IC > 0 {
			positive++
		}
	}
	if len(ics) == 0 {
		return d
	}

	d.Periods = len(ics)
	d.MeanIC = stat.Mean(ics, nil)
	d.PositiveICRatio = float64(positive) / float64(len(ics))
	if len(ics) > 1 {
		d.ICStability = stat.StdDev(ics, nil)
	}

	sorted := append([]float64(nil), ics...)
	sort.Float64s(sorted)
	d.MinIC = sorted[0]
	d.MaxIC = sorted[len(sorted)-1]
	d.MedianIC = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	switch {
	case d.MeanIC >= 0.10:
		d.ForecastQuality = QualityStrong
	case d.MeanIC >= 0.03:
		d.ForecastQuality = QualityModerate
	case d.MeanIC >= 0:
		d.ForecastQuality = QualityWeak
	default:
		d.ForecastQuality = QualityInverted
	}
	return d
}
