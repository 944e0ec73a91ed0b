package alpha

import (
	"errors"
	"fmt"
	"math"
	"time"

	"quantbt/internal/market"
)

// ErrInsufficientTrainingData indicates too little eligible history to fit a
// model. The simulation loop treats this as "skip this rebalance", never as
// a run-wide failure.
var ErrInsufficientTrainingData = errors.New("insufficient training data")

// forwardReturnClip bounds realized forward returns before they become
// training labels.
const forwardReturnClip = 0.5

// Sample is one (instrument, date) training observation: a feature vector
// and the realized return over the forecast horizon that followed it.
type Sample struct {
	Date    time.Time
	Symbol  string
	Feature []float64
	Forward float64
}

// SampleSet is a date-ordered training set.
type SampleSet struct {
	Names   []string
	Samples []Sample
}

// DistinctDates counts the distinct observation dates in the set.
func (s *SampleSet) DistinctDates() int {
	n := 0
	var prev time.Time
	for _, smp := range s.Samples {
		if n == 0 || smp.Date.After(prev) {
			n++
			prev = smp.Date
		}
	}
	return n
}

// Matrix returns the feature matrix and label vector.
func (s *SampleSet) Matrix() ([][]float64, []float64) {
	X := make([][]float64, len(s.Samples))
	y := make([]float64, len(s.Samples))
	for i, smp := range s.Samples {
		X[i] = smp.Feature
		y[i] = smp.Forward
	}
	return X, y
}

// PrepareTrainingSamples assembles the eligible training set for a rebalance
// date. For every historical observation date it pairs the feature vector
// with the realized forward return over the horizon; rows whose forward
// window would extend to or past the rebalance date are excluded. This is
// the leakage boundary: no label may depend on data visible only at or after
// the rebalance.
func PrepareTrainingSamples(
	features *market.FeatureTable,
	prices *market.PriceTable,
	rebalance time.Time,
	horizonMonths, minDates, minSamples int,
) (*SampleSet, error) {
	if horizonMonths <= 0 {
		return nil, fmt.Errorf("forecast horizon must be positive, got %d", horizonMonths)
	}

	horizonDays := horizonMonths * 21
	boundary := prices.SearchDate(rebalance)

	set := &SampleSet{Names: features.Names}
	for _, row := range features.Rows {
		if !row.Date.Before(rebalance) {
			continue
		}
		start := prices.SearchDate(row.Date)
		if start >= len(prices.Dates) || !prices.Dates[start].Equal(row.Date) {
			continue
		}
		end := start + horizonDays
		if end >= boundary {
			continue // forward window would cross the rebalance date
		}
		p0 := prices.Price(row.Symbol, start)
		p1 := prices.Price(row.Symbol, end)
		if math.IsNaN(p0) || math.IsNaN(p1) || p0 <= 0 {
			continue
		}
		fwd := p1/p0 - 1
		fwd = math.Min(math.Max(fwd, -forwardReturnClip), forwardReturnClip)
		set.Samples = append(set.Samples, Sample{
			Date:    row.Date,
			Symbol:  row.Symbol,
			Feature: row.Values,
			Forward: fwd,
		})
	}

	if d := set.DistinctDates(); d < minDates {
		return nil, fmt.Errorf("%w: %d distinct dates, need %d", ErrInsufficientTrainingData, d, minDates)
	}
	if len(set.Samples) < minSamples {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientTrainingData, len(set.Samples), minSamples)
	}
	return set, nil
}
