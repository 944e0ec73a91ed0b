package alpha

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Winsorizer clips each feature column to a percentile band fitted on
// training data, so a handful of extreme historical observations cannot
// dominate the loss.
type Winsorizer struct {
	Lower, Upper float64 // percentiles in (0,1)
	lo, hi       []float64
}

// NewWinsorizer clips at the given percentile band (e.g. 0.01, 0.99).
func NewWinsorizer(lower, upper float64) *Winsorizer {
	return &Winsorizer{Lower: lower, Upper: upper}
}

// Fit records the per-column clip bounds from X.
func (w *Winsorizer) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("winsorizer: empty matrix")
	}
	cols := len(X[0])
	w.lo = make([]float64, cols)
	w.hi = make([]float64, cols)
	col := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		sort.Float64s(col)
		w.lo[j] = stat.Quantile(w.Lower, stat.Empirical, col, nil)
		w.hi[j] = stat.Quantile(w.Upper, stat.Empirical, col, nil)
	}
	return nil
}

// Transform returns a clipped copy of X using the fitted bounds.
func (w *Winsorizer) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		clipped := make([]float64, len(row))
		for j, v := range row {
			clipped[j] = math.Min(math.Max(v, w.lo[j]), w.hi[j])
		}
		out[i] = clipped
	}
	return out
}

// RobustScaler centers by the median and scales by the interquartile range.
// Columns with zero IQR pass through unscaled.
type RobustScaler struct {
	median []float64
	iqr    []float64
}

// Fit computes per-column medians and IQRs.
func (s *RobustScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("robust scaler: empty matrix")
	}
	cols := len(X[0])
	s.median = make([]float64, cols)
	s.iqr = make([]float64, cols)
	col := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		sort.Float64s(col)
		s.median[j] = stat.Quantile(0.5, stat.Empirical, col, nil)
		q1 := stat.Quantile(0.25, stat.Empirical, col, nil)
		q3 := stat.Quantile(0.75, stat.Empirical, col, nil)
		s.iqr[j] = q3 - q1
		if s.iqr[j] == 0 {
			s.iqr[j] = 1
		}
	}
	return nil
}

// Transform returns a scaled copy of X.
func (s *RobustScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.median[j]) / s.iqr[j]
		}
		out[i] = scaled
	}
	return out
}
