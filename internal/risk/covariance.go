// Package risk estimates return covariance over the long risk lookback
// window. The estimator shrinks the sample covariance toward a constant-
// correlation target (Ledoit-Wolf style) because the instrument count can
// approach the number of observations, leaving the raw sample matrix
// ill-conditioned.
package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"quantbt/internal/market"
)

// Annualization factor for daily return covariance.
const tradingDaysPerYear = 252

// Default shrinkage used when the data gives no usable intensity estimate.
const fallbackShrinkage = 0.2

// CovarianceMatrix is an annualized, symmetric PSD covariance estimate over
// the active instrument set for one rebalance date. It is recomputed from
// scratch each rebalance and never reused across dates.
type CovarianceMatrix struct {
	Symbols   []string
	Matrix    *mat.SymDense
	Shrinkage float64
}

// At returns the covariance between symbols i and j by index.
func (c *CovarianceMatrix) At(i, j int) float64 { return c.Matrix.At(i, j) }

// Dim returns the number of instruments.
func (c *CovarianceMatrix) Dim() int { return len(c.Symbols) }

// Estimate computes the shrunk covariance of daily returns inside the risk
// window slice for the given symbols. Deterministic for identical input.
func Estimate(window *market.PriceTable, symbols []string) (*CovarianceMatrix, error) {
	if len(symbols) < 2 {
		return nil, fmt.Errorf("covariance needs at least 2 instruments, got %d", len(symbols))
	}

	returns := make([][]float64, len(symbols))
	length := -1
	for i, sym := range symbols {
		r := window.DailyReturns(sym)
		if len(r) < 2 {
			return nil, fmt.Errorf("insufficient return observations for %s", sym)
		}
		if length == -1 {
			length = len(r)
		}
		if len(r) != length {
			return nil, fmt.Errorf("return length mismatch for %s: %d vs %d", sym, len(r), length)
		}
		returns[i] = r
	}

	sample := sampleCovariance(returns)
	shrunk, intensity := shrinkToConstantCorrelation(sample)

	n := len(symbols)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, shrunk.At(i, j)*tradingDaysPerYear)
		}
	}
	return &CovarianceMatrix{Symbols: symbols, Matrix: out, Shrinkage: intensity}, nil
}

// sampleCovariance builds the unbiased sample covariance of the return rows.
func sampleCovariance(returns [][]float64) *mat.SymDense {
	n := len(returns)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, stat.Covariance(returns[i], returns[j], nil))
		}
	}
	return cov
}

// shrinkToConstantCorrelation blends the sample covariance with a constant-
// correlation target: average variance on the diagonal, average covariance
// off it. The intensity comes from the dispersion of the sample entries
// around the target, capped at 0.5.
func shrinkToConstantCorrelation(sample *mat.SymDense) (*mat.SymDense, float64) {
	n := sample.SymmetricDim()

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sample.At(i, i)
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sample.At(i, j)
			}
		}
	}
	avgVar /= float64(n)
	if n > 1 {
		avgCov /= float64(n * (n - 1))
	}

	target := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		target.SetSym(i, i, avgVar)
		for j := i + 1; j < n; j++ {
			target.SetSym(i, j, avgCov)
		}
	}

	intensity := shrinkageIntensity(sample, target)

	shrunk := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (1-intensity)*sample.At(i, j) + intensity*target.At(i, j)
			shrunk.SetSym(i, j, v)
		}
	}
	return shrunk, intensity
}

func shrinkageIntensity(sample, target *mat.SymDense) float64 {
	n := sample.SymmetricDim()
	if n <= 2 {
		return fallbackShrinkage
	}

	var sumSqDiff, sum, sumSq float64
	count := float64(n * n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := sample.At(i, j)
			d := v - target.At(i, j)
			sumSqDiff += d * d
			sum += v
			sumSq += v * v
		}
	}
	meanSqDiff := sumSqDiff / count
	mean := sum / count
	variance := sumSq/count - mean*mean

	if variance <= 0 || meanSqDiff <= 0 {
		return fallbackShrinkage
	}
	return math.Min(0.5, math.Max(0, variance/(variance+meanSqDiff)))
}
