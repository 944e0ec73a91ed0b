// Package optimize solves the constrained max-Sharpe allocation: long-only
// weights inside [min, max] bounds that sum to one. The solver is projected
// gradient ascent with backtracking — deterministic for identical inputs,
// no randomness anywhere.
package optimize

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInfeasible indicates the weight bounds cannot produce a fully invested
// portfolio. The simulation loop degrades the event to a flat allocation
// instead of truncating the universe.
var ErrInfeasible = errors.New("optimization constraints are infeasible")

// Config bounds and tunes the solver.
type Config struct {
	MinWeight     float64
	MaxWeight     float64
	RiskFreeRate  float64
	MaxIterations int
	Tolerance     float64
	CleanCutoff   float64 // weights below this are dropped from the result
}

// DefaultConfig mirrors the institutional defaults: long-only, 17% position
// cap, tiny-weight cleanup.
func DefaultConfig() Config {
	return Config{
		MinWeight:     0,
		MaxWeight:     0.17,
		RiskFreeRate:  0.05,
		MaxIterations: 500,
		Tolerance:     1e-9,
		CleanCutoff:   0.001,
	}
}

// Result is the solved allocation with its ex-ante statistics.
type Result struct {
	Weights        map[string]float64
	ExpectedReturn float64
	Volatility     float64
	Sharpe         float64
	Iterations     int
}

// MaxSharpe finds the maximum-Sharpe weights for the given expected returns
// and covariance. Symbols, mu and the covariance share one index order.
func MaxSharpe(symbols []string, mu []float64, cov *mat.SymDense, cfg Config) (*Result, error) {
	n := len(symbols)
	if n == 0 || len(mu) != n || cov.SymmetricDim() != n {
		return nil, fmt.Errorf("dimension mismatch: %d symbols, %d forecasts, %dx%d covariance",
			n, len(mu), cov.SymmetricDim(), cov.SymmetricDim())
	}
	if cfg.MinWeight < 0 || cfg.MaxWeight <= cfg.MinWeight {
		return nil, fmt.Errorf("invalid weight bounds [%f, %f]", cfg.MinWeight, cfg.MaxWeight)
	}
	if float64(n)*cfg.MaxWeight < 1-1e-9 || float64(n)*cfg.MinWeight > 1+1e-9 {
		return nil, fmt.Errorf("%w: %d instruments with bounds [%f, %f] cannot sum to 1",
			ErrInfeasible, n, cfg.MinWeight, cfg.MaxWeight)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultConfig().Tolerance
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	projectCappedSimplex(w, cfg.MinWeight, cfg.MaxWeight)

	sharpe := sharpeRatio(w, mu, cov, cfg.RiskFreeRate)
	step := 0.1
	iterations := 0

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		iterations = iter + 1
		grad := sharpeGradient(w, mu, cov, cfg.RiskFreeRate)

		improved := false
		for step > 1e-12 {
			cand := make([]float64, n)
			for i := range w {
				cand[i] = w[i] + step*grad[i]
			}
			projectCappedSimplex(cand, cfg.MinWeight, cfg.MaxWeight)

			if next := sharpeRatio(cand, mu, cov, cfg.RiskFreeRate); next > sharpe+cfg.Tolerance {
				w = cand
				sharpe = next
				improved = true
				break
			}
			step /= 2
		}
		if !improved {
			break
		}
	}

	ret := dot(mu, w)
	vol := math.Sqrt(quadForm(w, cov))

	weights := make(map[string]float64, n)
	for i, sym := range symbols {
		if w[i] >= cfg.CleanCutoff {
			weights[sym] = w[i]
		}
	}
	return &Result{
		Weights:        weights,
		ExpectedReturn: ret,
		Volatility:     vol,
		Sharpe:         sharpe,
		Iterations:     iterations,
	}, nil
}

// sharpeRatio is (μᵀw − rf) / sqrt(wᵀΣw).
func sharpeRatio(w, mu []float64, cov *mat.SymDense, rf float64) float64 {
	vol := math.Sqrt(quadForm(w, cov))
	if vol <= 0 {
		return math.Inf(-1)
	}
	return (dot(mu, w) - rf) / vol
}

// sharpeGradient is ∇S = μ/σ − (μᵀw − rf)·Σw/σ³.
func sharpeGradient(w, mu []float64, cov *mat.SymDense, rf float64) []float64 {
	n := len(w)
	sigma2 := quadForm(w, cov)
	sigma := math.Sqrt(sigma2)
	if sigma <= 0 {
		return make([]float64, n)
	}
	excess := dot(mu, w) - rf

	covW := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			covW[i] += cov.At(i, j) * w[j]
		}
	}
	grad := make([]float64, n)
	for i := 0; i < n; i++ {
		grad[i] = mu[i]/sigma - excess*covW[i]/(sigma2*sigma)
	}
	return grad
}

// projectCappedSimplex projects v in place onto
// { w : Σw = 1, lo ≤ w_i ≤ hi } by bisecting on the shift τ in
// w_i = clamp(v_i − τ, lo, hi).
func projectCappedSimplex(v []float64, lo, hi float64) {
	sumAt := func(tau float64) float64 {
		var s float64
		for _, x := range v {
			s += math.Min(math.Max(x-tau, lo), hi)
		}
		return s
	}

	lower, upper := -1.0, 1.0
	for _, x := range v {
		if x-hi < lower {
			lower = x - hi
		}
		if x-lo > upper {
			upper = x - lo
		}
	}
	lower -= 1
	upper += 1

	for k := 0; k < 100; k++ {
		mid := (lower + upper) / 2
		if sumAt(mid) > 1 {
			lower = mid
		} else {
			upper = mid
		}
	}
	tau := (lower + upper) / 2
	for i, x := range v {
		v[i] = math.Min(math.Max(x-tau, lo), hi)
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func quadForm(w []float64, cov *mat.SymDense) float64 {
	var s float64
	n := len(w)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s += w[i] * cov.At(i, j) * w[j]
		}
	}
	return s
}
