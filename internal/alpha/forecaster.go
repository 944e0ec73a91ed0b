package alpha

import (
	"fmt"
	"sort"
	"time"
)

// Forecast maps instrument symbol to its expected return over the forecast
// horizon.
type Forecast map[string]float64

// ImportanceEntry is one feature's share of the fitted model's importance.
type ImportanceEntry struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// Forecaster owns the full prediction pipeline for one rebalance date:
// winsorize, robust-scale, fit the configured model family, predict. A new
// Forecaster is built per rebalance; nothing is carried across dates.
type Forecaster struct {
	cfg    ModelConfig
	win    *Winsorizer
	scaler *RobustScaler
	model  Model
	names  []string
	fitted bool
}

// NewForecaster builds an unfitted pipeline for the configured family.
func NewForecaster(cfg ModelConfig) (*Forecaster, error) {
	if !cfg.Family.Valid() {
		return nil, fmt.Errorf("unknown model family %q", cfg.Family)
	}
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return &Forecaster{
		cfg:    cfg,
		win:    NewWinsorizer(0.01, 0.99),
		scaler: &RobustScaler{},
		model:  model,
	}, nil
}

// Fit trains on the full eligible sample (after cross-validation).
func (f *Forecaster) Fit(set *SampleSet) error {
	X, y := set.Matrix()
	if err := f.win.Fit(X); err != nil {
		return err
	}
	X = f.win.Transform(X)
	if err := f.scaler.Fit(X); err != nil {
		return err
	}
	X = f.scaler.Transform(X)
	if err := f.model.Fit(X, y); err != nil {
		return fmt.Errorf("fit %s: %w", f.cfg.Family, err)
	}
	f.names = set.Names
	f.fitted = true
	return nil
}

// Predict returns one expected return per instrument present in the input.
func (f *Forecaster) Predict(features map[string][]float64) (Forecast, error) {
	if !f.fitted {
		return nil, fmt.Errorf("predict before fit")
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no features to predict on")
	}

	symbols := make([]string, 0, len(features))
	for sym := range features {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	X := make([][]float64, len(symbols))
	for i, sym := range symbols {
		X[i] = features[sym]
	}
	X = f.scaler.Transform(f.win.Transform(X))

	preds := f.model.Predict(X)
	out := make(Forecast, len(symbols))
	for i, sym := range symbols {
		out[sym] = preds[i]
	}
	return out, nil
}

// Importance returns the fitted model's feature importances ranked
// descending, or nil when the model reports none.
func (f *Forecaster) Importance() []ImportanceEntry {
	imp := f.model.FeatureImportance()
	if len(imp) == 0 || len(imp) != len(f.names) {
		return nil
	}
	out := make([]ImportanceEntry, len(imp))
	for j, w := range imp {
		out[j] = ImportanceEntry{Feature: f.names[j], Weight: w}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Weight > out[b].Weight })
	return out
}

// dateBlocks partitions the distinct sample dates into n contiguous blocks.
// Dates are sorted first, so the split is by date order regardless of how
// the samples were arranged.
func dateBlocks(set *SampleSet, n int) [][2]time.Time {
	dates := make([]time.Time, 0, len(set.Samples))
	for _, s := range set.Samples {
		dates = append(dates, s.Date)
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })
	uniq := dates[:0]
	for _, d := range dates {
		if len(uniq) == 0 || d.After(uniq[len(uniq)-1]) {
			uniq = append(uniq, d)
		}
	}
	dates = uniq
	if len(dates) < n {
		return nil
	}
	blocks := make([][2]time.Time, 0, n)
	size := len(dates) / n
	rem := len(dates) % n
	start := 0
	for b := 0; b < n; b++ {
		end := start + size
		if b < rem {
			end++
		}
		blocks = append(blocks, [2]time.Time{dates[start], dates[end-1]})
		start = end
	}
	return blocks
}
