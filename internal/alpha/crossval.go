package alpha

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// FoldReport holds the out-of-sample quality of one time-series fold. The
// validation date range always lies strictly after the training range.
type FoldReport struct {
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	ValStart   time.Time `json:"val_start"`
	ValEnd     time.Time `json:"val_end"`
	TrainRows  int       `json:"train_rows"`
	ValRows    int       `json:"val_rows"`
	IC         float64   `json:"ic"`
	RMSE       float64   `json:"rmse"`
}

// CVReport aggregates fold-level forecast quality.
type CVReport struct {
	MeanIC   float64      `json:"mean_ic"`
	StdIC    float64      `json:"std_ic"`
	MeanRMSE float64      `json:"mean_rmse"`
	Folds    []FoldReport `json:"folds"`
}

// CrossValidate runs expanding-window time-series cross-validation: the
// distinct sample dates are cut into folds+1 contiguous blocks, fold k
// trains on blocks 0..k and validates on block k+1. Samples are never
// shuffled — validation dates are strictly later than training dates in
// every fold. The Information Coefficient is the Pearson correlation between
// predicted and realized forward returns within the validation fold.
func (f *Forecaster) CrossValidate(set *SampleSet, folds int) (*CVReport, error) {
	if folds < 1 {
		return nil, fmt.Errorf("cross-validation requires at least 1 fold, got %d", folds)
	}
	blocks := dateBlocks(set, folds+1)
	if blocks == nil {
		return nil, fmt.Errorf("%w: %d distinct dates for %d folds",
			ErrInsufficientTrainingData, set.DistinctDates(), folds)
	}

	report := &CVReport{}
	var ics, rmses []float64

	for k := 0; k < folds; k++ {
		trainEnd := blocks[k][1]
		valStart, valEnd := blocks[k+1][0], blocks[k+1][1]

		var trainX, valX [][]float64
		var trainY, valY []float64
		for _, s := range set.Samples {
			switch {
			case !s.Date.After(trainEnd):
				trainX = append(trainX, s.Feature)
				trainY = append(trainY, s.Forward)
			case !s.Date.Before(valStart) && !s.Date.After(valEnd):
				valX = append(valX, s.Feature)
				valY = append(valY, s.Forward)
			}
		}
		if len(trainX) == 0 || len(valX) < 2 {
			continue
		}

		preds, err := fitFold(f.cfg, set.Names, trainX, trainY, valX)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k, err)
		}

		ic := PearsonIC(preds, valY)
		rmse := rootMeanSquaredError(preds, valY)
		if math.IsNaN(ic) {
			continue
		}
		ics = append(ics, ic)
		rmses = append(rmses, rmse)
		report.Folds = append(report.Folds, FoldReport{
			TrainStart: blocks[0][0],
			TrainEnd:   trainEnd,
			ValStart:   valStart,
			ValEnd:     valEnd,
			TrainRows:  len(trainX),
			ValRows:    len(valX),
			IC:         ic,
			RMSE:       rmse,
		})
	}

	if len(ics) == 0 {
		return nil, fmt.Errorf("%w: no usable validation folds", ErrInsufficientTrainingData)
	}
	report.MeanIC = stat.Mean(ics, nil)
	if len(ics) > 1 {
		report.StdIC = stat.StdDev(ics, nil)
	}
	report.MeanRMSE = stat.Mean(rmses, nil)
	return report, nil
}

// fitFold trains a fresh pipeline on the training fold only and predicts the
// validation fold. Scaler and clip bounds are fitted on training data so no
// validation statistics leak backwards.
func fitFold(cfg ModelConfig, names []string, trainX [][]float64, trainY []float64, valX [][]float64) ([]float64, error) {
	fold, err := NewForecaster(cfg)
	if err != nil {
		return nil, err
	}
	set := &SampleSet{Names: names}
	for i := range trainX {
		set.Samples = append(set.Samples, Sample{Feature: trainX[i], Forward: trainY[i]})
	}
	if err := fold.Fit(set); err != nil {
		return nil, err
	}
	X := fold.scaler.Transform(fold.win.Transform(valX))
	return fold.model.Predict(X), nil
}

// PearsonIC is the Pearson correlation between predicted and realized
// returns; NaN when either side has no variance.
func PearsonIC(pred, actual []float64) float64 {
	if len(pred) != len(actual) || len(pred) < 2 {
		return math.NaN()
	}
	return stat.Correlation(pred, actual, nil)
}

// SpearmanIC is the rank correlation variant, reported in diagnostics.
func SpearmanIC(pred, actual []float64) float64 {
	if len(pred) != len(actual) || len(pred) < 2 {
		return math.NaN()
	}
	return stat.Correlation(ranks(pred), ranks(actual), nil)
}

func ranks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })
	out := make([]float64, len(v))
	for r, i := range idx {
		out[i] = float64(r)
	}
	return out
}

func rootMeanSquaredError(pred, actual []float64) float64 {
	var sum float64
	for i := range pred {
		d := pred[i] - actual[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pred)))
}
