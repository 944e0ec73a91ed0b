package alpha

import (
	"fmt"
)

// Family selects the forecasting model implementation.
type Family string

const (
	FamilyRidge            Family = "ridge"
	FamilyLasso            Family = "lasso"
	FamilyElasticNet       Family = "elastic_net"
	FamilyRandomForest     Family = "random_forest"
	FamilyGradientBoosting Family = "gradient_boosting"
	FamilyEnsemble         Family = "ensemble"
)

// Valid reports whether the family is known.
func (f Family) Valid() bool {
	switch f {
	case FamilyRidge, FamilyLasso, FamilyElasticNet,
		FamilyRandomForest, FamilyGradientBoosting, FamilyEnsemble:
		return true
	}
	return false
}

// Model is the capability set every family implements. Inputs are assumed
// winsorized and scaled by the Forecaster pipeline; models never see raw
// features.
type Model interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) []float64
	FeatureImportance() []float64
}

// ModelConfig holds the per-family hyperparameters. Zero values fall back to
// the defaults of DefaultModelConfig.
type ModelConfig struct {
	Family Family  `yaml:"family"`
	Alpha  float64 `yaml:"alpha"`    // regularization strength for linear families
	L1     float64 `yaml:"l1_ratio"` // elastic-net mix

	Trees        int     `yaml:"trees"`
	MaxDepth     int     `yaml:"max_depth"`
	MinSplit     int     `yaml:"min_split"`
	MinLeaf      int     `yaml:"min_leaf"`
	LearningRate float64 `yaml:"learning_rate"`
	Subsample    float64 `yaml:"subsample"`
	Seed         int64   `yaml:"seed"`
}

// DefaultModelConfig returns conservative hyperparameters for the family:
// shallow trees, slow boosting, moderate regularization.
func DefaultModelConfig(family Family) ModelConfig {
	cfg := ModelConfig{
		Family:       family,
		Alpha:        1.0,
		L1:           0.5,
		Trees:        100,
		MaxDepth:     5,
		MinSplit:     20,
		MinLeaf:      10,
		LearningRate: 0.05,
		Subsample:    0.8,
		Seed:         42,
	}
	switch family {
	case FamilyLasso, FamilyElasticNet:
		cfg.Alpha = 0.001
	case FamilyGradientBoosting:
		cfg.MaxDepth = 3
	}
	return cfg
}

// NewModel constructs a model for the configured family.
func NewModel(cfg ModelConfig) (Model, error) {
	switch cfg.Family {
	case FamilyRidge:
		return &linearModel{kind: cfg.Family, alpha: cfg.Alpha}, nil
	case FamilyLasso:
		return &linearModel{kind: cfg.Family, alpha: cfg.Alpha, l1Ratio: 1}, nil
	case FamilyElasticNet:
		return &linearModel{kind: cfg.Family, alpha: cfg.Alpha, l1Ratio: cfg.L1}, nil
	case FamilyRandomForest:
		return newRandomForest(cfg), nil
	case FamilyGradientBoosting:
		return newGradientBoosting(cfg), nil
	case FamilyEnsemble:
		return newEnsemble(cfg)
	default:
		return nil, fmt.Errorf("unknown model family %q", cfg.Family)
	}
}
