package alpha

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeStepData builds a piecewise-constant target driven by feature 0 with
// inert noise features alongside.
func makeStepData(n, features int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, features)
		for j := range row {
			row[j] = rng.Float64()
		}
		X[i] = row
		if row[0] > 0.5 {
			y[i] = 1.0
		} else {
			y[i] = -1.0
		}
	}
	return X, y
}

func TestRandomForest_LearnsStepFunction(t *testing.T) {
	X, y := makeStepData(600, 4, 7)

	cfg := DefaultModelConfig(FamilyRandomForest)
	cfg.Trees = 40
	m := newRandomForest(cfg)
	require.NoError(t, m.Fit(X, y))

	preds := m.Predict([][]float64{
		{0.9, 0.5, 0.5, 0.5},
		{0.1, 0.5, 0.5, 0.5},
	})
	assert.Greater(t, preds[0], 0.5)
	assert.Less(t, preds[1], -0.5)
}

func TestRandomForest_ImportanceFavorsInformativeFeature(t *testing.T) {
	X, y := makeStepData(600, 4, 8)

	cfg := DefaultModelConfig(FamilyRandomForest)
	cfg.Trees = 40
	m := newRandomForest(cfg)
	require.NoError(t, m.Fit(X, y))

	imp := m.FeatureImportance()
	require.Len(t, imp, 4)
	for j := 1; j < 4; j++ {
		assert.Greater(t, imp[0], imp[j], "feature 0 drives the target")
	}

	var total float64
	for _, v := range imp {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9, "importances are normalized")
}

func TestRandomForest_DeterministicForSeed(t *testing.T) {
	X, y := makeStepData(300, 3, 9)

	cfg := DefaultModelConfig(FamilyRandomForest)
	cfg.Trees = 20

	a := newRandomForest(cfg)
	require.NoError(t, a.Fit(X, y))
	b := newRandomForest(cfg)
	require.NoError(t, b.Fit(X, y))

	probe := [][]float64{{0.3, 0.3, 0.3}, {0.7, 0.7, 0.7}}
	assert.Equal(t, a.Predict(probe), b.Predict(probe))
}

func TestGradientBoosting_LearnsStepFunction(t *testing.T) {
	X, y := makeStepData(600, 4, 10)

	cfg := DefaultModelConfig(FamilyGradientBoosting)
	cfg.Trees = 80
	m := newGradientBoosting(cfg)
	require.NoError(t, m.Fit(X, y))

	preds := m.Predict([][]float64{
		{0.9, 0.5, 0.5, 0.5},
		{0.1, 0.5, 0.5, 0.5},
	})
	assert.Greater(t, preds[0], 0.3)
	assert.Less(t, preds[1], -0.3)
}

func TestEnsemble_AveragesMembers(t *testing.T) {
	X, y := makeLinearData(300, []float64{1.2, -0.4}, 0.1, 0.05, 11)

	cfg := DefaultModelConfig(FamilyEnsemble)
	m, err := newEnsemble(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y))

	preds := m.Predict(X[:20])
	for i := range preds {
		assert.InDelta(t, y[i], preds[i], 0.6)
	}

	imp := m.FeatureImportance()
	require.Len(t, imp, 2)
}
