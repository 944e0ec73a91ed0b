package alpha

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeLinearData builds y = coef·x + intercept with optional noise.
func makeLinearData(n int, coef []float64, intercept, noise float64, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(coef))
		v := intercept
		for j := range coef {
			row[j] = rng.NormFloat64()
			v += coef[j] * row[j]
		}
		X[i] = row
		y[i] = v + noise*rng.NormFloat64()
	}
	return X, y
}

func TestRidge_RecoversCoefficients(t *testing.T) {
	want := []float64{2.0, -1.0, 0.5}
	X, y := makeLinearData(400, want, 3.0, 0.0, 1)

	m := &linearModel{kind: FamilyRidge, alpha: 0.01}
	require.NoError(t, m.Fit(X, y))

	for j, c := range want {
		assert.InDelta(t, c, m.coef[j], 0.05, "coef %d", j)
	}
	assert.InDelta(t, 3.0, m.intercept, 0.05)

	preds := m.Predict(X[:10])
	for i := range preds {
		assert.InDelta(t, y[i], preds[i], 0.1)
	}
}

func TestLasso_ZeroesIrrelevantFeatures(t *testing.T) {
	// Only the first of eight features carries signal.
	coef := []float64{1.5, 0, 0, 0, 0, 0, 0, 0}
	X, y := makeLinearData(500, coef, 0, 0.05, 2)

	m := &linearModel{kind: FamilyLasso, alpha: 0.05, l1Ratio: 1}
	require.NoError(t, m.Fit(X, y))

	assert.Greater(t, m.coef[0], 1.0, "informative coefficient should survive")
	for j := 1; j < len(coef); j++ {
		assert.Less(t, math.Abs(m.coef[j]), 0.05, "noise coefficient %d should be shrunk away", j)
	}
}

func TestElasticNet_BetweenRidgeAndLasso(t *testing.T) {
	coef := []float64{1.0, -0.5}
	X, y := makeLinearData(300, coef, 0.2, 0.02, 3)

	m := &linearModel{kind: FamilyElasticNet, alpha: 0.01, l1Ratio: 0.5}
	require.NoError(t, m.Fit(X, y))

	assert.InDelta(t, 1.0, m.coef[0], 0.15)
	assert.InDelta(t, -0.5, m.coef[1], 0.15)
}

func TestLinear_ImportanceIsAbsCoef(t *testing.T) {
	X, y := makeLinearData(200, []float64{-2.0, 0.5}, 0, 0, 4)
	m := &linearModel{kind: FamilyRidge, alpha: 0.01}
	require.NoError(t, m.Fit(X, y))

	imp := m.FeatureImportance()
	require.Len(t, imp, 2)
	assert.Greater(t, imp[0], imp[1], "larger |coef| means larger importance")
	assert.GreaterOrEqual(t, imp[1], 0.0)
}

func TestLinear_FitRejectsEmptyInput(t *testing.T) {
	m := &linearModel{kind: FamilyRidge, alpha: 1}
	require.Error(t, m.Fit(nil, nil))
}
