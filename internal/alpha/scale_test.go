package alpha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWinsorizer_ClipsExtremes(t *testing.T) {
	X := make([][]float64, 100)
	for i := range X {
		X[i] = []float64{float64(i)}
	}
	X[99][0] = 1e6 // one wild outlier

	w := NewWinsorizer(0.01, 0.99)
	require.NoError(t, w.Fit(X))
	out := w.Transform(X)

	assert.Less(t, out[99][0], 1e6, "outlier must be clipped")
	assert.InDelta(t, 50.0, out[50][0], 1e-9, "interior values pass through")
}

func TestWinsorizer_TransformAppliesTrainBoundsToNewData(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}, {9}}
	w := NewWinsorizer(0.05, 0.95)
	require.NoError(t, w.Fit(X))

	out := w.Transform([][]float64{{-100}, {100}})
	assert.GreaterOrEqual(t, out[0][0], 0.0)
	assert.LessOrEqual(t, out[1][0], 9.0)
}

func TestRobustScaler_CentersOnMedian(t *testing.T) {
	X := [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}, {5, 1000}}
	s := &RobustScaler{}
	require.NoError(t, s.Fit(X))
	out := s.Transform(X)

	// The median row maps to zero in each column.
	assert.InDelta(t, 0.0, out[2][0], 1e-9)
	assert.InDelta(t, 0.0, out[2][1], 1e-9)

	// Scaling is by IQR, so the outlier column is not blown up the way a
	// stddev scaler would blow it up.
	assert.Less(t, out[4][1], 100.0)
}

func TestRobustScaler_ConstantColumnPassesThrough(t *testing.T) {
	X := [][]float64{{7, 1}, {7, 2}, {7, 3}}
	s := &RobustScaler{}
	require.NoError(t, s.Fit(X))
	out := s.Transform(X)

	for i := range out {
		assert.InDelta(t, 0.0, out[i][0], 1e-9, "constant column centers to zero without dividing by zero")
	}
}

func TestScalers_RejectEmpty(t *testing.T) {
	require.Error(t, NewWinsorizer(0.01, 0.99).Fit(nil))
	require.Error(t, (&RobustScaler{}).Fit(nil))
}
