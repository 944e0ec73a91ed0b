package alpha

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/market"
)

func syntheticFixture(t *testing.T, symbols []string, days int) *market.PriceTable {
	t.Helper()
	table, err := market.GenerateSynthetic(market.DefaultSyntheticConfig(
		symbols, time.Date(2018, time.January, 2, 0, 0, 0, 0, time.UTC), days))
	require.NoError(t, err)
	return table
}

func featuresUpTo(t *testing.T, table *market.PriceTable, rebalance time.Time, months int) *market.FeatureTable {
	t.Helper()
	provider := market.NewIndicatorProvider()
	window := market.ObservationWindow{
		Start: rebalance.AddDate(0, -months, 0),
		End:   rebalance,
		Kind:  market.KindAlpha,
	}
	feats, err := provider.Features(table, window)
	require.NoError(t, err)
	require.NotEmpty(t, feats.Rows)
	return feats
}

func TestPrepareTrainingSamples_LeakageBoundary(t *testing.T) {
	table := syntheticFixture(t, []string{"AAA", "BBB", "CCC"}, 1300)
	rebalance := table.Dates[1100]
	feats := featuresUpTo(t, table, rebalance, 24)

	horizon := 3
	set, err := PrepareTrainingSamples(feats, table, rebalance, horizon, 3, 10)
	require.NoError(t, err)
	require.NotEmpty(t, set.Samples)

	boundary := table.SearchDate(rebalance)
	for _, s := range set.Samples {
		assert.True(t, s.Date.Before(rebalance), "sample dated at/after the rebalance")
		start := table.SearchDate(s.Date)
		assert.Less(t, start+horizon*21, boundary,
			"forward-return window for %s must close strictly before the rebalance date", s.Date)
		assert.LessOrEqual(t, s.Forward, forwardReturnClip)
		assert.GreaterOrEqual(t, s.Forward, -forwardReturnClip)
	}
}

func TestPrepareTrainingSamples_InsufficientDates(t *testing.T) {
	table := syntheticFixture(t, []string{"AAA", "BBB"}, 1300)
	rebalance := table.Dates[1100]
	feats := featuresUpTo(t, table, rebalance, 24)

	_, err := PrepareTrainingSamples(feats, table, rebalance, 3, 100, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientTrainingData)
}

func TestPrepareTrainingSamples_InsufficientSamples(t *testing.T) {
	table := syntheticFixture(t, []string{"AAA"}, 1300)
	rebalance := table.Dates[1100]
	feats := featuresUpTo(t, table, rebalance, 24)

	_, err := PrepareTrainingSamples(feats, table, rebalance, 3, 3, 100000)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientTrainingData)
}

func TestSampleSet_MatrixShape(t *testing.T) {
	set := &SampleSet{
		Names: []string{"f1", "f2"},
		Samples: []Sample{
			{Symbol: "AAA", Feature: []float64{1, 2}, Forward: 0.1},
			{Symbol: "BBB", Feature: []float64{3, 4}, Forward: -0.2},
		},
	}
	X, y := set.Matrix()
	require.Len(t, X, 2)
	assert.Equal(t, []float64{3, 4}, X[1])
	assert.Equal(t, []float64{0.1, -0.2}, y)
}
