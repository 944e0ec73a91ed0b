package backtest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/alpha"
	"quantbt/internal/market"
)

func syntheticTable(t *testing.T, symbols []string, days int) *market.PriceTable {
	t.Helper()
	table, err := market.GenerateSynthetic(market.DefaultSyntheticConfig(
		symbols, time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC), days))
	require.NoError(t, err)
	return table
}

func eightSymbols() []string {
	return []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF", "GGG", "HHH"}
}

func TestRun_WalkForwardEndToEnd(t *testing.T) {
	table := syntheticTable(t, eightSymbols(), 900)
	cfg := DefaultConfig(alpha.FamilyRidge)
	engine := New(cfg, market.NewIndicatorProvider())

	result, err := engine.Run(context.Background(), table)
	require.NoError(t, err)
	require.Equal(t, StatusOK, result.Status)
	require.NotEmpty(t, result.RunID)
	require.GreaterOrEqual(t, len(result.Events), 10)

	assert.Len(t, result.EquityCurve, len(result.Events)+1,
		"equity curve gains exactly one point per applied rebalance")
	for i := 1; i < len(result.EquityCurve); i++ {
		assert.True(t, result.EquityCurve[i].Date.After(result.EquityCurve[i-1].Date),
			"equity curve dates must be strictly increasing")
	}
	assert.True(t, result.EquityCurve[0].Date.Before(result.Events[0].Date),
		"the initial-capital point precedes the first rebalance")

	for _, ev := range result.Events {
		var sum float64
		for sym, w := range ev.Weights {
			assert.GreaterOrEqual(t, w, 0.0, sym)
			assert.LessOrEqual(t, w, cfg.Optimizer.MaxWeight+1e-9,
				"position cap must hold after renormalization")
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "weights must sum to one")
		assert.GreaterOrEqual(t, ev.Turnover, 0.0)
		assert.GreaterOrEqual(t, ev.TransactionCost, 0.0)
	}

	// The first rebalance moves the whole portfolio from cash.
	first := result.Events[0]
	assert.InDelta(t, 1.0, first.Turnover, 1e-6)
	assert.Greater(t, result.Summary.TotalCosts, 0.0)
	assert.Greater(t, result.Summary.AverageTurnover, 0.0)
	assert.Greater(t, result.Summary.FinalValue, 0.0)
}

func TestRun_ForecastsCarrySignalOnPersistentDrift(t *testing.T) {
	// Five years of ten instruments with persistent per-instrument drift, a
	// 3-month horizon ridge model rebalanced monthly.
	symbols := append(eightSymbols(), "III", "JJJ")
	table := syntheticTable(t, symbols, 1260)
	cfg := DefaultConfig(alpha.FamilyRidge)
	cfg.HorizonMonths = 3
	engine := New(cfg, market.NewIndicatorProvider())

	result, err := engine.Run(context.Background(), table)
	require.NoError(t, err)
	require.NotEmpty(t, result.Events)

	assert.Greater(t, result.Diagnostics.MeanIC, 0.0,
		"momentum-driven prices must yield positive out-of-sample IC")
	assert.Greater(t, result.Diagnostics.PositiveICRatio, 0.5)
	assert.GreaterOrEqual(t, result.Diagnostics.MaxIC, result.Diagnostics.MedianIC)
	assert.GreaterOrEqual(t, result.Diagnostics.MedianIC, result.Diagnostics.MinIC)
	assert.Greater(t, result.Diagnostics.Periods, 0)
	assert.NotEqual(t, QualityInverted, result.Diagnostics.ForecastQuality)
	assert.NotEmpty(t, result.Diagnostics.FeatureImportance)

	require.Len(t, result.Diagnostics.ICHistory, result.Diagnostics.Periods,
		"one history point per scored rebalance")
	for i, pt := range result.Diagnostics.ICHistory {
		assert.False(t, pt.Date.IsZero())
		if i > 0 {
			assert.True(t, pt.Date.After(result.Diagnostics.ICHistory[i-1].Date),
				"history stays in rebalance order")
		}
	}
}

func TestRun_BenchmarksAndForwardPortfolio(t *testing.T) {
	table := syntheticTable(t, eightSymbols(), 900)
	engine := New(DefaultConfig(alpha.FamilyRidge), market.NewIndicatorProvider())

	result, err := engine.Run(context.Background(), table)
	require.NoError(t, err)

	require.Len(t, result.Benchmarks, 2)
	for _, b := range result.Benchmarks {
		assert.Len(t, b.Curve, len(result.EquityCurve),
			"benchmarks compound over the same dates as the strategy")
		assert.InDelta(t, result.Summary.TotalReturn-b.TotalReturn, b.ExcessReturn, 1e-12)
		assert.GreaterOrEqual(t, b.TrackingError, 0.0)
		assert.InDelta(t, result.Summary.SharpeRatio-b.SharpeRatio, b.SharpeDiff, 1e-12)
	}

	require.NotNil(t, result.Forward)
	assert.Equal(t, table.Latest(), result.Forward.AsOf)
	assert.True(t, result.Forward.ValidUntil.After(result.Forward.AsOf))
	var sum float64
	for _, w := range result.Forward.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestRun_EmptyScheduleIsNotAnError(t *testing.T) {
	table := syntheticTable(t, eightSymbols(), 100) // far short of the risk lookback
	engine := New(DefaultConfig(alpha.FamilyRidge), market.NewIndicatorProvider())

	result, err := engine.Run(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, result.Status)
	assert.Empty(t, result.Events)
	assert.Empty(t, result.EquityCurve)
	assert.Equal(t, 0.0, result.Summary.TotalReturn)
}

func TestRun_CancelledContextReturnsPartialResult(t *testing.T) {
	table := syntheticTable(t, eightSymbols(), 900)
	engine := New(DefaultConfig(alpha.FamilyRidge), market.NewIndicatorProvider())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Run(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, result.Status)
	assert.Empty(t, result.Events)
}

func TestRun_SkippedDatesCarryWeightsForward(t *testing.T) {
	table := syntheticTable(t, eightSymbols(), 900)
	cfg := DefaultConfig(alpha.FamilyRidge)
	cfg.MinTrainSamples = 1 << 20 // force every forecasting stage to fail
	engine := New(cfg, market.NewIndicatorProvider())

	result, err := engine.Run(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, result.Status, "zero successes surface as a structured empty result")
	assert.Empty(t, result.Events)
	assert.NotEmpty(t, result.Skipped)
	for _, sk := range result.Skipped {
		assert.Equal(t, StageForecasting, sk.Stage)
		assert.NotEmpty(t, sk.Reason)
	}
	assert.Len(t, result.EquityCurve, 1, "a run with no applied rebalances stays at the initial point")
	assert.Equal(t, 0.0, result.Summary.TotalReturn)
}

func TestRun_InfeasibleBoundsDegradeToFlat(t *testing.T) {
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	table := syntheticTable(t, symbols, 900)

	cfg := DefaultConfig(alpha.FamilyRidge)
	cfg.Benchmarks = false
	// 5 instruments capped at 17% cannot reach full investment.
	require.Less(t, float64(len(symbols))*cfg.Optimizer.MaxWeight, 1.0)

	engine := New(cfg, market.NewIndicatorProvider())
	result, err := engine.Run(context.Background(), table)
	require.NoError(t, err)
	require.NotEmpty(t, result.Events)

	for _, ev := range result.Events {
		assert.True(t, ev.Degenerate, "infeasible bounds must mark the event degenerate")
		assert.Empty(t, ev.Weights, "the degenerate allocation is flat, not a truncated universe")
		assert.Zero(t, ev.Turnover)
	}
	assert.InDelta(t, 0.0, result.Summary.TotalReturn, 1e-9, "a flat book earns nothing")
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	table := syntheticTable(t, eightSymbols(), 300)

	cfg := DefaultConfig(alpha.FamilyRidge)
	cfg.AlphaMonths = 36 // alpha lookback outside the risk lookback
	_, err := New(cfg, market.NewIndicatorProvider()).Run(context.Background(), table)
	require.Error(t, err)

	cfg = DefaultConfig(alpha.FamilyRidge)
	cfg.Frequency = "fortnightly"
	_, err = New(cfg, market.NewIndicatorProvider()).Run(context.Background(), table)
	require.Error(t, err)
}

func TestShiftForecast_LiftsNegativeCrossSection(t *testing.T) {
	f := alpha.Forecast{"AAA": -0.04, "BBB": 0.02, "CCC": -0.01}
	shiftForecast(f)
	assert.InDelta(t, 0.01, f["AAA"], 1e-12)
	assert.InDelta(t, 0.07, f["BBB"], 1e-12)
	assert.InDelta(t, 0.04, f["CCC"], 1e-12)

	g := alpha.Forecast{"AAA": 0.01, "BBB": 0.03}
	shiftForecast(g)
	assert.Equal(t, 0.01, g["AAA"], "non-negative cross-sections pass through")
}

func TestRenormalize_RestoresFullInvestment(t *testing.T) {
	w := renormalize(map[string]float64{"AAA": 0.49, "BBB": 0.49}, 0.6)
	assert.InDelta(t, 0.5, w["AAA"], 1e-12)
	assert.InDelta(t, 0.5, w["BBB"], 1e-12)
	assert.Nil(t, renormalize(nil, 0.6))
}

func TestRenormalize_KeepsCappedPositionsAtTheCap(t *testing.T) {
	// Weight cleaning drops dust below the optimizer cutoff, so the surviving
	// weights sum to just under one with several names already at the cap.
	// Rescaling must route the shortfall to the uncapped names only.
	w := map[string]float64{
		"AAA": 0.17, "BBB": 0.17, "CCC": 0.17,
		"DDD": 0.17, "EEE": 0.17, "FFF": 0.149,
	}
	out := renormalize(w, 0.17)

	var sum float64
	for sym, v := range out {
		assert.LessOrEqual(t, v, 0.17+1e-12, sym)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "full investment restored")
	assert.InDelta(t, 0.15, out["FFF"], 1e-9, "the shortfall lands on the uncapped name")
	for _, sym := range []string{"AAA", "BBB", "CCC", "DDD", "EEE"} {
		assert.InDelta(t, 0.17, out[sym], 1e-12, sym)
	}
}

func TestRun_ClosingLogMatchesSummaryFinalValue(t *testing.T) {
	table := syntheticTable(t, eightSymbols(), 900)
	var buf bytes.Buffer
	engine := New(DefaultConfig(alpha.FamilyRidge), market.NewIndicatorProvider(),
		WithLogger(zerolog.New(&buf)))

	result, err := engine.Run(context.Background(), table)
	require.NoError(t, err)
	require.Equal(t, StatusOK, result.Status)

	var logged *float64
	sc := bufio.NewScanner(&buf)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var entry struct {
			Message    string   `json:"message"`
			FinalValue *float64 `json:"final_value"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		if entry.Message == "run finished" {
			logged = entry.FinalValue
		}
	}
	require.NoError(t, sc.Err())
	require.NotNil(t, logged, "the closing log line reports final_value")
	assert.InDelta(t, result.Summary.FinalValue, *logged, 1e-9,
		"closing log and summary report the same final value")
	assert.Equal(t, result.EquityCurve[len(result.EquityCurve)-1].Value,
		result.Summary.FinalValue)
}
