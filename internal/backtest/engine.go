package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quantbt/internal/alpha"
	"quantbt/internal/market"
	"quantbt/internal/optimize"
	"quantbt/internal/risk"
	"quantbt/internal/telemetry"
)

// Minimum shifted forecast when the raw cross-section goes negative. A
// max-Sharpe objective with an all-negative mu vector shorts everything
// through the bounds, so the cross-section is shifted to keep ranking
// information while staying long-only.
const forecastFloor = 0.01

// Config parameterizes one simulation run.
type Config struct {
	Frequency        market.Frequency
	AlphaMonths      int
	RiskMonths       int
	HorizonMonths    int
	InitialValue     float64
	CostBps          float64
	Model            alpha.ModelConfig
	Optimizer        optimize.Config
	MinValidFraction float64
	MinInstruments   int
	CVFolds          int
	MinTrainDates    int
	MinTrainSamples  int
	Benchmarks       bool
}

// DefaultConfig returns the standard monthly setup: 12-month alpha lookback
// inside a 24-month risk lookback, 1-month forecast horizon, 15 bps costs.
func DefaultConfig(family alpha.Family) Config {
	return Config{
		Frequency:        market.Monthly,
		AlphaMonths:      12,
		RiskMonths:       24,
		HorizonMonths:    1,
		InitialValue:     100000,
		CostBps:          15,
		Model:            alpha.DefaultModelConfig(family),
		Optimizer:        optimize.DefaultConfig(),
		MinValidFraction: 0.7,
		MinInstruments:   5,
		CVFolds:          3,
		MinTrainDates:    6,
		MinTrainSamples:  30,
		Benchmarks:       true,
	}
}

func (c Config) validate() error {
	if !c.Frequency.Valid() {
		return fmt.Errorf("unsupported rebalance frequency %q", c.Frequency)
	}
	if c.AlphaMonths <= 0 || c.RiskMonths < c.AlphaMonths {
		return fmt.Errorf("risk lookback (%dm) must contain the alpha lookback (%dm)",
			c.RiskMonths, c.AlphaMonths)
	}
	if c.HorizonMonths <= 0 {
		return fmt.Errorf("forecast horizon months must be positive, got %d", c.HorizonMonths)
	}
	if c.InitialValue <= 0 {
		return fmt.Errorf("initial portfolio value must be positive, got %f", c.InitialValue)
	}
	if c.CostBps < 0 {
		return fmt.Errorf("transaction cost must be non-negative, got %f bps", c.CostBps)
	}
	if c.MinInstruments < 2 {
		return fmt.Errorf("universe minimum must be at least 2 instruments, got %d", c.MinInstruments)
	}
	return nil
}

// Engine runs walk-forward simulations. Safe for sequential reuse; one Run
// never shares state with the next.
type Engine struct {
	cfg      Config
	features market.FeatureProvider
	log      zerolog.Logger
	metrics  *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger; the default discards output.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an engine over the given feature provider.
func New(cfg Config, features market.FeatureProvider, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, features: features, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the walk-forward loop over the price table. Per-date failures
// are recorded as skips while the portfolio carries its previous weights;
// cancellation returns the partial result with StatusAborted. The only error
// returns are invalid configuration or an unschedulable input.
func (e *Engine) Run(ctx context.Context, prices *market.PriceTable) (*Result, error) {
	if err := e.cfg.validate(); err != nil {
		return nil, err
	}
	schedule, err := market.Schedule(prices, e.cfg.Frequency, e.cfg.RiskMonths)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:     uuid.NewString(),
		Status:    StatusOK,
		StartedAt: time.Now().UTC(),
	}
	if len(schedule) == 0 {
		e.log.Warn().
			Time("earliest", prices.Earliest()).
			Time("latest", prices.Latest()).
			Int("risk_months", e.cfg.RiskMonths).
			Msg("price history too short for a single rebalance")
		result.Status = StatusEmpty
		result.FinishedAt = time.Now().UTC()
		return result, nil
	}

	e.log.Info().
		Str("run_id", result.RunID).
		Str("frequency", string(e.cfg.Frequency)).
		Str("family", string(e.cfg.Model.Family)).
		Int("rebalances", len(schedule)).
		Msg("starting walk-forward run")

	value := e.cfg.InitialValue
	weights := map[string]float64{}
	lastMark := schedule[0]

	// Anchor the curve at initial capital on the trading day before the first
	// rebalance so curve dates stay strictly increasing.
	start := schedule[0]
	if idx := prices.SearchDate(schedule[0]); idx > 0 {
		start = prices.Dates[idx-1]
	}
	result.EquityCurve = append(result.EquityCurve, EquityPoint{Date: start, Value: value})

	var lastImportance []alpha.ImportanceEntry
	aborted := false

	for i, date := range schedule {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		// Mark the portfolio to this date with whatever it currently holds.
		value *= 1 + segmentReturn(prices, weights, lastMark, date)
		lastMark = date

		event, importance, skip := e.rebalance(prices, date, weights, value)
		if skip != nil {
			result.Skipped = append(result.Skipped, *skip)
			e.metrics.RebalanceSkipped(skip.Stage)
			e.log.Debug().
				Time("date", date).
				Str("stage", skip.Stage).
				Str("reason", skip.Reason).
				Msg("rebalance skipped, carrying weights forward")
		} else {
			value = event.PortfolioValue
			weights = event.Weights
			lastImportance = importance
			result.Events = append(result.Events, *event)
			result.EquityCurve = append(result.EquityCurve, EquityPoint{Date: date, Value: value})
			e.metrics.RebalanceProcessed()
			e.log.Debug().
				Time("date", date).
				Int("holdings", len(event.Weights)).
				Float64("turnover", event.Turnover).
				Float64("value", value).
				Msg("rebalance applied")
		}
		e.metrics.SetProgress(i+1, len(schedule))
	}

	if aborted {
		result.Status = StatusAborted
	} else if len(result.Events) == 0 {
		// Every scheduled date was skipped; a structured empty result, never
		// an error from inside the loop.
		result.Status = StatusEmpty
	}
	result.Summary = computeSummary(result, e.cfg)
	result.Diagnostics = computeDiagnostics(result.Events, lastImportance)

	if e.cfg.Benchmarks && len(result.EquityCurve) > 1 {
		result.Benchmarks = runBenchmarks(prices, result.EquityCurve, e.cfg)
		for i := range result.Benchmarks {
			fillRelative(&result.Benchmarks[i], result.Summary, result.EquityCurve,
				e.cfg.Frequency.PeriodsPerYear())
		}
	}
	if !aborted {
		// Best effort; a short tail never invalidates the run.
		if fwd, err := e.forwardPortfolio(prices); err == nil {
			result.Forward = fwd
		} else {
			e.log.Debug().Err(err).Msg("forward portfolio unavailable")
		}
	}

	result.FinishedAt = time.Now().UTC()
	e.log.Info().
		Str("run_id", result.RunID).
		Str("status", string(result.Status)).
		Int("applied", len(result.Events)).
		Int("skipped", len(result.Skipped)).
		Float64("final_value", result.Summary.FinalValue).
		Msg("run finished")
	return result, nil
}

// rebalance attempts one rebalance at date. It returns either the applied
// event or the skip record explaining which stage failed.
func (e *Engine) rebalance(
	prices *market.PriceTable,
	date time.Time,
	prior map[string]float64,
	value float64,
) (*RebalanceEvent, []alpha.ImportanceEntry, *SkippedEvent) {
	skipf := func(stage, format string, args ...any) *SkippedEvent {
		return &SkippedEvent{Date: date, Stage: stage, Reason: fmt.Sprintf(format, args...)}
	}

	alphaWin, riskWin, err := market.WindowsFor(date, e.cfg.AlphaMonths, e.cfg.RiskMonths, prices.Earliest())
	if err != nil {
		return nil, nil, skipf(StageWindowing, "%v", err)
	}

	riskSlice := prices.Slice(riskWin)
	universe := e.eligibleUniverse(riskSlice)
	if len(universe) < e.cfg.MinInstruments {
		return nil, nil, skipf(StageUniverse, "%d eligible instruments, need %d", len(universe), e.cfg.MinInstruments)
	}

	start := time.Now()
	features, err := e.features.Features(prices, alphaWin)
	if err != nil {
		return nil, nil, skipf(StageForecasting, "features: %v", err)
	}
	features = filterFeatures(features, universe)

	set, err := alpha.PrepareTrainingSamples(features, prices, date,
		e.cfg.HorizonMonths, e.cfg.MinTrainDates, e.cfg.MinTrainSamples)
	if err != nil {
		return nil, nil, skipf(StageForecasting, "samples: %v", err)
	}

	forecaster, err := alpha.NewForecaster(e.cfg.Model)
	if err != nil {
		return nil, nil, skipf(StageForecasting, "model: %v", err)
	}

	var ic *float64
	if e.cfg.CVFolds > 0 {
		if report, cvErr := forecaster.CrossValidate(set, e.cfg.CVFolds); cvErr == nil {
			v := report.MeanIC
			ic = &v
		}
	}

	if err := forecaster.Fit(set); err != nil {
		return nil, nil, skipf(StageForecasting, "fit: %v", err)
	}

	latest := features.At(features.LatestDate())
	for sym := range latest {
		if !universe[sym] {
			delete(latest, sym)
		}
	}
	if len(latest) < e.cfg.MinInstruments {
		return nil, nil, skipf(StageForecasting, "%d instruments with current features, need %d",
			len(latest), e.cfg.MinInstruments)
	}
	forecast, err := forecaster.Predict(latest)
	if err != nil {
		return nil, nil, skipf(StageForecasting, "predict: %v", err)
	}
	shiftForecast(forecast)
	e.metrics.ObserveStage(StageForecasting, time.Since(start).Seconds())

	symbols := make([]string, 0, len(forecast))
	for sym := range forecast {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	start = time.Now()
	cov, err := risk.Estimate(riskSlice, symbols)
	if err != nil {
		return nil, nil, skipf(StageRisk, "%v", err)
	}
	e.metrics.ObserveStage(StageRisk, time.Since(start).Seconds())

	mu := make([]float64, len(symbols))
	for i, sym := range symbols {
		mu[i] = forecast[sym]
	}

	start = time.Now()
	degenerate := false
	opt, err := optimize.MaxSharpe(symbols, mu, cov.Matrix, e.cfg.Optimizer)
	if errors.Is(err, optimize.ErrInfeasible) {
		// Constraints cannot hold a fully invested book; go flat rather than
		// silently truncating the universe.
		opt = &optimize.Result{Weights: map[string]float64{}}
		degenerate = true
	} else if err != nil {
		return nil, nil, skipf(StageOptimizing, "%v", err)
	}
	e.metrics.ObserveStage(StageOptimizing, time.Since(start).Seconds())

	next := opt.Weights
	if !degenerate {
		next = renormalize(opt.Weights, e.cfg.Optimizer.MaxWeight)
		if len(next) == 0 {
			return nil, nil, skipf(StageApplying, "optimizer produced an empty allocation")
		}
	}

	turnover := Turnover(prior, next)
	cost := TransactionCost(turnover, value, e.cfg.CostBps)

	event := &RebalanceEvent{
		Date:            date,
		Weights:         next,
		PriorWeights:    prior,
		Turnover:        turnover,
		TransactionCost: cost,
		ExAnteReturn:    opt.ExpectedReturn,
		ExAnteVol:       opt.Volatility,
		ExAnteSharpe:    opt.Sharpe,
		IC:              ic,
		PortfolioValue:  value - cost,
		Degenerate:      degenerate,
	}
	return event, forecaster.Importance(), nil
}

// eligibleUniverse returns the symbols with enough coverage inside the risk
// window to support estimation.
func (e *Engine) eligibleUniverse(riskSlice *market.PriceTable) map[string]bool {
	universe := make(map[string]bool)
	for _, sym := range riskSlice.Symbols {
		if riskSlice.Valid(sym, e.cfg.MinValidFraction) {
			universe[sym] = true
		}
	}
	return universe
}

// forwardPortfolio fits on everything observed and recommends weights for
// the period after the last trading date.
func (e *Engine) forwardPortfolio(prices *market.PriceTable) (*ForwardPortfolio, error) {
	asOf := prices.Latest()
	cutoff := asOf.AddDate(0, 0, 1) // include the final date in training

	alphaWin, riskWin, err := market.WindowsFor(cutoff, e.cfg.AlphaMonths, e.cfg.RiskMonths, prices.Earliest())
	if err != nil {
		return nil, err
	}
	riskSlice := prices.Slice(riskWin)
	universe := e.eligibleUniverse(riskSlice)
	if len(universe) < e.cfg.MinInstruments {
		return nil, fmt.Errorf("%d eligible instruments, need %d", len(universe), e.cfg.MinInstruments)
	}

	features, err := e.features.Features(prices, alphaWin)
	if err != nil {
		return nil, err
	}
	features = filterFeatures(features, universe)

	set, err := alpha.PrepareTrainingSamples(features, prices, cutoff,
		e.cfg.HorizonMonths, e.cfg.MinTrainDates, e.cfg.MinTrainSamples)
	if err != nil {
		return nil, err
	}
	forecaster, err := alpha.NewForecaster(e.cfg.Model)
	if err != nil {
		return nil, err
	}
	if err := forecaster.Fit(set); err != nil {
		return nil, err
	}

	latest := features.At(features.LatestDate())
	if len(latest) < e.cfg.MinInstruments {
		return nil, fmt.Errorf("%d instruments with current features, need %d", len(latest), e.cfg.MinInstruments)
	}
	forecast, err := forecaster.Predict(latest)
	if err != nil {
		return nil, err
	}
	shiftForecast(forecast)

	symbols := make([]string, 0, len(forecast))
	for sym := range forecast {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	cov, err := risk.Estimate(riskSlice, symbols)
	if err != nil {
		return nil, err
	}
	mu := make([]float64, len(symbols))
	for i, sym := range symbols {
		mu[i] = forecast[sym]
	}
	opt, err := optimize.MaxSharpe(symbols, mu, cov.Matrix, e.cfg.Optimizer)
	if err != nil {
		return nil, err
	}

	return &ForwardPortfolio{
		AsOf:           asOf,
		ValidUntil:     asOf.AddDate(0, e.cfg.HorizonMonths, 0),
		Weights:        renormalize(opt.Weights, e.cfg.Optimizer.MaxWeight),
		ExpectedReturn: opt.ExpectedReturn,
		Volatility:     opt.Volatility,
		Sharpe:         opt.Sharpe,
		Importance:     forecaster.Importance(),
	}, nil
}

// shiftForecast lifts an all-or-partially-negative forecast cross-section so
// its minimum sits at forecastFloor, preserving the ranking.
func shiftForecast(f alpha.Forecast) {
	min := math.Inf(1)
	for _, v := range f {
		if v < min {
			min = v
		}
	}
	if min >= 0 {
		return
	}
	shift := forecastFloor - min
	for sym, v := range f {
		f[sym] = v + shift
	}
}

// renormalize scales cleaned weights back to a fully invested portfolio
// without letting any position cross maxWeight: excess above the cap is
// redistributed to the uncapped names, proportionally, until none remains.
func renormalize(w map[string]float64, maxWeight float64) map[string]float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		return nil
	}
	out := make(map[string]float64, len(w))
	for sym, v := range w {
		out[sym] = v / sum
	}
	if maxWeight <= 0 {
		return out
	}
	for range out {
		var excess, open float64
		for _, v := range out {
			if v >= maxWeight {
				excess += v - maxWeight
			} else {
				open += v
			}
		}
		if excess <= 0 || open <= 0 {
			break
		}
		for sym, v := range out {
			if v >= maxWeight {
				out[sym] = maxWeight
			} else {
				out[sym] = v + v/open*excess
			}
		}
	}
	return out
}

// filterFeatures drops rows for instruments outside the eligible universe.
func filterFeatures(f *market.FeatureTable, universe map[string]bool) *market.FeatureTable {
	out := &market.FeatureTable{Names: f.Names}
	for _, row := range f.Rows {
		if universe[row.Symbol] {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// segmentReturn is the buy-and-hold return of the held weights between two
// dates, using the last valid price at each endpoint. Instruments without a
// usable price over the segment are excluded and the remaining weights are
// renormalized proportionally.
func segmentReturn(prices *market.PriceTable, weights map[string]float64, from, to time.Time) float64 {
	if len(weights) == 0 || !to.After(from) {
		return 0
	}
	i := prices.SearchDate(from)
	j := prices.SearchDate(to)
	if j >= len(prices.Dates) {
		j = len(prices.Dates) - 1
	}
	if i >= j {
		return 0
	}
	var r, held float64
	for sym, w := range weights {
		p0 := lastValidPrice(prices, sym, i)
		p1 := lastValidPrice(prices, sym, j)
		if !math.IsNaN(p0) && !math.IsNaN(p1) && p0 > 0 {
			r += w * (p1/p0 - 1)
			held += w
		}
	}
	if held == 0 {
		return 0
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	return r * total / held
}

// lastValidPrice walks backwards from index i to the most recent non-NaN
// observation.
func lastValidPrice(prices *market.PriceTable, symbol string, i int) float64 {
	for ; i >= 0; i-- {
		if p := prices.Price(symbol, i); !math.IsNaN(p) {
			return p
		}
	}
	return math.NaN()
}
