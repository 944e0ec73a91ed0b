// Package backtest drives the walk-forward simulation: schedule the
// rebalance dates, fit a forecaster on strictly historical data at each one,
// estimate risk, optimize weights, charge costs, and compound the portfolio
// through to the next date. Per-date failures degrade to carried-forward
// weights; the run as a whole only fails on invalid input.
package backtest

import (
	"time"

	"quantbt/internal/alpha"
)

// Status classifies how a run ended.
type Status string

const (
	// StatusOK means the schedule was processed to the end.
	StatusOK Status = "ok"
	// StatusEmpty means the price history was too short to schedule a single
	// rebalance. The result is valid and empty, not an error.
	StatusEmpty Status = "empty"
	// StatusAborted means the context was cancelled mid-run. Everything
	// processed before the cancellation is retained.
	StatusAborted Status = "aborted"
)

// Stage names used in skip records, logs and metrics.
const (
	StageWindowing   = "windowing"
	StageUniverse    = "universe"
	StageForecasting = "forecasting"
	StageRisk        = "risk"
	StageOptimizing  = "optimizing"
	StageApplying    = "applying"
)

// RebalanceEvent records one applied rebalance.
type RebalanceEvent struct {
	Date            time.Time          `json:"date"`
	Weights         map[string]float64 `json:"weights"`
	PriorWeights    map[string]float64 `json:"prior_weights,omitempty"`
	Turnover        float64            `json:"turnover"`
	TransactionCost float64            `json:"transaction_cost"`
	ExAnteReturn    float64            `json:"ex_ante_return"`
	ExAnteVol       float64            `json:"ex_ante_volatility"`
	ExAnteSharpe    float64            `json:"ex_ante_sharpe"`
	IC              *float64           `json:"ic,omitempty"`
	PortfolioValue  float64            `json:"portfolio_value"`
	Degenerate      bool               `json:"degenerate,omitempty"`
}

// SkippedEvent records one rebalance date the engine could not act on. The
// portfolio keeps its previous weights across the gap.
type SkippedEvent struct {
	Date   time.Time `json:"date"`
	Stage  string    `json:"stage"`
	Reason string    `json:"reason"`
}

// EquityPoint is one observation on the equity curve. The curve always
// starts with the initial value and gains one point per applied rebalance.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Summary aggregates run-level performance.
type Summary struct {
	TotalReturn        float64 `json:"total_return"`
	AnnualizedReturn   float64 `json:"annualized_return"`
	AnnualizedVol      float64 `json:"annualized_volatility"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	DrawdownPeriods    int     `json:"max_drawdown_periods"`
	TotalCosts         float64 `json:"total_costs"`
	TotalCostsPct      float64 `json:"total_costs_pct"`
	AverageTurnover    float64 `json:"average_turnover"`
	RebalancesApplied  int     `json:"rebalances_applied"`
	RebalancesSkipped  int     `json:"rebalances_skipped"`
	FinalValue         float64 `json:"final_value"`
	PeriodsPerYear     float64 `json:"periods_per_year"`
	FirstRebalanceDate string  `json:"first_rebalance_date,omitempty"`
	LastRebalanceDate  string  `json:"last_rebalance_date,omitempty"`
}

// ICPoint is one per-rebalance Information Coefficient observation.
type ICPoint struct {
	Date time.Time `json:"date"`
	IC   float64   `json:"ic"`
}

// Diagnostics reports forecast quality over the whole run. ICStability is
// the standard deviation of the per-rebalance ICs; ICHistory lists them in
// rebalance order.
type Diagnostics struct {
	MeanIC            float64                 `json:"mean_ic"`
	MedianIC          float64                 `json:"median_ic"`
	MinIC             float64                 `json:"min_ic"`
	MaxIC             float64                 `json:"max_ic"`
	ICStability       float64                 `json:"ic_stability"`
	PositiveICRatio   float64                 `json:"positive_ic_ratio"`
	Periods           int                     `json:"periods"`
	ICHistory         []ICPoint               `json:"ic_history,omitempty"`
	ForecastQuality   string                  `json:"forecast_quality"`
	FeatureImportance []alpha.ImportanceEntry `json:"feature_importance,omitempty"`
}

// Benchmark is a reference strategy compounded over the same dates, with
// metrics of the main strategy relative to it.
type Benchmark struct {
	Name             string        `json:"name"`
	Curve            []EquityPoint `json:"curve"`
	TotalReturn      float64       `json:"total_return"`
	AnnualizedReturn float64       `json:"annualized_return"`
	SharpeRatio      float64       `json:"sharpe_ratio"`
	ExcessReturn     float64       `json:"excess_return"`
	TrackingError    float64       `json:"tracking_error"`
	InformationRatio float64       `json:"information_ratio"`
	SharpeDiff       float64       `json:"sharpe_diff"`
}

// ForwardPortfolio is the allocation recommended for the period after the
// last observed date, fitted on all available history.
type ForwardPortfolio struct {
	AsOf           time.Time               `json:"as_of"`
	ValidUntil     time.Time               `json:"valid_until"`
	Weights        map[string]float64      `json:"weights"`
	ExpectedReturn float64                 `json:"expected_return"`
	Volatility     float64                 `json:"volatility"`
	Sharpe         float64                 `json:"sharpe"`
	Importance     []alpha.ImportanceEntry `json:"importance,omitempty"`
}

// Result is the full output of one simulation run.
type Result struct {
	RunID       string            `json:"run_id"`
	Status      Status            `json:"status"`
	Events      []RebalanceEvent  `json:"events"`
	Skipped     []SkippedEvent    `json:"skipped,omitempty"`
	EquityCurve []EquityPoint     `json:"equity_curve"`
	Summary     Summary           `json:"summary"`
	Diagnostics Diagnostics       `json:"diagnostics"`
	Benchmarks  []Benchmark       `json:"benchmarks,omitempty"`
	Forward     *ForwardPortfolio `json:"forward_portfolio,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}
