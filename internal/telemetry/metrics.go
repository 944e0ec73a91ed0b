// Package telemetry exposes Prometheus instrumentation for the simulation
// loop and the HTTP surface.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the engine and the API server feed. All
// methods are nil-safe so callers can run uninstrumented.
type Metrics struct {
	rebalances    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	progress      prometheus.Gauge
	httpRequests  *prometheus.CounterVec
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		rebalances: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantbt",
			Name:      "rebalance_events_total",
			Help:      "Rebalance events by outcome and skip reason.",
		}, []string{"result", "reason"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quantbt",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each simulation stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"stage"}),
		progress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "quantbt",
			Name:      "run_progress_ratio",
			Help:      "Fraction of scheduled rebalance dates processed in the active run.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantbt",
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// RebalanceProcessed counts one successfully applied rebalance.
func (m *Metrics) RebalanceProcessed() {
	if m == nil {
		return
	}
	m.rebalances.WithLabelValues("applied", "").Inc()
}

// RebalanceSkipped counts one skipped rebalance with the stage that failed.
func (m *Metrics) RebalanceSkipped(stage string) {
	if m == nil {
		return
	}
	m.rebalances.WithLabelValues("skipped", stage).Inc()
}

// ObserveStage records wall time for a stage.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// SetProgress updates the run progress gauge, done/total in [0, 1].
func (m *Metrics) SetProgress(done, total int) {
	if m == nil || total == 0 {
		return
	}
	m.progress.Set(float64(done) / float64(total))
}

// HTTPRequest counts one API request.
func (m *Metrics) HTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}
