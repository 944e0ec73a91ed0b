// Package api exposes the simulation engine over HTTP: health, index
// constituents, and a synchronous backtest endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"quantbt/internal/alpha"
	"quantbt/internal/backtest"
	"quantbt/internal/market"
	"quantbt/internal/telemetry"
)

// PriceSource loads the price history a backtest runs on. The Postgres store
// implements it; the synthetic generator backs it when no store is wired.
type PriceSource interface {
	LoadPrices(ctx context.Context, symbols []string, start, end time.Time) (*market.PriceTable, error)
}

// SyntheticSource generates deterministic prices on demand.
type SyntheticSource struct {
	Days int
	Seed int64
}

// LoadPrices satisfies PriceSource; start/end are ignored beyond the origin.
func (s SyntheticSource) LoadPrices(_ context.Context, symbols []string, start, _ time.Time) (*market.PriceTable, error) {
	cfg := market.DefaultSyntheticConfig(symbols, start, s.Days)
	if s.Seed != 0 {
		cfg.Seed = s.Seed
	}
	return market.GenerateSynthetic(cfg)
}

// Server routes API requests to the engine.
type Server struct {
	router  *mux.Router
	base    backtest.Config
	source  PriceSource
	log     zerolog.Logger
	metrics *telemetry.Metrics
}

// NewServer wires the routes. base supplies defaults a request can override;
// registry may be nil to skip the /metrics endpoint.
func NewServer(base backtest.Config, source PriceSource, log zerolog.Logger, registry *prometheus.Registry) *Server {
	s := &Server{
		router: mux.NewRouter(),
		base:   base,
		source: source,
		log:    log,
	}
	if registry != nil {
		s.metrics = telemetry.New(registry)
		s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/tickers/{index}", s.handleTickers).Methods(http.MethodGet)
	s.router.HandleFunc("/api/backtest", s.handleBacktest).Methods(http.MethodPost)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	index := mux.Vars(r)["index"]
	symbols, ok := Tickers(index)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "unknown index %q, supported: %v", index, Indices())
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"index": index, "symbols": symbols})
}

// BacktestRequest is the POST /api/backtest body. Zero-valued fields fall
// back to the server's base configuration.
type BacktestRequest struct {
	Symbols      []string `json:"symbols"`
	Index        string   `json:"index"`
	Family       string   `json:"family"`
	Frequency    string   `json:"frequency"`
	AlphaMonths  int      `json:"alpha_months"`
	RiskMonths   int      `json:"risk_months"`
	CostBps      *float64 `json:"cost_bps"`
	InitialValue float64  `json:"initial_value"`
	MaxWeight    float64  `json:"max_weight"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	symbols := req.Symbols
	if len(symbols) == 0 && req.Index != "" {
		var ok bool
		if symbols, ok = Tickers(req.Index); !ok {
			s.respondError(w, r, http.StatusBadRequest, "unknown index %q", req.Index)
			return
		}
	}
	if len(symbols) == 0 {
		s.respondError(w, r, http.StatusBadRequest, "symbols or index is required")
		return
	}

	cfg := s.base
	if req.Family != "" {
		family := alpha.Family(req.Family)
		if !family.Valid() {
			s.respondError(w, r, http.StatusBadRequest, "unknown model family %q", req.Family)
			return
		}
		cfg.Model = alpha.DefaultModelConfig(family)
	}
	if req.Frequency != "" {
		cfg.Frequency = market.Frequency(req.Frequency)
	}
	if req.AlphaMonths > 0 {
		cfg.AlphaMonths = req.AlphaMonths
	}
	if req.RiskMonths > 0 {
		cfg.RiskMonths = req.RiskMonths
	}
	if req.CostBps != nil {
		cfg.CostBps = *req.CostBps
	}
	if req.InitialValue > 0 {
		cfg.InitialValue = req.InitialValue
	}
	if req.MaxWeight > 0 {
		cfg.Optimizer.MaxWeight = req.MaxWeight
	}

	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "%v", err)
		return
	}

	prices, err := s.source.LoadPrices(r.Context(), symbols, start, end)
	if err != nil {
		s.respondError(w, r, http.StatusBadGateway, "load prices: %v", err)
		return
	}

	engine := backtest.New(cfg, market.NewIndicatorProvider(),
		backtest.WithLogger(s.log), backtest.WithMetrics(s.metrics))
	result, err := engine.Run(r.Context(), prices)
	if err != nil {
		s.respondError(w, r, http.StatusUnprocessableEntity, "%v", err)
		return
	}

	s.log.Info().
		Str("run_id", result.RunID).
		Str("status", string(result.Status)).
		Int("events", len(result.Events)).
		Msg("backtest served")
	s.respond(w, r, http.StatusOK, result)
}

// parseRange applies a five-year default window ending today when dates are
// omitted.
func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(-5, 0, 0)
	var err error
	if startStr != "" {
		if start, err = time.Parse("2006-01-02", startStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if endStr != "" {
		if end, err = time.Parse("2006-01-02", endStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("encode response")
	}
	s.metrics.HTTPRequest(routeTemplate(r), strconv.Itoa(code))
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, code int, format string, args ...any) {
	s.log.Warn().Str("path", r.URL.Path).Int("code", code).Msgf(format, args...)
	s.respond(w, r, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
