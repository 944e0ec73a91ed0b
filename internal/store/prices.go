// Package store loads price history from Postgres and persists run
// summaries. The schema is one row per (symbol, trade date) with the
// adjusted close; the loader pivots rows into an aligned price table with
// NaN marking dates a symbol did not trade.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"quantbt/internal/backtest"
	"quantbt/internal/market"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	symbol     TEXT        NOT NULL,
	trade_date DATE        NOT NULL,
	adj_close  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (symbol, trade_date)
);

CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT        PRIMARY KEY,
	status      TEXT        NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	summary     JSONB       NOT NULL
);
`

// Store wraps a Postgres connection pool.
type Store struct {
	db  *sqlx.DB
	log zerolog.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

type priceRow struct {
	Symbol    string    `db:"symbol"`
	TradeDate time.Time `db:"trade_date"`
	AdjClose  float64   `db:"adj_close"`
}

// LoadPrices fetches adjusted closes for the symbols over [start, end] and
// pivots them into an aligned price table. The date axis is the union of all
// trading dates observed for the requested symbols.
func (s *Store) LoadPrices(ctx context.Context, symbols []string, start, end time.Time) (*market.PriceTable, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols requested")
	}

	const q = `
		SELECT symbol, trade_date, adj_close
		FROM daily_prices
		WHERE symbol = ANY($1) AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date, symbol`

	var rows []priceRow
	if err := s.db.SelectContext(ctx, &rows, q, pq.Array(symbols), start, end); err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no price rows for %d symbols in [%s, %s]",
			len(symbols), start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	s.log.Debug().Int("rows", len(rows)).Int("symbols", len(symbols)).Msg("loaded price history")
	return pivotRows(rows)
}

// pivotRows aligns (symbol, date, close) rows onto a shared date axis.
func pivotRows(rows []priceRow) (*market.PriceTable, error) {
	var dates []time.Time
	index := make(map[time.Time]int)
	bySymbol := make(map[string]map[time.Time]float64)

	for _, r := range rows {
		d := r.TradeDate.UTC().Truncate(24 * time.Hour)
		if _, ok := index[d]; !ok {
			index[d] = len(dates)
			dates = append(dates, d)
		}
		m := bySymbol[r.Symbol]
		if m == nil {
			m = make(map[time.Time]float64)
			bySymbol[r.Symbol] = m
		}
		m[d] = r.AdjClose
	}

	prices := make(map[string][]float64, len(bySymbol))
	for sym, obs := range bySymbol {
		series := make([]float64, len(dates))
		for i, d := range dates {
			if p, ok := obs[d]; ok {
				series[i] = p
			} else {
				series[i] = math.NaN()
			}
		}
		prices[sym] = series
	}
	return market.NewPriceTable(dates, prices)
}

// SaveRun persists a finished run's identity and summary.
func (s *Store) SaveRun(ctx context.Context, result *backtest.Result) error {
	summary, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	const q = `
		INSERT INTO runs (run_id, status, started_at, finished_at, summary)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, result.RunID, string(result.Status),
		result.StartedAt, result.FinishedAt, string(summary)); err != nil {
		return fmt.Errorf("save run %s: %w", result.RunID, err)
	}
	return nil
}

// LoadRunStatus returns the stored status for a run id.
func (s *Store) LoadRunStatus(ctx context.Context, runID string) (string, error) {
	var status string
	err := s.db.GetContext(ctx, &status, `SELECT status FROM runs WHERE run_id = $1`, runID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return "", fmt.Errorf("load run %s: %w", runID, err)
	}
	return status, nil
}
