// quantbt runs walk-forward portfolio backtests from the command line or
// serves them over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quantbt/internal/api"
	"quantbt/internal/backtest"
	"quantbt/internal/config"
	"quantbt/internal/market"
	"quantbt/internal/store"
)

var (
	flagConfig string
	flagLevel  string
	flagPretty bool
)

func main() {
	root := &cobra.Command{
		Use:           "quantbt",
		Short:         "Predictive walk-forward portfolio backtesting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config")
	root.PersistentFlags().StringVar(&flagLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flagPretty, "pretty", false, "human-readable console logging")

	root.AddCommand(newBacktestCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level := cfg.Logging.Level
	if flagLevel != "" {
		level = flagLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if flagPretty || cfg.Logging.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Logger()
}

// loadPrices resolves the configured price source: Postgres when a DSN is
// set, the deterministic synthetic generator otherwise.
func loadPrices(ctx context.Context, cfg config.Config, log zerolog.Logger) (*market.PriceTable, *store.Store, error) {
	symbols := cfg.Data.Symbols
	if len(symbols) == 0 && cfg.Data.Index != "" {
		var ok bool
		if symbols, ok = api.Tickers(cfg.Data.Index); !ok {
			return nil, nil, fmt.Errorf("unknown index %q", cfg.Data.Index)
		}
	}
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("data.symbols or data.index is required")
	}

	if cfg.Data.DSN == "" {
		days := cfg.Data.Synthetic.Days
		if days <= 0 {
			days = 1000
		}
		gen := market.DefaultSyntheticConfig(symbols,
			time.Now().UTC().AddDate(0, 0, -days*7/5), days)
		if cfg.Data.Synthetic.Seed != 0 {
			gen.Seed = cfg.Data.Synthetic.Seed
		}
		log.Info().Int("days", days).Int("symbols", len(symbols)).Msg("using synthetic price history")
		table, err := market.GenerateSynthetic(gen)
		return table, nil, err
	}

	st, err := store.Open(cfg.Data.DSN, log)
	if err != nil {
		return nil, nil, err
	}
	start, end, err := cfg.DateRange()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	table, err := st.LoadPrices(ctx, symbols, start, end)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return table, st, nil
}

func newBacktestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backtest",
		Short: "Run one walk-forward backtest and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			prices, st, err := loadPrices(ctx, cfg, log)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			engine := backtest.New(cfg.Engine(), market.NewIndicatorProvider(), backtest.WithLogger(log))
			result, err := engine.Run(ctx, prices)
			if err != nil {
				return err
			}
			if st != nil {
				if err := st.SaveRun(ctx, result); err != nil {
					log.Warn().Err(err).Msg("run not persisted")
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve backtests over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			if addr == "" {
				addr = cfg.Server.Addr
			}

			var source api.PriceSource
			if cfg.Data.DSN != "" {
				st, err := store.Open(cfg.Data.DSN, log)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.EnsureSchema(cmd.Context()); err != nil {
					return err
				}
				source = st
			} else {
				days := cfg.Data.Synthetic.Days
				if days <= 0 {
					days = 1000
				}
				source = api.SyntheticSource{Days: days, Seed: cfg.Data.Synthetic.Seed}
			}

			registry := prometheus.NewRegistry()
			handler := api.NewServer(cfg.Engine(), source, log, registry)
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("api listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				log.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
