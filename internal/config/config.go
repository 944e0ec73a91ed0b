// Package config loads and validates the runtime configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quantbt/internal/alpha"
	"quantbt/internal/backtest"
	"quantbt/internal/market"
	"quantbt/internal/optimize"
)

// Config is the full runtime configuration.
type Config struct {
	Data      Data      `yaml:"data"`
	Strategy  Strategy  `yaml:"strategy"`
	Costs     Costs     `yaml:"costs"`
	Optimizer Optimizer `yaml:"optimizer"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

// Data selects the price source: a Postgres DSN, or the synthetic generator
// when the DSN is empty.
type Data struct {
	DSN       string    `yaml:"dsn"`
	Symbols   []string  `yaml:"symbols"`
	Index     string    `yaml:"index"`
	Start     string    `yaml:"start"`
	End       string    `yaml:"end"`
	Synthetic Synthetic `yaml:"synthetic"`
}

// Synthetic tunes the fallback generator.
type Synthetic struct {
	Days int   `yaml:"days"`
	Seed int64 `yaml:"seed"`
}

// Strategy configures the walk-forward loop and the alpha model.
type Strategy struct {
	Family           string            `yaml:"family"`
	Frequency        string            `yaml:"frequency"`
	AlphaMonths      int               `yaml:"alpha_months"`
	RiskMonths       int               `yaml:"risk_months"`
	HorizonMonths    int               `yaml:"horizon_months"`
	CVFolds          int               `yaml:"cv_folds"`
	MinInstruments   int               `yaml:"min_instruments"`
	MinValidFraction float64           `yaml:"min_valid_fraction"`
	Model            alpha.ModelConfig `yaml:"model"`
	Benchmarks       bool              `yaml:"benchmarks"`
}

// Costs configures transaction costs and the starting capital.
type Costs struct {
	Bps          float64 `yaml:"bps"`
	InitialValue float64 `yaml:"initial_value"`
}

// Optimizer bounds the allocation.
type Optimizer struct {
	MinWeight    float64 `yaml:"min_weight"`
	MaxWeight    float64 `yaml:"max_weight"`
	RiskFreeRate float64 `yaml:"risk_free_rate"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `yaml:"addr"`
}

// Logging configures zerolog output.
type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is given: a monthly
// ridge strategy over synthetic prices.
func Default() Config {
	return Config{
		Data: Data{
			Symbols:   []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF", "GGG", "HHH"},
			Synthetic: Synthetic{Days: 1000, Seed: 42},
		},
		Strategy: Strategy{
			Family:           string(alpha.FamilyRidge),
			Frequency:        string(market.Monthly),
			AlphaMonths:      12,
			RiskMonths:       24,
			HorizonMonths:    1,
			CVFolds:          3,
			MinInstruments:   5,
			MinValidFraction: 0.7,
			Model:            alpha.DefaultModelConfig(alpha.FamilyRidge),
			Benchmarks:       true,
		},
		Costs:     Costs{Bps: 15, InitialValue: 100000},
		Optimizer: Optimizer{MinWeight: 0, MaxWeight: 0.17, RiskFreeRate: 0.05},
		Server:    Server{Addr: ":8080"},
		Logging:   Logging{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency beyond what the engine re-checks.
func (c Config) Validate() error {
	if !alpha.Family(c.Strategy.Family).Valid() {
		return fmt.Errorf("unknown model family %q", c.Strategy.Family)
	}
	if !market.Frequency(c.Strategy.Frequency).Valid() {
		return fmt.Errorf("unsupported rebalance frequency %q", c.Strategy.Frequency)
	}
	if c.Strategy.AlphaMonths <= 0 || c.Strategy.RiskMonths < c.Strategy.AlphaMonths {
		return fmt.Errorf("risk lookback (%dm) must contain the alpha lookback (%dm)",
			c.Strategy.RiskMonths, c.Strategy.AlphaMonths)
	}
	if c.Costs.InitialValue <= 0 {
		return fmt.Errorf("initial value must be positive, got %f", c.Costs.InitialValue)
	}
	if c.Optimizer.MaxWeight <= c.Optimizer.MinWeight {
		return fmt.Errorf("max weight %f must exceed min weight %f",
			c.Optimizer.MaxWeight, c.Optimizer.MinWeight)
	}
	if c.Data.DSN != "" {
		if _, _, err := c.DateRange(); err != nil {
			return err
		}
	}
	return nil
}

// DateRange parses the configured start/end dates.
func (c Config) DateRange() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", c.Data.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse data.start: %w", err)
	}
	end, err := time.Parse("2006-01-02", c.Data.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse data.end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("data.end %s must be after data.start %s", c.Data.End, c.Data.Start)
	}
	return start, end, nil
}

// Engine assembles the backtest configuration.
func (c Config) Engine() backtest.Config {
	model := c.Strategy.Model
	model.Family = alpha.Family(c.Strategy.Family)

	opt := optimize.DefaultConfig()
	opt.MinWeight = c.Optimizer.MinWeight
	opt.MaxWeight = c.Optimizer.MaxWeight
	opt.RiskFreeRate = c.Optimizer.RiskFreeRate

	return backtest.Config{
		Frequency:        market.Frequency(c.Strategy.Frequency),
		AlphaMonths:      c.Strategy.AlphaMonths,
		RiskMonths:       c.Strategy.RiskMonths,
		HorizonMonths:    c.Strategy.HorizonMonths,
		InitialValue:     c.Costs.InitialValue,
		CostBps:          c.Costs.Bps,
		Model:            model,
		Optimizer:        opt,
		MinValidFraction: c.Strategy.MinValidFraction,
		MinInstruments:   c.Strategy.MinInstruments,
		CVFolds:          c.Strategy.CVFolds,
		MinTrainDates:    6,
		MinTrainSamples:  30,
		Benchmarks:       c.Strategy.Benchmarks,
	}
}
