package market

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// SyntheticConfig controls the deterministic price generator used by tests
// and by demo runs when no price store is configured. Each instrument's
// monthly drift follows an AR(1) process, so trailing returns carry real
// signal about forward returns and a linear alpha model has something to
// find.
type SyntheticConfig struct {
	Symbols     []string
	Start       time.Time
	Days        int     // number of trading days to generate
	Seed        int64   // generator seed; identical seeds give identical tables
	Persistence float64 // AR(1) coefficient of the monthly drift
	DriftVol    float64 // monthly drift innovation volatility
	DailyVol    float64 // idiosyncratic daily volatility
}

// DefaultSyntheticConfig returns a generator setup with strong, learnable
// momentum structure.
func DefaultSyntheticConfig(symbols []string, start time.Time, days int) SyntheticConfig {
	return SyntheticConfig{
		Symbols:     symbols,
		Start:       start,
		Days:        days,
		Seed:        42,
		Persistence: 0.85,
		DriftVol:    0.035,
		DailyVol:    0.004,
	}
}

// GenerateSynthetic builds a price table of weekday trading dates starting
// at cfg.Start.
func GenerateSynthetic(cfg SyntheticConfig) (*PriceTable, error) {
	if len(cfg.Symbols) == 0 || cfg.Days < 2 {
		return nil, fmt.Errorf("synthetic generator needs symbols and at least 2 days")
	}

	dates := make([]time.Time, 0, cfg.Days)
	d := cfg.Start
	for len(dates) < cfg.Days {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, 1)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	prices := make(map[string][]float64, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		series := make([]float64, cfg.Days)
		price := 100.0 * (1 + rng.Float64()) // stagger starting levels
		drift := cfg.DriftVol * rng.NormFloat64()
		for i := 0; i < cfg.Days; i++ {
			if i > 0 && i%tradingDaysPerMonth == 0 {
				drift = cfg.Persistence*drift + cfg.DriftVol*rng.NormFloat64()
			}
			logRet := drift/tradingDaysPerMonth + cfg.DailyVol*rng.NormFloat64()
			price *= math.Exp(logRet)
			series[i] = price
		}
		prices[sym] = series
	}

	return NewPriceTable(dates, prices)
}
