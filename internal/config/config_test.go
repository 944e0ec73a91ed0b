package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/alpha"
	"quantbt/internal/market"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantbt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
strategy:
  family: elastic_net
  frequency: quarterly
  risk_months: 36
costs:
  bps: 25
optimizer:
  max_weight: 0.25
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "elastic_net", cfg.Strategy.Family)
	assert.Equal(t, "quarterly", cfg.Strategy.Frequency)
	assert.Equal(t, 36, cfg.Strategy.RiskMonths)
	assert.Equal(t, 12, cfg.Strategy.AlphaMonths, "untouched fields keep defaults")
	assert.Equal(t, 25.0, cfg.Costs.Bps)
	assert.Equal(t, 0.25, cfg.Optimizer.MaxWeight)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "strategy:\n  lookback: 12\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_CrossFieldRules(t *testing.T) {
	cfg := Default()
	cfg.Strategy.Family = "kernel_svm"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Strategy.AlphaMonths = 30 // outside the 24-month risk lookback
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Optimizer.MaxWeight = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Data.DSN = "postgres://localhost/quantbt"
	cfg.Data.Start = "2020-01-01"
	cfg.Data.End = "2019-01-01"
	require.Error(t, cfg.Validate(), "end before start must be rejected when a store is configured")
}

func TestEngine_AssemblesBacktestConfig(t *testing.T) {
	cfg := Default()
	cfg.Strategy.Family = string(alpha.FamilyRandomForest)
	cfg.Optimizer.MaxWeight = 0.3

	engine := cfg.Engine()
	assert.Equal(t, market.Monthly, engine.Frequency)
	assert.Equal(t, alpha.FamilyRandomForest, engine.Model.Family)
	assert.Equal(t, 0.3, engine.Optimizer.MaxWeight)
	assert.Equal(t, 100000.0, engine.InitialValue)
	require.NoError(t, cfg.Validate())
}
