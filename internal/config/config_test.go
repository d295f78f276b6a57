package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.InDelta(t, 0.005, cfg.Engine.RateTolerancePct, 1e-9)
	assert.InDelta(t, 0.05, cfg.Engine.UsageTolerancePct, 1e-9)
	assert.Equal(t, 1, cfg.Engine.GapDays)
	assert.InDelta(t, 3.0, cfg.Engine.ConfidenceSaturation, 1e-9)
	assert.Equal(t, 8, cfg.Engine.Workers)

	assert.InDelta(t, 10000.0, cfg.Priority.Critical, 1e-9)
	assert.InDelta(t, 1000.0, cfg.Priority.High, 1e-9)
	assert.InDelta(t, 100.0, cfg.Priority.Medium, 1e-9)

	assert.Equal(t, "USD", cfg.Currency.Canonical)
	assert.InDelta(t, 0.92, cfg.Currency.Rates["EUR"], 1e-9)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "revguard.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestDefault_UnitMappings(t *testing.T) {
	cfg := Default()

	tb, ok := cfg.Units["TB"]
	require.True(t, ok)
	assert.Equal(t, "GB", tb.Canonical)
	assert.InDelta(t, 1024.0, tb.Factor, 1e-9)

	mins, ok := cfg.Units["minutes"]
	require.True(t, ok)
	assert.Equal(t, "hours", mins.Canonical)
	assert.InDelta(t, 1.0/60.0, mins.Factor, 1e-9)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("REVGUARD_SERVER_PORT", "9090")
	t.Setenv("REVGUARD_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "loud", Format: "json"}))
}
