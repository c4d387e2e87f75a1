package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMarketConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadMarketConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Intervals["crypto"])
	assert.Equal(t, time.Hour, cfg.Intervals["tradingview"])
	assert.Equal(t, 15*time.Second, cfg.DefaultSymbolDelay)
	assert.Equal(t, "data/tradingview_indices.json", cfg.TradingViewSnapshotPath)
	require.NoError(t, cfg.Validate())
}

func TestLoadMarketConfigOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.yaml")
	content := `
intervals:
  crypto: 3m
stale_after:
  indices: 20m
symbol_delays:
  finnhub: 1s
api_keys:
  finnhub: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadMarketConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Minute, cfg.Intervals["crypto"])
	// keys absent from the file keep their defaults
	assert.Equal(t, 5*time.Minute, cfg.Intervals["indices"])
	assert.Equal(t, 20*time.Minute, cfg.StaleAfter["indices"])
	assert.Equal(t, time.Second, cfg.SymbolDelays["finnhub"])
	assert.Equal(t, time.Duration(0), cfg.SymbolDelays["tradingview"])
	assert.Equal(t, "from-file", cfg.APIKeys["finnhub"])
}

func TestLoadMarketConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intervals: [not, a, map"), 0o600))

	_, err := LoadMarketConfig(path)
	require.Error(t, err)
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "env-key")
	t.Setenv("TRADINGVIEW_SNAPSHOT_PATH", "/tmp/tv.json")
	t.Setenv("MARKET_AUTO_UPDATE_DISABLED", "true")
	t.Setenv("PROVIDER_TIMEOUT_SEC", "2.5")

	cfg := DefaultMarketConfig()
	cfg.APIKeys["finnhub"] = "from-file"
	cfg.applyEnv()

	assert.Equal(t, "env-key", cfg.APIKeys["finnhub"])
	assert.Equal(t, "/tmp/tv.json", cfg.TradingViewSnapshotPath)
	assert.True(t, cfg.AutoUpdateDisabled)
	assert.Equal(t, 2500*time.Millisecond, cfg.ProviderTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MarketConfig)
	}{
		{"zero interval", func(c *MarketConfig) { c.Intervals["indices"] = 0 }},
		{"missing stale threshold", func(c *MarketConfig) { delete(c.StaleAfter, "crypto") }},
		{"zero timeout", func(c *MarketConfig) { c.ProviderTimeout = 0 }},
		{"negative delay", func(c *MarketConfig) { c.DefaultSymbolDelay = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMarketConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
