package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimit bounds outbound calls to one provider
type RateLimit struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

// MarketConfig tunes the acquisition engine. Durations use Go syntax ("2m", "15s").
type MarketConfig struct {
	AutoUpdateDisabled bool          `yaml:"auto_update_disabled"`
	StartDelay         time.Duration `yaml:"start_delay"`
	ConfigCacheTTL     time.Duration `yaml:"config_cache_ttl"`
	ProviderTimeout    time.Duration `yaml:"provider_timeout"`
	ProviderCooldown   time.Duration `yaml:"provider_cooldown"`

	// DefaultSymbolDelay is the pause after a symbol whose providers are not listed in SymbolDelays
	DefaultSymbolDelay time.Duration            `yaml:"default_symbol_delay"`
	SymbolDelays       map[string]time.Duration `yaml:"symbol_delays"`

	Intervals  map[string]time.Duration `yaml:"intervals"`   // keyed by scheduler job
	StaleAfter map[string]time.Duration `yaml:"stale_after"` // keyed by category
	RateLimits map[string]RateLimit     `yaml:"rate_limits"` // keyed by provider
	APIKeys    map[string]string        `yaml:"api_keys"`    // keyed by provider

	TradingViewSnapshotPath string `yaml:"tradingview_snapshot_path"`

	// PublicRateLimit throttles /api/v1/market per client IP; zero per_minute disables it
	PublicRateLimit RateLimit `yaml:"public_rate_limit"`
}

// DefaultMarketConfig returns the production defaults
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		StartDelay:         5 * time.Second,
		ConfigCacheTTL:     5 * time.Minute,
		ProviderTimeout:    10 * time.Second,
		ProviderCooldown:   time.Minute,
		DefaultSymbolDelay: 15 * time.Second,
		SymbolDelays: map[string]time.Duration{
			"tradingview":  0,
			"exchangerate": 0,
			"coingecko":    2 * time.Second,
		},
		Intervals: map[string]time.Duration{
			"crypto":      2 * time.Minute,
			"indices":     5 * time.Minute,
			"currencies":  15 * time.Minute,
			"commodities": 30 * time.Minute,
			"tradingview": time.Hour,
		},
		StaleAfter: map[string]time.Duration{
			"crypto":      5 * time.Minute,
			"indices":     15 * time.Minute,
			"currencies":  30 * time.Minute,
			"commodities": time.Hour,
		},
		RateLimits: map[string]RateLimit{
			"alphavantage": {PerMinute: 5, Burst: 1},
			"twelvedata":   {PerMinute: 8, Burst: 1},
			"marketstack":  {PerMinute: 5, Burst: 1},
			"fmp":          {PerMinute: 10, Burst: 2},
			"finnhub":      {PerMinute: 60, Burst: 5},
			"coingecko":    {PerMinute: 30, Burst: 3},
		},
		APIKeys:                 map[string]string{},
		TradingViewSnapshotPath: "data/tradingview_indices.json",
		PublicRateLimit:         RateLimit{PerMinute: 120, Burst: 20},
	}
}

// LoadMarketConfig reads path on top of the defaults. A missing file is not an error.
func LoadMarketConfig(path string) (MarketConfig, error) {
	cfg := DefaultMarketConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read market config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse market config %s: %w", path, err)
	}
	return cfg, nil
}

var apiKeyEnv = map[string]string{
	"alphavantage": "ALPHAVANTAGE_API_KEY",
	"finnhub":      "FINNHUB_API_KEY",
	"marketstack":  "MARKETSTACK_API_KEY",
	"twelvedata":   "TWELVEDATA_API_KEY",
	"fmp":          "FMP_API_KEY",
	"coingecko":    "COINGECKO_API_KEY",
	"exchangerate": "EXCHANGERATE_API_KEY",
}

// applyEnv lets secrets and deployment knobs override the file
func (m *MarketConfig) applyEnv() {
	if m.APIKeys == nil {
		m.APIKeys = map[string]string{}
	}
	for provider, key := range apiKeyEnv {
		if v := os.Getenv(key); v != "" {
			m.APIKeys[provider] = v
		}
	}
	if v := os.Getenv("TRADINGVIEW_SNAPSHOT_PATH"); v != "" {
		m.TradingViewSnapshotPath = v
	}
	if v, ok := getEnvBool("MARKET_AUTO_UPDATE_DISABLED"); ok {
		m.AutoUpdateDisabled = v
	}
	if d, ok := getEnvSeconds("PROVIDER_TIMEOUT_SEC"); ok {
		m.ProviderTimeout = d
	}
	if d, ok := getEnvSeconds("MARKET_SYMBOL_DELAY_SEC"); ok {
		m.DefaultSymbolDelay = d
	}
}

// Validate rejects settings the scheduler cannot run with
func (m MarketConfig) Validate() error {
	for _, job := range []string{"crypto", "indices", "currencies", "commodities", "tradingview"} {
		if m.Intervals[job] <= 0 {
			return fmt.Errorf("interval for %s must be positive", job)
		}
	}
	for _, category := range []string{"crypto", "indices", "currencies", "commodities"} {
		if m.StaleAfter[category] <= 0 {
			return fmt.Errorf("stale_after for %s must be positive", category)
		}
	}
	if m.ProviderTimeout <= 0 {
		return errors.New("provider_timeout must be positive")
	}
	if m.DefaultSymbolDelay < 0 {
		return errors.New("default_symbol_delay must not be negative")
	}
	return nil
}
