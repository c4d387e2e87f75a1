package providers

import (
	"github.com/sirupsen/logrus"

	"market_backend/config"
	"market_backend/models"
	"market_backend/services/clock"
)

// NewRegistryFromConfig wires every provider adapter. Remote adapters with a
// configured rate limit are wrapped in Limited; the TradingView adapter is
// returned separately as well because the snapshot refresh job reloads it.
func NewRegistryFromConfig(cfg config.MarketConfig, clk clock.Clock, logger logrus.FieldLogger) (*Registry, *TradingView) {
	opts := func(provider string) HTTPOptions {
		return HTTPOptions{
			APIKey:  cfg.APIKeys[provider],
			Timeout: cfg.ProviderTimeout,
			Logger:  logger.WithField("provider", provider),
		}
	}

	tradingView := NewTradingView(cfg.TradingViewSnapshotPath, clk, logger)
	remote := []Adapter{
		NewMarketStack(opts(models.ProviderMarketStack)),
		NewTwelveData(opts(models.ProviderTwelveData)),
		NewAlphaVantage(opts(models.ProviderAlphaVantage)),
		NewFMP(opts(models.ProviderFMP)),
		NewFinnhub(opts(models.ProviderFinnhub)),
		NewCoinGecko(opts(models.ProviderCoinGecko)),
		NewExchangeRate(opts(models.ProviderExchangeRate), clk),
	}

	registry := NewRegistry(tradingView)
	for _, a := range remote {
		limit, ok := cfg.RateLimits[a.Name()]
		if !ok {
			registry.Register(a)
			continue
		}
		registry.Register(NewLimited(a, limit.PerMinute, limit.Burst, cfg.ProviderCooldown, clk))
	}

	for _, p := range []string{
		models.ProviderMarketStack, models.ProviderTwelveData, models.ProviderAlphaVantage,
		models.ProviderFMP, models.ProviderFinnhub,
	} {
		if cfg.APIKeys[p] == "" {
			logger.WithField("provider", p).Warn("no API key configured, provider will be skipped")
		}
	}
	return registry, tradingView
}
