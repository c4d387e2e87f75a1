package providers

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"

	"market_backend/models"
)

// wellKnownCoins resolves tickers when the tracked symbol carries no coin id
var wellKnownCoins = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"LTC":   "litecoin",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"MATIC": "matic-network",
	"TRX":   "tron",
	"USDT":  "tether",
	"USDC":  "usd-coin",
}

// CoinGecko works without a key; a demo key raises the quota
type CoinGecko struct {
	client *resty.Client
}

func NewCoinGecko(opts HTTPOptions) *CoinGecko {
	opts = opts.withDefaults("https://api.coingecko.com/api/v3")
	client := newHTTPClient(opts)
	if opts.APIKey != "" {
		client.SetHeader("x-cg-demo-api-key", opts.APIKey)
	}
	return &CoinGecko{client: client}
}

func (c *CoinGecko) Name() string { return models.ProviderCoinGecko }

func coinID(symbol string, sc SymbolContext) string {
	if sc.CoinID != "" {
		return strings.ToLower(sc.CoinID)
	}
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range []string{"-USD", "USDT", "/USD"} {
		if trimmed := strings.TrimSuffix(s, suffix); trimmed != "" && trimmed != s {
			s = trimmed
			break
		}
	}
	if id, ok := wellKnownCoins[s]; ok {
		return id
	}
	return strings.ToLower(s)
}

func (c *CoinGecko) Fetch(ctx context.Context, symbol string, sc SymbolContext) (*Quote, error) {
	id := coinID(symbol, sc)
	vs := strings.ToLower(sc.Currency)
	if vs == "" {
		vs = "usd"
	}

	var res map[string]map[string]float64
	req := c.client.R().SetQueryParams(map[string]string{
		"ids":                     id,
		"vs_currencies":           vs,
		"include_24hr_change":     "true",
		"include_24hr_high_low":   "true",
		"include_last_updated_at": "true",
	})
	found, err := getJSON(ctx, req, "/simple/price", &res)
	if err != nil || !found {
		return nil, err
	}
	coin, ok := res[id]
	if !ok {
		return nil, nil
	}
	price, ok := coin[vs]
	if !ok {
		return nil, nil
	}

	q := &Quote{Value: price, Currency: vs}
	if pct, ok := coin[vs+"_24h_change"]; ok && pct > -100 {
		prev := price / (1 + pct/100)
		q.PreviousClose = Float(prev)
		q.Change = Float(price - prev)
		q.ChangePercent = Float(pct)
	}
	if high, ok := coin[vs+"_24h_high"]; ok {
		q.High = Float(high)
	}
	if low, ok := coin[vs+"_24h_low"]; ok {
		q.Low = Float(low)
	}
	if ts, ok := coin["last_updated_at"]; ok {
		q.LastUpdated = unixTime(int64(ts))
	}
	return q, nil
}
