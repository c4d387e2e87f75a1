package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"market_backend/models"
	"market_backend/services/clock"
)

const rateTableTTL = 60 * time.Second

// ExchangeRate prices currency pairs from one USD-based table per minute,
// so a whole currencies batch costs a single request.
type ExchangeRate struct {
	client *resty.Client
	clock  clock.Clock

	mu       sync.Mutex
	rates    map[string]float64
	loadedAt time.Time
}

func NewExchangeRate(opts HTTPOptions, clk clock.Clock) *ExchangeRate {
	base := "https://open.er-api.com/v6"
	if opts.APIKey != "" {
		base = "https://v6.exchangerate-api.com/v6/" + opts.APIKey
	}
	opts = opts.withDefaults(base)
	if clk == nil {
		clk = clock.System{}
	}
	return &ExchangeRate{client: newHTTPClient(opts), clock: clk}
}

func (e *ExchangeRate) Name() string { return models.ProviderExchangeRate }

type rateTable struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

func (e *ExchangeRate) table(ctx context.Context) (map[string]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.rates != nil && now.Sub(e.loadedAt) < rateTableTTL {
		return e.rates, nil
	}

	var res rateTable
	found, err := getJSON(ctx, e.client.R(), "/latest/USD", &res)
	if err != nil {
		return nil, err
	}
	if !found || res.Result != "success" || len(res.Rates) == 0 {
		return nil, fmt.Errorf("exchange rate table unavailable (result %q)", res.Result)
	}
	res.Rates["USD"] = 1
	e.rates, e.loadedAt = res.Rates, now
	return e.rates, nil
}

// ParsePair splits "EUR/USD", "EURUSD", "EUR-USD" or "EURUSD=X" into base and quote.
// A bare three letter code is quoted in defaultQuote, or USD.
func ParsePair(symbol, defaultQuote string) (base, quote string, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, "=X")
	for _, sep := range []string{"/", "-", "_", ":"} {
		if parts := strings.Split(s, sep); len(parts) == 2 {
			return parts[0], parts[1], len(parts[0]) == 3 && len(parts[1]) == 3
		}
	}
	switch len(s) {
	case 6:
		return s[:3], s[3:], true
	case 3:
		quote = strings.ToUpper(defaultQuote)
		if quote == "" || quote == s {
			quote = "USD"
		}
		return s, quote, true
	}
	return "", "", false
}

func (e *ExchangeRate) Fetch(ctx context.Context, symbol string, sc SymbolContext) (*Quote, error) {
	base, quote, ok := ParsePair(symbol, sc.Currency)
	if !ok {
		return nil, nil
	}
	rates, err := e.table(ctx)
	if err != nil {
		return nil, err
	}
	baseRate, ok1 := rates[base]
	quoteRate, ok2 := rates[quote]
	if !ok1 || !ok2 || baseRate == 0 {
		return nil, nil
	}
	return &Quote{Value: quoteRate / baseRate, Currency: quote}, nil
}
