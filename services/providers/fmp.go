package providers

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"

	"market_backend/models"
)

// FMP is Financial Modeling Prep
type FMP struct {
	client *resty.Client
	apiKey string
}

func NewFMP(opts HTTPOptions) *FMP {
	opts = opts.withDefaults("https://financialmodelingprep.com")
	return &FMP{client: newHTTPClient(opts), apiKey: opts.APIKey}
}

func (f *FMP) Name() string { return models.ProviderFMP }

type fmpQuote struct {
	Symbol            string   `json:"symbol"`
	Price             *float64 `json:"price"`
	ChangesPercentage *float64 `json:"changesPercentage"`
	Change            *float64 `json:"change"`
	DayLow            *float64 `json:"dayLow"`
	DayHigh           *float64 `json:"dayHigh"`
	PreviousClose     *float64 `json:"previousClose"`
}

// fmpSymbol maps commodity codes to FMP's futures-style tickers
func fmpSymbol(symbol string, category models.Category) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if category != models.CategoryCommodities {
		return s
	}
	switch s {
	case "XAU":
		return "GCUSD"
	case "XAG":
		return "SIUSD"
	case "WTI":
		return "CLUSD"
	case "BRENT":
		return "BZUSD"
	case "NATURAL_GAS":
		return "NGUSD"
	case "COPPER":
		return "HGUSD"
	}
	return s
}

func (f *FMP) Fetch(ctx context.Context, symbol string, sc SymbolContext) (*Quote, error) {
	if f.apiKey == "" {
		return nil, nil
	}
	var res []fmpQuote
	req := f.client.R().
		SetPathParam("symbol", fmpSymbol(symbol, sc.Category)).
		SetQueryParam("apikey", f.apiKey)
	found, err := getJSON(ctx, req, "/api/v3/quote/{symbol}", &res)
	if err != nil || !found || len(res) == 0 || res[0].Price == nil {
		return nil, err
	}

	r := res[0]
	return &Quote{
		Value:         *r.Price,
		PreviousClose: r.PreviousClose,
		Change:        r.Change,
		ChangePercent: r.ChangesPercentage,
		High:          r.DayHigh,
		Low:           r.DayLow,
	}, nil
}
