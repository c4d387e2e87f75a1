package providers

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"

	"market_backend/models"
)

type Finnhub struct {
	client *resty.Client
	apiKey string
}

func NewFinnhub(opts HTTPOptions) *Finnhub {
	opts = opts.withDefaults("https://finnhub.io/api/v1")
	return &Finnhub{client: newHTTPClient(opts), apiKey: opts.APIKey}
}

func (f *Finnhub) Name() string { return models.ProviderFinnhub }

type finnhubQuote struct {
	Current       float64  `json:"c"`
	Change        *float64 `json:"d"`
	ChangePercent *float64 `json:"dp"`
	High          float64  `json:"h"`
	Low           float64  `json:"l"`
	PreviousClose float64  `json:"pc"`
}

func (f *Finnhub) Fetch(ctx context.Context, symbol string, _ SymbolContext) (*Quote, error) {
	if f.apiKey == "" {
		return nil, nil
	}
	var res finnhubQuote
	req := f.client.R().SetQueryParams(map[string]string{
		"symbol": strings.ToUpper(strings.TrimSpace(symbol)),
		"token":  f.apiKey,
	})
	found, err := getJSON(ctx, req, "/quote", &res)
	if err != nil || !found {
		return nil, err
	}
	// unknown symbols come back as an all-zero quote
	if res.Current == 0 && res.PreviousClose == 0 {
		return nil, nil
	}

	q := &Quote{
		Value:         res.Current,
		Change:        res.Change,
		ChangePercent: res.ChangePercent,
	}
	if res.PreviousClose != 0 {
		q.PreviousClose = Float(res.PreviousClose)
	}
	if res.High != 0 {
		q.High = Float(res.High)
	}
	if res.Low != 0 {
		q.Low = Float(res.Low)
	}
	return q, nil
}
