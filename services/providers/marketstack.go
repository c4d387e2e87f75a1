package providers

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"

	"market_backend/models"
)

// MarketStack serves end-of-day bars. Index symbols use the "<CODE>.INDX" form.
type MarketStack struct {
	client *resty.Client
	apiKey string
}

func NewMarketStack(opts HTTPOptions) *MarketStack {
	opts = opts.withDefaults("https://api.marketstack.com/v1")
	return &MarketStack{client: newHTTPClient(opts), apiKey: opts.APIKey}
}

func (m *MarketStack) Name() string { return models.ProviderMarketStack }

type marketStackEOD struct {
	Data []struct {
		Symbol string           `json:"symbol"`
		Close  models.FlexFloat `json:"close"`
		High   models.FlexFloat `json:"high"`
		Low    models.FlexFloat `json:"low"`
	} `json:"data"`
}

func marketStackSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasPrefix(s, "^") {
		return strings.TrimPrefix(s, "^") + ".INDX"
	}
	return s
}

func (m *MarketStack) Fetch(ctx context.Context, symbol string, _ SymbolContext) (*Quote, error) {
	if m.apiKey == "" {
		return nil, nil
	}
	var res marketStackEOD
	req := m.client.R().SetQueryParams(map[string]string{
		"access_key": m.apiKey,
		"symbols":    marketStackSymbol(symbol),
		"limit":      "2",
	})
	found, err := getJSON(ctx, req, "/eod", &res)
	if err != nil || !found || len(res.Data) == 0 || !res.Data[0].Close.Valid {
		return nil, err
	}

	latest := res.Data[0]
	q := &Quote{
		Value: latest.Close.Value,
		High:  latest.High.Ptr(),
		Low:   latest.Low.Ptr(),
	}
	if len(res.Data) > 1 {
		q.PreviousClose = res.Data[1].Close.Ptr()
	}
	return q, nil
}
