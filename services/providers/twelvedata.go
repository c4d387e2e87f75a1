package providers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"market_backend/models"
)

type TwelveData struct {
	client *resty.Client
	apiKey string
}

func NewTwelveData(opts HTTPOptions) *TwelveData {
	opts = opts.withDefaults("https://api.twelvedata.com")
	return &TwelveData{client: newHTTPClient(opts), apiKey: opts.APIKey}
}

func (t *TwelveData) Name() string { return models.ProviderTwelveData }

// twelveDataQuote reports failures in-band with status "error" and an HTTP-like code
type twelveDataQuote struct {
	Status        string           `json:"status"`
	Code          int              `json:"code"`
	Close         models.FlexFloat `json:"close"`
	PreviousClose models.FlexFloat `json:"previous_close"`
	Change        models.FlexFloat `json:"change"`
	PercentChange models.FlexFloat `json:"percent_change"`
	High          models.FlexFloat `json:"high"`
	Low           models.FlexFloat `json:"low"`
	Currency      string           `json:"currency"`
}

func twelveDataSymbol(symbol string, category models.Category) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case strings.HasPrefix(s, "^"):
		return plainIndexSymbol(s)
	case category == models.CategoryCommodities && len(s) == 3 && metalCodes[s]:
		return s + "/USD"
	}
	return s
}

func (t *TwelveData) Fetch(ctx context.Context, symbol string, sc SymbolContext) (*Quote, error) {
	if t.apiKey == "" {
		return nil, nil
	}
	var res twelveDataQuote
	req := t.client.R().SetQueryParams(map[string]string{
		"symbol": twelveDataSymbol(symbol, sc.Category),
		"apikey": t.apiKey,
	})
	found, err := getJSON(ctx, req, "/quote", &res)
	if err != nil || !found {
		return nil, err
	}
	if res.Status == "error" {
		if res.Code == http.StatusTooManyRequests {
			return nil, ErrRateLimited
		}
		return nil, nil
	}
	if !res.Close.Valid {
		return nil, nil
	}

	return &Quote{
		Value:         res.Close.Value,
		PreviousClose: res.PreviousClose.Ptr(),
		Change:        res.Change.Ptr(),
		ChangePercent: res.PercentChange.Ptr(),
		High:          res.High.Ptr(),
		Low:           res.Low.Ptr(),
		Currency:      res.Currency,
	}, nil
}
