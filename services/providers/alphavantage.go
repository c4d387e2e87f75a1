package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"market_backend/models"
)

// metalCodes are priced through the currency exchange endpoint
var metalCodes = map[string]bool{"XAU": true, "XAG": true, "XPT": true, "XPD": true}

// commodityFunctions are Alpha Vantage's commodity time-series endpoints
var commodityFunctions = map[string]string{
	"WTI":         "WTI",
	"CL=F":        "WTI",
	"BRENT":       "BRENT",
	"BZ=F":        "BRENT",
	"NATURAL_GAS": "NATURAL_GAS",
	"NG=F":        "NATURAL_GAS",
	"COPPER":      "COPPER",
	"HG=F":        "COPPER",
	"ALUMINUM":    "ALUMINUM",
	"WHEAT":       "WHEAT",
	"CORN":        "CORN",
	"SUGAR":       "SUGAR",
	"COFFEE":      "COFFEE",
	"COTTON":      "COTTON",
}

var futuresMetals = map[string]string{"GC=F": "XAU", "SI=F": "XAG", "PL=F": "XPT", "PA=F": "XPD"}

type AlphaVantage struct {
	client *resty.Client
	apiKey string
	logger logrus.FieldLogger
}

func NewAlphaVantage(opts HTTPOptions) *AlphaVantage {
	opts = opts.withDefaults("https://www.alphavantage.co")
	return &AlphaVantage{client: newHTTPClient(opts), apiKey: opts.APIKey, logger: opts.Logger}
}

func (a *AlphaVantage) Name() string { return models.ProviderAlphaVantage }

func (a *AlphaVantage) Fetch(ctx context.Context, symbol string, sc SymbolContext) (*Quote, error) {
	if a.apiKey == "" {
		return nil, nil
	}
	code := strings.ToUpper(strings.TrimSpace(symbol))
	if sc.Category == models.CategoryCommodities {
		if metal, ok := futuresMetals[code]; ok {
			code = metal
		}
		if metalCodes[code] {
			return a.fetchExchangeRate(ctx, code, "USD")
		}
		if fn, ok := commodityFunctions[code]; ok {
			return a.fetchCommodity(ctx, fn)
		}
	}
	return a.fetchGlobalQuote(ctx, code)
}

// decode checks for the throttling notes Alpha Vantage returns with HTTP 200
func (a *AlphaVantage) decode(ctx context.Context, params map[string]string, out any) (bool, error) {
	params["apikey"] = a.apiKey
	var body json.RawMessage
	found, err := getJSON(ctx, a.client.R().SetQueryParams(params), "/query", &body)
	if err != nil || !found {
		return false, err
	}
	var notes struct {
		Note         *string `json:"Note"`
		Information  *string `json:"Information"`
		ErrorMessage *string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &notes); err != nil {
		return false, fmt.Errorf("decode alpha vantage response: %w", err)
	}
	switch {
	case notes.Note != nil:
		return false, ErrRateLimited
	case notes.Information != nil:
		a.logger.WithField("provider", a.Name()).Debugf("alpha vantage information: %s", *notes.Information)
		return false, ErrRateLimited
	case notes.ErrorMessage != nil:
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode alpha vantage response: %w", err)
	}
	return true, nil
}

type avGlobalQuote struct {
	Quote struct {
		Symbol        string           `json:"01. symbol"`
		High          models.FlexFloat `json:"03. high"`
		Low           models.FlexFloat `json:"04. low"`
		Price         models.FlexFloat `json:"05. price"`
		PreviousClose models.FlexFloat `json:"08. previous close"`
		Change        models.FlexFloat `json:"09. change"`
		ChangePercent models.FlexFloat `json:"10. change percent"`
	} `json:"Global Quote"`
}

func (a *AlphaVantage) fetchGlobalQuote(ctx context.Context, symbol string) (*Quote, error) {
	var res avGlobalQuote
	found, err := a.decode(ctx, map[string]string{"function": "GLOBAL_QUOTE", "symbol": symbol}, &res)
	if err != nil || !found || !res.Quote.Price.Valid {
		return nil, err
	}
	q := &Quote{
		Value:         res.Quote.Price.Value,
		PreviousClose: res.Quote.PreviousClose.Ptr(),
		Change:        res.Quote.Change.Ptr(),
		ChangePercent: res.Quote.ChangePercent.Ptr(),
		High:          res.Quote.High.Ptr(),
		Low:           res.Quote.Low.Ptr(),
	}
	return q, nil
}

type avExchangeRate struct {
	Rate struct {
		Rate models.FlexFloat `json:"5. Exchange Rate"`
	} `json:"Realtime Currency Exchange Rate"`
}

func (a *AlphaVantage) fetchExchangeRate(ctx context.Context, from, to string) (*Quote, error) {
	var res avExchangeRate
	params := map[string]string{"function": "CURRENCY_EXCHANGE_RATE", "from_currency": from, "to_currency": to}
	found, err := a.decode(ctx, params, &res)
	if err != nil || !found || !res.Rate.Rate.Valid {
		return nil, err
	}
	return &Quote{Value: res.Rate.Rate.Value, Currency: to}, nil
}

type avCommodity struct {
	Unit string `json:"unit"`
	Data []struct {
		Value models.FlexFloat `json:"value"`
	} `json:"data"`
}

func (a *AlphaVantage) fetchCommodity(ctx context.Context, function string) (*Quote, error) {
	var res avCommodity
	found, err := a.decode(ctx, map[string]string{"function": function, "interval": "daily"}, &res)
	if err != nil || !found {
		return nil, err
	}

	// newest first; missing days are reported as "."
	var points []float64
	for _, p := range res.Data {
		if !p.Value.Valid {
			continue
		}
		points = append(points, p.Value.Value)
		if len(points) == 2 {
			break
		}
	}
	if len(points) == 0 {
		return nil, nil
	}

	q := &Quote{Value: points[0], Currency: "USD"}
	if len(points) == 2 {
		q.PreviousClose = Float(points[1])
	}
	return q, nil
}
