package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Provider identifiers as stored in provider preferences
const (
	ProviderMarketStack  = "marketstack"
	ProviderTwelveData   = "twelvedata"
	ProviderAlphaVantage = "alphavantage"
	ProviderFMP          = "fmp"
	ProviderFinnhub      = "finnhub"
	ProviderTradingView  = "tradingview"
	ProviderCoinGecko    = "coingecko"
	ProviderExchangeRate = "exchangerate"
)

const FallbackSequential = "sequential"

// TradingViewSnapshotFile is the scraped index snapshot written by an external job
type TradingViewSnapshotFile struct {
	GeneratedAt string            `json:"generated_at,omitempty"`
	SourceURL   string            `json:"source_url,omitempty"`
	Items       []TradingViewItem `json:"items"`
}

type TradingViewItem struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Last          FlexFloat `json:"last"`
	Change        FlexFloat `json:"change"`
	ChangePercent FlexFloat `json:"change_percent"`
	High          FlexFloat `json:"high"`
	Low           FlexFloat `json:"low"`
	Currency      string    `json:"currency,omitempty"`
}

// FlexFloat decodes a JSON number or a numeric string such as "5,012.40" or "-0.35%".
// Anything unparseable leaves Valid false instead of failing the whole document.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	*f = FlexFloat{}
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		s = str
	}
	if v, ok := ParseNumber(s); ok {
		f.Value, f.Valid = v, true
	}
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Ptr returns nil for missing values
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// ParseNumber parses provider numerics, tolerating thousand separators,
// percent signs, a leading plus and the unicode minus sign.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "−", "-")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if s == "" || s == "." || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
