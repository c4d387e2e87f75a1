package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Category groups tracked symbols and their snapshot table
type Category string

const (
	CategoryIndices     Category = "indices"
	CategoryCrypto      Category = "crypto"
	CategoryCurrencies  Category = "currencies"
	CategoryCommodities Category = "commodities"
)

// Categories lists every category in canonical order
var Categories = []Category{CategoryIndices, CategoryCrypto, CategoryCurrencies, CategoryCommodities}

var ErrUnknownCategory = errors.New("unknown market category")

// ParseCategory accepts the canonical names plus a few common aliases
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "indices", "index", "market-indices", "market_indices":
		return CategoryIndices, nil
	case "crypto", "cryptocurrencies", "cryptocurrency":
		return CategoryCrypto, nil
	case "currencies", "currency", "currency-rates", "forex", "fx":
		return CategoryCurrencies, nil
	case "commodities", "commodity":
		return CategoryCommodities, nil
	}
	return "", ErrUnknownCategory
}

// TrackedSymbol is an admin-managed symbol the engine keeps fresh
type TrackedSymbol struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Category  Category  `gorm:"size:20;not null;uniqueIndex:idx_tracked_category_symbol;index:idx_tracked_category_order,priority:1" json:"category"`
	Symbol    string    `gorm:"size:40;not null;uniqueIndex:idx_tracked_category_symbol" json:"symbol"`
	Name      string    `gorm:"size:120" json:"name"`
	Exchange  string    `gorm:"size:40" json:"exchange,omitempty"`
	Country   string    `gorm:"size:60" json:"country,omitempty"`
	Timezone  string    `gorm:"size:60" json:"timezone,omitempty"`
	CoinID    string    `gorm:"size:80" json:"coin_id,omitempty"` // coingecko id
	Unit      string    `gorm:"size:40" json:"unit,omitempty"`    // oz, bbl, MMBtu
	Currency  string    `gorm:"size:10" json:"currency,omitempty"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	SortOrder int       `gorm:"index:idx_tracked_category_order,priority:2" json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProviderPreference holds the fallback order for one category
type ProviderPreference struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Category         Category       `gorm:"size:20;not null;uniqueIndex" json:"category"`
	ProviderOrder    []string       `gorm:"serializer:json;type:text" json:"provider_order"`
	FallbackStrategy string         `gorm:"size:20;not null" json:"fallback_strategy"`
	Metadata         map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Snapshot is the normalized quote shared by every category table
type Snapshot struct {
	Symbol        string          `gorm:"size:40;not null;uniqueIndex" json:"symbol"`
	Name          string          `gorm:"size:120" json:"name"`
	Value         decimal.Decimal `gorm:"type:decimal(30,12);not null" json:"value"`
	PreviousClose decimal.Decimal `gorm:"type:decimal(30,12)" json:"previous_close"`
	Change        decimal.Decimal `gorm:"type:decimal(30,12)" json:"change"`
	ChangePercent decimal.Decimal `gorm:"type:decimal(12,4)" json:"change_percent"`
	High          decimal.Decimal `gorm:"type:decimal(30,12)" json:"high"`
	Low           decimal.Decimal `gorm:"type:decimal(30,12)" json:"low"`
	Currency      string          `gorm:"size:10" json:"currency,omitempty"`
	LastUpdated   time.Time       `gorm:"index" json:"last_updated"`
	LastSource    string          `gorm:"size:20" json:"last_source"`
}

// SnapshotView is the float rendering of a Snapshot served to API consumers
type SnapshotView struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Value         float64   `json:"value"`
	PreviousClose float64   `json:"previousClose"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Currency      string    `json:"currency,omitempty"`
	LastUpdated   time.Time `json:"lastUpdated"`
	LastSource    string    `json:"lastSource"`
}

func (s Snapshot) View() SnapshotView {
	return SnapshotView{
		Symbol:        s.Symbol,
		Name:          s.Name,
		Value:         s.Value.InexactFloat64(),
		PreviousClose: s.PreviousClose.InexactFloat64(),
		Change:        s.Change.InexactFloat64(),
		ChangePercent: s.ChangePercent.InexactFloat64(),
		High:          s.High.InexactFloat64(),
		Low:           s.Low.InexactFloat64(),
		Currency:      s.Currency,
		LastUpdated:   s.LastUpdated,
		LastSource:    s.LastSource,
	}
}

// SnapshotRow is implemented by every per-category snapshot table
type SnapshotRow interface {
	GetSnapshot() Snapshot
}

// MarketIndex represents a stock market index (^GSPC, ^NSEI, ...)
type MarketIndex struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	Snapshot  `gorm:"embedded"`
	Exchange  string    `gorm:"size:40" json:"exchange,omitempty"`
	Country   string    `gorm:"size:60" json:"country,omitempty"`
	Timezone  string    `gorm:"size:60" json:"timezone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m MarketIndex) GetSnapshot() Snapshot { return m.Snapshot }

// Cryptocurrency is a coin priced against its quote currency
type Cryptocurrency struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	Snapshot  `gorm:"embedded"`
	CoinID    string    `gorm:"size:80" json:"coin_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Cryptocurrency) GetSnapshot() Snapshot { return c.Snapshot }

// Commodity is a spot or front-month commodity price
type Commodity struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	Snapshot  `gorm:"embedded"`
	Unit      string    `gorm:"size:40" json:"unit,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Commodity) GetSnapshot() Snapshot { return c.Snapshot }

// CurrencyRate is the price of one base unit in the quote currency
type CurrencyRate struct {
	ID            uint     `gorm:"primaryKey" json:"id"`
	Snapshot      `gorm:"embedded"`
	BaseCurrency  string    `gorm:"size:10" json:"base_currency"`
	QuoteCurrency string    `gorm:"size:10" json:"quote_currency"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (c CurrencyRate) GetSnapshot() Snapshot { return c.Snapshot }

// MigrateMarketModels runs database migrations for market data models
func MigrateMarketModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&TrackedSymbol{},
		&ProviderPreference{},
		&MarketIndex{},
		&Cryptocurrency{},
		&Commodity{},
		&CurrencyRate{},
	)
}
