// Package snapshots persists normalized quotes into the per-category snapshot tables.
package snapshots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"market_backend/models"
	"market_backend/services/clock"
	"market_backend/services/providers"
)

var (
	ErrInvalidQuote = errors.New("quote has no finite value")
	ErrNotFound     = errors.New("snapshot not found")
)

const (
	valuePlaces   = 12
	percentPlaces = 4
)

var hundred = decimal.NewFromInt(100)

type Repository struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewRepository(db *gorm.DB, clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.System{}
	}
	return &Repository{db: db, clock: clk}
}

// BuildSnapshot fills the derived fields of a quote. Missing previous close,
// high and low default to the value; change and change percent are derived
// from the previous close when the provider omits them.
func BuildSnapshot(sym models.TrackedSymbol, q *providers.Quote, provider string, now time.Time) (models.Snapshot, error) {
	if !q.Valid() {
		return models.Snapshot{}, ErrInvalidQuote
	}
	q.Normalize()

	// derived fields use the raw inputs, rounding applies to stored columns only
	raw := decimal.NewFromFloat(q.Value)
	rawOr := func(f *float64) decimal.Decimal {
		if f == nil {
			return raw
		}
		return decimal.NewFromFloat(*f)
	}
	rawPrev := rawOr(q.PreviousClose)

	change := raw.Sub(rawPrev)
	if q.Change != nil {
		change = decimal.NewFromFloat(*q.Change)
	}
	changePercent := decimal.Zero
	switch {
	case q.ChangePercent != nil:
		changePercent = decimal.NewFromFloat(*q.ChangePercent)
	case !rawPrev.IsZero():
		changePercent = raw.Sub(rawPrev).Div(rawPrev).Mul(hundred)
	}

	lastUpdated := now
	if q.LastUpdated != nil && !q.LastUpdated.IsZero() && !q.LastUpdated.After(now) {
		lastUpdated = *q.LastUpdated
	}

	currency := q.Currency
	if currency == "" {
		currency = strings.ToUpper(sym.Currency)
	}

	return models.Snapshot{
		Symbol:        sym.Symbol,
		Name:          sym.Name,
		Value:         raw.Round(valuePlaces),
		PreviousClose: rawPrev.Round(valuePlaces),
		Change:        change.Round(valuePlaces),
		ChangePercent: changePercent.Round(percentPlaces),
		High:          rawOr(q.High).Round(valuePlaces),
		Low:           rawOr(q.Low).Round(valuePlaces),
		Currency:      currency,
		LastUpdated:   lastUpdated.UTC().Truncate(time.Microsecond),
		LastSource:    provider,
	}, nil
}

func rowFor(category models.Category, sym models.TrackedSymbol, snap models.Snapshot) (any, error) {
	switch category {
	case models.CategoryIndices:
		return &models.MarketIndex{Snapshot: snap, Exchange: sym.Exchange, Country: sym.Country, Timezone: sym.Timezone}, nil
	case models.CategoryCrypto:
		return &models.Cryptocurrency{Snapshot: snap, CoinID: sym.CoinID}, nil
	case models.CategoryCommodities:
		return &models.Commodity{Snapshot: snap, Unit: sym.Unit}, nil
	case models.CategoryCurrencies:
		defaultQuote := sym.Currency
		if defaultQuote == "" {
			defaultQuote = "USD"
		}
		row := &models.CurrencyRate{Snapshot: snap}
		if base, quote, ok := providers.ParsePair(sym.Symbol, defaultQuote); ok {
			row.BaseCurrency, row.QuoteCurrency = base, quote
			if row.Currency == "" {
				row.Currency = quote
			}
		}
		return row, nil
	}
	return nil, models.ErrUnknownCategory
}

// Upsert writes the snapshot row for sym keyed by symbol
func (r *Repository) Upsert(ctx context.Context, category models.Category, sym models.TrackedSymbol, q *providers.Quote, provider string) (models.Snapshot, error) {
	snap, err := BuildSnapshot(sym, q, provider, r.clock.Now())
	if err != nil {
		return models.Snapshot{}, err
	}
	row, err := rowFor(category, sym, snap)
	if err != nil {
		return models.Snapshot{}, err
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to upsert %s snapshot %s: %w", category, sym.Symbol, err)
	}
	return row.(models.SnapshotRow).GetSnapshot(), nil
}

// List returns the category's rows ordered by symbol, optionally restricted to symbols
func (r *Repository) List(ctx context.Context, category models.Category, symbols ...string) ([]models.SnapshotRow, error) {
	db := r.db.WithContext(ctx)
	switch category {
	case models.CategoryIndices:
		return listRows[models.MarketIndex](db, symbols)
	case models.CategoryCrypto:
		return listRows[models.Cryptocurrency](db, symbols)
	case models.CategoryCommodities:
		return listRows[models.Commodity](db, symbols)
	case models.CategoryCurrencies:
		return listRows[models.CurrencyRate](db, symbols)
	}
	return nil, models.ErrUnknownCategory
}

// Get returns one row or ErrNotFound
func (r *Repository) Get(ctx context.Context, category models.Category, symbol string) (models.SnapshotRow, error) {
	rows, err := r.List(ctx, category, symbol)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func listRows[T models.SnapshotRow](db *gorm.DB, symbols []string) ([]models.SnapshotRow, error) {
	var rows []T
	q := db.Order("symbol")
	if len(symbols) > 0 {
		q = q.Where("symbol IN ?", symbols)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	out := make([]models.SnapshotRow, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}
