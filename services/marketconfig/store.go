// Package marketconfig reads the admin-managed tracked symbol lists and
// provider preferences, with a TTL cache in front of the database.
package marketconfig

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"market_backend/models"
	"market_backend/services/cache"
)

const DefaultCacheTTL = 5 * time.Minute

// Options narrows a tracked symbol query. The zero value is the cached default read.
type Options struct {
	IncludeInactive bool
	// FilterBy keys: exchange, country, currency, unit, timezone, symbols (comma separated)
	FilterBy map[string]string
}

func (o Options) isDefault() bool {
	return !o.IncludeInactive && len(o.FilterBy) == 0
}

var filterColumns = map[string]string{
	"exchange": "exchange",
	"country":  "country",
	"currency": "currency",
	"unit":     "unit",
	"timezone": "timezone",
}

// Store is the configuration store
type Store struct {
	db     *gorm.DB
	cache  cache.Cache
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewStore(db *gorm.DB, c cache.Cache, ttl time.Duration, logger logrus.FieldLogger) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{db: db, cache: c, ttl: ttl, logger: logger}
}

func symbolsKey(category models.Category) string { return "tracked:" + string(category) }

// GetTrackedSymbols returns the category's symbols ordered by sort order.
// Store failures are logged and yield an empty list.
func (s *Store) GetTrackedSymbols(ctx context.Context, category models.Category, opts Options) []models.TrackedSymbol {
	if opts.isDefault() {
		if raw, ok := s.cache.Get(ctx, symbolsKey(category)); ok {
			var cached []models.TrackedSymbol
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached
			}
		}
	}

	q := s.db.WithContext(ctx).Where("category = ?", category)
	if !opts.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	for key, value := range opts.FilterBy {
		if key == "symbols" {
			q = q.Where("symbol IN ?", splitList(value))
			continue
		}
		column, ok := filterColumns[key]
		if !ok {
			s.logger.WithField("filter", key).Warn("ignoring unknown tracked symbol filter")
			continue
		}
		q = q.Where(column+" = ?", value)
	}

	var symbols []models.TrackedSymbol
	if err := q.Order("sort_order ASC, symbol ASC").Find(&symbols).Error; err != nil {
		s.logger.WithError(err).WithField("category", category).Error("failed to load tracked symbols")
		return []models.TrackedSymbol{}
	}

	if opts.isDefault() {
		if raw, err := json.Marshal(symbols); err == nil {
			s.cache.Set(ctx, symbolsKey(category), raw, s.ttl)
		}
	}
	return symbols
}

func (s *Store) GetMarketIndices(ctx context.Context) []models.TrackedSymbol {
	return s.GetTrackedSymbols(ctx, models.CategoryIndices, Options{})
}

func (s *Store) GetCryptocurrencies(ctx context.Context) []models.TrackedSymbol {
	return s.GetTrackedSymbols(ctx, models.CategoryCrypto, Options{})
}

func (s *Store) GetCurrencyPairs(ctx context.Context) []models.TrackedSymbol {
	return s.GetTrackedSymbols(ctx, models.CategoryCurrencies, Options{})
}

func (s *Store) GetCommodities(ctx context.Context) []models.TrackedSymbol {
	return s.GetTrackedSymbols(ctx, models.CategoryCommodities, Options{})
}

// ClearConfigCache drops every cached symbol list and preference
func (s *Store) ClearConfigCache(ctx context.Context) {
	s.cache.Clear(ctx)
	s.logger.Info("market config cache cleared")
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
