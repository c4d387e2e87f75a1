package marketconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"

	"market_backend/models"
)

// defaultOrders is both the valid provider set and the canonical order per category
var defaultOrders = map[models.Category][]string{
	models.CategoryIndices: {
		models.ProviderMarketStack,
		models.ProviderTwelveData,
		models.ProviderAlphaVantage,
		models.ProviderFMP,
		models.ProviderFinnhub,
		models.ProviderTradingView,
	},
	models.CategoryCrypto:      {models.ProviderCoinGecko},
	models.CategoryCurrencies:  {models.ProviderExchangeRate},
	models.CategoryCommodities: {models.ProviderAlphaVantage, models.ProviderFMP, models.ProviderTwelveData},
}

// DefaultOrder returns a copy of the category's canonical provider order
func DefaultOrder(category models.Category) []string {
	return append([]string(nil), defaultOrders[category]...)
}

// ValidProvider reports whether provider may serve category
func ValidProvider(category models.Category, provider string) bool {
	for _, p := range defaultOrders[category] {
		if p == provider {
			return true
		}
	}
	return false
}

// SanitizeOrder lowercases and trims ids, drops unknown ones and duplicates,
// then appends any missing valid provider in canonical order. The result always
// contains every valid provider exactly once.
func SanitizeOrder(category models.Category, order []string) []string {
	valid := defaultOrders[category]
	out := make([]string, 0, len(valid))
	seen := make(map[string]bool, len(valid))

	for _, raw := range order {
		id := strings.ToLower(strings.TrimSpace(raw))
		if seen[id] || !ValidProvider(category, id) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range valid {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// PreferenceInput is an admin update to a category's fallback policy
type PreferenceInput struct {
	Category         models.Category `json:"category"`
	ProviderOrder    []string        `json:"provider_order"`
	FallbackStrategy string          `json:"fallback_strategy,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

func defaultPreference(category models.Category) models.ProviderPreference {
	return models.ProviderPreference{
		Category:         category,
		ProviderOrder:    DefaultOrder(category),
		FallbackStrategy: models.FallbackSequential,
	}
}

func preferenceKey(category models.Category) string { return "preference:" + string(category) }

// GetProviderPreference returns the stored preference or the category default.
// Stored orders are sanitized again on read so stale rows can never leak invalid ids.
func (s *Store) GetProviderPreference(ctx context.Context, category models.Category) models.ProviderPreference {
	if raw, ok := s.cache.Get(ctx, preferenceKey(category)); ok {
		var cached models.ProviderPreference
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached
		}
	}

	var pref models.ProviderPreference
	result := s.db.WithContext(ctx).Where("category = ?", category).Limit(1).Find(&pref)
	if result.Error != nil {
		s.logger.WithError(result.Error).WithField("category", category).Warn("failed to load provider preference, using default")
		return defaultPreference(category)
	}
	if result.RowsAffected == 0 {
		pref = defaultPreference(category)
	} else {
		pref.ProviderOrder = SanitizeOrder(category, pref.ProviderOrder)
		pref.FallbackStrategy = models.FallbackSequential
	}

	if raw, err := json.Marshal(pref); err == nil {
		s.cache.Set(ctx, preferenceKey(category), raw, s.ttl)
	}
	return pref
}

// UpdateProviderPreference sanitizes and persists a preference, replacing any existing
// order and strategy. Metadata is only replaced when the input carries it.
func (s *Store) UpdateProviderPreference(ctx context.Context, in PreferenceInput) (models.ProviderPreference, error) {
	if _, ok := defaultOrders[in.Category]; !ok {
		return models.ProviderPreference{}, fmt.Errorf("%w: %q", models.ErrUnknownCategory, in.Category)
	}

	strategy := strings.ToLower(strings.TrimSpace(in.FallbackStrategy))
	if strategy != models.FallbackSequential {
		if strategy != "" {
			s.logger.WithField("strategy", in.FallbackStrategy).Warn("unsupported fallback strategy, using sequential")
		}
		strategy = models.FallbackSequential
	}

	pref := models.ProviderPreference{
		Category:         in.Category,
		ProviderOrder:    SanitizeOrder(in.Category, in.ProviderOrder),
		FallbackStrategy: strategy,
		Metadata:         in.Metadata,
	}

	// nil metadata leaves the stored value untouched
	columns := []string{"provider_order", "fallback_strategy", "updated_at"}
	if in.Metadata != nil {
		columns = append(columns, "metadata")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&pref).Error
	if err != nil {
		return models.ProviderPreference{}, fmt.Errorf("save provider preference: %w", err)
	}

	var stored models.ProviderPreference
	if err := s.db.WithContext(ctx).Where("category = ?", in.Category).First(&stored).Error; err != nil {
		return models.ProviderPreference{}, fmt.Errorf("reload provider preference: %w", err)
	}
	s.cache.Delete(ctx, preferenceKey(in.Category))

	s.logger.WithFields(logrus.Fields{
		"category": in.Category,
		"order":    strings.Join(stored.ProviderOrder, ","),
	}).Info("provider preference updated")
	return stored, nil
}

// ListProviderPreferences returns the effective preference of every category
func (s *Store) ListProviderPreferences(ctx context.Context) []models.ProviderPreference {
	prefs := make([]models.ProviderPreference, 0, len(models.Categories))
	for _, category := range models.Categories {
		prefs = append(prefs, s.GetProviderPreference(ctx, category))
	}
	return prefs
}
