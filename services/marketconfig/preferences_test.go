package marketconfig

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_backend/models"
	"market_backend/services/cache"
	"market_backend/services/clock"
	"market_backend/testutil"
)

func TestSanitizeOrderExamples(t *testing.T) {
	tests := []struct {
		name     string
		category models.Category
		in       []string
		want     []string
	}{
		{
			name:     "empty input yields default",
			category: models.CategoryIndices,
			in:       nil,
			want:     DefaultOrder(models.CategoryIndices),
		},
		{
			name:     "normalizes case and whitespace, appends missing in canonical order",
			category: models.CategoryIndices,
			in:       []string{" TradingView ", "FINNHUB"},
			want:     []string{"tradingview", "finnhub", "marketstack", "twelvedata", "alphavantage", "fmp"},
		},
		{
			name:     "drops unknown and duplicate ids",
			category: models.CategoryCommodities,
			in:       []string{"fmp", "coingecko", "fmp", "bogus", "twelvedata"},
			want:     []string{"fmp", "twelvedata", "alphavantage"},
		},
		{
			name:     "single provider category",
			category: models.CategoryCrypto,
			in:       []string{"finnhub"},
			want:     []string{"coingecko"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeOrder(tt.category, tt.in))
		})
	}
}

// Any input list sanitizes to a permutation of the category's valid provider set.
func TestSanitizeOrderIsAlwaysPermutationOfValidSet(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pool := []string{
		"marketstack", "twelvedata", "alphavantage", "fmp", "finnhub", "tradingview",
		"coingecko", "exchangerate", "", "yahoo", "FMP", "  finnhub", "MarketStack ",
	}

	for _, category := range models.Categories {
		valid := DefaultOrder(category)
		for i := 0; i < 500; i++ {
			in := make([]string, rng.Intn(12))
			for j := range in {
				in[j] = pool[rng.Intn(len(pool))]
			}

			got := SanitizeOrder(category, in)

			require.Len(t, got, len(valid), "input %q", in)
			assert.ElementsMatch(t, valid, got, "input %q", in)
		}
	}
}

func newTestStore(t *testing.T) (*Store, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	db := testutil.OpenDB(t)
	return NewStore(db, cache.NewMemory(clk), 5*time.Minute, testutil.Logger()), clk
}

func TestGetProviderPreferenceDefaultsWhenMissing(t *testing.T) {
	store, _ := newTestStore(t)

	pref := store.GetProviderPreference(context.Background(), models.CategoryIndices)

	assert.Equal(t, models.CategoryIndices, pref.Category)
	assert.Equal(t, DefaultOrder(models.CategoryIndices), pref.ProviderOrder)
	assert.Equal(t, models.FallbackSequential, pref.FallbackStrategy)
}

func TestUpdateProviderPreferenceSanitizesAndInvalidates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// prime the cache with the default
	_ = store.GetProviderPreference(ctx, models.CategoryIndices)

	stored, err := store.UpdateProviderPreference(ctx, PreferenceInput{
		Category:         models.CategoryIndices,
		ProviderOrder:    []string{"TradingView", "yahoo", "tradingview", "finnhub"},
		FallbackStrategy: "parallel",
		Metadata:         map[string]any{"note": "prefer local file"},
	})
	require.NoError(t, err)

	want := []string{"tradingview", "finnhub", "marketstack", "twelvedata", "alphavantage", "fmp"}
	assert.Equal(t, want, stored.ProviderOrder)
	assert.Equal(t, models.FallbackSequential, stored.FallbackStrategy)
	assert.Equal(t, "prefer local file", stored.Metadata["note"])

	got := store.GetProviderPreference(ctx, models.CategoryIndices)
	assert.Equal(t, want, got.ProviderOrder)

	// a second update replaces the row rather than adding one
	_, err = store.UpdateProviderPreference(ctx, PreferenceInput{
		Category:      models.CategoryIndices,
		ProviderOrder: []string{"fmp"},
	})
	require.NoError(t, err)
	got = store.GetProviderPreference(ctx, models.CategoryIndices)
	assert.Equal(t, "fmp", got.ProviderOrder[0])

	var count int64
	require.NoError(t, store.db.Model(&models.ProviderPreference{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpdateProviderPreferenceKeepsMetadataWhenOmitted(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpdateProviderPreference(ctx, PreferenceInput{
		Category:      models.CategoryCrypto,
		ProviderOrder: []string{"coingecko"},
		Metadata:      map[string]any{"owner": "ops"},
	})
	require.NoError(t, err)

	stored, err := store.UpdateProviderPreference(ctx, PreferenceInput{
		Category:      models.CategoryCrypto,
		ProviderOrder: []string{"coingecko"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ops", stored.Metadata["owner"])

	stored, err = store.UpdateProviderPreference(ctx, PreferenceInput{
		Category:      models.CategoryCrypto,
		ProviderOrder: []string{"coingecko"},
		Metadata:      map[string]any{"owner": "desk"},
	})
	require.NoError(t, err)
	assert.Equal(t, "desk", stored.Metadata["owner"])
}

func TestUpdateProviderPreferenceRejectsUnknownCategory(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.UpdateProviderPreference(context.Background(), PreferenceInput{Category: "bonds"})
	assert.ErrorIs(t, err, models.ErrUnknownCategory)
}

func TestStoredInvalidOrderIsSanitizedOnRead(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.db.Create(&models.ProviderPreference{
		Category:         models.CategoryCommodities,
		ProviderOrder:    []string{"bogus", "FMP"},
		FallbackStrategy: models.FallbackSequential,
	}).Error)

	pref := store.GetProviderPreference(ctx, models.CategoryCommodities)
	assert.Equal(t, "fmp,alphavantage,twelvedata", strings.Join(pref.ProviderOrder, ","))
}

func TestListProviderPreferencesCoversEveryCategory(t *testing.T) {
	store, _ := newTestStore(t)

	prefs := store.ListProviderPreferences(context.Background())

	require.Len(t, prefs, len(models.Categories))
	for i, category := range models.Categories {
		assert.Equal(t, category, prefs[i].Category)
	}
}
