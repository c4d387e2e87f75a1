package marketdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_backend/models"
	"market_backend/services/cache"
	"market_backend/services/clock"
	"market_backend/services/fallback"
	"market_backend/services/marketconfig"
	"market_backend/services/providers"
	"market_backend/services/snapshots"
	"market_backend/testutil"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeConfig struct {
	symbols map[models.Category][]models.TrackedSymbol
	order   []string
}

func (f *fakeConfig) GetTrackedSymbols(_ context.Context, category models.Category, _ marketconfig.Options) []models.TrackedSymbol {
	return f.symbols[category]
}

func (f *fakeConfig) GetProviderPreference(_ context.Context, category models.Category) models.ProviderPreference {
	return models.ProviderPreference{Category: category, ProviderOrder: f.order, FallbackStrategy: models.FallbackSequential}
}

type countingRefresher struct {
	mu    sync.Mutex
	calls map[models.Category]int
}

func (r *countingRefresher) Trigger(category models.Category) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[models.Category]int{}
	}
	r.calls[category]++
	return true
}

func (r *countingRefresher) count(category models.Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[category]
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (p *recordingPublisher) Publish(_ models.Category, snap models.Snapshot) {
	p.mu.Lock()
	p.snaps = append(p.snaps, snap)
	p.mu.Unlock()
}

type harness struct {
	svc       *Service
	repo      *snapshots.Repository
	clock     *clock.Manual
	refresher *countingRefresher
	publisher *recordingPublisher
	sleeps    []time.Duration
}

func newHarness(t *testing.T, store ConfigSource, tv SnapshotFile, adapters ...providers.Adapter) *harness {
	t.Helper()
	h := &harness{
		clock:     clock.NewManual(start),
		refresher: &countingRefresher{},
		publisher: &recordingPublisher{},
	}
	logger := testutil.Logger()
	h.repo = snapshots.NewRepository(testutil.OpenDB(t), h.clock)
	h.svc = NewService(Deps{
		Store:       store,
		Resolver:    fallback.NewResolver(providers.NewRegistry(adapters...), time.Second, logger, nil),
		Repo:        h.repo,
		TradingView: tv,
		Publisher:   h.publisher,
		Logger:      logger,
		Clock:       h.clock,
		Refresher:   h.refresher,
	}, Config{
		DefaultDelay: 15 * time.Second,
		ProviderDelays: map[string]time.Duration{
			models.ProviderTradingView: 0,
			models.ProviderCoinGecko:   2 * time.Second,
		},
		StaleAfter: map[models.Category]time.Duration{
			models.CategoryCrypto:  5 * time.Minute,
			models.CategoryIndices: 15 * time.Minute,
		},
	})
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func tracked(symbols ...string) []models.TrackedSymbol {
	out := make([]models.TrackedSymbol, len(symbols))
	for i, s := range symbols {
		out[i] = models.TrackedSymbol{Symbol: s, Name: s, IsActive: true, SortOrder: i}
	}
	return out
}

func fixed(id string, value float64) providers.Adapter {
	return providers.Func{ID: id, Fn: func(context.Context, string, providers.SymbolContext) (*providers.Quote, error) {
		return &providers.Quote{Value: value}, nil
	}}
}

func TestUpdateCategoryContinuesPastFailingSymbol(t *testing.T) {
	store := &fakeConfig{
		symbols: map[models.Category][]models.TrackedSymbol{models.CategoryIndices: tracked("A", "B", "C", "D", "E")},
		order:   []string{models.ProviderFinnhub, models.ProviderFMP},
	}
	var mu sync.Mutex
	var seen []string
	failing := func(id string) providers.Adapter {
		return providers.Func{ID: id, Fn: func(_ context.Context, symbol string, _ providers.SymbolContext) (*providers.Quote, error) {
			mu.Lock()
			seen = append(seen, id+":"+symbol)
			mu.Unlock()
			if symbol == "C" {
				return nil, errors.New("upstream exploded")
			}
			if id == models.ProviderFinnhub {
				return nil, nil
			}
			return &providers.Quote{Value: 100}, nil
		}}
	}
	h := newHarness(t, store, nil, failing(models.ProviderFinnhub), failing(models.ProviderFMP))

	res := h.svc.UpdateCategory(context.Background(), models.CategoryIndices)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 4, res.SuccessCount)
	assert.Equal(t, 1, res.FailCount)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "C", res.Failed[0].Symbol)
	assert.NotEmpty(t, res.RunID)
	assert.Contains(t, seen, "fmp:D")
	assert.Contains(t, seen, "fmp:E")

	rows, err := h.repo.List(context.Background(), models.CategoryIndices)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Len(t, h.publisher.snaps, 4)
	assert.Equal(t, models.ProviderFMP, rows[0].GetSnapshot().LastSource)
}

func TestUpdateCategoryPausesPerProvider(t *testing.T) {
	store := &fakeConfig{
		symbols: map[models.Category][]models.TrackedSymbol{models.CategoryCrypto: tracked("BTC", "ETH", "SOL")},
		order:   []string{"unknown", models.ProviderCoinGecko, models.ProviderTradingView},
	}
	coingecko := providers.Func{ID: models.ProviderCoinGecko, Fn: func(_ context.Context, symbol string, _ providers.SymbolContext) (*providers.Quote, error) {
		if symbol == "ETH" {
			return nil, nil
		}
		return &providers.Quote{Value: 1}, nil
	}}
	h := newHarness(t, store, nil, coingecko, fixed(models.ProviderTradingView, 2))

	res := h.svc.UpdateCategory(context.Background(), models.CategoryCrypto)

	assert.Equal(t, 3, res.SuccessCount)
	// BTC: coingecko only; ETH: coingecko then tradingview; no pause after the last symbol
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.sleeps)
}

func TestUpdateCategoryDefaultDelayForUnlistedProvider(t *testing.T) {
	store := &fakeConfig{
		symbols: map[models.Category][]models.TrackedSymbol{models.CategoryIndices: tracked("A", "B")},
		order:   []string{models.ProviderMarketStack},
	}
	h := newHarness(t, store, nil, fixed(models.ProviderMarketStack, 10))

	h.svc.UpdateCategory(context.Background(), models.CategoryIndices)

	assert.Equal(t, []time.Duration{15 * time.Second}, h.sleeps)
}

func TestUpdateCategoryStopsWhenCancelled(t *testing.T) {
	store := &fakeConfig{
		symbols: map[models.Category][]models.TrackedSymbol{models.CategoryIndices: tracked("A", "B", "C")},
		order:   []string{models.ProviderMarketStack},
	}
	h := newHarness(t, store, nil, fixed(models.ProviderMarketStack, 10))
	ctx, cancel := context.WithCancel(context.Background())
	h.svc.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	res := h.svc.UpdateCategory(ctx, models.CategoryIndices)

	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 2, res.Skipped)
}

func TestUpdateCategoryWithNoSymbolsIsNoop(t *testing.T) {
	h := newHarness(t, &fakeConfig{}, nil)

	res := h.svc.UpdateCommodities(context.Background())

	assert.Zero(t, res.Total)
	assert.Zero(t, res.FailCount)
	assert.Empty(t, h.sleeps)
}

func writeTradingViewFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradingview_indices.json")
	body := `{"generated_at":"2024-05-01T11:00:00Z","items":[{"symbol":"SPX","name":"S&P 500","last":5000,"change":25,"change_percent":0.5}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestEndToEndFallsBackToTradingView(t *testing.T) {
	db := testutil.OpenDB(t)
	clk := clock.NewManual(start)
	store := marketconfig.NewStore(db, cache.NewMemory(clk), time.Minute, testutil.Logger())
	ctx := context.Background()

	require.NoError(t, db.Create(&models.TrackedSymbol{
		Category: models.CategoryIndices, Symbol: "^GSPC", Name: "S&P 500", IsActive: true,
	}).Error)
	_, err := store.UpdateProviderPreference(ctx, marketconfig.PreferenceInput{
		Category:      models.CategoryIndices,
		ProviderOrder: []string{models.ProviderMarketStack, models.ProviderTradingView},
	})
	require.NoError(t, err)

	marketstackCalls := 0
	marketstack := providers.Func{ID: models.ProviderMarketStack, Fn: func(context.Context, string, providers.SymbolContext) (*providers.Quote, error) {
		marketstackCalls++
		return nil, nil
	}}
	tv := providers.NewTradingView(writeTradingViewFile(t), clk, testutil.Logger())

	h := newHarness(t, store, tv, marketstack, tv)
	h.repo = snapshots.NewRepository(db, clk)
	h.svc.repo = h.repo
	h.svc.clock = clk

	res := h.svc.UpdateIndices(ctx)
	require.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, marketstackCalls)

	row, err := h.repo.Get(ctx, models.CategoryIndices, "^GSPC")
	require.NoError(t, err)
	snap := row.GetSnapshot()
	assert.True(t, snap.Value.Equal(decimal.NewFromInt(5000)))
	assert.True(t, snap.Change.Equal(decimal.NewFromInt(25)))
	assert.True(t, snap.ChangePercent.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, snap.PreviousClose.Equal(decimal.NewFromInt(4975)))
	assert.Equal(t, models.ProviderTradingView, snap.LastSource)
	assert.Equal(t, "S&P 500", snap.Name)
}

func TestRefreshTradingViewFillsOnlyMissingOrStale(t *testing.T) {
	clk := clock.NewManual(start)
	store := &fakeConfig{symbols: map[models.Category][]models.TrackedSymbol{
		models.CategoryIndices: {
			{Symbol: "^GSPC", Name: "S&P 500", IsActive: true},
			{Symbol: "^FTSE", Name: "FTSE 100", IsActive: true},
		},
	}}
	tv := providers.NewTradingView(writeTradingViewFile(t), clk, testutil.Logger())
	h := newHarness(t, store, tv)
	ctx := context.Background()

	res := h.svc.RefreshTradingView(ctx)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailCount)
	require.NotNil(t, res.SourceGeneratedAt)
	assert.True(t, res.SourceGeneratedAt.Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)))

	// the fresh ^GSPC row is left alone
	res = h.svc.RefreshTradingView(ctx)
	assert.Equal(t, 1, res.Total)
	assert.Zero(t, res.SuccessCount)

	h.clock.Advance(16 * time.Minute)
	res = h.svc.RefreshTradingView(ctx)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.SuccessCount)
}
