// Package marketdata runs category update batches and serves the
// stale-while-revalidate read path over the persisted snapshots.
package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"market_backend/models"
	"market_backend/services/clock"
	"market_backend/services/fallback"
	"market_backend/services/marketconfig"
	"market_backend/services/metrics"
	"market_backend/services/providers"
	"market_backend/services/snapshots"
)

const (
	DefaultSymbolDelay = 15 * time.Second
	DefaultStaleAfter  = 15 * time.Minute
)

// ConfigSource supplies tracked symbols and the provider order
type ConfigSource interface {
	GetTrackedSymbols(ctx context.Context, category models.Category, opts marketconfig.Options) []models.TrackedSymbol
	GetProviderPreference(ctx context.Context, category models.Category) models.ProviderPreference
}

// Publisher receives every snapshot written by an update
type Publisher interface {
	Publish(category models.Category, snap models.Snapshot)
}

// SnapshotFile is the file backed TradingView adapter
type SnapshotFile interface {
	providers.Adapter
	Reload()
	GeneratedAt() (time.Time, bool)
}

// Refresher starts a background category update
type Refresher interface {
	Trigger(category models.Category) bool
}

type Config struct {
	// DefaultDelay is the pause after a symbol served by a provider missing from ProviderDelays
	DefaultDelay   time.Duration
	ProviderDelays map[string]time.Duration
	StaleAfter     map[models.Category]time.Duration
}

type Deps struct {
	Store       ConfigSource
	Resolver    *fallback.Resolver
	Repo        *snapshots.Repository
	TradingView SnapshotFile
	Publisher   Publisher
	Metrics     *metrics.Metrics
	Logger      logrus.FieldLogger
	Clock       clock.Clock
	// Refresher defaults to a BackgroundRefresher running UpdateCategory
	Refresher Refresher
}

type Service struct {
	store       ConfigSource
	resolver    *fallback.Resolver
	repo        *snapshots.Repository
	tradingView SnapshotFile
	publisher   Publisher
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
	clock       clock.Clock
	refresher   Refresher
	owned       *BackgroundRefresher
	cfg         Config

	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(deps Deps, cfg Config) *Service {
	s := &Service{
		store:       deps.Store,
		resolver:    deps.Resolver,
		repo:        deps.Repo,
		tradingView: deps.TradingView,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		clock:       deps.Clock,
		refresher:   deps.Refresher,
		cfg:         cfg,
		sleep:       sleepContext,
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.cfg.DefaultDelay < 0 {
		s.cfg.DefaultDelay = 0
	}
	if s.refresher == nil {
		s.owned = NewBackgroundRefresher(s.UpdateCategory, s.logger)
		s.refresher = s.owned
	}
	return s
}

// Close stops background refreshes started by the read path and waits for them
func (s *Service) Close() {
	if s.owned != nil {
		s.owned.Stop()
		s.owned.Wait()
	}
}

type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// BatchResult summarizes one category update
type BatchResult struct {
	RunID        string          `json:"run_id"`
	Category     models.Category `json:"category"`
	Total        int             `json:"total"`
	SuccessCount int             `json:"success_count"`
	FailCount    int             `json:"fail_count"`
	Skipped      int             `json:"skipped"`
	Failed       []SymbolFailure `json:"failed,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`

	// SourceGeneratedAt is when the TradingView snapshot file was produced
	SourceGeneratedAt *time.Time `json:"source_generated_at,omitempty"`
}

// UpdateCategory refreshes every active symbol of category one at a time.
// A failing symbol is tallied and the batch moves on; cancelling ctx stops
// the batch and counts the remaining symbols as skipped.
func (s *Service) UpdateCategory(ctx context.Context, category models.Category) BatchResult {
	res := BatchResult{RunID: uuid.NewString(), Category: category, StartedAt: s.clock.Now()}
	log := s.logger.WithFields(logrus.Fields{"category": category, "run_id": res.RunID})

	symbols := s.store.GetTrackedSymbols(ctx, category, marketconfig.Options{})
	res.Total = len(symbols)
	if len(symbols) == 0 {
		log.Info("no active symbols to update")
		return s.finish(res, log)
	}

	pref := s.store.GetProviderPreference(ctx, category)
	log.WithFields(logrus.Fields{
		"symbols": len(symbols),
		"order":   strings.Join(pref.ProviderOrder, ","),
	}).Info("category update started")

	var pause time.Duration
	for i, sym := range symbols {
		if i > 0 {
			if err := s.sleep(ctx, pause); err != nil {
				res.Skipped = len(symbols) - i
				log.WithError(err).WithField("skipped", res.Skipped).Warn("category update interrupted")
				break
			}
		}

		var failure *SymbolFailure
		failure, pause = s.updateSymbol(ctx, category, sym, pref.ProviderOrder)
		if failure != nil {
			res.FailCount++
			res.Failed = append(res.Failed, *failure)
			continue
		}
		res.SuccessCount++
	}
	return s.finish(res, log)
}

func (s *Service) finish(res BatchResult, log logrus.FieldLogger) BatchResult {
	res.FinishedAt = s.clock.Now()
	s.metrics.ObserveBatch(string(res.Category), res.SuccessCount, res.FailCount, res.FinishedAt.Sub(res.StartedAt))
	if res.Total > 0 {
		log.WithFields(logrus.Fields{
			"success":  res.SuccessCount,
			"failed":   res.FailCount,
			"skipped":  res.Skipped,
			"duration": res.FinishedAt.Sub(res.StartedAt).String(),
		}).Info("category update finished")
	}
	return res
}

// updateSymbol resolves and stores one symbol. The returned pause is the
// longest delay configured for the providers that were actually called.
func (s *Service) updateSymbol(ctx context.Context, category models.Category, sym models.TrackedSymbol, order []string) (*SymbolFailure, time.Duration) {
	log := s.logger.WithFields(logrus.Fields{"category": category, "symbol": sym.Symbol})

	result := s.resolver.FetchSnapshot(ctx, sym.Symbol, order, providers.ContextFor(category, sym))
	pause := s.pauseAfter(result.Attempts)

	if !result.OK() {
		log.WithField("attempts", len(result.Attempts)).Warn("no provider returned data")
		return &SymbolFailure{Symbol: sym.Symbol, Reason: "all providers failed"}, pause
	}

	snap, err := s.repo.Upsert(ctx, category, sym, result.Quote, result.Provider)
	if err != nil {
		log.WithError(err).Error("failed to store snapshot")
		return &SymbolFailure{Symbol: sym.Symbol, Reason: err.Error()}, pause
	}
	if s.publisher != nil {
		s.publisher.Publish(category, snap)
	}
	log.WithFields(logrus.Fields{"provider": result.Provider, "value": snap.Value.String()}).Debug("snapshot updated")
	return nil, pause
}

func (s *Service) pauseAfter(attempts []fallback.Attempt) time.Duration {
	var pause time.Duration
	for _, a := range attempts {
		if a.Outcome == fallback.OutcomeUnknown {
			continue
		}
		d, ok := s.cfg.ProviderDelays[a.Provider]
		if !ok {
			d = s.cfg.DefaultDelay
		}
		if d > pause {
			pause = d
		}
	}
	return pause
}

func (s *Service) UpdateIndices(ctx context.Context) BatchResult {
	return s.UpdateCategory(ctx, models.CategoryIndices)
}

func (s *Service) UpdateCryptocurrencies(ctx context.Context) BatchResult {
	return s.UpdateCategory(ctx, models.CategoryCrypto)
}

func (s *Service) UpdateCurrencies(ctx context.Context) BatchResult {
	return s.UpdateCategory(ctx, models.CategoryCurrencies)
}

func (s *Service) UpdateCommodities(ctx context.Context) BatchResult {
	return s.UpdateCategory(ctx, models.CategoryCommodities)
}

// RefreshTradingView reloads the snapshot file and fills every tracked index
// whose row is missing or stale straight from it. The file is local so there is no pacing.
func (s *Service) RefreshTradingView(ctx context.Context) BatchResult {
	res := BatchResult{RunID: uuid.NewString(), Category: models.CategoryIndices, StartedAt: s.clock.Now()}
	log := s.logger.WithFields(logrus.Fields{"job": "tradingview", "run_id": res.RunID})
	if s.tradingView == nil {
		return res
	}
	s.tradingView.Reload()
	if ts, ok := s.tradingView.GeneratedAt(); ok {
		res.SourceGeneratedAt = &ts
		log = log.WithField("generated_at", ts.Format(time.RFC3339))
	}

	symbols := s.store.GetTrackedSymbols(ctx, models.CategoryIndices, marketconfig.Options{})
	rows, err := s.repo.List(ctx, models.CategoryIndices)
	if err != nil {
		log.WithError(err).Warn("failed to read index snapshots")
	}
	current := indexBySymbol(rows)

	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		if snap, ok := current[sym.Symbol]; ok && !s.IsStale(models.CategoryIndices, snap) {
			continue
		}
		res.Total++

		q, err := s.tradingView.Fetch(ctx, sym.Symbol, providers.ContextFor(models.CategoryIndices, sym))
		if err != nil || !q.Valid() {
			res.FailCount++
			res.Failed = append(res.Failed, SymbolFailure{Symbol: sym.Symbol, Reason: "not in tradingview snapshot"})
			continue
		}
		snap, err := s.repo.Upsert(ctx, models.CategoryIndices, sym, q, s.tradingView.Name())
		if err != nil {
			log.WithError(err).WithField("symbol", sym.Symbol).Error("failed to store snapshot")
			res.FailCount++
			res.Failed = append(res.Failed, SymbolFailure{Symbol: sym.Symbol, Reason: err.Error()})
			continue
		}
		if s.publisher != nil {
			s.publisher.Publish(models.CategoryIndices, snap)
		}
		res.SuccessCount++
	}

	res.FinishedAt = s.clock.Now()
	log.WithFields(logrus.Fields{"filled": res.SuccessCount, "missing": res.FailCount}).Info("tradingview snapshot refresh finished")
	return res
}

// TriggerRefresh starts a background update of category unless one is already running
func (s *Service) TriggerRefresh(category models.Category) bool {
	started := s.refresher.Trigger(category)
	s.metrics.ObserveRefreshTrigger(string(category), started)
	return started
}

func indexBySymbol(rows []models.SnapshotRow) map[string]models.Snapshot {
	out := make(map[string]models.Snapshot, len(rows))
	for _, row := range rows {
		snap := row.GetSnapshot()
		out[snap.Symbol] = snap
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
