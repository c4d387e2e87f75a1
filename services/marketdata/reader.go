package marketdata

import (
	"context"
	"time"

	"market_backend/models"
	"market_backend/services/marketconfig"
)

// GetCached returns the stored rows of category, restricted to symbols when
// given. If any wanted row is missing or stale a single background refresh of
// the whole category is requested; the call itself never waits on a provider.
func (s *Service) GetCached(ctx context.Context, category models.Category, symbols ...string) []models.SnapshotRow {
	rows, err := s.repo.List(ctx, category, symbols...)
	if err != nil {
		s.logger.WithError(err).WithField("category", category).Error("failed to read cached snapshots")
		rows = nil
	}

	if s.needsRefresh(ctx, category, rows, symbols) {
		s.TriggerRefresh(category)
	}
	if rows == nil {
		rows = []models.SnapshotRow{}
	}
	return rows
}

func (s *Service) GetCachedIndices(ctx context.Context, symbols ...string) []models.SnapshotRow {
	return s.GetCached(ctx, models.CategoryIndices, symbols...)
}

func (s *Service) GetCachedCryptocurrencies(ctx context.Context, symbols ...string) []models.SnapshotRow {
	return s.GetCached(ctx, models.CategoryCrypto, symbols...)
}

func (s *Service) GetCachedCurrencies(ctx context.Context, symbols ...string) []models.SnapshotRow {
	return s.GetCached(ctx, models.CategoryCurrencies, symbols...)
}

func (s *Service) GetCachedCommodities(ctx context.Context, symbols ...string) []models.SnapshotRow {
	return s.GetCached(ctx, models.CategoryCommodities, symbols...)
}

// StaleAfter is the age at which a row of category is considered stale
func (s *Service) StaleAfter(category models.Category) time.Duration {
	if d, ok := s.cfg.StaleAfter[category]; ok && d > 0 {
		return d
	}
	return DefaultStaleAfter
}

func (s *Service) IsStale(category models.Category, snap models.Snapshot) bool {
	return s.clock.Now().Sub(snap.LastUpdated) > s.StaleAfter(category)
}

// needsRefresh reports whether a tracked symbol the caller asked for (every
// active one when none were named) has no row yet or a stale one. Rows of
// untracked symbols are ignored since no update would touch them.
func (s *Service) needsRefresh(ctx context.Context, category models.Category, rows []models.SnapshotRow, symbols []string) bool {
	have := indexBySymbol(rows)
	requested := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		requested[symbol] = true
	}

	for _, sym := range s.store.GetTrackedSymbols(ctx, category, marketconfig.Options{}) {
		if len(requested) > 0 && !requested[sym.Symbol] {
			continue
		}
		snap, ok := have[sym.Symbol]
		if !ok || s.IsStale(category, snap) {
			return true
		}
	}
	return false
}
