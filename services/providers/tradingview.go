package providers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"market_backend/models"
	"market_backend/services/clock"
)

const snapshotCacheTTL = 60 * time.Second

// TradingView looks symbols up in the scraped snapshot file. It never makes
// network calls and never returns an error: an unreadable file is "no data".
type TradingView struct {
	path   string
	clock  clock.Clock
	logger logrus.FieldLogger

	mu       sync.Mutex
	file     *models.TradingViewSnapshotFile
	loadedAt time.Time
	loaded   bool
}

func NewTradingView(path string, clk clock.Clock, logger logrus.FieldLogger) *TradingView {
	if clk == nil {
		clk = clock.System{}
	}
	return &TradingView{path: path, clock: clk, logger: logger}
}

func (t *TradingView) Name() string { return models.ProviderTradingView }

// Reload drops the cached snapshot so the next lookup re-reads the file
func (t *TradingView) Reload() {
	t.mu.Lock()
	t.loaded = false
	t.file = nil
	t.mu.Unlock()
}

func (t *TradingView) snapshot() *models.TradingViewSnapshotFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.loaded && now.Sub(t.loadedAt) < snapshotCacheTTL {
		return t.file
	}
	t.file, t.loadedAt, t.loaded = t.read(), now, true
	return t.file
}

func (t *TradingView) read() *models.TradingViewSnapshotFile {
	log := t.logger.WithFields(logrus.Fields{"provider": t.Name(), "path": t.path})
	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("tradingview snapshot file not found")
		} else {
			log.WithError(err).Warn("failed to read tradingview snapshot")
		}
		return nil
	}
	var file models.TradingViewSnapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.WithError(err).Warn("malformed tradingview snapshot")
		return nil
	}
	return &file
}

// GeneratedAt reports when the current snapshot was produced, if known
func (t *TradingView) GeneratedAt() (time.Time, bool) {
	file := t.snapshot()
	if file == nil || file.GeneratedAt == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, file.GeneratedAt)
	return ts, err == nil
}

func (t *TradingView) Fetch(_ context.Context, symbol string, sc SymbolContext) (*Quote, error) {
	item := t.Lookup(symbol, sc.Name)
	if item == nil || !item.Last.Valid {
		return nil, nil
	}

	q := &Quote{
		Value:         item.Last.Value,
		Change:        item.Change.Ptr(),
		ChangePercent: item.ChangePercent.Ptr(),
		High:          item.High.Ptr(),
		Low:           item.Low.Ptr(),
		Currency:      item.Currency,
	}
	if q.Change != nil {
		q.PreviousClose = Float(q.Value - *q.Change)
	}
	return q, nil
}

// Lookup finds the snapshot item for symbol, trying in order: exact symbol,
// the caret alias table, exact name, symbol substring, name substring.
func (t *TradingView) Lookup(symbol, name string) *models.TradingViewItem {
	file := t.snapshot()
	if file == nil || len(file.Items) == 0 {
		return nil
	}
	items := file.Items

	target := normalizeSymbol(symbol)
	if target == "" {
		return nil
	}
	if it := findItem(items, func(it models.TradingViewItem) bool { return normalizeSymbol(it.Symbol) == target }); it != nil {
		return it
	}
	if alias, ok := IndexAlias(symbol); ok {
		a := normalizeSymbol(alias)
		if it := findItem(items, func(it models.TradingViewItem) bool { return normalizeSymbol(it.Symbol) == a }); it != nil {
			return it
		}
	}
	wantName := normalizeName(name)
	if wantName != "" {
		if it := findItem(items, func(it models.TradingViewItem) bool { return normalizeName(it.Name) == wantName }); it != nil {
			return it
		}
	}
	if len(target) >= 2 {
		if it := findItem(items, func(it models.TradingViewItem) bool {
			return strings.Contains(normalizeSymbol(it.Symbol), target)
		}); it != nil {
			return it
		}
	}
	if wantName != "" {
		if it := findItem(items, func(it models.TradingViewItem) bool {
			n := normalizeName(it.Name)
			return n != "" && strings.Contains(n, wantName)
		}); it != nil {
			return it
		}
	}
	return nil
}

func findItem(items []models.TradingViewItem, match func(models.TradingViewItem) bool) *models.TradingViewItem {
	for i := range items {
		if match(items[i]) {
			return &items[i]
		}
	}
	return nil
}

// normalizeSymbol uppercases, drops an exchange prefix ("SP:SPX") and keeps only letters and digits
func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// normalizeName lowercases and collapses punctuation and whitespace runs into single spaces
func normalizeName(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})
	return strings.Join(fields, " ")
}
