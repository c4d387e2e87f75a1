// Package providers adapts external market data sources to a single normalized Quote.
package providers

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"market_backend/models"
)

var (
	// ErrRateLimited means the provider refused the call because of quota
	ErrRateLimited = errors.New("provider rate limited")
	// ErrCoolingDown means a previous rate limit response is still being honoured
	ErrCoolingDown = errors.New("provider cooling down")
)

// Quote is the provider-independent result. Only Value is required.
type Quote struct {
	Value         float64
	PreviousClose *float64
	Change        *float64
	ChangePercent *float64
	High          *float64
	Low           *float64
	LastUpdated   *time.Time
	Currency      string
}

// Valid reports whether q carries a finite value
func (q *Quote) Valid() bool {
	return q != nil && finite(q.Value)
}

// Normalize drops non-finite optional fields
func (q *Quote) Normalize() *Quote {
	if q == nil {
		return nil
	}
	for _, f := range []**float64{&q.PreviousClose, &q.Change, &q.ChangePercent, &q.High, &q.Low} {
		if *f != nil && !finite(**f) {
			*f = nil
		}
	}
	q.Currency = strings.ToUpper(strings.TrimSpace(q.Currency))
	return q
}

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// SymbolContext carries the tracked symbol's static metadata to adapters
type SymbolContext struct {
	Category models.Category
	Name     string
	Exchange string
	CoinID   string
	Unit     string
	Currency string
}

// ContextFor builds the adapter context for a tracked symbol
func ContextFor(category models.Category, s models.TrackedSymbol) SymbolContext {
	return SymbolContext{
		Category: category,
		Name:     s.Name,
		Exchange: s.Exchange,
		CoinID:   s.CoinID,
		Unit:     s.Unit,
		Currency: s.Currency,
	}
}

//go:generate mockgen -source=provider.go -destination=mocks/mock_adapter.go -package=mocks

// Adapter fetches one symbol from one provider. "No data" is (nil, nil);
// errors are reserved for transport, auth and quota failures.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, symbol string, sc SymbolContext) (*Quote, error)
}

// Func adapts a plain function to Adapter
type Func struct {
	ID string
	Fn func(ctx context.Context, symbol string, sc SymbolContext) (*Quote, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Fetch(ctx context.Context, symbol string, sc SymbolContext) (*Quote, error) {
	return f.Fn(ctx, symbol, sc)
}

// Registry maps provider ids to adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Name()] = a
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
