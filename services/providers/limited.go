package providers

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"market_backend/services/clock"
)

// Limited wraps an adapter with a token bucket and a cooldown that starts
// whenever the provider reports ErrRateLimited. Calls during the cooldown
// fail fast with ErrCoolingDown so the resolver moves on to the next provider.
type Limited struct {
	next     Adapter
	limiter  *rate.Limiter
	cooldown time.Duration
	clock    clock.Clock

	mu    sync.Mutex
	until time.Time
}

// NewLimited allows perMinute calls with the given burst. perMinute <= 0 disables the bucket.
func NewLimited(next Adapter, perMinute float64, burst int, cooldown time.Duration, clk clock.Clock) *Limited {
	l := &Limited{next: next, cooldown: cooldown, clock: clk}
	if clk == nil {
		l.clock = clock.System{}
	}
	if perMinute > 0 {
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(perMinute/60), burst)
	}
	return l
}

func (l *Limited) Name() string { return l.next.Name() }

// unwrap returns the decorated adapter
func (l *Limited) unwrap() Adapter { return l.next }

func (l *Limited) Fetch(ctx context.Context, symbol string, sc SymbolContext) (*Quote, error) {
	l.mu.Lock()
	cooling := l.clock.Now().Before(l.until)
	l.mu.Unlock()
	if cooling {
		return nil, ErrCoolingDown
	}

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	q, err := l.next.Fetch(ctx, symbol, sc)
	if errors.Is(err, ErrRateLimited) && l.cooldown > 0 {
		l.mu.Lock()
		l.until = l.clock.Now().Add(l.cooldown)
		l.mu.Unlock()
	}
	return q, err
}
