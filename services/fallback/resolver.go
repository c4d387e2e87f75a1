// Package fallback walks a provider order and returns the first usable quote.
package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"market_backend/services/metrics"
	"market_backend/services/providers"
)

// Attempt outcomes
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeUnknown = "unknown"
)

type Attempt struct {
	Provider string        `json:"provider"`
	Outcome  string        `json:"outcome"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of one symbol resolution. Quote is nil when every provider failed.
type Result struct {
	Provider string
	Quote    *providers.Quote
	Attempts []Attempt
}

func (r Result) OK() bool { return r.Quote != nil }

type Resolver struct {
	registry *providers.Registry
	timeout  time.Duration
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewResolver builds a resolver. timeout bounds each provider call; zero means no per-call bound.
func NewResolver(registry *providers.Registry, timeout time.Duration, logger logrus.FieldLogger, m *metrics.Metrics) *Resolver {
	return &Resolver{registry: registry, timeout: timeout, logger: logger, metrics: m}
}

// FetchSnapshot tries each provider in order, one at a time, and stops at the
// first quote with a finite value. Empty answers, errors, panics and unknown
// provider ids all move on to the next entry. Cancelling ctx stops the walk.
func (r *Resolver) FetchSnapshot(ctx context.Context, symbol string, order []string, sc providers.SymbolContext) Result {
	res := Result{Attempts: make([]Attempt, 0, len(order))}
	log := r.logger.WithFields(logrus.Fields{"symbol": symbol, "category": sc.Category})

	for _, id := range order {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Debug("provider walk cancelled")
			break
		}

		adapter, ok := r.registry.Get(id)
		if !ok {
			res.Attempts = append(res.Attempts, Attempt{Provider: id, Outcome: OutcomeUnknown})
			log.WithField("provider", id).Debug("unknown provider in preference order")
			continue
		}

		start := time.Now()
		q, err := r.call(ctx, adapter, symbol, sc)
		attempt := Attempt{Provider: id, Duration: time.Since(start)}

		switch {
		case err != nil:
			attempt.Outcome = OutcomeError
			attempt.Err = err.Error()
			log.WithError(err).WithField("provider", id).Warn("provider fetch failed")
		case !q.Valid():
			attempt.Outcome = OutcomeEmpty
			log.WithField("provider", id).Debug("provider returned no data")
		default:
			attempt.Outcome = OutcomeSuccess
		}
		r.metrics.ObserveAttempt(id, attempt.Outcome, attempt.Duration)
		res.Attempts = append(res.Attempts, attempt)

		if attempt.Outcome == OutcomeSuccess {
			res.Provider = id
			res.Quote = q.Normalize()
			return res
		}
	}
	return res
}

func (r *Resolver) call(ctx context.Context, a providers.Adapter, symbol string, sc providers.SymbolContext) (q *providers.Quote, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			q, err = nil, fmt.Errorf("provider %s panicked: %v", a.Name(), rec)
		}
	}()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return a.Fetch(ctx, symbol, sc)
}
