package marketdata

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"market_backend/models"
)

// BackgroundRefresher runs category updates in their own goroutines, at most
// one per category at a time. Stop cancels every run it started.
type BackgroundRefresher struct {
	run    func(ctx context.Context, category models.Category) BatchResult
	logger logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[models.Category]bool
	stopped  bool
}

func NewBackgroundRefresher(run func(ctx context.Context, category models.Category) BatchResult, logger logrus.FieldLogger) *BackgroundRefresher {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundRefresher{
		run:      run,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[models.Category]bool),
	}
}

// Trigger starts an update of category and returns false when one is already
// running or the refresher has been stopped.
func (r *BackgroundRefresher) Trigger(category models.Category) bool {
	r.mu.Lock()
	if r.stopped || r.inflight[category] {
		r.mu.Unlock()
		return false
	}
	r.inflight[category] = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.WithField("category", category).Errorf("background refresh panicked: %v", rec)
			}
			r.mu.Lock()
			delete(r.inflight, category)
			r.mu.Unlock()
		}()

		r.logger.WithField("category", category).Info("background refresh started")
		res := r.run(r.ctx, category)
		r.logger.WithFields(logrus.Fields{
			"category": category,
			"run_id":   res.RunID,
			"success":  res.SuccessCount,
			"failed":   res.FailCount,
		}).Info("background refresh finished")
	}()
	return true
}

// inFlight reports whether an update of category is running
func (r *BackgroundRefresher) inFlight(category models.Category) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight[category]
}

func (r *BackgroundRefresher) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()
}

func (r *BackgroundRefresher) Wait() {
	r.wg.Wait()
}
