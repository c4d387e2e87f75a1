package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"market_backend/models"
	"market_backend/services/marketdata"
)

type JobName string

const (
	JobCrypto      JobName = "crypto"
	JobIndices     JobName = "indices"
	JobCurrencies  JobName = "currencies"
	JobCommodities JobName = "commodities"
	JobTradingView JobName = "tradingview"
)

// Jobs lists every job in registration order
var Jobs = []JobName{JobCrypto, JobIndices, JobCurrencies, JobCommodities, JobTradingView}

// initialJobs run once right after start. Indices and commodities are left to
// their first tick because their per-symbol pacing makes them slow.
var initialJobs = []JobName{JobCrypto, JobCurrencies, JobTradingView}

var DefaultIntervals = map[JobName]time.Duration{
	JobCrypto:      2 * time.Minute,
	JobIndices:     5 * time.Minute,
	JobCurrencies:  15 * time.Minute,
	JobCommodities: 30 * time.Minute,
	JobTradingView: time.Hour,
}

var (
	ErrAlreadyRunning  = errors.New("scheduler already running")
	ErrUnknownJob      = errors.New("unknown scheduler job")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// ParseJob accepts a job name in any case
func ParseJob(raw string) (JobName, error) {
	name := JobName(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := DefaultIntervals[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownJob, raw)
	}
	return name, nil
}

// Updater performs the work behind each job
type Updater interface {
	UpdateCategory(ctx context.Context, category models.Category) marketdata.BatchResult
	RefreshTradingView(ctx context.Context) marketdata.BatchResult
}

// Scheduler owns the recurring update jobs. It moves between stopped and
// running; interval changes take effect the next time jobs are registered.
type Scheduler struct {
	updater Updater
	logger  logrus.FieldLogger

	mu        sync.Mutex
	cron      *gocron.Scheduler
	running   bool
	cancel    context.CancelFunc
	intervals map[JobName]time.Duration
	active    map[JobName]time.Duration
	last      map[JobName]marketdata.BatchResult
	startedAt time.Time

	wg sync.WaitGroup
}

// NewScheduler builds a stopped scheduler. intervals overrides the defaults;
// unknown job names and non-positive durations are ignored.
func NewScheduler(updater Updater, intervals map[string]time.Duration, logger logrus.FieldLogger) *Scheduler {
	s := &Scheduler{
		updater:   updater,
		logger:    logger.WithField("component", "scheduler"),
		intervals: make(map[JobName]time.Duration, len(DefaultIntervals)),
		last:      make(map[JobName]marketdata.BatchResult),
	}
	for name, d := range DefaultIntervals {
		s.intervals[name] = d
	}
	for raw, d := range intervals {
		name := JobName(raw)
		if _, ok := DefaultIntervals[name]; !ok || d <= 0 {
			s.logger.WithFields(logrus.Fields{"job": raw, "interval": d}).Warn("ignoring scheduler interval")
			continue
		}
		s.intervals[name] = d
	}
	return s
}

// Start registers every job and kicks off the initial fetch in the background
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	cron := gocron.NewScheduler(time.UTC)
	active := make(map[JobName]time.Duration, len(Jobs))

	for _, name := range Jobs {
		name, interval := name, s.intervals[name]
		_, err := cron.Every(interval).
			Tag(string(name)).
			SingletonMode().
			WaitForSchedule().
			Do(func() { s.runJob(ctx, name) })
		if err != nil {
			cancel()
			cron.Clear()
			return fmt.Errorf("failed to schedule %s job: %w", name, err)
		}
		active[name] = interval
	}

	cron.StartAsync()
	s.cron, s.cancel, s.active = cron, cancel, active
	s.running = true
	s.startedAt = time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, name := range initialJobs {
			if ctx.Err() != nil {
				return
			}
			s.runJob(ctx, name)
		}
	}()

	s.logger.WithFields(logrus.Fields{
		"crypto":      active[JobCrypto].String(),
		"indices":     active[JobIndices].String(),
		"currencies":  active[JobCurrencies].String(),
		"commodities": active[JobCommodities].String(),
		"tradingview": active[JobTradingView].String(),
	}).Info("market data scheduler started")
	return nil
}

// Stop cancels in-flight batches, removes every job and waits for the initial fetch
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, cron := s.cancel, s.cron
	s.cron, s.cancel, s.active = nil, nil, nil
	s.mu.Unlock()

	cancel()
	cron.Stop()
	cron.Clear()
	s.wg.Wait()
	s.logger.Info("market data scheduler stopped")
}

// Restart re-registers the jobs so pending interval changes apply
func (s *Scheduler) Restart() error {
	s.Stop()
	return s.Start()
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetInterval stores a new period for job. Running jobs keep their period until the next Start.
func (s *Scheduler) SetInterval(job JobName, d time.Duration) error {
	if _, ok := DefaultIntervals[job]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
	if d <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	s.intervals[job] = d
	running := s.running
	s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{"job": job, "interval": d.String()})
	if running {
		log.Info("scheduler interval updated, applies after restart")
	} else {
		log.Info("scheduler interval updated")
	}
	return nil
}

// AutoStart starts the scheduler after delay unless disabled or ctx ends first
func (s *Scheduler) AutoStart(ctx context.Context, delay time.Duration, disabled bool) {
	if disabled {
		s.logger.Info("market data auto update disabled")
		return
	}
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := s.Start(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.logger.WithError(err).Error("failed to start market data scheduler")
		}
	}()
}

func (s *Scheduler) runJob(ctx context.Context, name JobName) {
	if ctx.Err() != nil {
		return
	}
	log := s.logger.WithField("job", name)
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("scheduler job panicked: %v", rec)
		}
	}()

	var res marketdata.BatchResult
	if name == JobTradingView {
		res = s.updater.RefreshTradingView(ctx)
	} else {
		res = s.updater.UpdateCategory(ctx, models.Category(name))
	}

	s.mu.Lock()
	s.last[name] = res
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"run_id":  res.RunID,
		"total":   res.Total,
		"success": res.SuccessCount,
		"failed":  res.FailCount,
	}).Info("scheduler job finished")
}

type JobStatus struct {
	Name       JobName                 `json:"name"`
	Interval   string                  `json:"interval"`
	Configured string                  `json:"configured_interval"`
	NextRun    *time.Time              `json:"next_run,omitempty"`
	LastResult *marketdata.BatchResult `json:"last_result,omitempty"`
}

type Status struct {
	Running   bool        `json:"running"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	Jobs      []JobStatus `json:"jobs"`
}

// Status reports the lifecycle state, the registered and configured interval
// of each job and its most recent result.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, Jobs: make([]JobStatus, 0, len(Jobs))}
	if s.running {
		started := s.startedAt
		st.StartedAt = &started
	}

	next := map[string]time.Time{}
	if s.cron != nil {
		for _, job := range s.cron.Jobs() {
			for _, tag := range job.Tags() {
				next[tag] = job.NextRun()
			}
		}
	}

	for _, name := range Jobs {
		js := JobStatus{Name: name, Configured: s.intervals[name].String()}
		if d, ok := s.active[name]; ok {
			js.Interval = d.String()
		}
		if t, ok := next[string(name)]; ok && !t.IsZero() {
			js.NextRun = &t
		}
		if res, ok := s.last[name]; ok {
			res := res
			js.LastResult = &res
		}
		st.Jobs = append(st.Jobs, js)
	}
	return st
}
