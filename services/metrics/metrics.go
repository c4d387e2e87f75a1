// Package metrics exposes Prometheus collectors for provider calls and batch runs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	symbolResults    *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	refreshTriggers  *prometheus.CounterVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "provider_attempts_total",
			Help:      "Provider fetch attempts by outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "market",
			Name:      "provider_request_seconds",
			Help:      "Provider fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		symbolResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "batch_symbols_total",
			Help:      "Symbols processed by category update batches.",
		}, []string{"category", "result"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "market",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a category update batch.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"category"}),
		refreshTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Name:      "stale_refresh_triggers_total",
			Help:      "Background refreshes requested by the read path.",
		}, []string{"category", "started"}),
	}
	reg.MustRegister(m.providerAttempts, m.providerLatency, m.symbolResults, m.batchDuration, m.refreshTriggers)
	return m
}

func (m *Metrics) ObserveAttempt(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ObserveBatch(category string, success, fail int, d time.Duration) {
	if m == nil {
		return
	}
	m.symbolResults.WithLabelValues(category, "success").Add(float64(success))
	m.symbolResults.WithLabelValues(category, "fail").Add(float64(fail))
	m.batchDuration.WithLabelValues(category).Observe(d.Seconds())
}

func (m *Metrics) ObserveRefreshTrigger(category string, started bool) {
	if m == nil {
		return
	}
	label := "false"
	if started {
		label = "true"
	}
	m.refreshTriggers.WithLabelValues(category, label).Inc()
}
