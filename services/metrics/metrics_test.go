package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt("finnhub", "success", time.Second)
		m.ObserveBatch("indices", 1, 2, time.Second)
		m.ObserveRefreshTrigger("crypto", true)
	})
}

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAttempt("finnhub", "error", 10*time.Millisecond)
	m.ObserveAttempt("finnhub", "error", 10*time.Millisecond)
	m.ObserveBatch("indices", 4, 1, time.Minute)
	m.ObserveRefreshTrigger("crypto", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerAttempts.WithLabelValues("finnhub", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.symbolResults.WithLabelValues("indices", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.symbolResults.WithLabelValues("indices", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshTriggers.WithLabelValues("crypto", "false")))
}
