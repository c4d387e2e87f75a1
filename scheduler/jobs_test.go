package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_backend/models"
	"market_backend/services/marketdata"
	"market_backend/testutil"
)

type fakeUpdater struct {
	mu    sync.Mutex
	calls map[JobName]int
	order []JobName
}

func (f *fakeUpdater) record(name JobName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[JobName]int{}
	}
	f.calls[name]++
	f.order = append(f.order, name)
}

func (f *fakeUpdater) count(name JobName) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeUpdater) UpdateCategory(_ context.Context, category models.Category) marketdata.BatchResult {
	f.record(JobName(category))
	return marketdata.BatchResult{RunID: "run-" + string(category), Category: category, Total: 1, SuccessCount: 1}
}

func (f *fakeUpdater) RefreshTradingView(context.Context) marketdata.BatchResult {
	f.record(JobTradingView)
	return marketdata.BatchResult{RunID: "run-tv", Category: models.CategoryIndices}
}

func TestStartRunsInitialFetchForFastCategoriesOnly(t *testing.T) {
	u := &fakeUpdater{}
	s := NewScheduler(u, nil, testutil.Logger())

	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool { return u.count(JobTradingView) == 1 }, 2*time.Second, 10*time.Millisecond)
	u.mu.Lock()
	assert.Equal(t, []JobName{JobCrypto, JobCurrencies, JobTradingView}, u.order)
	u.mu.Unlock()
	assert.Zero(t, u.count(JobIndices))
	assert.Zero(t, u.count(JobCommodities))
}

func TestStartTwiceFails(t *testing.T) {
	s := NewScheduler(&fakeUpdater{}, nil, testutil.Logger())

	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
	assert.True(t, s.IsRunning())
}

func TestStopThenStartAgain(t *testing.T) {
	s := NewScheduler(&fakeUpdater{}, nil, testutil.Logger())

	require.NoError(t, s.Start())
	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	s.Stop()
}

func TestJobsTickAtTheirInterval(t *testing.T) {
	u := &fakeUpdater{}
	s := NewScheduler(u, map[string]time.Duration{"commodities": 100 * time.Millisecond}, testutil.Logger())

	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	assert.Eventually(t, func() bool { return u.count(JobCommodities) >= 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestSetIntervalAppliesOnRestart(t *testing.T) {
	s := NewScheduler(&fakeUpdater{}, nil, testutil.Logger())
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	require.NoError(t, s.SetInterval(JobIndices, 10*time.Minute))
	st := s.Status()
	indices := st.Jobs[1]
	assert.Equal(t, JobIndices, indices.Name)
	assert.Equal(t, "5m0s", indices.Interval)
	assert.Equal(t, "10m0s", indices.Configured)

	require.NoError(t, s.Restart())
	st = s.Status()
	assert.Equal(t, "10m0s", st.Jobs[1].Interval)
	require.NotNil(t, st.Jobs[1].NextRun)
	assert.True(t, st.Running)
}

func TestSetIntervalValidation(t *testing.T) {
	s := NewScheduler(&fakeUpdater{}, nil, testutil.Logger())

	assert.ErrorIs(t, s.SetInterval("weather", time.Minute), ErrUnknownJob)
	assert.ErrorIs(t, s.SetInterval(JobCrypto, 0), ErrInvalidInterval)

	_, err := ParseJob("bonds")
	assert.ErrorIs(t, err, ErrUnknownJob)
	name, err := ParseJob(" TradingView ")
	require.NoError(t, err)
	assert.Equal(t, JobTradingView, name)
}

func TestNewSchedulerIgnoresBadIntervals(t *testing.T) {
	s := NewScheduler(&fakeUpdater{}, map[string]time.Duration{"crypto": -time.Second, "weather": time.Minute}, testutil.Logger())

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "2m0s", st.Jobs[0].Configured)
	assert.Empty(t, st.Jobs[0].Interval)
	assert.Len(t, st.Jobs, len(Jobs))
}

func TestStatusRecordsLastResult(t *testing.T) {
	u := &fakeUpdater{}
	s := NewScheduler(u, nil, testutil.Logger())
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool { return u.count(JobTradingView) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Jobs[4].LastResult != nil
	}, time.Second, 10*time.Millisecond)

	st := s.Status()
	require.NotNil(t, st.Jobs[0].LastResult)
	assert.Equal(t, "run-crypto", st.Jobs[0].LastResult.RunID)
	assert.Nil(t, st.Jobs[1].LastResult)
}

func TestAutoStart(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := NewScheduler(&fakeUpdater{}, nil, testutil.Logger())
		s.AutoStart(context.Background(), time.Millisecond, true)
		time.Sleep(20 * time.Millisecond)
		assert.False(t, s.IsRunning())
	})

	t.Run("starts after delay", func(t *testing.T) {
		s := NewScheduler(&fakeUpdater{}, nil, testutil.Logger())
		t.Cleanup(s.Stop)
		s.AutoStart(context.Background(), 10*time.Millisecond, false)
		assert.Eventually(t, s.IsRunning, time.Second, 5*time.Millisecond)
	})

	t.Run("cancelled before delay", func(t *testing.T) {
		s := NewScheduler(&fakeUpdater{}, nil, testutil.Logger())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.AutoStart(ctx, 10*time.Millisecond, false)
		time.Sleep(30 * time.Millisecond)
		assert.False(t, s.IsRunning())
	})
}
