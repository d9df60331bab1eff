package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toddfishman/meetini/internal/clock"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	reminderdomain "github.com/toddfishman/meetini/internal/reminder/domain"
	schedtest "github.com/toddfishman/meetini/internal/scheduler/testing"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeDispatcher struct {
	rec    *recorder
	result reminderdomain.DispatchResult
	err    error
	block  bool
}

func (f *fakeDispatcher) ProcessReminders(ctx context.Context) (reminderdomain.DispatchResult, error) {
	f.rec.add(JobDispatchReminders)
	if f.block {
		<-ctx.Done()
		return f.result, ctx.Err()
	}
	return f.result, f.err
}

type fakeSweeper struct {
	rec    *recorder
	result reminderdomain.CleanupResult
	err    error
}

func (f *fakeSweeper) CleanupReminders(context.Context) (reminderdomain.CleanupResult, error) {
	f.rec.add(JobCleanupReminders)
	return f.result, f.err
}

func newTestScheduler(t *testing.T, d *fakeDispatcher, sw *fakeSweeper, cfg Config) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(Params{
		Log:        zaptest.NewLogger(t),
		GenID:      schedtest.NewNode(t),
		Clock:      clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		Dispatcher: d,
		Sweeper:    sw,
		Metrics:    obsmetrics.NewSchedulerMetricsForTest(reg),
		Config:     cfg,
	})
	require.NoError(t, err)
	return s, reg
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Params{Log: zaptest.NewLogger(t)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceDispatchesThenCleansUp(t *testing.T) {
	rec := &recorder{}
	d := &fakeDispatcher{rec: rec, result: reminderdomain.DispatchResult{Due: 3, Sent: 2, Raced: 1}}
	sw := &fakeSweeper{rec: rec, result: reminderdomain.CleanupResult{ExpiredDeleted: 4}}
	s, reg := newTestScheduler(t, d, sw, Config{})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{JobDispatchReminders, JobCleanupReminders}, rec.list())
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Skipped)
	assert.Equal(t, 2, report.Dispatch.Sent)
	assert.Equal(t, 1, report.Dispatch.Raced)
	assert.EqualValues(t, 4, report.Cleanup.ExpiredDeleted)

	count, err := testutil.GatherAndCount(reg, "meetini_scheduler_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunOnceCleanupRunsWhenDispatchFails(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	d := &fakeDispatcher{rec: rec, err: boom}
	sw := &fakeSweeper{rec: rec, result: reminderdomain.CleanupResult{CancelledDeleted: 1}}
	s, _ := newTestScheduler(t, d, sw, Config{})

	report, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobDispatchReminders)
	assert.Equal(t, []string{JobDispatchReminders, JobCleanupReminders}, rec.list())
	assert.EqualValues(t, 1, report.Cleanup.CancelledDeleted)
}

func TestRunOnceJoinsErrors(t *testing.T) {
	rec := &recorder{}
	d := &fakeDispatcher{rec: rec, err: errors.New("list failed")}
	sw := &fakeSweeper{rec: rec, err: errors.New("delete failed")}
	s, _ := newTestScheduler(t, d, sw, Config{})

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list failed")
	assert.Contains(t, err.Error(), "delete failed")
}

func TestRunOnceJobTimeoutIsSoft(t *testing.T) {
	rec := &recorder{}
	d := &fakeDispatcher{rec: rec, block: true}
	sw := &fakeSweeper{rec: rec}
	s, reg := newTestScheduler(t, d, sw, Config{DispatchTimeout: 20 * time.Millisecond})

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{JobDispatchReminders, JobCleanupReminders}, rec.list())

	count, err := testutil.GatherAndCount(reg, "meetini_scheduler_job_timeouts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestScheduler(t, &fakeDispatcher{rec: rec}, &fakeSweeper{rec: rec}, Config{
		EnabledJobs: []string{"Cleanup_Reminders"},
	})

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{JobCleanupReminders}, rec.list())
}

func TestProvideConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig().DispatchTimeout, cfg.DispatchTimeout)
	assert.Equal(t, DefaultConfig().LockTTL, cfg.LockTTL)
	assert.Empty(t, cfg.CronSpec)
}
