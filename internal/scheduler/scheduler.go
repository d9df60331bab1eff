package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/toddfishman/meetini/internal/clock"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	"github.com/toddfishman/meetini/internal/ratelimit"
	reminderdomain "github.com/toddfishman/meetini/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Dispatcher reminderdomain.Dispatcher
	Sweeper    reminderdomain.Sweeper
	Locker     *ratelimit.Locker            `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Config     Config                       `optional:"true"`
}

// Scheduler runs the reminder jobs. One run dispatches due reminders and then
// sweeps old ones.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	dispatcher reminderdomain.Dispatcher
	sweeper    reminderdomain.Sweeper
	locker     *ratelimit.Locker
	metrics    *obsmetrics.SchedulerMetrics
}

// RunReport is the combined outcome of one run.
type RunReport struct {
	RunID      string                        `json:"run_id"`
	StartedAt  time.Time                     `json:"started_at"`
	DurationMS int64                         `json:"duration_ms"`
	Skipped    bool                          `json:"skipped,omitempty"`
	Dispatch   reminderdomain.DispatchResult `json:"dispatch"`
	Cleanup    reminderdomain.CleanupResult  `json:"cleanup"`
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Dispatcher == nil || p.Sweeper == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		dispatcher: p.Dispatcher,
		sweeper:    p.Sweeper,
		locker:     p.Locker,
		metrics:    metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := s.startJob(ctx, name, batchSize)
	s.metrics.IncJobRun(name)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil && run.errors == 0 {
		run.IncError()
	}
	s.finishJob(ctx, run)
	if err == nil {
		return nil
	}

	// A timed out job keeps what it finished; the rest is picked up next run.
	isTimeout := errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("scheduler.job.timeout",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one dispatch and cleanup pass. When another instance holds
// the run lock the report is marked skipped and no error is returned.
func (s *Scheduler) RunOnce(parent context.Context) (report RunReport, err error) {
	report = RunReport{
		RunID:     s.genID.Generate().String(),
		StartedAt: s.clock.Now().UTC(),
	}
	ctx := runContext(parent, report.RunID)
	defer func() {
		report.DurationMS = s.clock.Now().Sub(report.StartedAt).Milliseconds()
	}()

	release, skipped := s.acquireRunLock(ctx)
	if skipped {
		report.Skipped = true
		s.metrics.IncRunSkipped("locked")
		s.logger(ctx).Info("scheduler.run.skipped", zap.String("reason", "locked"))
		return report, nil
	}
	if release != nil {
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger(ctx).Warn("scheduler.lock.release_failed", zap.Error(err))
			}
		}()
	}

	if s.isJobEnabled(JobDispatchReminders) {
		err = errors.Join(err, s.runJob(ctx, JobDispatchReminders, s.cfg.BatchSize, s.cfg.DispatchTimeout,
			func(ctx context.Context, run *jobRun) error {
				result, err := s.dispatcher.ProcessReminders(ctx)
				report.Dispatch = result
				run.AddProcessed(result.Sent + result.Skipped)
				if result.Failed > 0 {
					s.jobError(ctx, run, "scheduler.dispatch.failures",
						fmt.Errorf("%d reminders not delivered", result.Failed),
						zap.Int("failed", result.Failed),
					)
				}
				return err
			}))
	}
	if s.isJobEnabled(JobCleanupReminders) {
		err = errors.Join(err, s.runJob(ctx, JobCleanupReminders, 0, s.cfg.CleanupTimeout,
			func(ctx context.Context, run *jobRun) error {
				result, err := s.sweeper.CleanupReminders(ctx)
				report.Cleanup = result
				run.AddProcessed(int(result.Total()))
				return err
			}))
	}

	return report, err
}

// acquireRunLock returns skipped=true only when another holder owns the lock.
// Lock errors do not block the run since sending is guarded per reminder.
func (s *Scheduler) acquireRunLock(ctx context.Context) (func(context.Context) error, bool) {
	if !s.locker.Enabled() {
		return nil, false
	}
	release, ok, err := s.locker.Acquire(ctx, runLockKey, s.cfg.LockTTL)
	if err != nil {
		s.logger(ctx).Warn("scheduler.lock.acquire_failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, true
	}
	return release, false
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}
