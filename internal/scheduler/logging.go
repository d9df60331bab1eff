package scheduler

import (
	"context"
	"time"

	obscontext "github.com/toddfishman/meetini/internal/observability/context"
	obslogger "github.com/toddfishman/meetini/internal/observability/logger"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tallies one job inside a run for the finish log line.
type jobRun struct {
	job       string
	batchSize int
	started   time.Time
	processed int
	errors    int
}

func (r *jobRun) AddProcessed(n int) {
	if n > 0 {
		r.processed += n
	}
}

func (r *jobRun) IncError() { r.errors++ }

// runContext tags ctx so every log line and store query of the run carries
// the run id and the scheduler actor.
func runContext(ctx context.Context, runID string) context.Context {
	return obscontext.WithRunID(obscontext.WithActor(ctx, actorSystem, "scheduler"), runID)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) startJob(ctx context.Context, job string, batchSize int) *jobRun {
	run := &jobRun{job: job, batchSize: batchSize, started: s.clock.Now()}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", job),
		zap.Int("batch_size", batchSize),
	)
	return run
}

func (s *Scheduler) finishJob(ctx context.Context, run *jobRun) {
	log := s.logger(ctx).With(zap.String("job", run.job))
	elapsed := s.clock.Now().Sub(run.started)
	if run.errors > 0 {
		log.Warn("scheduler.job.finish",
			zap.Duration("elapsed", elapsed),
			zap.Int("processed", run.processed),
			zap.Int("errors", run.errors),
		)
		return
	}
	log.Info("scheduler.job.finish",
		zap.Duration("elapsed", elapsed),
		zap.Int("processed", run.processed),
	)
}

// jobError counts err against run and logs it with its classification.
func (s *Scheduler) jobError(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	s.logger(ctx).Error(msg, append([]zap.Field{
		zap.String("job", run.job),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	}, fields...)...)
}
