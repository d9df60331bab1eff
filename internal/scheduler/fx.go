package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartCron),
)

// StartCron registers the in-process trigger when a cron spec is configured.
// Without one, runs come from the HTTP trigger or the one-shot binary.
func StartCron(lc fx.Lifecycle, cfg Config, sched *Scheduler, log *zap.Logger) error {
	if cfg.CronSpec == "" {
		return nil
	}

	cronLog := cronLogger{log: log.Named("scheduler.cron")}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(cfg.CronSpec, func() {
		if _, err := sched.RunOnce(ctx); err != nil {
			log.Warn("scheduler.run.failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			log.Info("scheduler.cron.started", zap.String("spec", cfg.CronSpec))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-c.Stop().Done():
			case <-stopCtx.Done():
			}
			return nil
		},
	})
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().With(zap.Error(err)).Errorw(msg, keysAndValues...)
}
