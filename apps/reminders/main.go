package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/toddfishman/meetini/internal/clock"
	"github.com/toddfishman/meetini/internal/config"
	"github.com/toddfishman/meetini/internal/invitation"
	"github.com/toddfishman/meetini/internal/notification"
	"github.com/toddfishman/meetini/internal/observability"
	"github.com/toddfishman/meetini/internal/providers"
	"github.com/toddfishman/meetini/internal/ratelimit"
	"github.com/toddfishman/meetini/internal/reminder"
	"github.com/toddfishman/meetini/internal/scheduler"
	"github.com/toddfishman/meetini/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// One reminder run, then exit. Meant for a Kubernetes CronJob or crontab.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		invitation.Module,
		reminder.Module,
		ratelimit.Module,
		providers.Module,
		notification.Module,
		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),

		// No HTTP server.
		fx.Invoke(RunOnce),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func RunOnce(lc fx.Lifecycle, shutdowner fx.Shutdowner, s *scheduler.Scheduler, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := 0
				report, err := s.RunOnce(ctx)
				if err != nil {
					code = 1
					log.Error("reminders.run.failed", zap.String("run_id", report.RunID), zap.Error(err))
				} else {
					log.Info("reminders.run.done",
						zap.String("run_id", report.RunID),
						zap.Bool("skipped", report.Skipped),
						zap.Int("sent", report.Dispatch.Sent),
						zap.Int("failed", report.Dispatch.Failed),
						zap.Int64("cleaned", report.Cleanup.Total()),
					)
				}
				_ = shutdowner.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
