package main

import (
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
	"github.com/toddfishman/meetini/internal/server"
	"github.com/toddfishman/meetini/pkg/db"
	"go.uber.org/fx"
)

// API only deployment. Schema migrations are left to cmd/meetini; the cron
// trigger endpoint is served here so an external scheduler can call it.
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

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) {
			s.RegisterAPIRoutes()
			s.RegisterCronRoutes()
			s.RegisterPublicRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
