package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/toddfishman/meetini/internal/clock"
	"github.com/toddfishman/meetini/internal/config"
	"github.com/toddfishman/meetini/internal/migration"
	"github.com/toddfishman/meetini/internal/notification"
	"github.com/toddfishman/meetini/internal/observability"
	"github.com/toddfishman/meetini/internal/providers"
	"github.com/toddfishman/meetini/internal/scheduler"
	"github.com/toddfishman/meetini/internal/server"
	"github.com/toddfishman/meetini/pkg/db"
	"go.uber.org/fx"
)

// Single binary: HTTP surface, trigger endpoint and, when REMINDER_CRON_SPEC
// is set, the in-process schedule.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Delivery
		providers.Module,
		notification.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
