package reminder

import (
	"github.com/toddfishman/meetini/internal/reminder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reminder.service",
	fx.Provide(service.NewScheduler),
	fx.Provide(service.NewDispatcher),
	fx.Provide(service.NewSweeper),
)
