package invitation

import (
	"github.com/toddfishman/meetini/internal/invitation/link"
	"github.com/toddfishman/meetini/internal/invitation/repository"
	"github.com/toddfishman/meetini/internal/invitation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invitation.service",
	fx.Provide(repository.Provide),
	fx.Provide(link.New),
	fx.Provide(service.New),
)
