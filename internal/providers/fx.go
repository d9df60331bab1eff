package providers

import (
	"github.com/toddfishman/meetini/internal/providers/email"
	"github.com/toddfishman/meetini/internal/providers/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	sms.Module,
)
