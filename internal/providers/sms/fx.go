package sms

import (
	"github.com/toddfishman/meetini/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.sms",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	n := cfg.Notification
	if n.SMSProvider != "http" {
		return &NoOpProvider{Log: log.Named("sms.noop")}
	}
	return NewHTTP(Config{
		Endpoint: n.SMSEndpoint,
		Username: n.SMSUsername,
		Password: n.SMSPassword,
		From:     n.SMSFrom,
	}, nil)
}
