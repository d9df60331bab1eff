package email

import (
	"github.com/toddfishman/meetini/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	n := cfg.Notification
	if n.EmailProvider != "smtp" {
		log.Warn("email provider disabled, messages will not be delivered",
			zap.String("provider", n.EmailProvider),
		)
		return &NoOpProvider{Log: log.Named("email.noop")}
	}
	return NewSMTP(Config{
		Host:     n.SMTPHost,
		Port:     n.SMTPPort,
		Username: n.SMTPUsername,
		Password: n.SMTPPassword,
		From:     n.SMTPFrom,
	})
}
