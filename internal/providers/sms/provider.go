package sms

import (
	"context"

	"go.uber.org/zap"
)

type Provider interface {
	Send(ctx context.Context, to string, body string) error
}

type NoOpProvider struct {
	Log *zap.Logger
}

func (p *NoOpProvider) Send(ctx context.Context, to string, body string) error {
	if p.Log != nil {
		p.Log.Debug("sms.noop.send", zap.Int("length", len(body)))
	}
	return nil
}
