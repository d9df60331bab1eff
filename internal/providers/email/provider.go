package email

import (
	"context"

	"go.uber.org/zap"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string, opts ...SendOption) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any, opts ...SendOption) error
}

// Attachment is a file carried by a message, such as a calendar invite.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Options is the resolved form of a set of SendOption values.
type Options struct {
	Attachments []Attachment
	Headers     map[string]string
}

type SendOption func(*Options)

func WithAttachment(a Attachment) SendOption {
	return func(o *Options) {
		o.Attachments = append(o.Attachments, a)
	}
}

// WithHeader sets an extra message header, e.g. a delivery id.
func WithHeader(key, value string) SendOption {
	return func(o *Options) {
		if o.Headers == nil {
			o.Headers = map[string]string{}
		}
		o.Headers[key] = value
	}
}

// Collect applies opts in order.
func Collect(opts ...SendOption) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// NoOpProvider renders templates but never sends. Used when SMTP is not configured.
type NoOpProvider struct {
	Log *zap.Logger
}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string, opts ...SendOption) error {
	if p.Log != nil {
		o := Collect(opts...)
		p.Log.Debug("email.noop.send",
			zap.Int("recipients", len(to)),
			zap.String("subject", subject),
			zap.Int("attachments", len(o.Attachments)),
		)
	}
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any, opts ...SendOption) error {
	subject, body, err := Render(templateName, data)
	if err != nil {
		return err
	}
	return p.Send(ctx, to, subject, body, opts...)
}
