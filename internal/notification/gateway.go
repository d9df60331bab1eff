package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/toddfishman/meetini/internal/clock"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	"github.com/toddfishman/meetini/internal/providers/email"
	"github.com/toddfishman/meetini/internal/providers/sms"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRecipientConcurrency = 4
	deliveryHeader              = "X-Meetini-Delivery"
)

var errChannelNotConfigured = errors.New("channel_not_configured")

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Email   email.Provider      `optional:"true"`
	SMS     sms.Provider        `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// MultiChannelGateway fans a payload out over email and SMS.
type MultiChannelGateway struct {
	log         *zap.Logger
	clock       clock.Clock
	email       email.Provider
	sms         sms.Provider
	metrics     *obsmetrics.Metrics
	concurrency int
}

func New(p Params) Gateway {
	return NewMultiChannel(p)
}

func NewMultiChannel(p Params) *MultiChannelGateway {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &MultiChannelGateway{
		log:         p.Log.Named("notification.gateway"),
		clock:       c,
		email:       p.Email,
		sms:         p.SMS,
		metrics:     p.Metrics,
		concurrency: defaultRecipientConcurrency,
	}
}

func (g *MultiChannelGateway) Send(ctx context.Context, recipients []Recipient, payload Payload) (Report, error) {
	if g.email == nil && g.sms == nil {
		return Report{}, fmt.Errorf("%w: no channel provider configured", ErrGatewayUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	start := time.Now()
	var attachment *email.Attachment
	if wantsCalendar(payload.Type) && !payload.Date.IsZero() {
		a, err := calendarAttachment(payload, g.clock.Now())
		if err != nil {
			g.log.Warn("notification.calendar.failed", zap.Error(err))
		} else {
			attachment = &a
		}
	}

	results := make([]RecipientResult, len(recipients))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, r := range recipients {
		eg.Go(func() error {
			results[i] = g.deliver(ctx, r, payload, attachment)
			return nil
		})
	}
	_ = eg.Wait()

	report := Report{Results: results}
	g.metrics.RecordGatewayLatency(ctx, string(payload.Type), time.Since(start))

	attempted := report.Attempted()
	if attempted > 0 && report.Succeeded() == 0 {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return report, fmt.Errorf("%w: all %d deliveries failed", ErrGatewayUnavailable, attempted)
	}
	return report, nil
}

func (g *MultiChannelGateway) deliver(ctx context.Context, r Recipient, payload Payload, attachment *email.Attachment) RecipientResult {
	result := RecipientResult{Recipient: r}
	for _, ch := range r.Channels() {
		d := Delivery{Channel: ch, MessageID: ulid.Make().String()}
		switch ch {
		case ChannelEmail:
			d.Err = g.sendEmail(ctx, r, payload, attachment, d.MessageID)
		case ChannelSMS:
			d.Err = g.sendSMS(ctx, r, payload)
		}

		outcome := "delivered"
		if d.Err != nil {
			outcome = "failed"
			g.log.Warn("notification.delivery.failed",
				zap.String("channel", string(ch)),
				zap.String("reminder_type", string(payload.Type)),
				zap.String("invitation_id", payload.InvitationID),
				zap.String("message_id", d.MessageID),
				zap.Error(d.Err),
			)
		}
		g.metrics.RecordDelivery(ctx, string(ch), outcome)
		result.Deliveries = append(result.Deliveries, d)
	}
	return result
}

func (g *MultiChannelGateway) sendEmail(ctx context.Context, r Recipient, payload Payload, attachment *email.Attachment, messageID string) error {
	if g.email == nil {
		return errChannelNotConfigured
	}
	opts := []email.SendOption{email.WithHeader(deliveryHeader, messageID)}
	if attachment != nil {
		opts = append(opts, email.WithAttachment(*attachment))
	}
	return g.email.SendTemplate(ctx, []string{r.Email}, templateName(payload.Type), emailData(payload, r), opts...)
}

func (g *MultiChannelGateway) sendSMS(ctx context.Context, r Recipient, payload Payload) error {
	if g.sms == nil {
		return errChannelNotConfigured
	}
	return g.sms.Send(ctx, r.PhoneNumber, smsBody(payload))
}
