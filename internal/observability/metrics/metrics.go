package metrics

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Label keys accepted on OTLP instruments. Anything else, invitation ids
// included, is dropped before recording.
var allowedLabelKeys = map[attribute.Key]bool{
	"endpoint":      true,
	"method":        true,
	"status_code":   true,
	"reminder_type": true,
	"channel":       true,
	"outcome":       true,
	"event_type":    true,
	"reason":        true,
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			kept = append(kept, attr)
		}
	}
	return kept
}

func withLabels(attrs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}

// Metrics holds the invitation and delivery instruments exported over OTLP.
// A nil *Metrics records nothing.
type Metrics struct {
	remindersScheduled metric.Int64Counter
	deliveries         metric.Int64Counter
	gatewayLatency     metric.Float64Histogram
	invitationEvents   metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.meterName(""))

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	m := &Metrics{
		remindersScheduled: counter("meetini_reminders_scheduled_total", "Reminder rows created, by type."),
		deliveries:         counter("meetini_notification_deliveries_total", "Per channel delivery attempts, by outcome."),
		invitationEvents:   counter("meetini_invitation_events_total", "Invitation lifecycle transitions."),
	}
	latency, err := meter.Float64Histogram("meetini_notification_gateway_duration_seconds",
		metric.WithDescription("Time spent in one gateway send across all recipients."),
		metric.WithUnit("s"),
	)
	m.gatewayLatency = latency
	if err := errors.Join(append(errs, err)...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordReminderScheduled(ctx context.Context, reminderType string) {
	if m == nil {
		return
	}
	m.remindersScheduled.Add(ctx, 1, withLabels(attribute.String("reminder_type", reminderType)))
}

// RecordDelivery counts one channel attempt for one recipient.
func (m *Metrics) RecordDelivery(ctx context.Context, channel, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.Add(ctx, 1, withLabels(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordGatewayLatency(ctx context.Context, reminderType string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayLatency.Record(ctx, d.Seconds(), withLabels(attribute.String("reminder_type", reminderType)))
}

// RecordInvitationEvent counts transitions such as "created", "finalized" or
// "participant_accepted".
func (m *Metrics) RecordInvitationEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.invitationEvents.Add(ctx, 1, withLabels(attribute.String("event_type", eventType)))
}
