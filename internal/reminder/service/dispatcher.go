package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toddfishman/meetini/internal/clock"
	"github.com/toddfishman/meetini/internal/config"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/invitation/link"
	"github.com/toddfishman/meetini/internal/notification"
	"github.com/toddfishman/meetini/internal/observability/logger"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	reminderdomain "github.com/toddfishman/meetini/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const jobDispatchReminders = "dispatch_reminders"

type DispatcherParams struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Repo             invitationdomain.Repository
	Clock            clock.Clock
	Gateway          notification.Gateway
	Links            *link.Signer
	Config           config.Config
	SchedulerMetrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Dispatcher struct {
	db             *gorm.DB
	log            *zap.Logger
	repo           invitationdomain.Repository
	clock          clock.Clock
	gateway        notification.Gateway
	links          *link.Signer
	jobMetrics     *obsmetrics.SchedulerMetrics
	batchSize      int
	maxConcurrency int
	gatewayTimeout time.Duration
}

func NewDispatcher(p DispatcherParams) reminderdomain.Dispatcher {
	return newDispatcher(p)
}

func newDispatcher(p DispatcherParams) *Dispatcher {
	cfg := p.Config.Reminders
	d := &Dispatcher{
		db:             p.DB,
		log:            p.Log.Named("reminder.dispatcher"),
		repo:           p.Repo,
		clock:          p.Clock,
		gateway:        p.Gateway,
		links:          p.Links,
		jobMetrics:     p.SchedulerMetrics,
		batchSize:      cfg.BatchSize,
		maxConcurrency: cfg.MaxConcurrency,
		gatewayTimeout: cfg.GatewayTimeout,
	}
	if d.jobMetrics == nil {
		d.jobMetrics = obsmetrics.Scheduler()
	}
	if d.batchSize <= 0 {
		d.batchSize = config.DefaultBatchSize
	}
	if d.maxConcurrency <= 0 {
		d.maxConcurrency = config.DefaultMaxConcurrency
	}
	if d.gatewayTimeout <= 0 {
		d.gatewayTimeout = config.DefaultGatewayTimeout
	}
	if d.links == nil {
		d.links = link.New(p.Config)
	}
	return d
}

// ProcessReminders delivers every reminder that is due at the start of the
// run. A reminder is marked sent only after the gateway accepted it, and only
// by the first run to flip it.
func (d *Dispatcher) ProcessReminders(ctx context.Context) (reminderdomain.DispatchResult, error) {
	var result reminderdomain.DispatchResult
	now := d.clock.Now().UTC()
	log := logger.WithContext(ctx, d.log)

	var cursor *invitationdomain.DueCursor
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := d.repo.ListDueReminders(ctx, d.db, now, cursor, d.batchSize)
		if err != nil {
			return result, fmt.Errorf("list due reminders: %w", err)
		}
		if len(page) == 0 {
			break
		}

		result.Due += len(page)
		result.Add(d.dispatchBatch(ctx, now, page))
		d.jobMetrics.AddBatchProcessed(jobDispatchReminders, "reminder", len(page))

		last := page[len(page)-1].Reminder
		next := &invitationdomain.DueCursor{ScheduledFor: last.ScheduledFor, ID: last.ID}
		if cursor != nil && *cursor == *next {
			break
		}
		cursor = next
		if len(page) < d.batchSize {
			break
		}
	}

	log.Info("reminder.dispatch.done",
		zap.Int("due", result.Due),
		zap.Int("sent", result.Sent),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("raced", result.Raced),
		zap.Int("partial_failures", result.PartialFailures),
		zap.Int("skipped_recipients", result.SkippedRecipients),
	)
	return result, nil
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, now time.Time, page []invitationdomain.DueReminder) reminderdomain.DispatchResult {
	outcomes := make([]reminderdomain.DispatchResult, len(page))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrency)
	for i := range page {
		g.Go(func() error {
			outcomes[i] = d.dispatchOne(gctx, now, page[i])
			return nil
		})
	}
	_ = g.Wait()

	var total reminderdomain.DispatchResult
	for _, o := range outcomes {
		total.Add(o)
	}
	return total
}

func (d *Dispatcher) dispatchOne(ctx context.Context, now time.Time, due invitationdomain.DueReminder) reminderdomain.DispatchResult {
	var out reminderdomain.DispatchResult
	rem := due.Reminder
	inv := due.Invitation
	reminderType := string(rem.Type)

	log := logger.WithInvitation(logger.WithContext(ctx, d.log), inv.ID.String()).With(
		zap.String("reminder_id", rem.ID.String()),
		zap.String("reminder_type", reminderType),
	)

	recipients, skipped := resolveRecipients(rem.Type, inv.Participants)
	if skipped > 0 {
		out.SkippedRecipients = skipped
		d.jobMetrics.AddRecipientsSkipped(reminderType, skipped)
		log.Warn("reminder.dispatch.recipients_skipped", zap.Int("count", skipped))
	}

	if len(recipients) == 0 {
		outcome := d.markSent(ctx, log, rem, &out)
		if outcome == obsmetrics.ReminderOutcomeSent {
			out.Sent = 0
			out.Skipped = 1
			outcome = obsmetrics.ReminderOutcomeSkipped
			log.Info("reminder.dispatch.no_recipients")
		}
		d.jobMetrics.IncReminderOutcome(reminderType, outcome)
		return out
	}

	payload, err := d.payload(inv, rem, now)
	if err != nil {
		out.Failed = 1
		d.jobMetrics.IncReminderOutcome(reminderType, obsmetrics.ReminderOutcomeFailed)
		log.Error("reminder.dispatch.payload_failed", zap.Error(err))
		return out
	}

	callCtx, cancel := context.WithTimeout(ctx, d.gatewayTimeout)
	report, err := d.gateway.Send(callCtx, recipients, payload)
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %v", notification.ErrGatewayUnavailable, err)
		}
		out.Failed = 1
		d.jobMetrics.IncReminderOutcome(reminderType, obsmetrics.ReminderOutcomeFailed)
		log.Warn("reminder.dispatch.failed",
			zap.Int("recipients", len(recipients)),
			zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
			zap.Error(err),
		)
		return out
	}

	if failed := report.Failed(); failed > 0 {
		out.PartialFailures = 1
		log.Warn("reminder.dispatch.partial_failure",
			zap.Int("attempted", report.Attempted()),
			zap.Int("failed", failed),
		)
	}

	outcome := d.markSent(ctx, log, rem, &out)
	d.jobMetrics.IncReminderOutcome(reminderType, outcome)
	if outcome == obsmetrics.ReminderOutcomeSent {
		d.jobMetrics.ObserveDispatchDelay(reminderType, now.Sub(rem.ScheduledFor))
		log.Info("reminder.dispatch.sent", zap.Int("recipients", len(recipients)))
	}
	return out
}

// markSent records delivery even when the run is being cancelled, so an
// accepted reminder is not delivered twice.
func (d *Dispatcher) markSent(ctx context.Context, log *zap.Logger, rem invitationdomain.Reminder, out *reminderdomain.DispatchResult) string {
	won, err := d.repo.MarkReminderSent(context.WithoutCancel(ctx), d.db, rem.ID, d.clock.Now().UTC())
	switch {
	case err != nil:
		out.Failed = 1
		log.Error("reminder.dispatch.mark_sent_failed", zap.Error(err))
		return obsmetrics.ReminderOutcomeFailed
	case !won:
		out.Raced = 1
		log.Info("reminder.dispatch.raced")
		return obsmetrics.ReminderOutcomeRaced
	default:
		out.Sent = 1
		return obsmetrics.ReminderOutcomeSent
	}
}

func (d *Dispatcher) payload(inv invitationdomain.Invitation, rem invitationdomain.Reminder, now time.Time) (notification.Payload, error) {
	actionURL, err := d.links.ActionURL(inv.ID, now)
	if err != nil {
		return notification.Payload{}, err
	}

	duration := invitationdomain.Duration1Hour.Duration()
	if inv.Preferences != nil {
		duration = inv.Preferences.DurationType.Duration()
	}

	p := notification.Payload{
		Type:         rem.Type,
		InvitationID: inv.ID.String(),
		Title:        inv.Title,
		Description:  describe(rem.Type),
		Duration:     duration,
		Location:     inv.LocationText(),
		ActionURL:    actionURL,
	}
	if at, ok := inv.MeetingTime(); ok {
		p.Date = at.UTC()
	}
	return p, nil
}
