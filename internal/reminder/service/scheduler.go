package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/toddfishman/meetini/internal/clock"
	"github.com/toddfishman/meetini/internal/config"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/observability/logger"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	reminderdomain "github.com/toddfishman/meetini/internal/reminder/domain"
	"github.com/toddfishman/meetini/internal/scheduler/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SchedulerParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    invitationdomain.Repository
	Clock   clock.Clock
	Policy  *config.ReminderPolicyHolder
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    invitationdomain.Repository
	clock   clock.Clock
	policy  *config.ReminderPolicyHolder
	metrics *obsmetrics.Metrics
}

func NewScheduler(p SchedulerParams) reminderdomain.Scheduler {
	return newScheduler(p)
}

func newScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("reminder.scheduler"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

// ScheduleReminders creates the reminders the invitation's current state
// calls for. Calling it again never duplicates an unsent reminder.
func (s *Scheduler) ScheduleReminders(ctx context.Context, invitationID snowflake.ID) (reminderdomain.ScheduleResult, error) {
	var result reminderdomain.ScheduleResult
	if invitationID == 0 {
		return result, invitationdomain.ErrInvalidID
	}

	inv, err := s.repo.FindInvitationByID(ctx, s.db, invitationID)
	if err != nil {
		return result, fmt.Errorf("load invitation: %w", err)
	}
	if inv == nil {
		return result, invitationdomain.ErrNotFound
	}
	if err := guard.EnsureInvitationSchedulable(inv.Status, len(inv.Participants)); err != nil {
		return result, err
	}

	existing, err := s.repo.ListReminders(ctx, s.db, inv.ID)
	if err != nil {
		return result, fmt.Errorf("list reminders: %w", err)
	}
	byType := make(map[invitationdomain.ReminderType][]invitationdomain.Reminder, len(existing))
	for _, r := range existing {
		byType[r.Type] = append(byType[r.Type], r)
	}

	now := s.clock.Now().UTC()
	policy := s.policy.Get()
	log := logger.WithInvitation(logger.WithContext(ctx, s.log), inv.ID.String())

	switch inv.Status {
	case invitationdomain.InvitationStatusPending:
		if len(byType[invitationdomain.ReminderTypeInvitation]) > 0 {
			result.Existing++
		} else if err := s.insert(ctx, inv.ID, invitationdomain.ReminderTypeInvitation, now, now, &result); err != nil {
			return result, err
		}

		if len(byType[invitationdomain.ReminderTypeResponseNeeded]) > 0 {
			result.Existing++
		} else if inv.HasPendingParticipants() {
			at := now.Add(policy.ResponseNeededDelay)
			if err := s.insert(ctx, inv.ID, invitationdomain.ReminderTypeResponseNeeded, at, now, &result); err != nil {
				return result, err
			}
		}

	case invitationdomain.InvitationStatusScheduled:
		meeting, ok := inv.MeetingTime()
		if !ok {
			return result, invitationdomain.ErrInvalidState
		}
		at, _ := guard.UpcomingReminderAt(meeting, policy.UpcomingLeadTime, now)
		if err := s.scheduleUpcoming(ctx, inv.ID, meeting, at, now, byType[invitationdomain.ReminderTypeUpcomingMeeting], &result); err != nil {
			return result, err
		}
	}

	log.Info("reminder.schedule.done",
		zap.String("status", string(inv.Status)),
		zap.Int("created", len(result.Created)),
		zap.Int("existing", result.Existing),
		zap.Int("rescheduled", result.Rescheduled),
		zap.Int("removed", result.Removed),
	)
	return result, nil
}

// scheduleUpcoming keeps at most one unsent upcoming_meeting reminder aligned
// with the current meeting time. An unsent row never stays at or after the
// meeting, and new instants at or before now are never stored.
func (s *Scheduler) scheduleUpcoming(ctx context.Context, invitationID snowflake.ID, meeting, at, now time.Time, current []invitationdomain.Reminder, result *reminderdomain.ScheduleResult) error {
	for _, r := range current {
		if r.Sent || !r.ScheduledFor.Equal(at) {
			continue
		}
		result.Existing++
		return nil
	}

	for _, r := range current {
		if r.Sent {
			continue
		}
		target := at
		if !at.After(now) {
			if !meeting.After(now) {
				return s.dropUpcoming(ctx, r.ID, result)
			}
			// Inside the lead window the reminder is due at once.
			if !r.ScheduledFor.After(now) && r.ScheduledFor.Before(meeting) {
				result.Existing++
				return nil
			}
			target = now
		}
		moved, err := s.repo.RescheduleReminder(ctx, s.db, r.ID, target, now)
		if err != nil {
			return fmt.Errorf("reschedule reminder: %w", err)
		}
		if moved {
			result.Rescheduled++
		} else {
			result.Existing++
		}
		return nil
	}

	if !at.After(now) {
		return nil
	}
	return s.insert(ctx, invitationID, invitationdomain.ReminderTypeUpcomingMeeting, at, now, result)
}

// dropUpcoming removes an unsent upcoming_meeting reminder whose meeting has
// already started. A row the dispatcher claimed in the meantime is left alone.
func (s *Scheduler) dropUpcoming(ctx context.Context, id snowflake.ID, result *reminderdomain.ScheduleResult) error {
	deleted, err := s.repo.DeleteUnsentReminder(ctx, s.db, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if deleted {
		result.Removed++
	} else {
		result.Existing++
	}
	return nil
}

func (s *Scheduler) insert(ctx context.Context, invitationID snowflake.ID, reminderType invitationdomain.ReminderType, at, now time.Time, result *reminderdomain.ScheduleResult) error {
	reminder := invitationdomain.Reminder{
		ID:           s.genID.Generate(),
		InvitationID: invitationID,
		Type:         reminderType,
		ScheduledFor: at,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.repo.InsertReminderIfAbsent(ctx, s.db, &reminder)
	if err != nil {
		return fmt.Errorf("insert %s reminder: %w", reminderType, err)
	}
	if !created {
		result.Existing++
		return nil
	}
	result.Created = append(result.Created, reminder)
	s.metrics.RecordReminderScheduled(ctx, string(reminderType))
	return nil
}
