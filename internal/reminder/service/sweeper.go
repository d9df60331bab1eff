package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/toddfishman/meetini/internal/clock"
	"github.com/toddfishman/meetini/internal/config"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/observability/logger"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	reminderdomain "github.com/toddfishman/meetini/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SweeperParams struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Repo             invitationdomain.Repository
	Clock            clock.Clock
	Policy           *config.ReminderPolicyHolder
	SchedulerMetrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Sweeper struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       invitationdomain.Repository
	clock      clock.Clock
	policy     *config.ReminderPolicyHolder
	jobMetrics *obsmetrics.SchedulerMetrics
}

func NewSweeper(p SweeperParams) reminderdomain.Sweeper {
	return newSweeper(p)
}

func newSweeper(p SweeperParams) *Sweeper {
	s := &Sweeper{
		db:         p.DB,
		log:        p.Log.Named("reminder.sweeper"),
		repo:       p.Repo,
		clock:      p.Clock,
		policy:     p.Policy,
		jobMetrics: p.SchedulerMetrics,
	}
	if s.jobMetrics == nil {
		s.jobMetrics = obsmetrics.Scheduler()
	}
	return s
}

// CleanupReminders runs three independent deletes. Unsent reminders of live
// invitations are never touched.
func (s *Sweeper) CleanupReminders(ctx context.Context) (reminderdomain.CleanupResult, error) {
	var (
		result reminderdomain.CleanupResult
		errs   []error
	)
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.policy.Get().Retention)
	log := logger.WithContext(ctx, s.log)

	if n, err := s.repo.DeleteSentRemindersBefore(ctx, s.db, cutoff); err != nil {
		errs = append(errs, fmt.Errorf("delete expired reminders: %w", err))
	} else {
		result.ExpiredDeleted = n
		s.jobMetrics.AddRemindersCleaned(obsmetrics.CleanupReasonExpired, n)
	}

	if n, err := s.repo.DeleteRemindersForCancelledInvitations(ctx, s.db); err != nil {
		errs = append(errs, fmt.Errorf("delete cancelled reminders: %w", err))
	} else {
		result.CancelledDeleted = n
		s.jobMetrics.AddRemindersCleaned(obsmetrics.CleanupReasonCancelled, n)
	}

	if n, err := s.repo.DeleteOrphanReminders(ctx, s.db); err != nil {
		errs = append(errs, fmt.Errorf("delete orphaned reminders: %w", err))
	} else {
		result.OrphanedDeleted = n
		s.jobMetrics.AddRemindersCleaned(obsmetrics.CleanupReasonOrphaned, n)
	}

	err := errors.Join(errs...)
	fields := []zap.Field{
		zap.Time("cutoff", cutoff),
		zap.Int64("expired_deleted", result.ExpiredDeleted),
		zap.Int64("cancelled_deleted", result.CancelledDeleted),
		zap.Int64("orphaned_deleted", result.OrphanedDeleted),
	}
	if err != nil {
		log.Warn("reminder.cleanup.partial", append(fields, zap.Error(err))...)
		return result, err
	}
	log.Info("reminder.cleanup.done", fields...)
	return result, nil
}
