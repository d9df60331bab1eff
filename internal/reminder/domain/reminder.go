package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
)

// ScheduleResult lists the reminders a scheduling call inserted. Existing
// counts reminders that were already in place and left untouched.
type ScheduleResult struct {
	Created     []invitationdomain.Reminder `json:"created"`
	Existing    int                         `json:"existing"`
	Rescheduled int                         `json:"rescheduled"`
	// Removed counts unsent reminders dropped because the meeting started.
	Removed int `json:"removed"`
}

type DispatchResult struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	// Raced counts reminders another run marked sent first.
	Raced           int `json:"raced"`
	PartialFailures int `json:"partial_failures"`
	// SkippedRecipients are participants without a usable channel.
	SkippedRecipients int `json:"skipped_recipients"`
}

func (r *DispatchResult) Add(other DispatchResult) {
	r.Due += other.Due
	r.Sent += other.Sent
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Raced += other.Raced
	r.PartialFailures += other.PartialFailures
	r.SkippedRecipients += other.SkippedRecipients
}

type CleanupResult struct {
	ExpiredDeleted   int64 `json:"expired_deleted"`
	CancelledDeleted int64 `json:"cancelled_deleted"`
	OrphanedDeleted  int64 `json:"orphaned_deleted"`
}

func (r CleanupResult) Total() int64 {
	return r.ExpiredDeleted + r.CancelledDeleted + r.OrphanedDeleted
}

type Scheduler interface {
	ScheduleReminders(ctx context.Context, invitationID snowflake.ID) (ScheduleResult, error)
}

type Dispatcher interface {
	ProcessReminders(ctx context.Context) (DispatchResult, error)
}

type Sweeper interface {
	CleanupReminders(ctx context.Context) (CleanupResult, error)
}
