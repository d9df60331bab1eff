package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertInvitation(ctx context.Context, db *gorm.DB, invitation *Invitation) error
	FindInvitationByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invitation, error)
	// UpdateInvitationStatus moves the invitation to `to` only when its current
	// status is one of `from`.
	UpdateInvitationStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []InvitationStatus, to InvitationStatus, now time.Time) (bool, error)
	UpdateProposedTimes(ctx context.Context, db *gorm.DB, id snowflake.ID, times []time.Time, now time.Time) error
	SetCalendarEventID(ctx context.Context, db *gorm.DB, id snowflake.ID, eventID string, now time.Time) error
	UpdateParticipantStatus(ctx context.Context, db *gorm.DB, invitationID, participantID snowflake.ID, status ParticipantStatus, now time.Time) (bool, error)
	DeleteInvitation(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	ListReminders(ctx context.Context, db *gorm.DB, invitationID snowflake.ID) ([]Reminder, error)
	// InsertReminderIfAbsent inserts unless an unsent reminder of the same
	// type already exists for the invitation.
	InsertReminderIfAbsent(ctx context.Context, db *gorm.DB, reminder *Reminder) (bool, error)
	RescheduleReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, scheduledFor time.Time, now time.Time) (bool, error)
	// DeleteUnsentReminder removes the reminder only while it is still unsent.
	DeleteUnsentReminder(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	ListDueReminders(ctx context.Context, db *gorm.DB, now time.Time, after *DueCursor, limit int) ([]DueReminder, error)
	// MarkReminderSent flips sent only if it is still false. The boolean
	// reports whether this call performed the flip.
	MarkReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	DeleteSentRemindersBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
	DeleteRemindersForCancelledInvitations(ctx context.Context, db *gorm.DB) (int64, error)
	DeleteOrphanReminders(ctx context.Context, db *gorm.DB) (int64, error)
}
