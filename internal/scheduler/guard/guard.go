// Package guard holds the preconditions for creating reminders.
package guard

import (
	"fmt"
	"time"

	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
)

// EnsureInvitationSchedulable rejects cancelled invitations and invitations
// nobody could be reminded about.
func EnsureInvitationSchedulable(status invitationdomain.InvitationStatus, participants int) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", invitationdomain.ErrInvalidState, status)
	}
	if status == invitationdomain.InvitationStatusCancelled {
		return fmt.Errorf("%w: invitation is cancelled", invitationdomain.ErrInvalidState)
	}
	if participants == 0 {
		return fmt.Errorf("%w: invitation has no participants", invitationdomain.ErrInvalidState)
	}
	return nil
}

// UpcomingReminderAt returns when the upcoming_meeting reminder fires and
// whether that instant is still ahead of now.
func UpcomingReminderAt(meeting time.Time, lead time.Duration, now time.Time) (time.Time, bool) {
	at := meeting.UTC().Add(-lead)
	return at, at.After(now)
}
