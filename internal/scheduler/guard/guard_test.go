package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
)

func TestEnsureInvitationSchedulable(t *testing.T) {
	assert.NoError(t, EnsureInvitationSchedulable(invitationdomain.InvitationStatusPending, 1))
	assert.NoError(t, EnsureInvitationSchedulable(invitationdomain.InvitationStatusScheduled, 2))
	assert.ErrorIs(t, EnsureInvitationSchedulable(invitationdomain.InvitationStatusCancelled, 1), invitationdomain.ErrInvalidState)
	assert.ErrorIs(t, EnsureInvitationSchedulable(invitationdomain.InvitationStatusPending, 0), invitationdomain.ErrInvalidState)
	assert.ErrorIs(t, EnsureInvitationSchedulable("archived", 1), invitationdomain.ErrInvalidState)
}

func TestUpcomingReminderAt(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	at, ok := UpcomingReminderAt(now.Add(2*time.Hour), time.Hour, now)
	assert.True(t, ok)
	assert.True(t, at.Equal(now.Add(time.Hour)))

	_, ok = UpcomingReminderAt(now.Add(time.Hour), time.Hour, now)
	assert.False(t, ok)
}
