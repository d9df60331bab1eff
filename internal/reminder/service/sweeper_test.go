package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	schedtest "github.com/toddfishman/meetini/internal/scheduler/testing"
)

func TestCleanupReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	active := h.seed(t, schedtest.InvitationSpec{
		Participants: []schedtest.ParticipantSpec{{Email: "a@example.com"}},
	})
	cancelled := h.seed(t, schedtest.InvitationSpec{
		Status:       invitationdomain.InvitationStatusCancelled,
		Participants: []schedtest.ParticipantSpec{{Email: "b@example.com"}},
	})

	old := baseTime.Add(-31 * 24 * time.Hour)
	recent := baseTime.Add(-2 * 24 * time.Hour)
	schedtest.SeedReminder(t, h.db, h.node, active.ID, invitationdomain.ReminderTypeInvitation, old, &old)
	keptSent := schedtest.SeedReminder(t, h.db, h.node, active.ID, invitationdomain.ReminderTypeResponseNeeded, recent, &recent)
	keptUnsent := schedtest.SeedReminder(t, h.db, h.node, active.ID, invitationdomain.ReminderTypeUpcomingMeeting, old, nil)
	schedtest.SeedReminder(t, h.db, h.node, cancelled.ID, invitationdomain.ReminderTypeInvitation, baseTime, nil)
	schedtest.SeedReminder(t, h.db, h.node, cancelled.ID, invitationdomain.ReminderTypeResponseNeeded, recent, &recent)
	schedtest.SeedReminder(t, h.db, h.node, h.node.Generate(), invitationdomain.ReminderTypeInvitation, baseTime, nil)

	result, err := h.sweeper.CleanupReminders(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.ExpiredDeleted)
	assert.EqualValues(t, 2, result.CancelledDeleted)
	assert.EqualValues(t, 1, result.OrphanedDeleted)
	assert.EqualValues(t, 4, result.Total())

	remaining := schedtest.LoadReminders(t, h.db, active.ID)
	require.Len(t, remaining, 2)
	assert.Equal(t, keptUnsent.ID, remaining[0].ID)
	assert.Equal(t, keptSent.ID, remaining[1].ID)
	assert.Empty(t, schedtest.LoadReminders(t, h.db, cancelled.ID))

	again, err := h.sweeper.CleanupReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Total())
}

func TestCleanupNeverDeletesUnsentLiveReminders(t *testing.T) {
	h := newHarness(t)
	inv := h.seed(t, schedtest.InvitationSpec{
		Status:       invitationdomain.InvitationStatusScheduled,
		Participants: []schedtest.ParticipantSpec{{Email: "a@example.com"}},
	})
	ancient := baseTime.Add(-365 * 24 * time.Hour)
	schedtest.SeedReminder(t, h.db, h.node, inv.ID, invitationdomain.ReminderTypeUpcomingMeeting, ancient, nil)

	h.clock.Advance(400 * 24 * time.Hour)
	result, err := h.sweeper.CleanupReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Total())
	assert.Len(t, schedtest.LoadReminders(t, h.db, inv.ID), 1)
}
