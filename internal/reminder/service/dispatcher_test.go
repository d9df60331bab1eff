package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/notification"
	reminderdomain "github.com/toddfishman/meetini/internal/reminder/domain"
	schedtest "github.com/toddfishman/meetini/internal/scheduler/testing"
)

func TestReminderLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.seed(t, schedtest.InvitationSpec{
		Location: "Blue Bottle",
		Participants: []schedtest.ParticipantSpec{
			{Email: "a@example.com", Name: "A"},
			{Email: "b@example.com", Phone: "+15550100", SMS: true, Status: invitationdomain.ParticipantStatusAccepted},
		},
	})

	_, err := h.scheduler.ScheduleReminders(ctx, inv.ID)
	require.NoError(t, err)

	result, err := h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Due)
	assert.Equal(t, 1, result.Sent)

	calls := h.gateway.Calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, emails(calls[0].recipients))
	payload := calls[0].payload
	assert.Equal(t, invitationdomain.ReminderTypeInvitation, payload.Type)
	assert.Equal(t, inv.Title, payload.Title)
	assert.Equal(t, "Blue Bottle", payload.Location)
	assert.NotEmpty(t, payload.Description)
	assert.True(t, payload.Date.Equal(baseTime.Add(48*time.Hour)))
	assert.Equal(t, time.Hour, payload.Duration)

	u, err := url.Parse(payload.ActionURL)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u.Path, "/invitations/"+inv.ID.String()))
	linked, err := h.links.Verify(u.Query().Get("token"), baseTime)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, linked)

	// response_needed is not due yet.
	result, err = h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Due)
	assert.Len(t, h.gateway.Calls(), 1)

	h.clock.Advance(24 * time.Hour)
	result, err = h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	calls = h.gateway.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, invitationdomain.ReminderTypeResponseNeeded, calls[1].payload.Type)
	assert.Equal(t, []string{"a@example.com"}, emails(calls[1].recipients))

	for _, r := range schedtest.LoadReminders(t, h.db, inv.ID) {
		assert.True(t, r.Sent)
		require.NotNil(t, r.SentAt)
	}
}

func TestProcessRemindersPagesThroughBatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		inv := h.seed(t, schedtest.InvitationSpec{
			Participants: []schedtest.ParticipantSpec{{Email: "a@example.com"}},
		})
		schedtest.SeedReminder(t, h.db, h.node, inv.ID, invitationdomain.ReminderTypeInvitation, baseTime.Add(-time.Duration(i)*time.Minute), nil)
	}

	result, err := h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Due)
	assert.Equal(t, 5, result.Sent)
	assert.Len(t, h.gateway.Calls(), 5)
}

func TestConcurrentRunsSendEachReminderOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []invitationdomain.Reminder
	for i := 0; i < 3; i++ {
		inv := h.seed(t, schedtest.InvitationSpec{
			Participants: []schedtest.ParticipantSpec{{Email: "a@example.com"}},
		})
		ids = append(ids, schedtest.SeedReminder(t, h.db, h.node, inv.ID, invitationdomain.ReminderTypeInvitation, baseTime, nil))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []reminderdomain.DispatchResult
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.dispatcher.ProcessReminders(ctx)
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var total reminderdomain.DispatchResult
	for _, r := range results {
		total.Add(r)
	}
	assert.Equal(t, 3, total.Sent)
	assert.Equal(t, total.Due, total.Sent+total.Raced)

	for _, r := range ids {
		stored := schedtest.LoadReminders(t, h.db, r.InvitationID)
		require.Len(t, stored, 1)
		assert.True(t, stored[0].Sent)
	}
}

func TestParticipantWithoutChannelIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.seed(t, schedtest.InvitationSpec{
		Participants: []schedtest.ParticipantSpec{
			{Email: "a@example.com"},
			{Email: "muted@example.com", NoEmail: true},
		},
	})
	schedtest.SeedReminder(t, h.db, h.node, inv.ID, invitationdomain.ReminderTypeInvitation, baseTime, nil)

	result, err := h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.SkippedRecipients)
	assert.Zero(t, result.Failed)

	calls := h.gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"a@example.com"}, emails(calls[0].recipients))
}

func TestReminderWithoutRecipientsIsMarkedSentWithoutDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.seed(t, schedtest.InvitationSpec{
		Participants: []schedtest.ParticipantSpec{
			{Email: "a@example.com", Status: invitationdomain.ParticipantStatusAccepted},
		},
	})
	schedtest.SeedReminder(t, h.db, h.node, inv.ID, invitationdomain.ReminderTypeResponseNeeded, baseTime, nil)

	result, err := h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Sent)
	assert.Empty(t, h.gateway.Calls())

	stored := schedtest.LoadReminders(t, h.db, inv.ID)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Sent)
}

func TestGatewayFailureLeavesReminderUnsent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.seed(t, schedtest.InvitationSpec{
		Participants: []schedtest.ParticipantSpec{{Email: "a@example.com"}},
	})
	schedtest.SeedReminder(t, h.db, h.node, inv.ID, invitationdomain.ReminderTypeInvitation, baseTime, nil)

	h.gateway.setErr(notification.ErrGatewayUnavailable)
	result, err := h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Sent)
	assert.False(t, schedtest.LoadReminders(t, h.db, inv.ID)[0].Sent)

	h.gateway.setErr(nil)
	result, err = h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.True(t, schedtest.LoadReminders(t, h.db, inv.ID)[0].Sent)
}

func TestGatewayTimeoutCountsAsFailure(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.gatewayTimeout = 20 * time.Millisecond
	h.gateway.block = true

	inv := h.seed(t, schedtest.InvitationSpec{
		Participants: []schedtest.ParticipantSpec{{Email: "a@example.com"}},
	})
	schedtest.SeedReminder(t, h.db, h.node, inv.ID, invitationdomain.ReminderTypeInvitation, baseTime, nil)

	result, err := h.dispatcher.ProcessReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, schedtest.LoadReminders(t, h.db, inv.ID)[0].Sent)
}

func TestPartialFailureStillMarksSent(t *testing.T) {
	h := newHarness(t)
	h.gateway.failFor["b@example.com"] = true
	inv := h.seed(t, schedtest.InvitationSpec{
		Participants: []schedtest.ParticipantSpec{
			{Email: "a@example.com"},
			{Email: "b@example.com"},
		},
	})
	schedtest.SeedReminder(t, h.db, h.node, inv.ID, invitationdomain.ReminderTypeInvitation, baseTime, nil)

	result, err := h.dispatcher.ProcessReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.PartialFailures)
	assert.True(t, schedtest.LoadReminders(t, h.db, inv.ID)[0].Sent)
}

func TestCancelledInvitationIsNotDispatched(t *testing.T) {
	h := newHarness(t)
	inv := h.seed(t, schedtest.InvitationSpec{
		Status:       invitationdomain.InvitationStatusCancelled,
		Participants: []schedtest.ParticipantSpec{{Email: "a@example.com"}},
	})
	schedtest.SeedReminder(t, h.db, h.node, inv.ID, invitationdomain.ReminderTypeInvitation, baseTime, nil)

	result, err := h.dispatcher.ProcessReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Due)
	assert.Empty(t, h.gateway.Calls())
}

func TestUpcomingMeetingFiresOneHourBefore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	meeting := baseTime.Add(3 * time.Hour)
	inv := h.seed(t, schedtest.InvitationSpec{
		Status:       invitationdomain.InvitationStatusScheduled,
		Times:        []time.Time{meeting},
		Participants: []schedtest.ParticipantSpec{{Email: "a@example.com"}},
	})
	_, err := h.scheduler.ScheduleReminders(ctx, inv.ID)
	require.NoError(t, err)

	h.clock.Set(meeting.Add(-time.Hour - time.Minute))
	result, err := h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Due)

	h.clock.Set(meeting.Add(-time.Hour))
	result, err = h.dispatcher.ProcessReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	calls := h.gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, invitationdomain.ReminderTypeUpcomingMeeting, calls[0].payload.Type)
}
