package notification

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toddfishman/meetini/internal/clock"
	"github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/providers/email"
	"go.uber.org/zap/zaptest"
)

type sentEmail struct {
	to          []string
	template    string
	data        map[string]any
	attachments int
	ics         []byte
}

type fakeEmail struct {
	mu      sync.Mutex
	sent    []sentEmail
	failFor map[string]bool
}

func (f *fakeEmail) Send(ctx context.Context, to []string, subject string, htmlBody string, opts ...email.SendOption) error {
	return nil
}

func (f *fakeEmail) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any, opts ...email.SendOption) error {
	if f.failFor[to[0]] {
		return errors.New("mailbox unavailable")
	}
	o := email.Collect(opts...)
	msg := sentEmail{to: to, template: templateName, data: data, attachments: len(o.Attachments)}
	if len(o.Attachments) > 0 {
		msg.ics = o.Attachments[0].Data
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSMS struct {
	mu     sync.Mutex
	bodies map[string]string
	err    error
}

func (f *fakeSMS) Send(ctx context.Context, to string, body string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bodies == nil {
		f.bodies = map[string]string{}
	}
	f.bodies[to] = body
	return nil
}

var meetingAt = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

func newGateway(t *testing.T, e email.Provider, s *fakeSMS) *MultiChannelGateway {
	p := Params{
		Log:   zaptest.NewLogger(t),
		Clock: clock.NewFakeClock(meetingAt.Add(-2 * time.Hour)),
		Email: e,
	}
	if s != nil {
		p.SMS = s
	}
	return NewMultiChannel(p)
}

func upcomingPayload() Payload {
	return Payload{
		Type:         domain.ReminderTypeUpcomingMeeting,
		InvitationID: "42",
		Title:        "Coffee chat",
		Description:  "Your meeting is coming up soon.",
		Date:         meetingAt,
		Duration:     30 * time.Minute,
		Location:     "Blue Bottle",
		ActionURL:    "https://meetini.app/invitations/42",
	}
}

func TestSendFansOutPerChannel(t *testing.T) {
	mail := &fakeEmail{}
	text := &fakeSMS{}
	g := newGateway(t, mail, text)

	report, err := g.Send(context.Background(), []Recipient{
		{Name: "Ada", Email: "ada@example.com", NotifyByEmail: true},
		{PhoneNumber: "+15550100", NotifyBySMS: true},
		{Email: "both@example.com", PhoneNumber: "+15550101", NotifyByEmail: true, NotifyBySMS: true},
	}, upcomingPayload())

	require.NoError(t, err)
	assert.Equal(t, 4, report.Attempted())
	assert.Equal(t, 4, report.Succeeded())
	assert.Len(t, mail.sent, 2)
	assert.Len(t, text.bodies, 2)
	assert.Contains(t, text.bodies["+15550100"], "Coffee chat")
	assert.Contains(t, text.bodies["+15550100"], "at Blue Bottle")

	for _, msg := range mail.sent {
		assert.Equal(t, "reminder_upcoming_meeting", msg.template)
		assert.Equal(t, 1, msg.attachments)
	}
}

func TestSendAttachesParsableCalendar(t *testing.T) {
	mail := &fakeEmail{}
	g := newGateway(t, mail, nil)

	_, err := g.Send(context.Background(), []Recipient{
		{Email: "ada@example.com", NotifyByEmail: true},
	}, upcomingPayload())
	require.NoError(t, err)
	require.Len(t, mail.sent, 1)

	cal, err := ical.NewDecoder(bytes.NewReader(mail.sent[0].ics)).Decode()
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	summary, err := events[0].Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Coffee chat", summary)
	start, err := events[0].DateTimeStart(time.UTC)
	require.NoError(t, err)
	assert.True(t, start.Equal(meetingAt))
}

func TestSendPartialFailureIsNotAnError(t *testing.T) {
	mail := &fakeEmail{failFor: map[string]bool{"bad@example.com": true}}
	g := newGateway(t, mail, nil)

	payload := upcomingPayload()
	payload.Type = domain.ReminderTypeResponseNeeded
	report, err := g.Send(context.Background(), []Recipient{
		{Email: "bad@example.com", NotifyByEmail: true},
		{Email: "ok@example.com", NotifyByEmail: true},
	}, payload)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.False(t, report.Results[0].Delivered())
	assert.True(t, report.Results[1].Delivered())
	assert.Zero(t, mail.sent[0].attachments)
}

func TestSendTotalFailureIsUnavailable(t *testing.T) {
	text := &fakeSMS{err: errors.New("provider down")}
	g := newGateway(t, nil, text)

	report, err := g.Send(context.Background(), []Recipient{
		{PhoneNumber: "+15550100", NotifyBySMS: true},
		{Email: "ada@example.com", NotifyByEmail: true},
	}, upcomingPayload())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGatewayUnavailable))
	assert.Equal(t, 2, report.Failed())
	assert.True(t, strings.Contains(err.Error(), "all 2 deliveries failed"))
}

func TestSendWithoutProvidersIsUnavailable(t *testing.T) {
	g := newGateway(t, nil, nil)

	_, err := g.Send(context.Background(), []Recipient{{Email: "a@example.com", NotifyByEmail: true}}, upcomingPayload())
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestSendCancelledContextIsUnavailable(t *testing.T) {
	g := newGateway(t, &fakeEmail{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Send(ctx, []Recipient{{Email: "a@example.com", NotifyByEmail: true}}, upcomingPayload())
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
