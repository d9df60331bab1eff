package notification

import (
	"context"
	"errors"
	"time"

	"github.com/toddfishman/meetini/internal/invitation/domain"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ErrGatewayUnavailable means nothing could be delivered; the reminder stays
// unsent and is retried by a later run.
var ErrGatewayUnavailable = errors.New("gateway_unavailable")

type Recipient struct {
	Name          string
	Email         string
	PhoneNumber   string
	NotifyByEmail bool
	NotifyBySMS   bool
}

// Channels lists the enabled channels that have an address.
func (r Recipient) Channels() []Channel {
	out := make([]Channel, 0, 2)
	if r.NotifyByEmail && r.Email != "" {
		out = append(out, ChannelEmail)
	}
	if r.NotifyBySMS && r.PhoneNumber != "" {
		out = append(out, ChannelSMS)
	}
	return out
}

type Payload struct {
	Type         domain.ReminderType
	InvitationID string
	Title        string
	Description  string
	Date         time.Time
	Duration     time.Duration
	Location     string
	ActionURL    string
}

type Delivery struct {
	Channel   Channel
	MessageID string
	Err       error
}

type RecipientResult struct {
	Recipient  Recipient
	Deliveries []Delivery
}

// Delivered reports whether at least one channel reached the recipient.
func (r RecipientResult) Delivered() bool {
	for _, d := range r.Deliveries {
		if d.Err == nil {
			return true
		}
	}
	return false
}

type Report struct {
	Results []RecipientResult
}

func (r Report) Attempted() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Deliveries)
	}
	return n
}

func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		for _, d := range res.Deliveries {
			if d.Err == nil {
				n++
			}
		}
	}
	return n
}

func (r Report) Failed() int {
	return r.Attempted() - r.Succeeded()
}

// Gateway delivers one payload to many recipients. Per-recipient failures are
// recorded in the Report; an error is returned only when the gateway as a
// whole could not deliver.
type Gateway interface {
	Send(ctx context.Context, recipients []Recipient, payload Payload) (Report, error)
}
