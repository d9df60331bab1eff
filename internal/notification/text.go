package notification

import (
	"fmt"
	"strings"

	"github.com/toddfishman/meetini/internal/invitation/domain"
)

const smsTimeLayout = "Mon Jan 2 15:04 MST"

func templateName(t domain.ReminderType) string {
	return "reminder_" + string(t)
}

// smsBody renders the short text variant of a reminder.
func smsBody(p Payload) string {
	var b strings.Builder
	b.WriteString("Meetini: ")
	b.WriteString(p.Title)
	if !p.Date.IsZero() {
		fmt.Fprintf(&b, " (%s)", p.Date.UTC().Format(smsTimeLayout))
	}
	if p.Location != "" {
		fmt.Fprintf(&b, " at %s", p.Location)
	}
	b.WriteString(". ")
	b.WriteString(p.Description)
	if p.ActionURL != "" {
		b.WriteString(" ")
		b.WriteString(p.ActionURL)
	}
	return b.String()
}

func emailData(p Payload, r Recipient) map[string]any {
	return map[string]any{
		"title":          p.Title,
		"description":    p.Description,
		"date":           p.Date,
		"location":       p.Location,
		"action_url":     p.ActionURL,
		"recipient_name": r.Name,
	}
}

// wantsCalendar reports whether the message carries an .ics file.
func wantsCalendar(t domain.ReminderType) bool {
	return t == domain.ReminderTypeInvitation || t == domain.ReminderTypeUpcomingMeeting
}
