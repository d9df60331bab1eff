package notification

import (
	"bytes"
	"fmt"
	"net/url"
	"time"

	"github.com/emersion/go-ical"
	"github.com/gosimple/slug"
	"github.com/toddfishman/meetini/internal/providers/email"
)

const calendarProductID = "-//Meetini//Reminders//EN"

// calendarAttachment renders a single-event iCalendar file for the meeting.
func calendarAttachment(p Payload, now time.Time) (email.Attachment, error) {
	if p.Date.IsZero() {
		return email.Attachment{}, fmt.Errorf("calendar: missing meeting date")
	}
	duration := p.Duration
	if duration <= 0 {
		duration = time.Hour
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, fmt.Sprintf("invitation-%s@meetini", p.InvitationID))
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, p.Date.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, p.Date.Add(duration).UTC())
	event.Props.SetText(ical.PropSummary, p.Title)
	if p.Description != "" {
		event.Props.SetText(ical.PropDescription, p.Description)
	}
	if p.Location != "" {
		event.Props.SetText(ical.PropLocation, p.Location)
	}
	if p.ActionURL != "" {
		if u, err := url.Parse(p.ActionURL); err == nil {
			event.Props.SetURI(ical.PropURL, u)
		}
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, calendarProductID)
	cal.Props.SetText(ical.PropMethod, "PUBLISH")
	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return email.Attachment{}, fmt.Errorf("calendar: encode: %w", err)
	}

	name := slug.Make(p.Title)
	if name == "" {
		name = "meeting"
	}
	return email.Attachment{
		Filename:    name + ".ics",
		ContentType: "text/calendar; charset=utf-8; method=PUBLISH",
		Data:        buf.Bytes(),
	}, nil
}
