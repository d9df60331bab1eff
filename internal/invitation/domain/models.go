package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "pending"
	InvitationStatusScheduled InvitationStatus = "scheduled"
	InvitationStatusCancelled InvitationStatus = "cancelled"
)

func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationStatusPending, InvitationStatusScheduled, InvitationStatusCancelled:
		return true
	default:
		return false
	}
}

type ParticipantStatus string

const (
	ParticipantStatusPending  ParticipantStatus = "pending"
	ParticipantStatusAccepted ParticipantStatus = "accepted"
	ParticipantStatusDeclined ParticipantStatus = "declined"
)

func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantStatusPending, ParticipantStatusAccepted, ParticipantStatusDeclined:
		return true
	default:
		return false
	}
}

// Terminal reports whether the participant has answered.
func (s ParticipantStatus) Terminal() bool {
	return s == ParticipantStatusAccepted || s == ParticipantStatusDeclined
}

type ReminderType string

const (
	ReminderTypeInvitation      ReminderType = "invitation"
	ReminderTypeResponseNeeded  ReminderType = "response_needed"
	ReminderTypeUpcomingMeeting ReminderType = "upcoming_meeting"
)

func (t ReminderType) Valid() bool {
	switch t {
	case ReminderTypeInvitation, ReminderTypeResponseNeeded, ReminderTypeUpcomingMeeting:
		return true
	default:
		return false
	}
}

type TimePreference string

const (
	TimePreferenceMorning   TimePreference = "morning"
	TimePreferenceAfternoon TimePreference = "afternoon"
	TimePreferenceEvening   TimePreference = "evening"
)

// Valid accepts the empty value: the preference is optional.
func (p TimePreference) Valid() bool {
	switch p {
	case "", TimePreferenceMorning, TimePreferenceAfternoon, TimePreferenceEvening:
		return true
	default:
		return false
	}
}

type DurationType string

const (
	Duration30Min  DurationType = "30min"
	Duration1Hour  DurationType = "1hour"
	Duration2Hours DurationType = "2hours"
)

func (d DurationType) Valid() bool {
	switch d {
	case Duration30Min, Duration1Hour, Duration2Hours:
		return true
	default:
		return false
	}
}

func (d DurationType) Duration() time.Duration {
	switch d {
	case Duration30Min:
		return 30 * time.Minute
	case Duration2Hours:
		return 2 * time.Hour
	default:
		return time.Hour
	}
}

type LocationType string

const (
	LocationTypeCoffee     LocationType = "coffee"
	LocationTypeRestaurant LocationType = "restaurant"
	LocationTypeOffice     LocationType = "office"
	LocationTypeVirtual    LocationType = "virtual"
)

// Valid accepts the empty value: the location type is optional.
func (l LocationType) Valid() bool {
	switch l {
	case "", LocationTypeCoffee, LocationTypeRestaurant, LocationTypeOffice, LocationTypeVirtual:
		return true
	default:
		return false
	}
}

// Invitation is a meeting request. ProposedTimes[0] is the meeting time once
// the invitation is scheduled.
type Invitation struct {
	ID              snowflake.ID                   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title           string                         `gorm:"not null" json:"title"`
	Location        *string                        `json:"location,omitempty"`
	Description     *string                        `json:"description,omitempty"`
	ProposedTimes   datatypes.JSONSlice[time.Time] `gorm:"type:json;not null" json:"proposed_times"`
	Status          InvitationStatus               `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedBy       string                         `gorm:"not null" json:"created_by"`
	CalendarEventID *string                        `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time                      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                      `gorm:"not null" json:"updated_at"`

	Preferences  *Preferences  `gorm:"-" json:"preferences,omitempty"`
	Participants []Participant `gorm:"-" json:"participants"`
}

func (Invitation) TableName() string { return "invitations" }

// MeetingTime returns the first proposed time, which is the agreed time once
// the invitation is scheduled.
func (i *Invitation) MeetingTime() (time.Time, bool) {
	if i == nil || len(i.ProposedTimes) == 0 {
		return time.Time{}, false
	}
	return i.ProposedTimes[0], true
}

// AllResponded reports whether every participant answered.
func (i *Invitation) AllResponded() bool {
	if i == nil || len(i.Participants) == 0 {
		return false
	}
	for _, p := range i.Participants {
		if !p.Status.Terminal() {
			return false
		}
	}
	return true
}

// HasPendingParticipants reports whether anyone has yet to answer.
func (i *Invitation) HasPendingParticipants() bool {
	if i == nil {
		return false
	}
	for _, p := range i.Participants {
		if p.Status == ParticipantStatusPending {
			return true
		}
	}
	return false
}

func (i *Invitation) LocationText() string {
	if i == nil || i.Location == nil {
		return ""
	}
	return strings.TrimSpace(*i.Location)
}

type Participant struct {
	ID            snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	InvitationID  snowflake.ID      `gorm:"not null;index" json:"invitation_id"`
	Email         *string           `json:"email,omitempty"`
	PhoneNumber   *string           `json:"phone_number,omitempty"`
	Name          *string           `json:"name,omitempty"`
	Status        ParticipantStatus `gorm:"type:varchar(16);not null" json:"status"`
	NotifyByEmail bool              `gorm:"not null" json:"notify_by_email"`
	NotifyBySMS   bool              `gorm:"column:notify_by_sms;not null" json:"notify_by_sms"`
	RespondedAt   *time.Time        `json:"responded_at,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
}

func (Participant) TableName() string { return "participants" }

func (p Participant) EmailAddress() string {
	if p.Email == nil {
		return ""
	}
	return strings.TrimSpace(*p.Email)
}

func (p Participant) Phone() string {
	if p.PhoneNumber == nil {
		return ""
	}
	return strings.TrimSpace(*p.PhoneNumber)
}

func (p Participant) DisplayName() string {
	if p.Name == nil {
		return ""
	}
	return strings.TrimSpace(*p.Name)
}

// HasUsableChannel reports whether at least one enabled channel has an address.
func (p Participant) HasUsableChannel() bool {
	return (p.NotifyByEmail && p.EmailAddress() != "") ||
		(p.NotifyBySMS && p.Phone() != "")
}

type Preferences struct {
	InvitationID   snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"-"`
	TimePreference TimePreference `gorm:"type:varchar(16)" json:"time_preference,omitempty"`
	DurationType   DurationType   `gorm:"type:varchar(16);not null" json:"duration_type"`
	LocationType   LocationType   `gorm:"type:varchar(16)" json:"location_type,omitempty"`
}

func (Preferences) TableName() string { return "invitation_preferences" }

// Reminder is a scheduled notification. Sent flips false to true exactly once.
type Reminder struct {
	ID           snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	InvitationID snowflake.ID `gorm:"not null;index" json:"invitation_id"`
	Type         ReminderType `gorm:"type:varchar(32);not null" json:"type"`
	ScheduledFor time.Time    `gorm:"not null;index" json:"scheduled_for"`
	Sent         bool         `gorm:"not null" json:"sent"`
	SentAt       *time.Time   `json:"sent_at,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Reminder) TableName() string { return "reminders" }

// DueReminder is a reminder joined with its parent invitation and participants.
type DueReminder struct {
	Reminder   Reminder
	Invitation Invitation
}

// DueCursor positions keyset pagination over due reminders.
type DueCursor struct {
	ScheduledFor time.Time
	ID           snowflake.ID
}
