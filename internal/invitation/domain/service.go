package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ParticipantInput struct {
	Email         string `json:"email"`
	PhoneNumber   string `json:"phone_number"`
	Name          string `json:"name"`
	NotifyByEmail *bool  `json:"notify_by_email"`
	NotifyBySMS   bool   `json:"notify_by_sms"`
}

type PreferencesInput struct {
	TimePreference TimePreference `json:"time_preference"`
	DurationType   DurationType   `json:"duration_type"`
	LocationType   LocationType   `json:"location_type"`
}

type CreateInvitationRequest struct {
	Title         string             `json:"title"`
	Location      string             `json:"location"`
	Description   string             `json:"description"`
	ProposedTimes []time.Time        `json:"proposed_times"`
	CreatedBy     string             `json:"created_by"`
	Preferences   *PreferencesInput  `json:"preferences"`
	Participants  []ParticipantInput `json:"participants"`
}

type RespondRequest struct {
	InvitationID  string            `json:"-"`
	ParticipantID string            `json:"participant_id"`
	Status        ParticipantStatus `json:"status"`
}

type FinalizeRequest struct {
	InvitationID string    `json:"-"`
	Time         time.Time `json:"time"`
}

type Service interface {
	Create(context.Context, CreateInvitationRequest) (*Invitation, error)
	Get(ctx context.Context, id string) (*Invitation, error)
	Respond(context.Context, RespondRequest) (*Invitation, error)
	Finalize(context.Context, FinalizeRequest) (*Invitation, error)
	Cancel(ctx context.Context, id string) (*Invitation, error)
	Delete(ctx context.Context, id string) error
	AttachCalendarEvent(ctx context.Context, id, eventID string) (*Invitation, error)
	ListReminders(ctx context.Context, id string) ([]Reminder, error)
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidTitle         = errors.New("invalid_title")
	ErrInvalidProposedTimes = errors.New("invalid_proposed_times")
	ErrInvalidParticipants  = errors.New("invalid_participants")
	ErrInvalidParticipant   = errors.New("invalid_participant")
	ErrInvalidPreferences   = errors.New("invalid_preferences")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidCreator       = errors.New("invalid_creator")
	ErrInvalidEventID       = errors.New("invalid_event_id")
	ErrNotFound             = errors.New("not_found")
	ErrParticipantNotFound  = errors.New("participant_not_found")
	ErrInvalidState         = errors.New("invalid_state")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
