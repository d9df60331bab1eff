package service

import (
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/notification"
)

func describe(t invitationdomain.ReminderType) string {
	switch t {
	case invitationdomain.ReminderTypeInvitation:
		return "You have been invited to a meeting. Let the organizer know whether the proposed times work for you."
	case invitationdomain.ReminderTypeResponseNeeded:
		return "Your response is still needed before the meeting can be scheduled."
	case invitationdomain.ReminderTypeUpcomingMeeting:
		return "Your meeting is starting soon."
	default:
		return ""
	}
}

// resolveRecipients maps participants to gateway recipients. Participants
// without a usable channel are dropped and counted.
func resolveRecipients(t invitationdomain.ReminderType, participants []invitationdomain.Participant) ([]notification.Recipient, int) {
	recipients := make([]notification.Recipient, 0, len(participants))
	skipped := 0
	for _, p := range participants {
		if t == invitationdomain.ReminderTypeResponseNeeded && p.Status != invitationdomain.ParticipantStatusPending {
			continue
		}
		if !p.HasUsableChannel() {
			skipped++
			continue
		}
		recipients = append(recipients, notification.Recipient{
			Name:          p.DisplayName(),
			Email:         p.EmailAddress(),
			PhoneNumber:   p.Phone(),
			NotifyByEmail: p.NotifyByEmail,
			NotifyBySMS:   p.NotifyBySMS,
		})
	}
	return recipients, skipped
}
