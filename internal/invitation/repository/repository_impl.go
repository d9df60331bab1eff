package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/toddfishman/meetini/internal/invitation/domain"
	pkgdb "github.com/toddfishman/meetini/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const invitationColumns = `id, title, location, description, proposed_times, status, created_by, calendar_event_id, created_at, updated_at`

const participantColumns = `id, invitation_id, email, phone_number, name, status, notify_by_email, notify_by_sms, responded_at, created_at, updated_at`

const reminderColumns = `id, invitation_id, type, scheduled_for, sent, sent_at, created_at, updated_at`

func (r *repo) InsertInvitation(ctx context.Context, db *gorm.DB, invitation *domain.Invitation) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO invitations (`+invitationColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			invitation.ID,
			invitation.Title,
			invitation.Location,
			invitation.Description,
			invitation.ProposedTimes,
			invitation.Status,
			invitation.CreatedBy,
			invitation.CalendarEventID,
			invitation.CreatedAt,
			invitation.UpdatedAt,
		).Error; err != nil {
			return err
		}

		if prefs := invitation.Preferences; prefs != nil {
			if err := tx.Exec(
				`INSERT INTO invitation_preferences (invitation_id, time_preference, duration_type, location_type)
				 VALUES (?, ?, ?, ?)`,
				invitation.ID,
				prefs.TimePreference,
				prefs.DurationType,
				prefs.LocationType,
			).Error; err != nil {
				return err
			}
		}

		for _, p := range invitation.Participants {
			if err := tx.Exec(
				`INSERT INTO participants (`+participantColumns+`)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID,
				invitation.ID,
				p.Email,
				p.PhoneNumber,
				p.Name,
				p.Status,
				p.NotifyByEmail,
				p.NotifyBySMS,
				p.RespondedAt,
				p.CreatedAt,
				p.UpdatedAt,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) FindInvitationByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := db.WithContext(ctx).Raw(
		`SELECT `+invitationColumns+` FROM invitations WHERE id = ?`,
		id,
	).Scan(&invitation).Error
	if err != nil {
		return nil, err
	}
	if invitation.ID == 0 {
		return nil, nil
	}

	loaded := []domain.Invitation{invitation}
	if err := r.loadRelations(ctx, db, loaded); err != nil {
		return nil, err
	}
	return &loaded[0], nil
}

// loadRelations attaches participants and preferences in two queries.
func (r *repo) loadRelations(ctx context.Context, db *gorm.DB, invitations []domain.Invitation) error {
	if len(invitations) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(invitations))
	index := make(map[snowflake.ID]int, len(invitations))
	for i, inv := range invitations {
		if _, ok := index[inv.ID]; ok {
			continue
		}
		index[inv.ID] = i
		ids = append(ids, inv.ID)
	}

	var participants []domain.Participant
	if err := db.WithContext(ctx).Raw(
		`SELECT `+participantColumns+` FROM participants
		 WHERE invitation_id IN ?
		 ORDER BY created_at ASC, id ASC`,
		ids,
	).Scan(&participants).Error; err != nil {
		return err
	}

	var preferences []domain.Preferences
	if err := db.WithContext(ctx).Raw(
		`SELECT invitation_id, time_preference, duration_type, location_type
		 FROM invitation_preferences WHERE invitation_id IN ?`,
		ids,
	).Scan(&preferences).Error; err != nil {
		return err
	}

	for i := range invitations {
		invitations[i].Participants = []domain.Participant{}
	}
	for _, p := range participants {
		if i, ok := index[p.InvitationID]; ok {
			invitations[i].Participants = append(invitations[i].Participants, p)
		}
	}
	for _, pref := range preferences {
		if i, ok := index[pref.InvitationID]; ok {
			pref := pref
			invitations[i].Preferences = &pref
		}
	}
	return nil
}

func (r *repo) UpdateInvitationStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.InvitationStatus, to domain.InvitationStatus, now time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE invitations SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) UpdateProposedTimes(ctx context.Context, db *gorm.DB, id snowflake.ID, times []time.Time, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invitations SET proposed_times = ?, updated_at = ? WHERE id = ?`,
		datatypes.NewJSONSlice(times),
		now,
		id,
	).Error
}

func (r *repo) SetCalendarEventID(ctx context.Context, db *gorm.DB, id snowflake.ID, eventID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invitations SET calendar_event_id = ?, updated_at = ? WHERE id = ?`,
		eventID,
		now,
		id,
	).Error
}

func (r *repo) UpdateParticipantStatus(ctx context.Context, db *gorm.DB, invitationID, participantID snowflake.ID, status domain.ParticipantStatus, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE participants SET status = ?, responded_at = ?, updated_at = ?
		 WHERE id = ? AND invitation_id = ?`,
		status,
		now,
		now,
		participantID,
		invitationID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) DeleteInvitation(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	var deleted bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM reminders WHERE invitation_id = ?`, id).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM participants WHERE invitation_id = ?`, id).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM invitation_preferences WHERE invitation_id = ?`, id).Error; err != nil {
			return err
		}
		result := tx.Exec(`DELETE FROM invitations WHERE id = ?`, id)
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *repo) ListReminders(ctx context.Context, db *gorm.DB, invitationID snowflake.ID) ([]domain.Reminder, error) {
	var reminders []domain.Reminder
	err := db.WithContext(ctx).Raw(
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE invitation_id = ?
		 ORDER BY scheduled_for ASC, id ASC`,
		invitationID,
	).Scan(&reminders).Error
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

func (r *repo) InsertReminderIfAbsent(ctx context.Context, db *gorm.DB, reminder *domain.Reminder) (bool, error) {
	var created bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Raw(
			`SELECT COUNT(1) FROM reminders
			 WHERE invitation_id = ? AND type = ? AND sent = ?`,
			reminder.InvitationID,
			reminder.Type,
			false,
		).Scan(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		if err := tx.Exec(
			`INSERT INTO reminders (`+reminderColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			reminder.ID,
			reminder.InvitationID,
			reminder.Type,
			reminder.ScheduledFor,
			false,
			nil,
			reminder.CreatedAt,
			reminder.UpdatedAt,
		).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		// A concurrent scheduler won the partial unique index.
		if pkgdb.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return created, nil
}

func (r *repo) RescheduleReminder(ctx context.Context, db *gorm.DB, id snowflake.ID, scheduledFor time.Time, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE reminders SET scheduled_for = ?, updated_at = ?
		 WHERE id = ? AND sent = ?`,
		scheduledFor,
		now,
		id,
		false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) DeleteUnsentReminder(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM reminders WHERE id = ? AND sent = ?`,
		id,
		false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListDueReminders(ctx context.Context, db *gorm.DB, now time.Time, after *domain.DueCursor, limit int) ([]domain.DueReminder, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT r.id, r.invitation_id, r.type, r.scheduled_for, r.sent, r.sent_at, r.created_at, r.updated_at
		FROM reminders r
		JOIN invitations i ON i.id = r.invitation_id
		WHERE r.sent = ? AND r.scheduled_for <= ? AND i.status <> ?`
	args := []any{false, now, domain.InvitationStatusCancelled}
	if after != nil {
		query += ` AND (r.scheduled_for > ? OR (r.scheduled_for = ? AND r.id > ?))`
		args = append(args, after.ScheduledFor, after.ScheduledFor, after.ID)
	}
	query += ` ORDER BY r.scheduled_for ASC, r.id ASC LIMIT ?`
	args = append(args, limit)

	var reminders []domain.Reminder
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&reminders).Error; err != nil {
		return nil, err
	}
	if len(reminders) == 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(reminders))
	seen := make(map[snowflake.ID]struct{}, len(reminders))
	for _, rem := range reminders {
		if _, ok := seen[rem.InvitationID]; ok {
			continue
		}
		seen[rem.InvitationID] = struct{}{}
		ids = append(ids, rem.InvitationID)
	}

	var invitations []domain.Invitation
	if err := db.WithContext(ctx).Raw(
		`SELECT `+invitationColumns+` FROM invitations WHERE id IN ?`,
		ids,
	).Scan(&invitations).Error; err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, db, invitations); err != nil {
		return nil, err
	}

	byID := make(map[snowflake.ID]domain.Invitation, len(invitations))
	for _, inv := range invitations {
		byID[inv.ID] = inv
	}

	out := make([]domain.DueReminder, 0, len(reminders))
	for _, rem := range reminders {
		inv, ok := byID[rem.InvitationID]
		if !ok {
			// deleted between the two reads; the sweeper will collect it
			continue
		}
		out = append(out, domain.DueReminder{Reminder: rem, Invitation: inv})
	}
	return out, nil
}

func (r *repo) MarkReminderSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE reminders SET sent = ?, sent_at = ?, updated_at = ?
		 WHERE id = ? AND sent = ?`,
		true,
		now,
		now,
		id,
		false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) DeleteSentRemindersBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM reminders WHERE sent = ? AND sent_at < ?`,
		true,
		cutoff,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) DeleteRemindersForCancelledInvitations(ctx context.Context, db *gorm.DB) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM reminders
		 WHERE invitation_id IN (SELECT id FROM invitations WHERE status = ?)`,
		domain.InvitationStatusCancelled,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) DeleteOrphanReminders(ctx context.Context, db *gorm.DB) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM reminders
		 WHERE NOT EXISTS (SELECT 1 FROM invitations i WHERE i.id = reminders.invitation_id)`,
	)
	return result.RowsAffected, result.Error
}
