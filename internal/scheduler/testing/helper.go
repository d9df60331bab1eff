// Package testing holds fixtures shared by reminder, scheduler and server tests.
package testing

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/migration"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDB returns an isolated in-memory database with the schema applied.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

// NewNode returns a snowflake node for tests.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// ParticipantSpec describes a participant fixture.
type ParticipantSpec struct {
	Email  string
	Phone  string
	Name   string
	Status domain.ParticipantStatus
	SMS    bool
	// NoEmail disables the email channel even when Email is set.
	NoEmail bool
}

// InvitationSpec describes an invitation fixture.
type InvitationSpec struct {
	Title        string
	Status       domain.InvitationStatus
	Times        []time.Time
	Location     string
	Participants []ParticipantSpec
}

// SeedInvitation writes an invitation with its participants directly to the
// database, bypassing the service validation.
func SeedInvitation(t testing.TB, db *gorm.DB, node *snowflake.Node, now time.Time, spec InvitationSpec) domain.Invitation {
	t.Helper()

	if spec.Title == "" {
		spec.Title = "Coffee chat"
	}
	if spec.Status == "" {
		spec.Status = domain.InvitationStatusPending
	}
	if len(spec.Times) == 0 {
		spec.Times = []time.Time{now.Add(48 * time.Hour)}
	}

	inv := domain.Invitation{
		ID:            node.Generate(),
		Title:         spec.Title,
		ProposedTimes: datatypes.NewJSONSlice(spec.Times),
		Status:        spec.Status,
		CreatedBy:     "organizer@example.com",
		CreatedAt:     now,
		UpdatedAt:     now,
		Preferences:   &domain.Preferences{DurationType: domain.Duration1Hour},
	}
	if spec.Location != "" {
		loc := spec.Location
		inv.Location = &loc
	}

	for _, ps := range spec.Participants {
		status := ps.Status
		if status == "" {
			status = domain.ParticipantStatusPending
		}
		p := domain.Participant{
			ID:            node.Generate(),
			InvitationID:  inv.ID,
			Status:        status,
			NotifyByEmail: !ps.NoEmail,
			NotifyBySMS:   ps.SMS,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if ps.Email != "" {
			email := ps.Email
			p.Email = &email
		}
		if ps.Phone != "" {
			phone := ps.Phone
			p.PhoneNumber = &phone
		}
		if ps.Name != "" {
			name := ps.Name
			p.Name = &name
		}
		inv.Participants = append(inv.Participants, p)
	}

	if err := insertInvitation(db, &inv); err != nil {
		t.Fatalf("seed invitation: %v", err)
	}
	return inv
}

func insertInvitation(db *gorm.DB, inv *domain.Invitation) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(inv).Error; err != nil {
			return err
		}
		if inv.Preferences != nil {
			prefs := *inv.Preferences
			prefs.InvitationID = inv.ID
			if err := tx.Create(&prefs).Error; err != nil {
				return err
			}
		}
		for i := range inv.Participants {
			if err := tx.Create(&inv.Participants[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SeedReminder inserts a reminder row as-is.
func SeedReminder(t testing.TB, db *gorm.DB, node *snowflake.Node, invitationID snowflake.ID, reminderType domain.ReminderType, scheduledFor time.Time, sentAt *time.Time) domain.Reminder {
	t.Helper()
	r := domain.Reminder{
		ID:           node.Generate(),
		InvitationID: invitationID,
		Type:         reminderType,
		ScheduledFor: scheduledFor,
		Sent:         sentAt != nil,
		SentAt:       sentAt,
		CreatedAt:    scheduledFor,
		UpdatedAt:    scheduledFor,
	}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("seed reminder: %v", err)
	}
	return r
}

// LoadReminders returns every reminder of an invitation ordered by schedule.
func LoadReminders(t testing.TB, db *gorm.DB, invitationID snowflake.ID) []domain.Reminder {
	t.Helper()
	var out []domain.Reminder
	if err := db.Where("invitation_id = ?", invitationID).Order("scheduled_for asc, id asc").Find(&out).Error; err != nil {
		t.Fatalf("load reminders: %v", err)
	}
	return out
}

// ReminderAccelerator moves reminders into the past so they become due.
type ReminderAccelerator struct {
	db *gorm.DB
}

func NewReminderAccelerator(db *gorm.DB) *ReminderAccelerator {
	return &ReminderAccelerator{db: db}
}

// FastForwardReminder makes a single unsent reminder due at now.
func (ra *ReminderAccelerator) FastForwardReminder(ctx context.Context, id snowflake.ID, now time.Time) error {
	return ra.db.WithContext(ctx).Exec(
		`UPDATE reminders SET scheduled_for = ?, updated_at = ? WHERE id = ? AND sent = ?`,
		now.Add(-time.Minute),
		now,
		id,
		false,
	).Error
}

// FastForwardAll makes every unsent reminder due at now.
func (ra *ReminderAccelerator) FastForwardAll(ctx context.Context, now time.Time) (int64, error) {
	result := ra.db.WithContext(ctx).Exec(
		`UPDATE reminders SET scheduled_for = ?, updated_at = ? WHERE sent = ? AND scheduled_for > ?`,
		now.Add(-time.Minute),
		now,
		false,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
