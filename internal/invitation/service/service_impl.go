package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/toddfishman/meetini/internal/clock"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/observability/logger"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	reminderdomain "github.com/toddfishman/meetini/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      invitationdomain.Repository
	Clock     clock.Clock
	Reminders reminderdomain.Scheduler
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      invitationdomain.Repository
	clock     clock.Clock
	reminders reminderdomain.Scheduler
	metrics   *obsmetrics.Metrics
}

func New(p Params) invitationdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invitation.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		clock:     p.Clock,
		reminders: p.Reminders,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req invitationdomain.CreateInvitationRequest) (*invitationdomain.Invitation, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invitationdomain.ErrInvalidTitle
	}

	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		return nil, invitationdomain.ErrInvalidCreator
	}

	if len(req.ProposedTimes) == 0 {
		return nil, invitationdomain.ErrInvalidProposedTimes
	}
	times := make([]time.Time, 0, len(req.ProposedTimes))
	for _, t := range req.ProposedTimes {
		if t.IsZero() {
			return nil, invitationdomain.ErrInvalidProposedTimes
		}
		times = append(times, t.UTC())
	}

	if len(req.Participants) == 0 {
		return nil, invitationdomain.ErrInvalidParticipants
	}

	prefs, err := buildPreferences(req.Preferences)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	inv := &invitationdomain.Invitation{
		ID:            s.genID.Generate(),
		Title:         title,
		Location:      optionalString(req.Location),
		Description:   optionalString(req.Description),
		ProposedTimes: datatypes.NewJSONSlice(times),
		Status:        invitationdomain.InvitationStatusPending,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
		Preferences:   prefs,
	}
	prefs.InvitationID = inv.ID

	for _, in := range req.Participants {
		p, err := s.buildParticipant(inv.ID, in, now)
		if err != nil {
			return nil, err
		}
		inv.Participants = append(inv.Participants, p)
	}

	if err := s.repo.InsertInvitation(ctx, s.db, inv); err != nil {
		return nil, err
	}
	s.metrics.RecordInvitationEvent(ctx, "created")

	s.scheduleReminders(ctx, inv.ID)
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id string) (*invitationdomain.Invitation, error) {
	invitationID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, invitationID)
}

// Respond records a participant's answer. The invitation becomes scheduled
// once nobody is left pending.
func (s *Service) Respond(ctx context.Context, req invitationdomain.RespondRequest) (*invitationdomain.Invitation, error) {
	invitationID, err := parseID(req.InvitationID)
	if err != nil {
		return nil, err
	}
	participantID, err := invitationdomain.ParseID(req.ParticipantID)
	if err != nil || participantID == 0 {
		return nil, invitationdomain.ErrParticipantNotFound
	}
	if !req.Status.Terminal() {
		return nil, invitationdomain.ErrInvalidStatus
	}

	inv, err := s.load(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.Status == invitationdomain.InvitationStatusCancelled {
		return nil, invitationdomain.ErrInvalidState
	}

	now := s.clock.Now().UTC()
	updated, err := s.repo.UpdateParticipantStatus(ctx, s.db, invitationID, participantID, req.Status, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, invitationdomain.ErrParticipantNotFound
	}
	s.metrics.RecordInvitationEvent(ctx, "participant_"+string(req.Status))

	inv, err = s.load(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.Status != invitationdomain.InvitationStatusPending || !inv.AllResponded() {
		return inv, nil
	}

	changed, err := s.repo.UpdateInvitationStatus(ctx, s.db, invitationID,
		[]invitationdomain.InvitationStatus{invitationdomain.InvitationStatusPending},
		invitationdomain.InvitationStatusScheduled, now)
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordInvitationEvent(ctx, "scheduled")
		s.scheduleReminders(ctx, invitationID)
	}
	return s.load(ctx, invitationID)
}

// Finalize fixes the meeting time. The chosen time becomes the first proposed
// time, which the upcoming reminder is derived from.
func (s *Service) Finalize(ctx context.Context, req invitationdomain.FinalizeRequest) (*invitationdomain.Invitation, error) {
	invitationID, err := parseID(req.InvitationID)
	if err != nil {
		return nil, err
	}
	if req.Time.IsZero() {
		return nil, invitationdomain.ErrInvalidProposedTimes
	}
	chosen := req.Time.UTC()

	inv, err := s.load(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.Status == invitationdomain.InvitationStatusCancelled {
		return nil, invitationdomain.ErrInvalidState
	}

	times := []time.Time{chosen}
	for _, t := range inv.ProposedTimes {
		if !t.Equal(chosen) {
			times = append(times, t.UTC())
		}
	}

	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateProposedTimes(ctx, tx, invitationID, times, now); err != nil {
			return err
		}
		changed, err := s.repo.UpdateInvitationStatus(ctx, tx, invitationID,
			[]invitationdomain.InvitationStatus{invitationdomain.InvitationStatusPending, invitationdomain.InvitationStatusScheduled},
			invitationdomain.InvitationStatusScheduled, now)
		if err != nil {
			return err
		}
		if !changed {
			return invitationdomain.ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordInvitationEvent(ctx, "finalized")

	s.scheduleReminders(ctx, invitationID)
	return s.load(ctx, invitationID)
}

// Cancel is idempotent. Reminders of a cancelled invitation are never
// dispatched and are removed by the next cleanup.
func (s *Service) Cancel(ctx context.Context, id string) (*invitationdomain.Invitation, error) {
	invitationID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	changed, err := s.repo.UpdateInvitationStatus(ctx, s.db, invitationID,
		[]invitationdomain.InvitationStatus{invitationdomain.InvitationStatusPending, invitationdomain.InvitationStatusScheduled},
		invitationdomain.InvitationStatusCancelled, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordInvitationEvent(ctx, "cancelled")
	}
	return s.load(ctx, invitationID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	invitationID, err := parseID(id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.DeleteInvitation(ctx, s.db, invitationID)
	if err != nil {
		return err
	}
	if !deleted {
		return invitationdomain.ErrNotFound
	}
	s.metrics.RecordInvitationEvent(ctx, "deleted")
	return nil
}

func (s *Service) AttachCalendarEvent(ctx context.Context, id, eventID string) (*invitationdomain.Invitation, error) {
	invitationID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, invitationdomain.ErrInvalidEventID
	}

	if _, err := s.load(ctx, invitationID); err != nil {
		return nil, err
	}
	if err := s.repo.SetCalendarEventID(ctx, s.db, invitationID, eventID, s.clock.Now().UTC()); err != nil {
		return nil, err
	}
	return s.load(ctx, invitationID)
}

func (s *Service) ListReminders(ctx context.Context, id string) ([]invitationdomain.Reminder, error) {
	invitationID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, invitationID); err != nil {
		return nil, err
	}
	return s.repo.ListReminders(ctx, s.db, invitationID)
}

// scheduleReminders never fails the caller; a missed reminder is logged and
// can be recreated through the schedule endpoint.
func (s *Service) scheduleReminders(ctx context.Context, invitationID snowflake.ID) {
	if s.reminders == nil {
		return
	}
	if _, err := s.reminders.ScheduleReminders(ctx, invitationID); err != nil {
		logger.WithInvitation(logger.WithContext(ctx, s.log), invitationID.String()).
			Warn("invitation.schedule_reminders_failed", zap.Error(err))
	}
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*invitationdomain.Invitation, error) {
	inv, err := s.repo.FindInvitationByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invitationdomain.ErrNotFound
	}
	return inv, nil
}

func (s *Service) buildParticipant(invitationID snowflake.ID, in invitationdomain.ParticipantInput, now time.Time) (invitationdomain.Participant, error) {
	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.PhoneNumber)

	notifyByEmail := email != ""
	if in.NotifyByEmail != nil {
		notifyByEmail = *in.NotifyByEmail
	}

	if email == "" && phone == "" {
		return invitationdomain.Participant{}, invitationdomain.ErrInvalidParticipant
	}
	if email != "" && !strings.Contains(email, "@") {
		return invitationdomain.Participant{}, invitationdomain.ErrInvalidParticipant
	}
	if notifyByEmail && email == "" {
		return invitationdomain.Participant{}, invitationdomain.ErrInvalidParticipant
	}
	if in.NotifyBySMS && phone == "" {
		return invitationdomain.Participant{}, invitationdomain.ErrInvalidParticipant
	}

	return invitationdomain.Participant{
		ID:            s.genID.Generate(),
		InvitationID:  invitationID,
		Email:         optionalString(email),
		PhoneNumber:   optionalString(phone),
		Name:          optionalString(in.Name),
		Status:        invitationdomain.ParticipantStatusPending,
		NotifyByEmail: notifyByEmail,
		NotifyBySMS:   in.NotifyBySMS,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func buildPreferences(in *invitationdomain.PreferencesInput) (*invitationdomain.Preferences, error) {
	prefs := &invitationdomain.Preferences{DurationType: invitationdomain.Duration1Hour}
	if in == nil {
		return prefs, nil
	}
	if in.DurationType != "" {
		prefs.DurationType = in.DurationType
	}
	prefs.TimePreference = in.TimePreference
	prefs.LocationType = in.LocationType

	if !prefs.DurationType.Valid() || !prefs.TimePreference.Valid() || !prefs.LocationType.Valid() {
		return nil, invitationdomain.ErrInvalidPreferences
	}
	return prefs, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := invitationdomain.ParseID(value)
	if err != nil || id == 0 {
		return 0, invitationdomain.ErrInvalidID
	}
	return id, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
