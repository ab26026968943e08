package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"legalmatch-backend/logger"
	"legalmatch-backend/models"
	"legalmatch-backend/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultAppointmentMinutes = 60
	maxAppointmentMinutes     = 8 * 60
)

// AppointmentService books consultations with lawyers
type AppointmentService struct {
	appointments AppointmentStore
	lawyers      LawyerStore
	log          *logrus.Logger
	now          func() time.Time
}

// AppointmentServiceOption is a functional option for AppointmentService
type AppointmentServiceOption func(*AppointmentService)

// AppointmentsWithStore sets the appointment repository
func AppointmentsWithStore(store AppointmentStore) AppointmentServiceOption {
	return func(s *AppointmentService) {
		s.appointments = store
	}
}

// AppointmentsWithLawyerStore sets the lawyer repository used to check the
// booked lawyer exists
func AppointmentsWithLawyerStore(store LawyerStore) AppointmentServiceOption {
	return func(s *AppointmentService) {
		s.lawyers = store
	}
}

// AppointmentsWithLogger sets the logger
func AppointmentsWithLogger(log *logrus.Logger) AppointmentServiceOption {
	return func(s *AppointmentService) {
		s.log = log
	}
}

// AppointmentsWithClock overrides time.Now
func AppointmentsWithClock(now func() time.Time) AppointmentServiceOption {
	return func(s *AppointmentService) {
		s.now = now
	}
}

// NewAppointmentService creates a new appointment service
func NewAppointmentService(opts ...AppointmentServiceOption) *AppointmentService {
	s := &AppointmentService{log: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAppointmentRequest books a slot
type CreateAppointmentRequest struct {
	UserID          uuid.UUID `json:"user_id"`
	LawyerID        uuid.UUID `json:"lawyer_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           *string   `json:"notes"`
}

// CreateAppointment books a pending appointment if the lawyer is free
func (s *AppointmentService) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*models.Appointment, error) {
	if req.UserID == uuid.Nil {
		return nil, required("user_id")
	}
	if req.LawyerID == uuid.Nil {
		return nil, required("lawyer_id")
	}
	if req.ScheduledAt.IsZero() {
		return nil, required("scheduled_at")
	}
	if !req.ScheduledAt.After(s.now()) {
		return nil, invalid("scheduled_at", "must be in the future")
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = defaultAppointmentMinutes
	}
	if req.DurationMinutes < 0 || req.DurationMinutes > maxAppointmentMinutes {
		return nil, invalid("duration_minutes", fmt.Sprintf("must be between 1 and %d", maxAppointmentMinutes))
	}
	if s.appointments == nil || s.lawyers == nil {
		return nil, notSet("appointment repositories")
	}

	if _, err := s.lawyers.GetByID(ctx, req.LawyerID); err != nil {
		return nil, lawyerStoreErr("get lawyer", err)
	}

	appt := &models.Appointment{
		UserID:          req.UserID,
		LawyerID:        req.LawyerID,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          models.AppointmentPending,
		Notes:           req.Notes,
	}

	overlap, err := s.appointments.HasOverlap(ctx, appt.LawyerID, appt.ScheduledAt, appt.EndsAt())
	if err != nil {
		return nil, storageErr("check availability", err)
	}
	if overlap {
		return nil, ErrSlotUnavailable
	}

	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, storageErr("create appointment", err)
	}

	s.log.WithFields(logrus.Fields{
		"appointment_id": appt.ID,
		"lawyer_id":      appt.LawyerID,
		"scheduled_at":   appt.ScheduledAt,
	}).Info("Appointment booked")
	return appt, nil
}

// ListAppointments lists the appointments of a user or of a lawyer. Exactly
// one of the two IDs must be set.
func (s *AppointmentService) ListAppointments(ctx context.Context, userID, lawyerID *uuid.UUID) ([]*models.Appointment, error) {
	if (userID == nil) == (lawyerID == nil) {
		return nil, invalid("userId", "exactly one of userId or lawyerId is required")
	}
	if s.appointments == nil {
		return nil, notSet("appointment repository")
	}

	var (
		appts []*models.Appointment
		err   error
	)
	if userID != nil {
		appts, err = s.appointments.ListByUserID(ctx, *userID)
	} else {
		appts, err = s.appointments.ListByLawyerID(ctx, *lawyerID)
	}
	if err != nil {
		return nil, storageErr("list appointments", err)
	}
	if appts == nil {
		appts = []*models.Appointment{}
	}
	return appts, nil
}

// UpdateStatus moves an appointment to next if the transition is allowed
func (s *AppointmentService) UpdateStatus(ctx context.Context, id uuid.UUID, next models.AppointmentStatus) (*models.Appointment, error) {
	if s.appointments == nil {
		return nil, notSet("appointment repository")
	}

	current, err := s.appointments.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: appointment", ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get appointment", err)
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, next)
	}

	updated, err := s.appointments.UpdateStatus(ctx, id, next)
	if err != nil {
		return nil, storageErr("update appointment", err)
	}
	return updated, nil
}
