package repository

import (
	"context"
	"fmt"
	"time"

	"legalmatch-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AppointmentRepository handles database operations for appointments
type AppointmentRepository struct {
	db *pgxpool.Pool
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(db *pgxpool.Pool) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

const appointmentColumns = `id, user_id, lawyer_id, scheduled_at, duration_minutes, status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*models.Appointment, error) {
	appt := &models.Appointment{}
	err := row.Scan(
		&appt.ID,
		&appt.UserID,
		&appt.LawyerID,
		&appt.ScheduledAt,
		&appt.DurationMinutes,
		&appt.Status,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// Create creates a new appointment
func (r *AppointmentRepository) Create(ctx context.Context, appt *models.Appointment) error {
	query := `
		INSERT INTO appointments (user_id, lawyer_id, scheduled_at, duration_minutes, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		appt.UserID,
		appt.LawyerID,
		appt.ScheduledAt,
		appt.DurationMinutes,
		appt.Status,
		appt.Notes,
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	return translate(err)
}

// GetByID retrieves an appointment by ID
func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	appt, err := scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return appt, nil
}

// HasOverlap reports whether the lawyer has a non-cancelled appointment
// intersecting [start, end)
func (r *AppointmentRepository) HasOverlap(ctx context.Context, lawyerID uuid.UUID, start, end time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE lawyer_id = $1
				AND status <> 'cancelled'
				AND scheduled_at < $3
				AND scheduled_at + make_interval(mins => duration_minutes) > $2
		)`

	var overlap bool
	if err := r.db.QueryRow(ctx, query, lawyerID, start, end).Scan(&overlap); err != nil {
		return false, fmt.Errorf("failed to check appointment overlap: %w", err)
	}
	return overlap, nil
}

// ListByUserID retrieves a user's appointments ordered by scheduled time
func (r *AppointmentRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Appointment, error) {
	return r.list(ctx, `WHERE user_id = $1`, userID)
}

// ListByLawyerID retrieves a lawyer's appointments ordered by scheduled time
func (r *AppointmentRepository) ListByLawyerID(ctx context.Context, lawyerID uuid.UUID) ([]*models.Appointment, error) {
	return r.list(ctx, `WHERE lawyer_id = $1`, lawyerID)
}

func (r *AppointmentRepository) list(ctx context.Context, where string, id uuid.UUID) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments ` + where + ` ORDER BY scheduled_at`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

// UpdateStatus sets the status of an appointment
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AppointmentStatus) (*models.Appointment, error) {
	query := `
		UPDATE appointments SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + appointmentColumns

	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id, status))
	if err != nil {
		return nil, translate(err)
	}
	return appt, nil
}
