package repository

import (
	"context"
	"fmt"

	"legalmatch-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LawyerFilter narrows lawyer listings. Zero values mean no filter.
type LawyerFilter struct {
	Specialization *models.LegalType
	ActiveOnly     bool
	Limit          int
	Offset         int
}

// LawyerRepository handles database operations for lawyer profiles
type LawyerRepository struct {
	db *pgxpool.Pool
}

// NewLawyerRepository creates a new lawyer repository
func NewLawyerRepository(db *pgxpool.Pool) *LawyerRepository {
	return &LawyerRepository{db: db}
}

const lawyerColumns = `id, user_id, name, email, specialization, languages, years_of_experience,
	rating, hourly_rate, bio, active, created_at, updated_at`

func scanLawyer(row pgx.Row) (*models.Lawyer, error) {
	lawyer := &models.Lawyer{}
	err := row.Scan(
		&lawyer.ID,
		&lawyer.UserID,
		&lawyer.Name,
		&lawyer.Email,
		&lawyer.Specialization,
		&lawyer.Languages,
		&lawyer.YearsOfExperience,
		&lawyer.Rating,
		&lawyer.HourlyRate,
		&lawyer.Bio,
		&lawyer.Active,
		&lawyer.CreatedAt,
		&lawyer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return lawyer, nil
}

// Create creates a new lawyer profile
func (r *LawyerRepository) Create(ctx context.Context, lawyer *models.Lawyer) error {
	query := `
		INSERT INTO lawyers (
			user_id, name, email, specialization, languages, years_of_experience,
			rating, hourly_rate, bio, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	if lawyer.Languages == nil {
		lawyer.Languages = []string{}
	}
	err := r.db.QueryRow(
		ctx, query,
		lawyer.UserID,
		lawyer.Name,
		lawyer.Email,
		lawyer.Specialization,
		lawyer.Languages,
		lawyer.YearsOfExperience,
		lawyer.Rating,
		lawyer.HourlyRate,
		lawyer.Bio,
		lawyer.Active,
	).Scan(&lawyer.ID, &lawyer.CreatedAt, &lawyer.UpdatedAt)
	return translate(err)
}

// GetByID retrieves a lawyer by ID
func (r *LawyerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Lawyer, error) {
	lawyer, err := scanLawyer(r.db.QueryRow(ctx, `SELECT `+lawyerColumns+` FROM lawyers WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return lawyer, nil
}

// List retrieves lawyers matching filter, best rated first
func (r *LawyerRepository) List(ctx context.Context, filter LawyerFilter) ([]*models.Lawyer, error) {
	query := `SELECT ` + lawyerColumns + ` FROM lawyers WHERE TRUE`

	args := []interface{}{}
	argIndex := 1

	if filter.Specialization != nil {
		query += fmt.Sprintf(" AND specialization = $%d", argIndex)
		args = append(args, *filter.Specialization)
		argIndex++
	}
	if filter.ActiveOnly {
		query += " AND active"
	}

	query += " ORDER BY rating DESC, years_of_experience DESC, name"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET $%d", argIndex)
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lawyers: %w", err)
	}
	defer rows.Close()

	var lawyers []*models.Lawyer
	for rows.Next() {
		lawyer, err := scanLawyer(rows)
		if err != nil {
			return nil, err
		}
		lawyers = append(lawyers, lawyer)
	}
	return lawyers, rows.Err()
}

// Update updates a lawyer profile
func (r *LawyerRepository) Update(ctx context.Context, lawyer *models.Lawyer) error {
	query := `
		UPDATE lawyers SET
			name = $2,
			email = $3,
			specialization = $4,
			languages = $5,
			years_of_experience = $6,
			rating = $7,
			hourly_rate = $8,
			bio = $9,
			active = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(
		ctx, query,
		lawyer.ID,
		lawyer.Name,
		lawyer.Email,
		lawyer.Specialization,
		lawyer.Languages,
		lawyer.YearsOfExperience,
		lawyer.Rating,
		lawyer.HourlyRate,
		lawyer.Bio,
		lawyer.Active,
	).Scan(&lawyer.UpdatedAt)
	return translate(err)
}
