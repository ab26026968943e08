package repository

import (
	"context"
	"fmt"

	"legalmatch-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FAQRepository handles database operations for FAQs
type FAQRepository struct {
	db *pgxpool.Pool
}

// NewFAQRepository creates a new FAQ repository
func NewFAQRepository(db *pgxpool.Pool) *FAQRepository {
	return &FAQRepository{db: db}
}

// Create creates a new FAQ
func (r *FAQRepository) Create(ctx context.Context, faq *models.FAQ) error {
	query := `
		INSERT INTO faqs (question, answer, category)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return r.db.QueryRow(ctx, query, faq.Question, faq.Answer, faq.Category).Scan(&faq.ID, &faq.CreatedAt)
}

// List retrieves FAQs, optionally restricted to one category
func (r *FAQRepository) List(ctx context.Context, category string) ([]*models.FAQ, error) {
	query := `SELECT id, question, answer, category, created_at FROM faqs`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list faqs: %w", err)
	}
	defer rows.Close()

	var faqs []*models.FAQ
	for rows.Next() {
		faq := &models.FAQ{}
		if err := rows.Scan(&faq.ID, &faq.Question, &faq.Answer, &faq.Category, &faq.CreatedAt); err != nil {
			return nil, err
		}
		faqs = append(faqs, faq)
	}
	return faqs, rows.Err()
}

// Delete deletes a FAQ
func (r *FAQRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM faqs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
