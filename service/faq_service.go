package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"legalmatch-backend/models"
	"legalmatch-backend/repository"

	"github.com/google/uuid"
)

// FAQService manages the help page questions
type FAQService struct {
	faqs FAQStore
}

// NewFAQService creates a new FAQ service
func NewFAQService(store FAQStore) *FAQService {
	return &FAQService{faqs: store}
}

// CreateFAQRequest adds a question
type CreateFAQRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// List returns the FAQs, optionally of one category
func (s *FAQService) List(ctx context.Context, category string) ([]*models.FAQ, error) {
	faqs, err := s.faqs.List(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, storageErr("list faqs", err)
	}
	if faqs == nil {
		faqs = []*models.FAQ{}
	}
	return faqs, nil
}

// Create adds a FAQ
func (s *FAQService) Create(ctx context.Context, req CreateFAQRequest) (*models.FAQ, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, required("question")
	}
	if strings.TrimSpace(req.Answer) == "" {
		return nil, required("answer")
	}
	faq := &models.FAQ{
		Question: strings.TrimSpace(req.Question),
		Answer:   strings.TrimSpace(req.Answer),
		Category: strings.TrimSpace(req.Category),
	}
	if err := s.faqs.Create(ctx, faq); err != nil {
		return nil, storageErr("create faq", err)
	}
	return faq, nil
}

// Delete removes a FAQ
func (s *FAQService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.faqs.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: faq", ErrNotFound)
	}
	if err != nil {
		return storageErr("delete faq", err)
	}
	return nil
}
