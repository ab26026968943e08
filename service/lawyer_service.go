package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"legalmatch-backend/ai"
	"legalmatch-backend/logger"
	"legalmatch-backend/models"
	"legalmatch-backend/repository"
	"legalmatch-backend/retry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LawyerService manages lawyer profiles and matches lawyers to queries
type LawyerService struct {
	lawyers   LawyerStore
	model     ai.Model
	log       *logrus.Logger
	retryOpts []retry.Option
}

// LawyerServiceOption is a functional option for LawyerService
type LawyerServiceOption func(*LawyerService)

// LawyersWithStore sets the lawyer repository
func LawyersWithStore(store LawyerStore) LawyerServiceOption {
	return func(s *LawyerService) {
		s.lawyers = store
	}
}

// LawyersWithModel sets the AI model used for query processing and ranking
func LawyersWithModel(model ai.Model) LawyerServiceOption {
	return func(s *LawyerService) {
		s.model = model
	}
}

// LawyersWithLogger sets the logger
func LawyersWithLogger(log *logrus.Logger) LawyerServiceOption {
	return func(s *LawyerService) {
		s.log = log
	}
}

// LawyersWithRetryOptions tunes the backoff around model calls
func LawyersWithRetryOptions(opts ...retry.Option) LawyerServiceOption {
	return func(s *LawyerService) {
		s.retryOpts = append(s.retryOpts, opts...)
	}
}

// NewLawyerService creates a new lawyer service
func NewLawyerService(opts ...LawyerServiceOption) *LawyerService {
	s := &LawyerService{log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LawyerInput carries the editable fields of a lawyer profile
type LawyerInput struct {
	UserID            *uuid.UUID `json:"user_id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Specialization    string     `json:"specialization"`
	Languages         []string   `json:"languages"`
	YearsOfExperience int        `json:"years_of_experience"`
	Rating            float64    `json:"rating"`
	HourlyRate        float64    `json:"hourly_rate"`
	Bio               string     `json:"bio"`
	Active            *bool      `json:"active"`
}

func (in LawyerInput) apply(l *models.Lawyer) error {
	if strings.TrimSpace(in.Name) == "" {
		return required("name")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return invalid("email", "must be a valid address")
	}
	spec, ok := models.NormalizeLegalType(in.Specialization)
	if !ok {
		return invalid("specialization", fmt.Sprintf("unknown legal type %q", in.Specialization))
	}
	if in.YearsOfExperience < 0 {
		return invalid("years_of_experience", "must not be negative")
	}
	if in.Rating < 0 || in.Rating > 5 {
		return invalid("rating", "must be between 0 and 5")
	}
	if in.HourlyRate < 0 {
		return invalid("hourly_rate", "must not be negative")
	}

	l.UserID = in.UserID
	l.Name = strings.TrimSpace(in.Name)
	l.Email = strings.ToLower(strings.TrimSpace(in.Email))
	l.Specialization = spec
	l.Languages = in.Languages
	if l.Languages == nil {
		l.Languages = []string{}
	}
	l.YearsOfExperience = in.YearsOfExperience
	l.Rating = in.Rating
	l.HourlyRate = in.HourlyRate
	l.Bio = in.Bio
	l.Active = in.Active == nil || *in.Active
	return nil
}

// CreateLawyer creates a lawyer profile
func (s *LawyerService) CreateLawyer(ctx context.Context, in LawyerInput) (*models.Lawyer, error) {
	lawyer := &models.Lawyer{}
	if err := in.apply(lawyer); err != nil {
		return nil, err
	}
	if s.lawyers == nil {
		return nil, notSet("lawyer repository")
	}
	if err := s.lawyers.Create(ctx, lawyer); err != nil {
		return nil, lawyerStoreErr("create lawyer", err)
	}
	return lawyer, nil
}

// GetLawyer retrieves a lawyer profile
func (s *LawyerService) GetLawyer(ctx context.Context, id uuid.UUID) (*models.Lawyer, error) {
	if s.lawyers == nil {
		return nil, notSet("lawyer repository")
	}
	lawyer, err := s.lawyers.GetByID(ctx, id)
	if err != nil {
		return nil, lawyerStoreErr("get lawyer", err)
	}
	return lawyer, nil
}

// ListLawyersRequest filters a lawyer listing
type ListLawyersRequest struct {
	Specialization string
	Page           int
	Limit          int
}

// ListLawyers lists lawyers, optionally of one specialization
func (s *LawyerService) ListLawyers(ctx context.Context, req ListLawyersRequest) ([]*models.Lawyer, error) {
	if s.lawyers == nil {
		return nil, notSet("lawyer repository")
	}
	filter := repository.LawyerFilter{}
	if req.Specialization != "" {
		spec, ok := models.NormalizeLegalType(req.Specialization)
		if !ok {
			return nil, invalid("specialization", fmt.Sprintf("unknown legal type %q", req.Specialization))
		}
		filter.Specialization = &spec
	}
	filter.Limit, filter.Offset = pagination(req.Page, req.Limit)

	lawyers, err := s.lawyers.List(ctx, filter)
	if err != nil {
		return nil, storageErr("list lawyers", err)
	}
	if lawyers == nil {
		lawyers = []*models.Lawyer{}
	}
	return lawyers, nil
}

// UpdateLawyer replaces the editable fields of a lawyer profile
func (s *LawyerService) UpdateLawyer(ctx context.Context, id uuid.UUID, in LawyerInput) (*models.Lawyer, error) {
	lawyer, err := s.GetLawyer(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(lawyer); err != nil {
		return nil, err
	}
	if err := s.lawyers.Update(ctx, lawyer); err != nil {
		return nil, lawyerStoreErr("update lawyer", err)
	}
	return lawyer, nil
}

func lawyerStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: lawyer", ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: a lawyer with this email", ErrConflict)
	default:
		return storageErr(op, err)
	}
}

// pagination turns page/limit into limit/offset with the shared defaults
func pagination(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return limit, (page - 1) * limit
}
