package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"legalmatch-backend/models"
	"legalmatch-backend/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// UserService manages user accounts
type UserService struct {
	users UserStore
	cost  int
}

// UserServiceOption is a functional option for UserService
type UserServiceOption func(*UserService)

// UsersWithStore sets the user repository
func UsersWithStore(store UserStore) UserServiceOption {
	return func(s *UserService) {
		s.users = store
	}
}

// UsersWithBcryptCost overrides bcrypt.DefaultCost
func UsersWithBcryptCost(cost int) UserServiceOption {
	return func(s *UserService) {
		s.cost = cost
	}
}

// NewUserService creates a new user service
func NewUserService(opts ...UserServiceOption) *UserService {
	s := &UserService{cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUserRequest registers an account
type CreateUserRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Name     string          `json:"name"`
	Phone    *string         `json:"phone"`
	Role     models.UserRole `json:"role"`
}

// HashPassword hashes a password with bcrypt after checking its length
func HashPassword(password string, cost int) (string, error) {
	if len(password) < minPasswordLength {
		return "", invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CreateUser registers a user with a bcrypt hashed password
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalid("email", "must be a valid address")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, required("name")
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if !req.Role.Valid() {
		return nil, invalid("role", "must be user, lawyer or admin")
	}
	hash, err := HashPassword(req.Password, s.cost)
	if err != nil {
		return nil, err
	}
	if s.users == nil {
		return nil, notSet("user repository")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
		Phone:        req.Phone,
		Role:         req.Role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, userStoreErr("create user", err)
	}
	return user, nil
}

// GetUser retrieves a user
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.users == nil {
		return nil, notSet("user repository")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, userStoreErr("get user", err)
	}
	return user, nil
}

// ListUsers lists users, newest first
func (s *UserService) ListUsers(ctx context.Context, page, limit int) ([]*models.User, error) {
	if s.users == nil {
		return nil, notSet("user repository")
	}
	l, offset := pagination(page, limit)
	users, err := s.users.List(ctx, l, offset)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// UpdateUserRequest changes a user's profile. Nil fields are left as is.
type UpdateUserRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

// UpdateUser updates the name and phone of a user
func (s *UserService) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
		user.Name = name
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, userStoreErr("update user", err)
	}
	return user, nil
}

// Authenticate checks an email and password pair
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	if s.users == nil {
		return nil, notSet("user repository")
	}
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, invalid("email", "unknown email or wrong password")
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, invalid("email", "unknown email or wrong password")
	}
	return user, nil
}

func userStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: user", ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: a user with this email", ErrConflict)
	default:
		return storageErr(op, err)
	}
}
