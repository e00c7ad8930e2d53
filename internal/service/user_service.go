package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/model"
	"github.com/hallpass-labs/examhall-backend/internal/repository"
	"github.com/hallpass-labs/examhall-backend/internal/response"
)

// UserService handles account administration: listing, approving and
// role changes.
type UserService struct {
	users *repository.UserRepository
	log   zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users *repository.UserRepository, log zerolog.Logger) *UserService {
	return &UserService{
		users: users,
		log:   log.With().Str("component", "user_service").Logger(),
	}
}

// GetByID retrieves one user.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// List returns users with pagination and optional role/approval filters.
func (s *UserService) List(ctx context.Context, role *model.Role, approved *bool, page, perPage int) ([]model.User, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 25
	}
	if perPage > 100 {
		perPage = 100
	}

	users, total, err := s.users.ListPaginated(ctx, role, approved, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if users == nil {
		users = []model.User{}
	}

	totalPages := (total + perPage - 1) / perPage
	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}
	return users, pagination, nil
}

// Approve marks an account as approved.
func (s *UserService) Approve(ctx context.Context, id uuid.UUID) error {
	if err := s.users.SetApproved(ctx, id, true); err != nil {
		return err
	}
	s.log.Info().Str("user_id", id.String()).Msg("User approved")
	return nil
}

// UpdateRole changes a user's role.
func (s *UserService) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return err
	}
	s.log.Info().Str("user_id", id.String()).Str("role", string(role)).Msg("User role changed")
	return nil
}

// Delete removes an account.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id)
}
