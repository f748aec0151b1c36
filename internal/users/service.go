package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/launchpad-portal/launchpad/internal/auth"
	"github.com/launchpad-portal/launchpad/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]auth.User, error)
	CreateUser(ctx context.Context, actorID int64, username, hash string, isAdmin bool) (*auth.User, error)
	UpdateUser(ctx context.Context, actorID, id int64, username string, isAdmin *bool, hash *string) (*auth.User, error)
	DeleteUser(ctx context.Context, actorID, id int64) error
}

// SessionRevoker drops every session of a user.
type SessionRevoker interface {
	Revoke(ctx context.Context, userID int64) error
}

// ErrDeleteSelf is returned when an administrator tries to delete their own account.
var ErrDeleteSelf error = shared.NewValidationError("cannot delete your own account")

// Service handles user business logic.
type Service struct {
	repo      RepositoryPort
	hasher    *auth.Hasher
	sessions  SessionRevoker
	validator *shared.Validator
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, hasher *auth.Hasher, sessions SessionRevoker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		hasher:    hasher,
		sessions:  sessions,
		validator: shared.NewValidator(),
		logger:    logger,
	}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]auth.User, error) {
	return s.repo.ListUsers(ctx)
}

// CreateUser validates input and creates the account on behalf of actor.
func (s *Service) CreateUser(ctx context.Context, actor shared.Identity, in CreateInput) (*auth.User, error) {
	in.Username = auth.NormalizeUsername(in.Username)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateUser(ctx, actor.UserID, in.Username, hash, in.IsAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", slog.Int64("actor_id", actor.UserID), slog.Int64("user_id", user.ID), slog.Bool("is_admin", user.IsAdmin))
	return user, nil
}

// UpdateUser applies in to user id. Sessions already issued to that user keep
// their identity snapshot until the user logs in again.
func (s *Service) UpdateUser(ctx context.Context, actor shared.Identity, id int64, in UpdateInput) (*auth.User, error) {
	in.Username = auth.NormalizeUsername(in.Username)
	in.NewPassword = strings.TrimSpace(in.NewPassword)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	var hash *string
	if in.NewPassword != "" {
		h, err := s.hasher.Hash(in.NewPassword)
		if err != nil {
			return nil, err
		}
		hash = &h
	}
	user, err := s.repo.UpdateUser(ctx, actor.UserID, id, in.Username, in.IsAdmin, hash)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user updated", slog.Int64("actor_id", actor.UserID), slog.Int64("user_id", id), slog.Bool("password_reset", hash != nil))
	return user, nil
}

// DeleteUser revokes the sessions of user id and then removes the account.
// Sessions are revoked once more after the delete to catch a login that
// stored its session between the first revoke and the delete.
func (s *Service) DeleteUser(ctx context.Context, actor shared.Identity, id int64) error {
	if id == actor.UserID {
		return ErrDeleteSelf
	}
	if err := s.sessions.Revoke(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions of user %d: %w", id, err)
	}
	if err := s.repo.DeleteUser(ctx, actor.UserID, id); err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, id); err != nil {
		s.logger.Warn("revoke sessions after delete", slog.Int64("user_id", id), slog.Any("error", err))
	}
	s.logger.Info("user deleted", slog.Int64("actor_id", actor.UserID), slog.Int64("user_id", id))
	return nil
}
