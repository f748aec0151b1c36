package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/launchpad-portal/launchpad/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	hasher *Hasher
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, hasher *Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, logger: logger}
}

// Authenticate validates username/password credentials. Unknown users and wrong
// passwords both yield shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.hasher.Equalize(password)
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RecordLogin stamps last_login for a user just authenticated with password,
// upgrading the stored hash when it was made with another cost. It returns
// shared.ErrInvalidCredentials when the account was deleted meanwhile; other
// failures are logged and otherwise ignored.
func (s *Service) RecordLogin(ctx context.Context, user *User, password string) error {
	var rehash *string
	if s.hasher.NeedsRehash(user.PasswordHash) {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			s.logger.Warn("rehash password", slog.Int64("user_id", user.ID), slog.Any("error", err))
		} else {
			rehash = &hash
		}
	}
	err := s.repo.TouchLastLogin(ctx, user.ID, rehash)
	switch {
	case err == nil:
		if rehash != nil {
			s.logger.Info("password rehashed", slog.Int64("user_id", user.ID), slog.Int("cost", s.hasher.Cost()))
		}
	case errors.Is(err, shared.ErrNotFound):
		return shared.ErrInvalidCredentials
	default:
		s.logger.Warn("record last login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

// ChangePassword replaces the password of userID after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrUnauthenticated
		}
		return err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return shared.ErrCurrentPasswordIncorrect
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.repo.ChangePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrUnauthenticated
		}
		return err
	}
	s.logger.Info("password changed", slog.Int64("user_id", userID))
	return nil
}
