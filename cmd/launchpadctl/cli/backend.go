package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/launchpad-portal/launchpad/internal/app"
	"github.com/launchpad-portal/launchpad/internal/auth"
	"github.com/launchpad-portal/launchpad/internal/platform/cache"
	"github.com/launchpad-portal/launchpad/internal/platform/db"
	"github.com/launchpad-portal/launchpad/internal/shared"
	"github.com/launchpad-portal/launchpad/internal/users"
)

// Backend performs the operator tasks.
type Backend interface {
	Migrate(ctx context.Context) error
	CreateUser(ctx context.Context, in users.CreateInput) (*auth.User, error)
	ResetPassword(ctx context.Context, username, password string) (*auth.User, error)
	Close() error
}

type backend struct {
	cfg     *app.Config
	logger  *slog.Logger
	manager *db.Manager
	pool    *db.Pool
	lookup  auth.Repository
	users   *users.Service
	revoker *lazyRevoker
}

// OpenBackend connects to PostgreSQL. Redis is only dialled when sessions
// have to be revoked.
func OpenBackend(ctx context.Context, cfg *app.Config, logger *slog.Logger) (Backend, error) {
	manager := db.NewManager(cfg.Database())
	pool, err := manager.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		manager.Close()
		return nil, err
	}
	exec := db.NewExecutor(pool)
	revoker := &lazyRevoker{cfg: cfg}
	return &backend{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		pool:    pool,
		lookup:  auth.NewRepository(exec),
		users:   users.NewService(users.NewRepository(exec), hasher, revoker, logger),
		revoker: revoker,
	}, nil
}

func (b *backend) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, b.pool, b.logger)
}

// CreateUser records the creation with no actor in the audit log.
func (b *backend) CreateUser(ctx context.Context, in users.CreateInput) (*auth.User, error) {
	return b.users.CreateUser(ctx, shared.Identity{}, in)
}

func (b *backend) ResetPassword(ctx context.Context, username, password string) (*auth.User, error) {
	user, err := b.lookup.FindByUsername(ctx, auth.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("user %q: %w", username, err)
		}
		return nil, err
	}
	if strings.TrimSpace(password) == "" {
		return nil, shared.NewValidationError("new_password is required")
	}
	updated, err := b.users.UpdateUser(ctx, shared.Identity{}, user.ID, users.UpdateInput{
		Username:    user.Username,
		NewPassword: password,
	})
	if err != nil {
		return nil, err
	}
	if err := b.revoker.Revoke(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("password reset but sessions not revoked: %w", err)
	}
	return updated, nil
}

func (b *backend) Close() error {
	b.manager.Close()
	return b.revoker.Close()
}

// lazyRevoker dials Redis on first use.
type lazyRevoker struct {
	cfg      *app.Config
	client   *redis.Client
	sessions *shared.SessionManager
}

func (r *lazyRevoker) Revoke(ctx context.Context, userID int64) error {
	if r.sessions == nil {
		client, err := cache.New(ctx, r.cfg.Redis())
		if err != nil {
			return err
		}
		r.client = client
		r.sessions = shared.NewSessionManager(client, r.cfg.SessionCookie, r.cfg.SessionSecret, r.cfg.SessionTTL, r.cfg.IsProduction())
	}
	return r.sessions.Revoke(ctx, userID)
}

func (r *lazyRevoker) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
