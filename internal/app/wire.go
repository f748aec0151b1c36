package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/launchpad-portal/launchpad/internal/auth"
	"github.com/launchpad-portal/launchpad/internal/observability"
	"github.com/launchpad-portal/launchpad/internal/platform/db"
	"github.com/launchpad-portal/launchpad/internal/rbac"
	"github.com/launchpad-portal/launchpad/internal/shared"
	"github.com/launchpad-portal/launchpad/internal/users"
	"github.com/launchpad-portal/launchpad/internal/view"
)

// Dependencies are the process-wide resources the HTTP surface is built on.
type Dependencies struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *db.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

// NewHandler builds the services, handlers and gate over deps and returns the
// routed HTTP handler.
func NewHandler(deps Dependencies) (http.Handler, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	engine, err := view.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	sessions := shared.NewSessionManager(deps.Redis, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	pages := &view.Pages{Engine: engine, Sessions: sessions, CSRF: csrf, Logger: logger}
	exec := db.NewExecutor(deps.Pool)

	authService := auth.NewService(auth.NewRepository(exec), hasher, logger)
	authHandler := auth.NewHandler(logger, authService, pages, sessions, csrf, cfg.LoginRateLimit)
	usersService := users.NewService(users.NewRepository(exec), hasher, sessions, logger)
	usersHandler := users.NewHandler(logger, usersService, pages)

	if deps.Metrics != nil {
		authHandler.SetLoginObserver(deps.Metrics)
		if err := deps.Metrics.Registerer().Register(observability.NewPoolCollector(deps.Pool)); err != nil {
			return nil, fmt.Errorf("register pool collector: %w", err)
		}
	}

	return NewRouter(RouterParams{
		Logger:       logger,
		Config:       cfg,
		Pages:        pages,
		CSRFManager:  csrf,
		Gate:         rbac.NewGate(sessions, logger),
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		Pool:         deps.Pool,
		Metrics:      deps.Metrics,
	}), nil
}
