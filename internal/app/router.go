package app

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/launchpad-portal/launchpad/internal/auth"
	"github.com/launchpad-portal/launchpad/internal/observability"
	"github.com/launchpad-portal/launchpad/internal/platform/httpx"
	"github.com/launchpad-portal/launchpad/internal/rbac"
	"github.com/launchpad-portal/launchpad/internal/shared"
	"github.com/launchpad-portal/launchpad/internal/users"
	"github.com/launchpad-portal/launchpad/internal/view"
	"github.com/launchpad-portal/launchpad/web"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Pages        *view.Pages
	CSRFManager  *shared.CSRFManager
	Gate         *rbac.Gate
	AuthHandler  *auth.Handler
	UsersHandler *users.Handler
	Pool         Pinger
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with the portal defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Pool, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", fileServer)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess, err := params.Gate.Check(r, rbac.TierAuthenticated)
		switch {
		case errors.Is(err, shared.ErrUnauthenticated):
			http.Redirect(w, r, shared.PathLogin, http.StatusSeeOther)
		case err != nil:
			params.Logger.Error("load session", slog.Any("error", err))
			httpx.RespondError(w, err)
		default:
			http.Redirect(w, r, sess.Identity.LandingPath(), http.StatusSeeOther)
		}
	})

	params.AuthHandler.MountRoutes(r)

	csrf := RequireCSRF(params.CSRFManager, params.Logger)

	r.Group(func(r chi.Router) {
		r.Use(params.Gate.RequireAuthenticated(), csrf)
		params.AuthHandler.MountAuthenticated(r)

		dashboard := params.Pages.Serve("pages/dashboard.html", "Dashboard")
		r.Get(shared.PathDashboard, func(w http.ResponseWriter, r *http.Request) {
			if identity, _ := shared.IdentityFromContext(r.Context()); identity.MustChangePassword {
				http.Redirect(w, r, shared.PathChangePassword, http.StatusSeeOther)
				return
			}
			dashboard(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(params.Gate.RequireAdmin(), csrf)
		params.UsersHandler.MountRoutes(r)
	})

	return r
}

func healthHandler(pool Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				logger.Error("health check", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
