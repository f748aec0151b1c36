package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/launchpad-portal/launchpad/internal/platform/httpx"
	"github.com/launchpad-portal/launchpad/internal/shared"
	"github.com/launchpad-portal/launchpad/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	pages          *view.Pages
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *shared.Validator
	loginLimit     int
	observer       LoginObserver
}

// Login outcomes reported to a LoginObserver.
const (
	LoginSuccess  = "success"
	LoginRejected = "rejected"
	LoginError    = "error"
)

// LoginObserver receives the outcome of every login attempt.
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// SetLoginObserver attaches an observer for login outcomes.
func (h *Handler) SetLoginObserver(o LoginObserver) {
	h.observer = o
}

func (h *Handler) observe(outcome string) {
	if h.observer != nil {
		h.observer.ObserveLogin(outcome)
	}
}

// NewHandler constructs a Handler instance. loginLimit caps login attempts per
// client IP per minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Pages, sessions *shared.SessionManager, csrf *shared.CSRFManager, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		pages:          pages,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      shared.NewValidator(),
		loginLimit:     loginLimit,
	}
}

// MountRoutes registers the routes reachable without a session.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.pages.Serve("pages/login.html", "Sign in"))
	r.With(h.loginLimiter).Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)
}

// MountAuthenticated registers routes that run behind the authenticated tier.
func (h *Handler) MountAuthenticated(r chi.Router) {
	r.Get("/change-password", h.pages.Serve("pages/change_password.html", "Change password"))
	r.Post("/change-password", h.handleChangePassword)
	r.Get("/api/auth/me", h.handleMe)
}

func (h *Handler) loginLimiter(next http.Handler) http.Handler {
	if h.loginLimit <= 0 {
		return next
	}
	return httprate.Limit(h.loginLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "too many login attempts")
		}),
	)(next)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Redirect  string `json:"redirect"`
	CSRFToken string `json:"csrf_token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Username = NormalizeUsername(req.Username)
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.observe(LoginRejected)
		} else {
			h.observe(LoginError)
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	if old := h.sessionManager.TokenFromRequest(r); old != "" {
		if err := h.sessionManager.Clear(r.Context(), old); err != nil {
			h.logger.Warn("clear previous session", slog.Any("error", err))
		}
	}

	sess := h.sessionManager.New(user.Identity())
	csrfToken, _, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.observe(LoginError)
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	token, err := h.sessionManager.Set(r.Context(), sess)
	if err != nil {
		h.observe(LoginError)
		h.logger.Error("store session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	// The session is stored before the user row is touched: a delete that
	// commits in between leaves no row to touch, so the session is dropped.
	if err := h.service.RecordLogin(r.Context(), user, req.Password); err != nil {
		if clearErr := h.sessionManager.Clear(r.Context(), token); clearErr != nil {
			h.logger.Error("clear session of deleted user", slog.Int64("user_id", user.ID), slog.Any("error", clearErr))
		}
		h.observe(LoginRejected)
		httpx.RespondError(w, err)
		return
	}
	h.sessionManager.WriteCookie(w, token)
	h.observe(LoginSuccess)

	h.logger.Info("login", slog.Int64("user_id", user.ID), slog.Bool("is_admin", user.IsAdmin))
	httpx.JSON(w, http.StatusOK, loginResponse{
		Redirect:  sess.Identity.LandingPath(),
		CSRFToken: csrfToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := h.sessionManager.TokenFromRequest(r); token != "" {
		if err := h.sessionManager.Clear(r.Context(), token); err != nil {
			h.logger.Warn("clear session", slog.Any("error", err))
		}
	}
	h.sessionManager.ExpireCookie(w)
	http.Redirect(w, r, shared.PathLogin, http.StatusSeeOther)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

type redirectResponse struct {
	Redirect string `json:"redirect"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}

	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), sess.Identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("change password", slog.Int64("user_id", sess.Identity.UserID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	sess.Identity.MustChangePassword = false
	if _, err := h.sessionManager.Set(r.Context(), sess); err != nil {
		if errors.Is(err, shared.ErrSessionGone) {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		h.logger.Error("update session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, redirectResponse{Redirect: sess.Identity.LandingPath()})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, identity)
}
