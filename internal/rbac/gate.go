package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/launchpad-portal/launchpad/internal/platform/httpx"
	"github.com/launchpad-portal/launchpad/internal/shared"
)

// Tier is a privilege level a route requires.
type Tier int

// The two tiers routes can require.
const (
	TierAuthenticated Tier = iota + 1
	TierAdmin
)

func (t Tier) String() string {
	switch t {
	case TierAuthenticated:
		return "authenticated"
	case TierAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// SessionReader resolves the session carried by a request.
type SessionReader interface {
	TokenFromRequest(r *http.Request) string
	Get(ctx context.Context, token string) (*shared.Session, error)
}

// Gate decides whether a request may reach a handler of a given tier.
type Gate struct {
	Sessions    SessionReader
	Logger      *slog.Logger
	APIPrefix   string
	LoginPath   string
	LandingPath string
}

// NewGate returns a Gate with the default API prefix and redirect targets.
func NewGate(sessions SessionReader, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		Sessions:    sessions,
		Logger:      logger,
		APIPrefix:   "/api/",
		LoginPath:   shared.PathLogin,
		LandingPath: shared.PathDashboard,
	}
}

// Check resolves the session of r and tests it against tier. It returns
// shared.ErrUnauthenticated, shared.ErrForbidden or a session store error.
func (g *Gate) Check(r *http.Request, tier Tier) (*shared.Session, error) {
	token := g.Sessions.TokenFromRequest(r)
	if token == "" {
		return nil, shared.ErrUnauthenticated
	}
	sess, err := g.Sessions.Get(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Identity.UserID <= 0 {
		return nil, shared.ErrUnauthenticated
	}
	switch tier {
	case TierAuthenticated:
		return sess, nil
	case TierAdmin:
		if sess.Identity.IsAdmin {
			return sess, nil
		}
		return sess, shared.ErrForbidden
	default:
		return sess, shared.ErrForbidden
	}
}

// Require returns middleware admitting only requests that pass tier. Admitted
// requests carry the session in their context.
func (g *Gate) Require(tier Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := g.Check(r, tier)
			if err != nil {
				g.deny(w, r, tier, sess, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	}
}

// RequireAuthenticated admits any request with a live session.
func (g *Gate) RequireAuthenticated() func(http.Handler) http.Handler {
	return g.Require(TierAuthenticated)
}

// RequireAdmin admits only sessions whose identity is an administrator.
func (g *Gate) RequireAdmin() func(http.Handler) http.Handler {
	return g.Require(TierAdmin)
}

func (g *Gate) deny(w http.ResponseWriter, r *http.Request, tier Tier, sess *shared.Session, err error) {
	api := g.isAPI(r)
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		if api {
			httpx.Problem(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), "authentication required")
			return
		}
		http.Redirect(w, r, g.LoginPath, http.StatusSeeOther)
	case errors.Is(err, shared.ErrForbidden):
		attrs := []any{slog.String("tier", tier.String()), slog.String("path", r.URL.Path)}
		if sess != nil {
			attrs = append(attrs, slog.Int64("user_id", sess.Identity.UserID))
		}
		g.Logger.Warn("access denied", attrs...)
		if api {
			httpx.Problem(w, http.StatusForbidden, http.StatusText(http.StatusForbidden), "admin access required")
			return
		}
		http.Redirect(w, r, g.LandingPath, http.StatusSeeOther)
	default:
		g.Logger.Error("session lookup", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (g *Gate) isAPI(r *http.Request) bool {
	return g.APIPrefix != "" && strings.HasPrefix(r.URL.Path, g.APIPrefix)
}
