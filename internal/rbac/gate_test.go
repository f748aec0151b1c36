package rbac_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchpad-portal/launchpad/internal/rbac"
	"github.com/launchpad-portal/launchpad/internal/shared"
	_ "github.com/launchpad-portal/launchpad/testing"
)

type gateFixture struct {
	gate     *rbac.Gate
	sessions *shared.SessionManager
	mr       *miniredis.Miniredis
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "sid", "secret", time.Hour, false)
	return &gateFixture{
		gate:     rbac.NewGate(sessions, slog.New(slog.DiscardHandler)),
		sessions: sessions,
		mr:       mr,
	}
}

func (f *gateFixture) login(t *testing.T, identity shared.Identity) *http.Cookie {
	t.Helper()
	token, err := f.sessions.Set(context.Background(), f.sessions.New(identity))
	require.NoError(t, err)
	return &http.Cookie{Name: "sid", Value: token}
}

// serve runs a request through mw and reports whether the wrapped handler ran.
func serve(mw func(http.Handler) http.Handler, path string, cookie *http.Cookie) (*httptest.ResponseRecorder, *shared.Identity) {
	var seen *shared.Identity
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := shared.IdentityFromContext(r.Context())
		if ok {
			seen = &id
		} else {
			seen = &shared.Identity{}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestGateNoSession(t *testing.T) {
	f := newGateFixture(t)

	rec, ran := serve(f.gate.RequireAuthenticated(), "/api/auth/me", nil)
	assert.Nil(t, ran)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":401`)

	rec, ran = serve(f.gate.RequireAuthenticated(), "/dashboard", nil)
	assert.Nil(t, ran)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec, ran = serve(f.gate.RequireAdmin(), "/api/admin/users", nil)
	assert.Nil(t, ran)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateInvalidTokenLooksLikeNoSession(t *testing.T) {
	f := newGateFixture(t)
	cookie := f.login(t, shared.Identity{UserID: 1})

	forged := &http.Cookie{Name: "sid", Value: cookie.Value + "x"}
	rec, ran := serve(f.gate.RequireAuthenticated(), "/api/auth/me", forged)
	assert.Nil(t, ran)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.mr.FastForward(2 * time.Hour)
	rec, ran = serve(f.gate.RequireAuthenticated(), "/api/auth/me", cookie)
	assert.Nil(t, ran)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateAuthenticatedTier(t *testing.T) {
	f := newGateFixture(t)
	cookie := f.login(t, shared.Identity{UserID: 5, Username: "alice"})

	rec, ran := serve(f.gate.RequireAuthenticated(), "/api/auth/me", cookie)
	require.NotNil(t, ran)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(5), ran.UserID)
	assert.Equal(t, "alice", ran.Username)
}

func TestGateAdminTier(t *testing.T) {
	f := newGateFixture(t)
	user := f.login(t, shared.Identity{UserID: 5, Username: "alice"})
	admin := f.login(t, shared.Identity{UserID: 1, Username: "root", IsAdmin: true})

	rec, ran := serve(f.gate.RequireAdmin(), "/api/admin/users", user)
	assert.Nil(t, ran)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin access required")

	rec, ran = serve(f.gate.RequireAdmin(), "/admin/users", user)
	assert.Nil(t, ran)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	rec, ran = serve(f.gate.RequireAdmin(), "/api/admin/users", admin)
	require.NotNil(t, ran)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, ran.IsAdmin)
}

func TestGateUnknownTierFailsClosed(t *testing.T) {
	f := newGateFixture(t)
	admin := f.login(t, shared.Identity{UserID: 1, IsAdmin: true})

	rec, ran := serve(f.gate.Require(rbac.Tier(99)), "/api/anything", admin)
	assert.Nil(t, ran)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unknown", rbac.Tier(99).String())
}

type failingSessions struct{}

func (failingSessions) TokenFromRequest(r *http.Request) string { return "tok" }

func (failingSessions) Get(ctx context.Context, token string) (*shared.Session, error) {
	return nil, errors.New("redis: connection refused")
}

func TestGateStoreFailureIsServerError(t *testing.T) {
	gate := rbac.NewGate(failingSessions{}, slog.New(slog.DiscardHandler))

	for _, path := range []string{"/api/auth/me", "/dashboard"} {
		rec, ran := serve(gate.RequireAuthenticated(), path, nil)
		assert.Nil(t, ran)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	}
}

func TestGateCheck(t *testing.T) {
	f := newGateFixture(t)
	user := f.login(t, shared.Identity{UserID: 5})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := f.gate.Check(req, rbac.TierAuthenticated)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	req.AddCookie(user)
	sess, err := f.gate.Check(req, rbac.TierAuthenticated)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sess.Identity.UserID)

	_, err = f.gate.Check(req, rbac.TierAdmin)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}
