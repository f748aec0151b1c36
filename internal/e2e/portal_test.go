package e2e_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/launchpad-portal/launchpad/internal/app"
	"github.com/launchpad-portal/launchpad/internal/auth"
	"github.com/launchpad-portal/launchpad/internal/observability"
	"github.com/launchpad-portal/launchpad/internal/platform/db"
	"github.com/launchpad-portal/launchpad/internal/platform/db/dbtest"
	"github.com/launchpad-portal/launchpad/internal/shared"
	"github.com/launchpad-portal/launchpad/internal/users"
	_ "github.com/launchpad-portal/launchpad/testing"
)

const cookieName = "launchpad_session"

type client struct {
	cookie *http.Cookie
	csrf   string
}

type PortalSuite struct {
	suite.Suite
	pool    *db.Pool
	exec    *db.Executor
	mr      *miniredis.Miniredis
	handler http.Handler
	root    client
}

func TestPortal(t *testing.T) {
	suite.Run(t, new(PortalSuite))
}

func (s *PortalSuite) SetupSuite() {
	dsn := dbtest.StartPostgres(s.T())
	s.pool = dbtest.OpenPool(s.T(), dsn, 1, 5)
	s.exec = db.NewExecutor(s.pool)
}

func (s *PortalSuite) SetupTest() {
	dbtest.Reset(s.T(), s.pool)
	s.mr = miniredis.RunT(s.T())

	cfg := &app.Config{
		AppRequestTimeout: 10 * time.Second,
		BcryptCost:        bcrypt.MinCost,
		SessionSecret:     "session-secret",
		SessionTTL:        time.Hour,
		SessionCookie:     cookieName,
		CSRFSecret:        "csrf-secret",
		LoginRateLimit:    1000,
	}
	handler, err := app.NewHandler(app.Dependencies{
		Config:  cfg,
		Logger:  slog.New(slog.DiscardHandler),
		Pool:    s.pool,
		Redis:   redis.NewClient(&redis.Options{Addr: s.mr.Addr()}),
		Metrics: observability.NewMetrics(),
	})
	s.Require().NoError(err)
	s.handler = handler

	hasher, err := auth.NewHasher(bcrypt.MinCost)
	s.Require().NoError(err)
	hash, err := hasher.Hash("rootpw")
	s.Require().NoError(err)
	_, err = users.NewRepository(s.exec).CreateUser(context.Background(), 0, "root", hash, true)
	s.Require().NoError(err)

	s.root = s.login("root", "rootpw", http.StatusOK)
}

func (s *PortalSuite) do(method, path string, body any, c *client) *httptest.ResponseRecorder {
	var payload string
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		payload = string(raw)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if c != nil {
		req.AddCookie(c.cookie)
		req.Header.Set(shared.CSRFHeader, c.csrf)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *PortalSuite) login(username, password string, wantStatus int) client {
	rec := s.do(http.MethodPost, "/login", map[string]string{"username": username, "password": password}, nil)
	s.Require().Equal(wantStatus, rec.Code, rec.Body.String())
	if wantStatus != http.StatusOK {
		return client{}
	}
	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return client{cookie: c, csrf: body.CSRFToken}
		}
	}
	s.FailNow("session cookie missing")
	return client{}
}

func (s *PortalSuite) me(c client) (shared.Identity, int) {
	rec := s.do(http.MethodGet, "/api/auth/me", nil, &c)
	var identity shared.Identity
	if rec.Code == http.StatusOK {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &identity))
	}
	return identity, rec.Code
}

func (s *PortalSuite) createUser(username, password string, isAdmin bool) auth.User {
	rec := s.do(http.MethodPost, "/api/admin/users",
		map[string]any{"username": username, "password": password, "is_admin": isAdmin}, &s.root)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var user auth.User
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &user))
	return user
}

func (s *PortalSuite) count(sql string, args ...any) int64 {
	rec, ok, err := s.exec.QueryOne(context.Background(), sql, args...)
	s.Require().NoError(err)
	s.Require().True(ok)
	return rec.Int64("n")
}

func (s *PortalSuite) TestCreatedUserLogsInAndReadsIdentity() {
	alice := s.createUser("alice", "s3cret!", false)
	s.True(alice.MustChangePassword)
	s.Equal(int64(1), s.count(`SELECT COUNT(*) AS n FROM audit_logs WHERE action = $1 AND entity_id = $2`,
		shared.AuditUserCreate, fmt.Sprint(alice.ID)))

	session := s.login("alice", "s3cret!", http.StatusOK)
	identity, code := s.me(session)
	s.Equal(http.StatusOK, code)
	s.Equal("alice", identity.Username)
	s.False(identity.IsAdmin)
	s.True(identity.MustChangePassword)

	s.Equal(int64(1), s.count(`SELECT COUNT(*) AS n FROM users WHERE username = 'alice' AND last_login IS NOT NULL`))
}

func (s *PortalSuite) TestWrongPasswordLooksLikeUnknownUser() {
	s.createUser("alice", "s3cret!", false)

	wrong := s.do(http.MethodPost, "/login", map[string]string{"username": "alice", "password": "nope!!"}, nil)
	unknown := s.do(http.MethodPost, "/login", map[string]string{"username": "nobody", "password": "nope!!"}, nil)

	s.Equal(http.StatusUnauthorized, wrong.Code)
	s.Equal(wrong.Code, unknown.Code)
	s.Equal(wrong.Body.String(), unknown.Body.String())
	s.Empty(wrong.Result().Cookies())
}

func (s *PortalSuite) TestPrivilegeChangeIsStaleUntilNextLogin() {
	alice := s.createUser("alice", "s3cret!", false)
	session := s.login("alice", "s3cret!", http.StatusOK)

	rec := s.do(http.MethodPut, fmt.Sprintf("/api/admin/users/%d", alice.ID),
		map[string]any{"username": "alice", "is_admin": true}, &s.root)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	identity, _ := s.me(session)
	s.False(identity.IsAdmin)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/admin/users", nil, &session).Code)

	fresh := s.login("alice", "s3cret!", http.StatusOK)
	identity, _ = s.me(fresh)
	s.True(identity.IsAdmin)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/admin/users", nil, &fresh).Code)
}

func (s *PortalSuite) TestChangePasswordIsAtomicWithHistory() {
	alice := s.createUser("alice", "s3cret!", false)
	session := s.login("alice", "s3cret!", http.StatusOK)

	rec := s.do(http.MethodPost, "/change-password", map[string]string{
		"current_password": "s3cret!",
		"new_password":     "n3wpass",
		"confirm_password": "n3wpass",
	}, &session)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.JSONEq(`{"redirect":"/dashboard"}`, rec.Body.String())

	s.Equal(int64(1), s.count(`SELECT COUNT(*) AS n FROM password_change_history WHERE user_id = $1`, alice.ID))
	s.Equal(int64(1), s.count(`SELECT COUNT(*) AS n FROM audit_logs WHERE action = $1`, shared.AuditPasswordChange))

	identity, _ := s.me(session)
	s.False(identity.MustChangePassword)

	s.login("alice", "s3cret!", http.StatusUnauthorized)
	s.login("alice", "n3wpass", http.StatusOK)
}

func (s *PortalSuite) TestChangePasswordRequiresCSRF() {
	s.createUser("alice", "s3cret!", false)
	session := s.login("alice", "s3cret!", http.StatusOK)
	session.csrf = ""

	rec := s.do(http.MethodPost, "/change-password", map[string]string{
		"current_password": "s3cret!",
		"new_password":     "n3wpass",
		"confirm_password": "n3wpass",
	}, &session)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal(int64(0), s.count(`SELECT COUNT(*) AS n FROM password_change_history`))
}

func (s *PortalSuite) TestDuplicateUsernameConflicts() {
	s.createUser("alice", "s3cret!", false)
	rec := s.do(http.MethodPost, "/api/admin/users",
		map[string]any{"username": "alice", "password": "other1"}, &s.root)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal(int64(1), s.count(`SELECT COUNT(*) AS n FROM users WHERE username = 'alice'`))
	s.Equal(int64(2), s.count(`SELECT COUNT(*) AS n FROM audit_logs WHERE action = $1`, shared.AuditUserCreate))
}

func (s *PortalSuite) TestAdminResetForcesPasswordChange() {
	alice := s.createUser("alice", "s3cret!", false)
	_, _, err := s.exec.Execute(context.Background(),
		db.Stmt(`UPDATE users SET must_change_password = FALSE WHERE id = $1`, alice.ID), false)
	s.Require().NoError(err)

	rec := s.do(http.MethodPut, fmt.Sprintf("/api/admin/users/%d", alice.ID),
		map[string]any{"username": "alice", "new_password": "reset99"}, &s.root)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var updated auth.User
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &updated))
	s.True(updated.MustChangePassword)
	s.Equal(int64(1), s.count(`SELECT COUNT(*) AS n FROM password_change_history WHERE user_id = $1`, alice.ID))
	s.login("alice", "reset99", http.StatusOK)
}

func (s *PortalSuite) TestDeleteRevokesSessions() {
	alice := s.createUser("alice", "s3cret!", false)
	session := s.login("alice", "s3cret!", http.StatusOK)

	rec := s.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", alice.ID), nil, &s.root)
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	_, code := s.me(session)
	s.Equal(http.StatusUnauthorized, code)
	s.Equal(int64(1), s.count(`SELECT COUNT(*) AS n FROM audit_logs WHERE action = $1`, shared.AuditUserDelete))

	rec = s.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", alice.ID), nil, &s.root)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *PortalSuite) TestHealthzAndPoolMetrics() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/healthz", nil, nil).Code)

	rec := s.do(http.MethodGet, "/metrics", nil, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "launchpad_db_pool_max_connections 5")
	s.Contains(rec.Body.String(), `launchpad_login_attempts_total{outcome="success"} 1`)
}
