package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionGone is returned by Set when an existing session expired or was cleared
// before it could be rewritten.
var ErrSessionGone = errors.New("session no longer exists")

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session is the server-side state bound to one session token.
type Session struct {
	ID        string
	Identity  Identity
	CSRFToken string
	CreatedAt time.Time

	token  string
	stored bool
}

type sessionPayload struct {
	Identity  Identity  `json:"identity"`
	CSRFToken string    `json:"csrf_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// New starts an unsaved session for identity.
func (sm *SessionManager) New(identity Identity) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		Identity:  identity,
		CreatedAt: time.Now().UTC(),
		token:     sm.sign(id),
	}
}

// Token returns the signed cookie value for the session.
func (s *Session) Token() string {
	return s.token
}

// Set persists the session and returns its token. A new session gets the full TTL;
// rewriting an existing one keeps the remaining TTL.
func (sm *SessionManager) Set(ctx context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("session missing")
	}
	data, err := json.Marshal(sessionPayload{
		Identity:  sess.Identity,
		CSRFToken: sess.CSRFToken,
		CreatedAt: sess.CreatedAt,
	})
	if err != nil {
		return "", err
	}

	key := sm.redisKey(sess.ID)
	if sess.stored {
		err := sm.client.SetArgs(ctx, key, data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionGone
		}
		if err != nil {
			return "", fmt.Errorf("session store: %w", err)
		}
		return sess.token, nil
	}

	index := sm.userKey(sess.Identity.UserID)
	_, err = sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, sm.ttl)
		pipe.SAdd(ctx, index, sess.ID)
		pipe.Expire(ctx, index, sm.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("session store: %w", err)
	}
	sess.stored = true
	if sess.token == "" {
		sess.token = sm.sign(sess.ID)
	}
	return sess.token, nil
}

// Get loads the session for token. Absent, expired and tampered tokens all yield nil
// without error.
func (sm *SessionManager) Get(ctx context.Context, token string) (*Session, error) {
	id, ok := sm.verify(token)
	if !ok {
		return nil, nil
	}
	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session store: %w", err)
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("session store: decode %s: %w", id, err)
	}
	return &Session{
		ID:        id,
		Identity:  stored.Identity,
		CSRFToken: stored.CSRFToken,
		CreatedAt: stored.CreatedAt,
		token:     token,
		stored:    true,
	}, nil
}

// Clear removes the session for token. Unknown tokens are ignored.
func (sm *SessionManager) Clear(ctx context.Context, token string) error {
	id, ok := sm.verify(token)
	if !ok {
		return nil
	}
	sess, err := sm.Get(ctx, token)
	if err != nil {
		return err
	}
	_, err = sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sm.redisKey(id))
		if sess != nil {
			pipe.SRem(ctx, sm.userKey(sess.Identity.UserID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// Revoke removes every session of userID.
func (sm *SessionManager) Revoke(ctx context.Context, userID int64) error {
	index := sm.userKey(userID)
	ids, err := sm.client.SMembers(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session store: %w", err)
	}
	_, err = sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, sm.redisKey(id))
		}
		pipe.Del(ctx, index)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// TokenFromRequest returns the session cookie value, or "" when absent.
func (sm *SessionManager) TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// WriteCookie sets the session cookie on the response.
func (sm *SessionManager) WriteCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sm.ttl.Seconds()),
		Expires:  time.Now().Add(sm.ttl),
	})
}

// ExpireCookie instructs the client to drop the session cookie.
func (sm *SessionManager) ExpireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) userKey(userID int64) string {
	return "session:user:" + strconv.FormatInt(userID, 10)
}

func (sm *SessionManager) sign(id string) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(sm.mac(id))
}

func (sm *SessionManager) verify(token string) (string, bool) {
	id, sig, ok := strings.Cut(token, ".")
	if !ok || id == "" {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	return id, hmac.Equal(got, sm.mac(id))
}

func (sm *SessionManager) mac(id string) []byte {
	m := hmac.New(sha256.New, sm.secret)
	_, _ = m.Write([]byte(id))
	return m.Sum(nil)
}
