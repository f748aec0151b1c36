package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// CSRFHeader is the request header carrying the CSRF token.
const CSRFHeader = "X-CSRF-Token"

// CSRFManager issues and verifies CSRF tokens bound to a session.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// EnsureToken returns the session's CSRF token, generating one when absent. The
// boolean reports whether the session was modified and needs saving.
func (m *CSRFManager) EnsureToken(ctx context.Context, sess *Session) (string, bool, error) {
	if sess == nil {
		return "", false, errors.New("session missing")
	}
	if sess.CSRFToken != "" {
		return sess.CSRFToken, false, nil
	}
	token, err := m.generateToken(sess.ID)
	if err != nil {
		return "", false, err
	}
	sess.CSRFToken = token
	return token, true, nil
}

// VerifyToken compares the supplied token with the session token.
func (m *CSRFManager) VerifyToken(ctx context.Context, sess *Session, token string) error {
	if sess == nil || sess.CSRFToken == "" || token == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(sess.CSRFToken), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) generateToken(sessionID string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(sessionID))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write(nonce)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
