package auth

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/launchpad-portal/launchpad/internal/platform/db"
	"github.com/launchpad-portal/launchpad/internal/shared"
)

// ErrPasswordTooLong is returned for passwords beyond bcrypt's 72 byte input limit.
var ErrPasswordTooLong error = shared.NewValidationError("password must be at most 72 bytes")

// MinPasswordLength is the shortest accepted new password.
const MinPasswordLength = 6

// User represents an account row.
type User struct {
	ID                 int64      `json:"id"`
	Username           string     `json:"username"`
	PasswordHash       string     `json:"-"`
	IsAdmin            bool       `json:"is_admin"`
	MustChangePassword bool       `json:"must_change_password"`
	CreatedAt          time.Time  `json:"created_at"`
	LastLogin          *time.Time `json:"last_login"`
}

// Identity snapshots the user for a new session.
func (u User) Identity() shared.Identity {
	return shared.Identity{
		UserID:             u.ID,
		Username:           u.Username,
		IsAdmin:            u.IsAdmin,
		MustChangePassword: u.MustChangePassword,
	}
}

// UserColumns is the projection decoded by UserFromRecord.
const UserColumns = `id, username, password_hash, is_admin, must_change_password, created_at, last_login`

// UserFromRecord decodes a users row selected with UserColumns.
func UserFromRecord(rec db.Record) User {
	return User{
		ID:                 rec.Int64("id"),
		Username:           rec.String("username"),
		PasswordHash:       rec.String("password_hash"),
		IsAdmin:            rec.Bool("is_admin"),
		MustChangePassword: rec.Bool("must_change_password"),
		CreatedAt:          rec.Time("created_at"),
		LastLogin:          rec.TimePtr("last_login"),
	}
}

// NormalizeUsername trims surrounding space and applies NFC so that visually
// identical names compare equal.
func NormalizeUsername(username string) string {
	return norm.NFC.String(strings.TrimSpace(username))
}
