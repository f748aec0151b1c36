package shared

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/launchpad-portal/launchpad/internal/platform/db"
)

// Audit actions recorded for identity management.
const (
	AuditUserCreate        = "user.create"
	AuditUserUpdate        = "user.update"
	AuditUserDelete        = "user.delete"
	AuditUserPasswordReset = "user.password_reset"
	AuditPasswordChange    = "user.password_change"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID any
	Meta     map[string]any
	At       time.Time
}

// AuditStatement renders log as an insert to be run as a follow-up inside the
// mutation's transaction. EntityID is an int64 id or a db.Returned placeholder.
func AuditStatement(log AuditLog) (db.Statement, error) {
	if log.Action == "" || log.Entity == "" || log.EntityID == nil {
		return db.Statement{}, errors.New("audit log requires action/entity/entity_id")
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return db.Statement{}, err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	return db.Stmt(
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4::bigint::text, $5, COALESCE($6, NOW()))`,
		actorArg(log.ActorID), log.Action, log.Entity, log.EntityID, metaJSON, at,
	), nil
}

// PasswordHistoryStatement records a password change of userID made by changedBy.
// A changedBy of zero or less is an operator action and is stored as NULL.
func PasswordHistoryStatement(userID any, changedBy int64) db.Statement {
	return db.Stmt(
		`INSERT INTO password_change_history (user_id, changed_by) VALUES ($1, $2)`,
		userID, actorArg(changedBy),
	)
}

func actorArg(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
