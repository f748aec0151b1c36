package users

import (
	"context"
	"fmt"

	"github.com/launchpad-portal/launchpad/internal/auth"
	"github.com/launchpad-portal/launchpad/internal/platform/db"
	"github.com/launchpad-portal/launchpad/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	exec *db.Executor
}

// NewRepository constructs a repository.
func NewRepository(exec *db.Executor) *Repository {
	return &Repository{exec: exec}
}

// ListUsers returns all users ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]auth.User, error) {
	records, err := r.exec.QueryMany(ctx, `SELECT `+auth.UserColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	users := make([]auth.User, len(records))
	for i, rec := range records {
		users[i] = auth.UserFromRecord(rec)
	}
	return users, nil
}

// CreateUser inserts an account that must change its password on first login.
func (r *Repository) CreateUser(ctx context.Context, actorID int64, username, hash string, isAdmin bool) (*auth.User, error) {
	audit, err := shared.AuditStatement(shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditUserCreate,
		Entity:   "user",
		EntityID: db.Returned("id"),
		Meta:     map[string]any{"username": username, "is_admin": isAdmin},
	})
	if err != nil {
		return nil, err
	}
	rec, _, err := r.exec.Execute(ctx,
		db.Stmt(`INSERT INTO users (username, password_hash, is_admin, must_change_password)
			VALUES ($1, $2, $3, TRUE)
			RETURNING `+auth.UserColumns, username, hash, isAdmin),
		true,
		audit,
	)
	if err != nil {
		return nil, translate(err)
	}
	user := auth.UserFromRecord(rec)
	return &user, nil
}

// UpdateUser renames the account and optionally changes its admin flag or
// resets its password. A reset forces a password change, is audited as
// user.password_reset and is recorded in the password history in the same
// transaction.
func (r *Repository) UpdateUser(ctx context.Context, actorID, id int64, username string, isAdmin *bool, hash *string) (*auth.User, error) {
	meta := map[string]any{"username": username}
	if isAdmin != nil {
		meta["is_admin"] = *isAdmin
	}
	action := shared.AuditUserUpdate
	if hash != nil {
		action = shared.AuditUserPasswordReset
	}
	audit, err := shared.AuditStatement(shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: id,
		Meta:     meta,
	})
	if err != nil {
		return nil, err
	}
	followUps := []db.Statement{audit}
	if hash != nil {
		followUps = append(followUps, shared.PasswordHistoryStatement(db.Returned("id"), actorID))
	}

	rec, ok, err := r.exec.Execute(ctx,
		db.Stmt(`UPDATE users SET
				username = $1,
				is_admin = COALESCE($2, is_admin),
				password_hash = COALESCE($3, password_hash),
				must_change_password = CASE WHEN $3::text IS NULL THEN must_change_password ELSE TRUE END
			WHERE id = $4
			RETURNING `+auth.UserColumns, username, isAdmin, hash, id),
		true,
		followUps...,
	)
	if err != nil {
		return nil, translate(err)
	}
	if !ok {
		return nil, shared.ErrNotFound
	}
	user := auth.UserFromRecord(rec)
	return &user, nil
}

// DeleteUser removes the account.
func (r *Repository) DeleteUser(ctx context.Context, actorID, id int64) error {
	audit, err := shared.AuditStatement(shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditUserDelete,
		Entity:   "user",
		EntityID: db.Returned("id"),
	})
	if err != nil {
		return err
	}
	_, ok, err := r.exec.Execute(ctx,
		db.Stmt(`DELETE FROM users WHERE id = $1 RETURNING id`, id),
		true,
		audit,
	)
	if err != nil {
		return translate(err)
	}
	if !ok {
		return shared.ErrNotFound
	}
	return nil
}

// translate maps constraint violations to domain errors. A foreign key
// violation can only come from an actor id that no longer exists.
func translate(err error) error {
	switch {
	case db.IsConflict(err):
		return fmt.Errorf("%w: username already exists", shared.ErrConflict)
	case db.IsForeignKey(err):
		return fmt.Errorf("%w: acting account no longer exists", shared.ErrUnauthenticated)
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
