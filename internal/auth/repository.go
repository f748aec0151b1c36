package auth

import (
	"context"

	"github.com/launchpad-portal/launchpad/internal/platform/db"
	"github.com/launchpad-portal/launchpad/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	TouchLastLogin(ctx context.Context, id int64, rehash *string) error
	ChangePassword(ctx context.Context, id int64, hash string) error
}

// PGRepository implements Repository on the query executor.
type PGRepository struct {
	exec *db.Executor
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(exec *db.Executor) *PGRepository {
	return &PGRepository{exec: exec}
}

// FindByUsername fetches a user by exact username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	rec, ok, err := r.exec.QueryOne(ctx, `SELECT `+UserColumns+` FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrNotFound
	}
	user := UserFromRecord(rec)
	return &user, nil
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	rec, ok, err := r.exec.QueryOne(ctx, `SELECT `+UserColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrNotFound
	}
	user := UserFromRecord(rec)
	return &user, nil
}

// TouchLastLogin stamps the login time and, when rehash is set, stores the
// upgraded hash. It returns shared.ErrNotFound when the user row is gone.
func (r *PGRepository) TouchLastLogin(ctx context.Context, id int64, rehash *string) error {
	_, ok, err := r.exec.Execute(ctx,
		db.Stmt(`UPDATE users SET last_login = NOW(), password_hash = COALESCE($2, password_hash)
			WHERE id = $1 RETURNING id`, id, rehash),
		true,
	)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotFound
	}
	return nil
}

// ChangePassword stores a self-service password change: the new hash, the cleared
// must-change flag, the history row and the audit row commit together.
func (r *PGRepository) ChangePassword(ctx context.Context, id int64, hash string) error {
	audit, err := shared.AuditStatement(shared.AuditLog{
		ActorID:  id,
		Action:   shared.AuditPasswordChange,
		Entity:   "user",
		EntityID: id,
	})
	if err != nil {
		return err
	}
	_, ok, err := r.exec.Execute(ctx,
		db.Stmt(`UPDATE users SET password_hash = $1, must_change_password = FALSE WHERE id = $2 RETURNING id`, hash, id),
		true,
		shared.PasswordHistoryStatement(db.Returned("id"), id),
		audit,
	)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
