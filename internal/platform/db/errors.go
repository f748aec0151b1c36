package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes inspected by callers.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var (
	// ErrPoolClosed is returned by Acquire once the pool has been shut down.
	ErrPoolClosed = errors.New("pool closed")
	// ErrAcquireTimeout is returned when no connection became available within the acquire timeout.
	ErrAcquireTimeout = errors.New("acquire timeout")
	// ErrPoolNotInitialized is returned by Manager.Pool before Initialize succeeded.
	ErrPoolNotInitialized = errors.New("pool not initialized")
)

// DataAccessError wraps every failure raised below the executor boundary.
type DataAccessError struct {
	Op         string
	Code       string
	Constraint string
	Err        error
}

func (e *DataAccessError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform/db: %s: [%s] %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("platform/db: %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// Conflict reports a uniqueness violation.
func (e *DataAccessError) Conflict() bool {
	return e != nil && e.Code == codeUniqueViolation
}

// ForeignKey reports a foreign key violation.
func (e *DataAccessError) ForeignKey() bool {
	return e != nil && e.Code == codeForeignKeyViolation
}

// IsConflict reports whether err carries a uniqueness violation.
func IsConflict(err error) bool {
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return dae.Conflict()
	}
	return false
}

// IsForeignKey reports whether err carries a foreign key violation.
func IsForeignKey(err error) bool {
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return dae.ForeignKey()
	}
	return false
}

// wrapErr converts err into a *DataAccessError, keeping an existing one intact.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return err
	}
	out := &DataAccessError{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		out.Code = pgErr.Code
		out.Constraint = pgErr.ConstraintName
	}
	return out
}
