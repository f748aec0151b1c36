package shared

import "errors"

var (
	// ErrUnauthenticated indicates the caller has no valid session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the caller is authenticated but lacks the required tier.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness rule would be broken.
	ErrConflict = errors.New("conflict")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. It is an ErrUnauthenticated.
	ErrInvalidCredentials = kindOf("invalid username or password", ErrUnauthenticated)
	// ErrCurrentPasswordIncorrect is returned by password changes with a wrong current password.
	ErrCurrentPasswordIncorrect = kindOf("current password incorrect", ErrUnauthenticated)
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = kindOf("csrf token missing", ErrForbidden)
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = kindOf("csrf token mismatch", ErrForbidden)
)

// ValidationError carries a human readable reason. It matches ErrValidation.
type ValidationError struct {
	Reason string
}

// NewValidationError builds a ValidationError.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is reports ErrValidation as a match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// kindError is a sentinel with its own message that still matches a broader kind.
type kindError struct {
	msg  string
	kind error
}

func kindOf(msg string, kind error) error {
	return &kindError{msg: msg, kind: kind}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }
