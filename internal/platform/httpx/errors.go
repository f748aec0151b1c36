// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/launchpad-portal/launchpad/internal/platform/db"
	"github.com/launchpad-portal/launchpad/internal/shared"
)

// StatusFor maps an error of the shared taxonomy to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConflict), db.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Only
// validation reasons and fixed messages reach the client; anything else is a
// bare 500.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := ""
	switch status {
	case http.StatusBadRequest:
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			detail = verr.Reason
		} else {
			detail = shared.ErrValidation.Error()
		}
	case http.StatusUnauthorized:
		detail = publicMessage(err, shared.ErrInvalidCredentials, shared.ErrCurrentPasswordIncorrect)
	case http.StatusForbidden:
		detail = publicMessage(err, shared.ErrCSRFTokenMissing, shared.ErrCSRFTokenMismatch)
	case http.StatusNotFound:
		detail = "resource not found"
	case http.StatusConflict:
		detail = "resource already exists"
	}
	Problem(w, status, http.StatusText(status), detail)
}

// publicMessage returns the message of the first known sentinel err matches.
func publicMessage(err error, known ...error) string {
	for _, k := range known {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return ""
}
