// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/civic-tally/tally/internal/shared"
)

// statusRule maps one sentinel error to a status code and client message.
type statusRule struct {
	err     error
	status  int
	message string
}

// Rules are evaluated in order; the first match wins.
var statusRules = []statusRule{
	{shared.ErrInvalidInput, http.StatusBadRequest, ""},
	{shared.ErrUnknownIdentifier, http.StatusBadRequest, "invalid identifier or secret"},
	{shared.ErrSecretMismatch, http.StatusBadRequest, "invalid identifier or secret"},
	{shared.ErrAccountSuspended, http.StatusForbidden, "account is suspended"},
	{shared.ErrAccountDeleted, http.StatusForbidden, "account has been deleted"},
	{shared.ErrTokenMissing, http.StatusUnauthorized, "token not provided"},
	{shared.ErrTokenMalformed, http.StatusUnauthorized, "token malformed"},
	{shared.ErrTokenSignatureInvalid, http.StatusUnauthorized, "token signature invalid"},
	{shared.ErrTokenExpired, http.StatusUnauthorized, "token expired"},
	{shared.ErrTokenRevoked, http.StatusUnauthorized, "token revoked"},
	{shared.ErrSessionClosed, http.StatusUnauthorized, "session closed"},
	{shared.ErrForbidden, http.StatusForbidden, "forbidden"},
	{shared.ErrNotFound, http.StatusNotFound, "not found"},
	{shared.ErrConflict, http.StatusConflict, ""},
}

// StatusFor returns the HTTP status and client-safe message for err.
func StatusFor(err error) (int, string) {
	for _, rule := range statusRules {
		if errors.Is(err, rule.err) {
			msg := rule.message
			if msg == "" {
				msg = err.Error()
			}
			return rule.status, msg
		}
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// RespondError maps domain errors to HTTP responses carrying an error field.
// Errors outside the taxonomy become a generic 500 so storage details never leak.
func RespondError(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	Error(w, status, msg)
}
