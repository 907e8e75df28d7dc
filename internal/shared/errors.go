package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the resource state forbids the operation.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput indicates a malformed request body or parameter.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownIdentifier indicates no principal matches the login identifier.
	ErrUnknownIdentifier = errors.New("unknown identifier")
	// ErrSecretMismatch indicates the supplied secret does not match the stored hash.
	ErrSecretMismatch = errors.New("secret mismatch")
	// ErrAccountSuspended indicates the principal is suspended.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountDeleted indicates the principal has been deleted.
	ErrAccountDeleted = errors.New("account deleted")

	// ErrTokenMissing indicates the request carried no bearer token.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenMalformed indicates the token could not be decoded.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignatureInvalid indicates the token signature does not verify.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired indicates the embedded expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked indicates the token is blacklisted.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrSessionClosed indicates the owning session is no longer active.
	ErrSessionClosed = errors.New("session closed")

	// ErrForbidden indicates the principal lacks the required action.
	ErrForbidden = errors.New("forbidden")

	// ErrIssuanceStorage indicates the session record could not be persisted.
	ErrIssuanceStorage = errors.New("session issuance storage failure")
)

// IsAuthenticationFailure reports whether err belongs to the credential failure family.
func IsAuthenticationFailure(err error) bool {
	return errors.Is(err, ErrUnknownIdentifier) ||
		errors.Is(err, ErrSecretMismatch) ||
		errors.Is(err, ErrAccountSuspended) ||
		errors.Is(err, ErrAccountDeleted)
}

// IsTokenFailure reports whether err belongs to the token failure family.
func IsTokenFailure(err error) bool {
	return errors.Is(err, ErrTokenMissing) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrTokenSignatureInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrSessionClosed)
}
