package authmode

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/authmode/authmode/csrf"
	"github.com/authmode/authmode/encryption"
	"github.com/authmode/authmode/sanitize"
	"github.com/authmode/authmode/token"
)

// Code is a machine-readable error classification carried by [Error].
type Code string

const (
	// CodeInvalidConfiguration marks a missing or malformed required setting.
	// Fatal at factory construction, never retried.
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	// CodeValidation marks malformed user input rejected before storage.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeInvalidCredentials is returned uniformly for any credential
	// mismatch so callers cannot enumerate which check failed.
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	// CodeTokenInvalid marks a signature, structure, or expiry failure.
	CodeTokenInvalid Code = "TOKEN_INVALID"
	// CodeTokenReused marks a replayed refresh token. More severe than
	// CodeTokenInvalid: it indicates possible theft and triggers
	// defensive invalidation of the user's outstanding tokens.
	CodeTokenReused Code = "TOKEN_REUSED"
	// CodeModeViolation marks an operation unsupported by the active
	// tenancy mode.
	CodeModeViolation Code = "MODE_VIOLATION"
	// CodeConflict marks a duplicate identity during registration.
	CodeConflict Code = "CONFLICT"
	// CodeNotFound marks a missing user or database.
	CodeNotFound Code = "NOT_FOUND"
	// CodeDecryption marks an authenticated-encryption tag mismatch.
	CodeDecryption Code = "DECRYPTION_FAILED"
	// CodeCSRF marks a missing, invalid, or consumed anti-forgery token.
	CodeCSRF Code = "CSRF_REJECTED"
)

// Error is the typed error value used across the engine. Every error
// carries a machine-readable Code and an HTTP status hint.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so wrapped and re-worded
// variants still compare equal to the exported sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

var (
	// ErrInvalidConfiguration is returned when a required setting for the
	// selected mode is missing or malformed.
	ErrInvalidConfiguration = newError(CodeInvalidConfiguration, http.StatusInternalServerError, "invalid configuration")
	// ErrInvalidCredentials is returned for any failed credential check.
	ErrInvalidCredentials = newError(CodeInvalidCredentials, http.StatusUnauthorized, "invalid credentials")
	// ErrTokenInvalid is returned for any token verification failure.
	ErrTokenInvalid = newError(CodeTokenInvalid, http.StatusUnauthorized, "invalid token")
	// ErrTokenReused is returned when a consumed refresh token is replayed.
	ErrTokenReused = newError(CodeTokenReused, http.StatusUnauthorized, "refresh token reuse detected")
	// ErrModeViolation is returned when the active tenancy mode does not
	// support the requested operation.
	ErrModeViolation = newError(CodeModeViolation, http.StatusBadRequest, "operation not supported by auth mode")
	// ErrUserLimitExceeded is returned when the multi-tenant user cap is hit.
	ErrUserLimitExceeded = newError(CodeModeViolation, http.StatusForbidden, "maximum users per tenant limit reached")
	// ErrConflict is returned when a registration collides with an
	// existing identity.
	ErrConflict = newError(CodeConflict, http.StatusConflict, "user with this email already exists")
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = newError(CodeNotFound, http.StatusNotFound, "user not found")
	// ErrDecryptionFailed is returned when ciphertext fails authentication.
	ErrDecryptionFailed = newError(CodeDecryption, http.StatusInternalServerError, "decryption failed")
)

func configError(field string) *Error {
	return &Error{
		Code:    CodeInvalidConfiguration,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("missing required configuration: %s", field),
	}
}

func validationError(err error) *Error {
	return &Error{
		Code:    CodeValidation,
		Status:  http.StatusBadRequest,
		Message: err.Error(),
		Err:     err,
	}
}

// Classify maps any error produced by the engine or its subpackages to a
// typed *Error. Unknown errors map to a 500 configuration error so the
// HTTP boundary never leaks internals.
func Classify(err error) *Error {
	var typed *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &typed):
		return typed
	case errors.Is(err, token.ErrTokenReused):
		return &Error{Code: CodeTokenReused, Status: http.StatusUnauthorized, Message: "refresh token reuse detected", Err: err}
	case errors.Is(err, token.ErrTokenExpired), errors.Is(err, token.ErrTokenInvalid):
		// Expired and invalid are distinct internally but merged for
		// callers to avoid an expiry oracle.
		return &Error{Code: CodeTokenInvalid, Status: http.StatusUnauthorized, Message: "invalid token", Err: err}
	case errors.Is(err, csrf.ErrTokenMissing), errors.Is(err, csrf.ErrTokenInvalid):
		return &Error{Code: CodeCSRF, Status: http.StatusForbidden, Message: "csrf token rejected", Err: err}
	case errors.Is(err, encryption.ErrDecryptionFailed):
		return &Error{Code: CodeDecryption, Status: http.StatusInternalServerError, Message: "decryption failed", Err: err}
	default:
		var verr *sanitize.ValidationError
		if errors.As(err, &verr) {
			return validationError(verr)
		}
		return &Error{Code: CodeInvalidConfiguration, Status: http.StatusInternalServerError, Message: "internal error", Err: err}
	}
}

// HTTPStatus returns the HTTP status hint for err, defaulting to 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return Classify(err).Status
}
