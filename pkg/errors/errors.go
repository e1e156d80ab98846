package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Lock and version-store errors are returned synchronously for immediate
// correction; gateway errors are persisted and surfaced asynchronously.
var (
	ErrLockRequired           = New("LOCK_REQUIRED", http.StatusPreconditionFailed, "a valid lock on the document is required")
	ErrLockHeld               = New("LOCK_HELD", http.StatusConflict, "document is locked by another holder")
	ErrConcurrentModification = New("CONCURRENT_MODIFICATION", http.StatusConflict, "lock is held by a different user")
	ErrNotPending             = New("NOT_PENDING", http.StatusConflict, "approval has already been decided")
	ErrNotAuthorized          = New("NOT_AUTHORIZED", http.StatusForbidden, "actor is not the designated approver")
	ErrAlreadyRejected        = New("ALREADY_REJECTED", http.StatusConflict, "version was rejected; create a new version to retry")
	ErrValidationBlocked      = New("VALIDATION_BLOCKED", http.StatusUnprocessableEntity, "package has blocking validation errors")
	ErrPackageRejected        = New("PACKAGE_REJECTED", http.StatusConflict, "package was rejected by the gateway; create a new package to retry")
	ErrRuleEvaluation         = New("RULE_EVALUATION_ERROR", http.StatusInternalServerError, "harvest rule evaluation failed")

	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// ErrCacheMiss signals an absent cache entry; callers fall through to the
// source of truth.
var ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
