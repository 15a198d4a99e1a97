package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	// Transient marks conflicts worth retrying by the caller; state and
	// authorization failures are never transient.
	Transient bool
	Err       error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

// NewInvalidState rejects a transition not legal from the current status.
func NewInvalidState(message string, details map[string]any) error {
	return NewDomainError("INVALID_STATE", message, http.StatusConflict, details)
}

// NewQueueInactive rejects bookings on a queue that is not active.
func NewQueueInactive(status string) error {
	return NewDomainError("QUEUE_INACTIVE", "queue is not active", http.StatusConflict,
		map[string]any{"status": status})
}

// NewDuplicateActiveToken rejects a second active token per patron and queue.
func NewDuplicateActiveToken(tokenNumber int) error {
	return NewDomainError("DUPLICATE_ACTIVE_TICKET", "patron already holds an active token in this queue",
		http.StatusConflict, map[string]any{"token_number": tokenNumber})
}

// NewNoTokensAvailable is returned by Advance when no eligible token exists.
func NewNoTokensAvailable() error {
	return NewDomainError("NO_TICKETS_AVAILABLE", "no more tokens in queue", http.StatusConflict, nil)
}

// NewConflict reports a concurrency-control conflict that survived the
// engine's internal retries. Callers may retry.
func NewConflict(message string, details map[string]any) error {
	err := NewDomainError("CONFLICT", message, http.StatusConflict, details)
	err.Transient = true
	return err
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
