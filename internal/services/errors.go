package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/soaringjerry/Surveyor/internal/engine"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorDuplicate    ErrorCode = "duplicate_submission"
	ErrorClosed       ErrorCode = "not_accepting_responses"
)

// ServiceError is a failure meant for the caller. Err optionally links it to
// a sentinel so errors.Is works across the service boundary.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }

func (e *ServiceError) Unwrap() error { return e.Err }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewDuplicateError(msg string) error {
	return &ServiceError{Code: ErrorDuplicate, Message: msg, Err: engine.ErrDuplicateSubmission}
}

func NewClosedError(msg string) error { return &ServiceError{Code: ErrorClosed, Message: msg} }

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
