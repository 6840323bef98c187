package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrInternal
	ErrSessionNotFound
	ErrSessionClosed
	ErrNoEligibleDoctor
	ErrValidationFailed
)

// HTTPStatus maps an error code onto the status the API answers with.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrNotFound, ErrSessionNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrSessionClosed:
		return http.StatusConflict
	case ErrNoEligibleDoctor, ErrValidationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewSessionNotFound(id string) *AppError {
	return &AppError{
		Code:    ErrSessionNotFound,
		Message: fmt.Sprintf("session %s not found", id),
	}
}

func NewSessionClosed(id, stage string) *AppError {
	return &AppError{
		Code:    ErrSessionClosed,
		Message: fmt.Sprintf("session %s is %s and accepts no further messages", id, stage),
	}
}

func NewNoEligibleDoctor(specialty string) *AppError {
	return &AppError{
		Code:    ErrNoEligibleDoctor,
		Message: fmt.Sprintf("no eligible doctor for %s", specialty),
	}
}

func NewValidationFailed(message string) *AppError {
	return &AppError{
		Code:    ErrValidationFailed,
		Message: message,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

// As reports whether err carries an AppError and returns it.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
