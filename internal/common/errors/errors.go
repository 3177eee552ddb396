package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrBadRequest    = errors.New("bad request")
	ErrConflict      = errors.New("conflict")
	ErrInternalError = errors.New("internal error")
)

type AppError struct {
	Status  int
	Message string
	Err     error
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

func NewAppError(status int, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Message: message,
		Err:     err,
	}
}

func NotFound(message string) *AppError {
	return &AppError{
		Status:  http.StatusNotFound,
		Message: message,
		Err:     ErrNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Message: message,
		Err:     ErrUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Status:  http.StatusForbidden,
		Message: message,
		Err:     ErrForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Status:  http.StatusBadRequest,
		Message: message,
		Err:     ErrBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Status:  http.StatusConflict,
		Message: message,
		Err:     ErrConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Status:  http.StatusInternalServerError,
		Message: message,
		Err:     err,
	}
}

// HTTPStatus maps any error to the status code a handler should answer with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	return http.StatusInternalServerError
}

// Message returns the client-facing message. Unclassified errors collapse to
// a generic message so storage internals never leak into responses.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}

	return "internal error"
}

func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Status == http.StatusNotFound {
			return true
		}
		return errors.Is(appErr.Err, ErrNotFound)
	}

	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status == http.StatusConflict
	}

	return errors.Is(err, ErrConflict)
}
