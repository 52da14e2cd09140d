// Package errors defines the platform's error vocabulary: sentinel values
// callers branch on, and AppError for carrying an HTTP status and a
// caller-safe message across service boundaries.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels with a defined HTTP mapping. Wrap them with New to attach a
// message safe to show callers.
var (
	ErrPatternNotFound = errors.New("pattern not found")
	ErrPatternExists   = errors.New("pattern already registered")
	ErrInvalidInput    = errors.New("invalid input")
)

// AppError pairs a sentinel with the message and status code a handler
// should surface. errors.Is and errors.As see through it.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

// New wraps a sentinel with a caller-safe message. The HTTP status comes
// from the sentinel's mapping, so call sites never repeat the code.
func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusOf(sentinel),
	}
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode maps err to the response status a handler should write.
// Unrecognized errors map to 500 so internals never leak by accident.
func HTTPStatusCode(err error) int {
	var app *AppError
	if errors.As(err, &app) {
		return app.StatusCode
	}
	return statusOf(err)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrPatternNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPatternExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
