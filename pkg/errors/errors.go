// Package errors defines the sentinel errors shared by the search service,
// the AppError wrapper that carries an HTTP status, and the typed
// IndexLoadError surfaced when a document index cannot be fetched.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrIndexLoad       = errors.New("index load failed")
	ErrUnknownLanguage = errors.New("unknown language")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IndexLoadError reports that the document index for a language could not be
// loaded: network failure, non-success status, malformed JSON, or a payload
// that is not a JSON array. It matches ErrIndexLoad with errors.Is.
type IndexLoadError struct {
	Lang     string
	Location string
	Reason   string
	Err      error
}

func (e *IndexLoadError) Error() string {
	msg := fmt.Sprintf("cannot load index %s (lang=%s): %s", e.Location, e.Lang, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IndexLoadError) Unwrap() error {
	return e.Err
}

func (e *IndexLoadError) Is(target error) bool {
	return target == ErrIndexLoad
}

func NewIndexLoadError(lang, location, reason string, err error) *IndexLoadError {
	return &IndexLoadError{
		Lang:     lang,
		Location: location,
		Reason:   reason,
		Err:      err,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownLanguage):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrIndexLoad):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}
