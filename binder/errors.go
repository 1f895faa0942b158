package binder

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/vitalvas/xpresso/field"
)

var (
	// ErrConfiguration marks errors in binder declarations. They are
	// reported when an application is assembled, never per request.
	ErrConfiguration = errors.New("invalid binder configuration")

	// ErrBodyConsumed is returned when the request body was already read.
	ErrBodyConsumed = errors.New("request body already consumed")
)

// ConfigError returns an error marked with ErrConfiguration.
func ConfigError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// HTTPError is a request error rendered with its status code. Detail is
// encoded as the "detail" member of the JSON response.
type HTTPError struct {
	Status  int
	Detail  any
	Headers http.Header
}

// NewHTTPError creates an HTTPError. A nil detail renders as the status
// text.
func NewHTTPError(status int, detail any) *HTTPError {
	if detail == nil {
		detail = http.StatusText(status)
	}

	return &HTTPError{Status: status, Detail: detail}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %v", e.Status, e.Detail)
}

// WithHeader returns e with a response header added.
func (e *HTTPError) WithHeader(key, value string) *HTTPError {
	if e.Headers == nil {
		e.Headers = http.Header{}
	}

	e.Headers.Add(key, value)

	return e
}

// ValidationError reports invalid request data. It renders as 422.
type ValidationError struct {
	Errors field.Errors
}

// Validation wraps errs in a ValidationError.
func Validation(errs field.Errors) *ValidationError {
	return &ValidationError{Errors: errs}
}

func (e *ValidationError) Error() string {
	return e.Errors.Error()
}

// UnsupportedMediaType returns the 415 error for a body whose media type
// no binder accepts.
func UnsupportedMediaType(mediaType string) *HTTPError {
	if mediaType == "" {
		return NewHTTPError(http.StatusUnsupportedMediaType, "Content-Type missing")
	}

	return NewHTTPError(http.StatusUnsupportedMediaType, fmt.Sprintf("Media type %s is not supported", mediaType))
}

// StatusOf returns the HTTP status an error renders as.
func StatusOf(err error) int {
	var (
		httpErr *HTTPError
		valErr  *ValidationError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &httpErr):
		return httpErr.Status
	default:
		return http.StatusInternalServerError
	}
}
