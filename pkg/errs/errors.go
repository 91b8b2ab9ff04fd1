package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")

	ErrUpstream    = errors.New("upstream error")
	ErrUnavailable = errors.New("service unavailable")
)

// FromStatus maps an upstream HTTP status to a sentinel so callers can
// errors.Is instead of matching codes.
func FromStatus(status int) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusServiceUnavailable:
		return ErrUnavailable
	case status >= 500:
		return ErrUpstream
	default:
		return ErrInvalidInput
	}
}

// StatusError wraps the mapped sentinel with the concrete status for logs.
func StatusError(status int) error {
	if err := FromStatus(status); err != nil {
		return fmt.Errorf("%w: http %d", err, status)
	}
	return nil
}
