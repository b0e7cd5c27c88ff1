package gsc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication is terminal for a workflow run: consent denied, token
	// exchange rejected, or an expired credential that cannot be refreshed.
	ErrAuthentication = errors.New("authentication error")
	// ErrRequest marks invalid local input, detected before any network call.
	ErrRequest = errors.New("request error")
	// ErrQuota marks vendor rate limiting (HTTP 429).
	ErrQuota = errors.New("quota error")
)

// APIError is a non-2xx response from the vendor API.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gsc %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("gsc %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusTooManyRequests:
		return ErrQuota
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	default:
		return nil
	}
}

// IsTransient reports whether err may succeed when the same call is repeated:
// vendor 5xx responses and transport failures. Rate limits, authentication and
// local request errors are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrQuota) || errors.Is(err, ErrRequest) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return true
}

// Requestf builds an ErrRequest-wrapped validation error.
func Requestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRequest, fmt.Sprintf(format, args...))
}
