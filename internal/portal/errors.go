package portal

import (
	"errors"
	"fmt"
)

// AuthError indicates that the session token was rejected (HTTP 401).
// Callers treat it as "log in again", never as a retryable failure.
type AuthError struct {
	Method string
	Path   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (401) on %s %s", e.Method, e.Path)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// HTTPError is a non-2xx response other than 401.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// retryable reports whether the status is worth another attempt.
func retryable(status int) bool {
	return status == 429 || status >= 500
}
