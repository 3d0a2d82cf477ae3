package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated matches any AuthenticationExpiredError.
var ErrUnauthenticated = errors.New("authentication expired")

// AuthenticationExpiredError reports a request the backend rejected as
// unauthenticated.
type AuthenticationExpiredError struct {
	Method string
	URL    string
	Status int
}

func (e *AuthenticationExpiredError) Error() string {
	return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.URL, ErrUnauthenticated.Error(), e.Status)
}

func (e *AuthenticationExpiredError) Is(target error) bool { return target == ErrUnauthenticated }

// BackendError is a non-OK response. Message comes from the body's error
// field when present, otherwise from a per-operation fallback.
type BackendError struct {
	Op      string
	Status  int
	Message string
}

func (e *BackendError) Error() string { return e.Message }

// ErrorResponse is the backend's error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ParseErrorMessage pulls the error text out of body, or returns "".
func ParseErrorMessage(body []byte) string {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if resp.Error != "" {
		return resp.Error
	}
	return resp.Message
}

func backendError(op, fallback string, status int, body []byte) *BackendError {
	msg := ParseErrorMessage(body)
	if msg == "" {
		msg = fallback
	}
	return &BackendError{Op: op, Status: status, Message: msg}
}

// IsUnauthenticated reports whether resp is a 401.
func IsUnauthenticated(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusUnauthorized
}
