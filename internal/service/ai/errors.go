package ai

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTransport     = errors.New("transport error")
	ErrMissingAPIKey = errors.New("api key is not configured")
)

// TransportError wraps network level failures talking to the remote API.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// APIError is a failure reported by the remote API itself.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote api error [%d %s]: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("remote api error: %s", e.Message)
}
