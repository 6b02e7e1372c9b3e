package webhooks

import (
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from a subscriber's endpoint.
type StatusError struct {
	Code int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Permanent reports whether retrying can never succeed. Client errors are
// permanent, except 408 and 429 which signal "try again later" rather than a
// malformed request.
func (e *StatusError) Permanent() bool {
	if e.Code < 400 || e.Code >= 500 {
		return false
	}
	switch e.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return true
}
