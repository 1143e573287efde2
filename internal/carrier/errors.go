package carrier

import (
	"errors"
	"fmt"
)

var (
	// ErrCarrier is the base error for every failed carrier call.
	ErrCarrier = errors.New("carrier failure")

	// ErrCircuitOpen is returned without contacting the carrier while the
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("carrier temporarily unavailable")
)

// APIError is an error response returned by the carrier REST API.
type APIError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("HTTP %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

func (e *APIError) Unwrap() error { return ErrCarrier }

// clientError reports whether the request itself was rejected. Such errors
// do not count against the circuit breaker.
func (e *APIError) clientError() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != 429
}
