package inference

import (
	"errors"
	"net/http"
)

// unavailableError carries the diagnostic message of an unavailable backend.
// The HTTP layer returns it verbatim with 503.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string   { return e.msg }
func (e unavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrUnavailable constructs an unavailableError with msg as the client-facing reason.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates the backend could not serve.
func IsUnavailable(err error) bool {
	var e unavailableError
	return errors.As(err, &e)
}

// backendFailureError wraps an error raised by the backend. It deliberately has
// no StatusCode: its detail must never reach the client.
type backendFailureError struct {
	sessionID string
	err       error
}

func (e backendFailureError) Error() string {
	if e.err == nil {
		return "backend failure"
	}
	return "backend failure: " + e.err.Error()
}

func (e backendFailureError) Unwrap() error { return e.err }

// ErrBackendFailure wraps err as a backend failure.
func ErrBackendFailure(err error) error { return backendFailureError{err: err} }

// IsBackendFailure reports whether err came from the generation backend.
func IsBackendFailure(err error) bool {
	var e backendFailureError
	return errors.As(err, &e)
}

// tooBusyError signals queue overflow or queue wait expiry for 429 mapping.
type tooBusyError struct{}

func (tooBusyError) Error() string   { return "Server is busy, try again later" }
func (tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// ErrTooBusy is returned when a request cannot join or leave the queue in time.
var ErrTooBusy error = tooBusyError{}

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// timeoutError is returned when a dispatched generation exceeds the configured
// timeout. The backend call itself keeps running until it returns.
type timeoutError struct{}

func (timeoutError) Error() string   { return "Generation timed out" }
func (timeoutError) StatusCode() int { return http.StatusGatewayTimeout }

// ErrTimeout is returned by Generate when the generate timeout expires.
var ErrTimeout error = timeoutError{}

// IsTimeout reports whether err is a generation timeout.
func IsTimeout(err error) bool {
	var e timeoutError
	return errors.As(err, &e)
}
