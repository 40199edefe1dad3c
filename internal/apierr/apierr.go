// Package apierr is the HTTP envelope for tutoring-loop failures. Services
// translate the orchestrator's sentinel errors into an Error carrying the
// status and a stable machine-readable code; handlers serialize those two and
// keep the underlying cause server-side.
package apierr

import "fmt"

// Error pairs an HTTP status and a stable code with the wrapped cause.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps a cause with the status and code the transport layer will send.
func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}
