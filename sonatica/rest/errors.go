package rest

import (
	"errors"
	"fmt"
)

// ErrTransport matches every failed REST call.
var ErrTransport = errors.New("rest: transport failure")

// Error describes one failed call. Status is zero when no response arrived.
type Error struct {
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("rest: %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("rest: %s %s: status %d", e.Method, e.Path, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("rest: %s %s: %v", e.Method, e.Path, e.Err)
	default:
		return fmt.Sprintf("rest: %s %s failed", e.Method, e.Path)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrTransport
}

// StatusCode extracts the HTTP status from err, zero if none.
func StatusCode(err error) int {
	var restErr *Error
	if errors.As(err, &restErr) {
		return restErr.Status
	}
	return 0
}
