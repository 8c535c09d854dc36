package console

import (
	"errors"
	"fmt"
)

// Console errors.
var (
	ErrBusy                = errors.New("another transition is in flight")
	ErrNoFurtherTransition = errors.New("incident is closed, no further transition")
	ErrNotImplemented      = errors.New("not implemented")
	ErrStaleResponse       = errors.New("response belongs to an outdated request")
	ErrNoIncident          = errors.New("no incident loaded")
	ErrPostmortemReadOnly  = errors.New("postmortem is not editable at this status")
	ErrDraftNotFound       = errors.New("draft not found")
	ErrIncidentClosed      = errors.New("incident is closed")
	ErrPostmortemMissing   = errors.New("postmortem is incomplete")
)

// RequestError is a non-2xx response without field errors.
type RequestError struct {
	StatusCode int
	Detail     string
	RequestID  string
}

func (e *RequestError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Detail)
}

// TransportError is a failure to reach the backend or read its response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
