package incidents

import "errors"

// Incident errors.
var (
	ErrIncidentNotFound     = errors.New("incident not found")
	ErrPostmortemNotFound   = errors.New("postmortem not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrPostmortemIncomplete = errors.New("postmortem is incomplete")
	ErrPostmortemNotAllowed = errors.New("postmortem can only be edited while the incident is in postmortem")
	ErrPostmortemReadOnly   = errors.New("postmortem is read-only once the incident is closed")
	ErrIncidentClosed       = errors.New("incident is closed")
)
