package notifications

import "time"

// EventType names a lifecycle event.
type EventType string

// Event types.
const (
	EventStatusChanged EventType = "incident.status_changed"
)

// StatusChange is published for every accepted status transition.
type StatusChange struct {
	EventID    string    `json:"event_id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor,omitempty"`

	Incident IncidentData `json:"incident"`
	From     string       `json:"from"`
	To       string       `json:"to"`

	IncidentURL string `json:"incident_url,omitempty"`
}

// IncidentData is the incident snapshot carried by an event.
type IncidentData struct {
	ID                     string     `json:"id"`
	Title                  string     `json:"title"`
	Level                  string     `json:"level,omitempty"`
	Scope                  string     `json:"scope,omitempty"`
	IncidentCommander      string     `json:"incident_commander,omitempty"`
	ReportingOrg           string     `json:"reporting_org,omitempty"`
	AdditionalSubscribers  string     `json:"additional_subscribers,omitempty"`
	SendEmailNotifications bool       `json:"send_email_notifications"`
	Critical               bool       `json:"critical"`
	StartedAt              time.Time  `json:"started_at"`
	ResolvedAt             *time.Time `json:"resolved_at,omitempty"`
}

// Message is a rendered human-readable notification.
type Message struct {
	Subject string
	Body    string
}
