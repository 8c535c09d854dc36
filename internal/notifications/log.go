package notifications

import (
	"context"

	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
)

// LogPublisher writes lifecycle events to the structured log.
type LogPublisher struct{}

// Name returns the publisher name.
func (LogPublisher) Name() string { return "log" }

// Publish logs the event.
func (LogPublisher) Publish(ctx context.Context, change StatusChange, msg Message) error {
	ctxlog.FromContext(ctx).Info("incident lifecycle event",
		"event_id", change.EventID,
		"type", change.Type,
		"incident_id", change.Incident.ID,
		"from", change.From,
		"to", change.To,
		"actor", change.Actor,
		"subject", msg.Subject,
	)
	return nil
}
