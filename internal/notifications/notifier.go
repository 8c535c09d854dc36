// Package notifications publishes incident lifecycle events to chat webhooks,
// Kafka and the log.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/google/uuid"
)

// Notifier implements incidents.StatusNotifier.
type Notifier struct {
	renderer   *Renderer
	dispatcher *Dispatcher
	baseURL    string
	now        func() time.Time
}

// NewNotifier creates a new Notifier. baseURL, when set, is used to build
// links to the incident.
func NewNotifier(renderer *Renderer, dispatcher *Dispatcher, baseURL string) *Notifier {
	return &Notifier{
		renderer:   renderer,
		dispatcher: dispatcher,
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}
}

// NotifyStatusChanged publishes an incident.status_changed event.
func (n *Notifier) NotifyStatusChanged(ctx context.Context, inc *domain.Incident, from domain.Status, actor string) error {
	change := n.buildStatusChange(inc, from, actor)

	msg, err := n.renderer.Render(change)
	if err != nil {
		return fmt.Errorf("render notification: %w", err)
	}

	if err := n.dispatcher.Dispatch(ctx, change, msg); err != nil {
		return fmt.Errorf("dispatch notification: %w", err)
	}
	return nil
}

func (n *Notifier) buildStatusChange(inc *domain.Incident, from domain.Status, actor string) StatusChange {
	change := StatusChange{
		EventID:    uuid.NewString(),
		Type:       EventStatusChanged,
		OccurredAt: n.now().UTC(),
		Actor:      actor,
		From:       string(from),
		To:         string(inc.Status),
		Incident: IncidentData{
			ID:                     inc.ID,
			Title:                  inc.Title,
			Level:                  string(inc.Level),
			Scope:                  string(inc.Scope),
			IncidentCommander:      inc.IncidentCommander,
			ReportingOrg:           inc.ReportingOrg,
			AdditionalSubscribers:  inc.AdditionalSubscribers,
			SendEmailNotifications: inc.SendEmailNotifications,
			Critical:               inc.IsCritical(),
			StartedAt:              inc.StartedAt,
			ResolvedAt:             inc.ResolvedAt,
		},
	}
	if n.baseURL != "" {
		change.IncidentURL = n.baseURL + "/incidents/" + inc.ID
	}
	return change
}
