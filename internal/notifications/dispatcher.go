package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
)

// Publisher delivers lifecycle events to one destination.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, change StatusChange, msg Message) error
}

// Dispatcher fans events out to every configured publisher.
type Dispatcher struct {
	publishers []Publisher
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(publishers ...Publisher) *Dispatcher {
	return &Dispatcher{publishers: publishers}
}

// Publishers returns the configured publisher names.
func (d *Dispatcher) Publishers() []string {
	names := make([]string, 0, len(d.publishers))
	for _, p := range d.publishers {
		names = append(names, p.Name())
	}
	return names
}

// Dispatch publishes to all publishers. A failing publisher does not stop
// the others; all failures are returned joined.
func (d *Dispatcher) Dispatch(ctx context.Context, change StatusChange, msg Message) error {
	log := ctxlog.FromContext(ctx)

	var errs []error
	for _, p := range d.publishers {
		started := time.Now()
		err := p.Publish(ctx, change, msg)
		observePublish(p.Name(), started, err)
		if err != nil {
			log.Error("publish failed",
				"publisher", p.Name(),
				"event_id", change.EventID,
				"incident_id", change.Incident.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}

	return errors.Join(errs...)
}
