package console

import (
	"context"
	"fmt"
	"sync"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
)

// DetailAPI is the part of the REST API the detail view needs.
type DetailAPI interface {
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	PatchIncident(ctx context.Context, id string, fields map[string]any) (*domain.Incident, error)
	AddUpdate(ctx context.Context, id string, req UpdateRequest) (*domain.Update, error)
	SavePostmortem(ctx context.Context, id string, pm domain.Postmortem) (*PostmortemView, error)
}

// Detail drives the incident detail view. One controller serves every
// lifecycle stage; what it shows is decided by Status.Sections.
type Detail struct {
	api DetailAPI

	mu         sync.Mutex
	state      State
	postmortem *domain.Postmortem
	busy       bool
}

// NewDetail creates a detail controller.
func NewDetail(api DetailAPI) *Detail {
	return &Detail{api: api}
}

// Load fetches the incident and replaces the local snapshot.
func (d *Detail) Load(ctx context.Context, id string) (*domain.Incident, error) {
	inc, err := d.api.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.state, _ = Reduce(d.state, StatusAdvanced{Incident: inc})
	d.postmortem = nil
	if inc.Postmortem != nil {
		pm := *inc.Postmortem
		d.postmortem = &pm
	}
	return inc, nil
}

// Incident returns the current snapshot, or nil before Load.
func (d *Detail) Incident() *domain.Incident {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Incident
}

// Sections lists the visible detail sections.
func (d *Detail) Sections() []domain.Section {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.Incident == nil {
		return nil
	}
	return d.state.Incident.Status.Sections()
}

// AdvanceLabel is the label of the advance action. Empty when closed.
func (d *Detail) AdvanceLabel() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.Incident == nil {
		return ""
	}
	return d.state.Incident.Status.AdvanceLabel()
}

// Postmortem returns the local postmortem draft.
func (d *Detail) Postmortem() (domain.Postmortem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.postmortem == nil {
		return domain.Postmortem{}, false
	}
	return *d.postmortem, true
}

// SetPostmortem replaces the local postmortem draft without saving it.
func (d *Detail) SetPostmortem(pm domain.Postmortem) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	inc := d.state.Incident
	if inc == nil {
		return ErrNoIncident
	}
	if !inc.Status.PostmortemEditable() {
		return ErrPostmortemReadOnly
	}
	d.postmortem = &pm
	return nil
}

// Advance moves the incident to its next status. At postmortem the local
// draft must be complete: missing fields are returned as FieldErrors under
// "postmortem" and no request is made. On failure the snapshot is unchanged.
func (d *Detail) Advance(ctx context.Context) (*domain.Incident, error) {
	d.mu.Lock()
	inc := d.state.Incident
	if inc == nil {
		d.mu.Unlock()
		return nil, ErrNoIncident
	}
	if d.busy {
		d.mu.Unlock()
		return nil, ErrBusy
	}
	next, ok := inc.Status.Next()
	if !ok {
		d.mu.Unlock()
		return nil, ErrNoFurtherTransition
	}

	var pm *domain.Postmortem
	if inc.Status == domain.StatusPostmortem {
		if c := d.postmortem.Validate(); !c.IsValid {
			d.mu.Unlock()
			return nil, fmt.Errorf("%w: %w", ErrPostmortemMissing,
				domain.FieldErrors{domain.FieldPostmortem: c.MissingFields})
		}
		draft := *d.postmortem
		pm = &draft
	}

	from, id := inc.Status, inc.ID
	d.busy = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	if pm != nil {
		if _, err := d.api.SavePostmortem(ctx, id, *pm); err != nil {
			return nil, err
		}
	}

	updated, err := d.api.PatchIncident(ctx, id, map[string]any{
		domain.FieldStatus: next,
	})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("advance failed",
			"incident_id", id,
			"from", from,
			"to", next,
			"error", err,
		)
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.state, _ = Reduce(d.state, StatusAdvanced{Incident: updated})
	if updated.Postmortem != nil && d.postmortem == nil {
		stored := *updated.Postmortem
		d.postmortem = &stored
	}
	if from == domain.StatusResolved && next == domain.StatusPostmortem && d.postmortem == nil {
		prefilled := domain.PrefillPostmortem(updated)
		d.postmortem = &prefilled
	}
	return updated, nil
}

// SavePostmortem stores the local postmortem draft. It shares the busy flag
// with Advance.
func (d *Detail) SavePostmortem(ctx context.Context) (*PostmortemView, error) {
	d.mu.Lock()
	inc := d.state.Incident
	switch {
	case inc == nil:
		d.mu.Unlock()
		return nil, ErrNoIncident
	case d.busy:
		d.mu.Unlock()
		return nil, ErrBusy
	case !inc.Status.PostmortemEditable():
		d.mu.Unlock()
		return nil, ErrPostmortemReadOnly
	}

	var pm domain.Postmortem
	if d.postmortem != nil {
		pm = *d.postmortem
	}
	id := inc.ID
	d.busy = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	return d.api.SavePostmortem(ctx, id, pm)
}

// AddUpdate posts an update and prepends it to the snapshot.
func (d *Detail) AddUpdate(ctx context.Context, req UpdateRequest) (*domain.Update, error) {
	d.mu.Lock()
	inc := d.state.Incident
	d.mu.Unlock()

	if inc == nil {
		return nil, ErrNoIncident
	}
	if !inc.Status.HasSection(domain.SectionAddUpdate) {
		return nil, ErrIncidentClosed
	}

	update, err := d.api.AddUpdate(ctx, inc.ID, req)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cur := d.state.Incident; cur != nil && cur.ID == inc.ID {
		withUpdate := *cur
		withUpdate.Updates = append([]domain.Update{*update}, cur.Updates...)
		d.state, _ = Reduce(d.state, StatusAdvanced{Incident: &withUpdate})
	}
	return update, nil
}

// MarkDuplicate is offered while an incident is reported but is not wired to
// any backend operation.
func (d *Detail) MarkDuplicate(_ context.Context) error {
	return ErrNotImplemented
}
