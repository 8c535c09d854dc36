package incidents

import (
	"context"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/query"
)

// MutateFunc changes an incident loaded under a row lock. Returning an error
// aborts the write.
type MutateFunc func(inc *domain.Incident) error

// Repository defines the interface for incident storage.
type Repository interface {
	Create(ctx context.Context, inc *domain.Incident) error
	Get(ctx context.Context, id string) (*domain.Incident, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.Incident, int, error)
	Statistics(ctx context.Context, filter query.Filters) (*Statistics, error)

	// Update locks the incident row, applies fn and persists the result in one
	// transaction, then returns the stored incident.
	Update(ctx context.Context, id string, fn MutateFunc) (*domain.Incident, error)

	CreateUpdate(ctx context.Context, update *domain.Update) error
	ListUpdates(ctx context.Context, incidentID string) ([]domain.Update, error)

	CreateDocument(ctx context.Context, incidentID string, doc *domain.Document) error
}

// ListFilter holds filter and paging options for listing incidents.
type ListFilter struct {
	query.Filters
	Limit  int
	Offset int
}

// Statistics aggregates incidents matching a filter.
type Statistics struct {
	TotalIncidents    int            `json:"total_incidents"`
	ByLevel           map[string]int `json:"by_level"`
	ByScope           map[string]int `json:"by_scope"`
	ByStatus          map[string]int `json:"by_status"`
	L5HighIncidents   int            `json:"l5_high_incidents"`
	CriticalIncidents int            `json:"critical_incidents"`
}
