package console

import (
	"context"
	"sync"

	"github.com/bissquit/incident-console/internal/query"
)

// ListAPI is the part of the REST API the list view needs.
type ListAPI interface {
	ListIncidents(ctx context.Context, f query.Filters) (*Page, error)
}

// List drives the incident list view. Each refresh is tagged with a
// generation; a response from an older generation is dropped with
// ErrStaleResponse so the newest request always wins.
type List struct {
	api ListAPI

	mu         sync.Mutex
	state      State
	generation uint64
	page       *Page
}

// NewList creates a list controller with the given initial filters.
func NewList(api ListAPI, filters query.Filters) *List {
	return &List{
		api:   api,
		state: State{Filters: filters},
	}
}

// Dispatch applies a filter, search, ordering or page action.
func (l *List) Dispatch(a Action) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := Reduce(l.state, a)
	if err != nil {
		return err
	}
	l.state = next
	l.generation++
	return nil
}

// Filters returns the current filters.
func (l *List) Filters() query.Filters {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Filters
}

// Page returns the last accepted page, or nil.
func (l *List) Page() *Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.page
}

// Refresh fetches the page for the current filters.
func (l *List) Refresh(ctx context.Context) (*Page, error) {
	l.mu.Lock()
	l.generation++
	gen := l.generation
	filters := l.state.Filters
	l.mu.Unlock()

	page, err := l.api.ListIncidents(ctx, filters)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		return nil, ErrStaleResponse
	}
	if err != nil {
		return nil, err
	}
	l.page = page
	return page, nil
}
