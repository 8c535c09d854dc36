package console

import (
	"context"
	"errors"
	"sync"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
)

// FormAPI is the part of the REST API the creation form needs.
type FormAPI interface {
	CreateIncident(ctx context.Context, draft domain.IncidentDraft) (*domain.Incident, error)
}

// Form drives the incident creation form and keeps its draft cached.
type Form struct {
	api    FormAPI
	drafts DraftStore

	mu    sync.Mutex
	state State
}

// NewForm creates a form controller. drafts may be nil.
func NewForm(api FormAPI, drafts DraftStore) *Form {
	return &Form{api: api, drafts: drafts}
}

// Restore loads the cached draft, if any. A failing cache is logged and
// otherwise ignored.
func (f *Form) Restore(ctx context.Context) bool {
	if f.drafts == nil {
		return false
	}

	draft, err := f.drafts.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrDraftNotFound) {
			ctxlog.FromContext(ctx).Warn("failed to load draft", "error", err)
		}
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state, _ = Reduce(f.state, DraftLoaded{Draft: draft})
	return true
}

// Dispatch applies a form action and caches the resulting draft.
func (f *Form) Dispatch(ctx context.Context, a Action) error {
	f.mu.Lock()
	next, err := Reduce(f.state, a)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = next
	draft := next.Draft
	f.mu.Unlock()

	f.saveDraft(ctx, draft)
	return nil
}

// State returns the current form state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Submit validates the form locally and creates the incident. Local
// validation failures are returned as FieldErrors and no request is made;
// field errors from the backend are merged into the form state. On success
// the form and the cached draft are cleared.
func (f *Form) Submit(ctx context.Context) (*domain.Incident, error) {
	f.mu.Lock()
	draft := f.state.Draft
	if errs := domain.ValidateDraft(draft); len(errs) > 0 {
		f.state.Errors = errs
		f.mu.Unlock()
		return nil, errs
	}
	f.mu.Unlock()

	inc, err := f.api.CreateIncident(ctx, draft)
	if err != nil {
		if fieldErrs, ok := IsFieldErrors(err); ok {
			f.mu.Lock()
			merged := copyErrors(f.state.Errors)
			if merged == nil {
				merged = domain.FieldErrors{}
			}
			merged.Merge(fieldErrs)
			f.state.Errors = merged
			f.mu.Unlock()
		}
		f.saveDraft(ctx, draft)
		return nil, err
	}

	f.mu.Lock()
	f.state = State{}
	f.mu.Unlock()

	if f.drafts != nil {
		if err := f.drafts.Clear(ctx); err != nil {
			ctxlog.FromContext(ctx).Warn("failed to clear draft", "error", err)
		}
	}
	return inc, nil
}

func (f *Form) saveDraft(ctx context.Context, draft domain.IncidentDraft) {
	if f.drafts == nil {
		return
	}
	if err := f.drafts.Save(ctx, draft); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to save draft", "error", err)
	}
}
