package console

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = time.Second
	tick    = time.Millisecond
)

type fakeFormAPI struct {
	calls []domain.IncidentDraft
	err   error
}

func (f *fakeFormAPI) CreateIncident(_ context.Context, draft domain.IncidentDraft) (*domain.Incident, error) {
	f.calls = append(f.calls, draft)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Incident{ID: "new", Title: draft.Title, Status: domain.StatusReported}, nil
}

type failingDraftStore struct{}

func (failingDraftStore) Load(context.Context) (domain.IncidentDraft, error) {
	return domain.IncidentDraft{}, errors.New("cache down")
}

func (failingDraftStore) Save(context.Context, domain.IncidentDraft) error {
	return errors.New("cache down")
}

func (failingDraftStore) Clear(context.Context) error {
	return errors.New("cache down")
}

func fillValidForm(t *testing.T, f *Form) {
	t.Helper()
	ctx := context.Background()
	for _, a := range []Action{
		FieldChanged{Field: "title", Value: "Checkout errors"},
		FieldChanged{Field: "description", Value: "Payments fail"},
		FieldChanged{Field: "level", Value: "L3"},
		FieldChanged{Field: "scope", Value: "Low"},
	} {
		require.NoError(t, f.Dispatch(ctx, a))
	}
}

func TestForm_Submit(t *testing.T) {
	api := &fakeFormAPI{}
	drafts := NewMemoryDraftStore()
	f := NewForm(api, drafts)
	fillValidForm(t, f)

	_, err := drafts.Load(context.Background())
	require.NoError(t, err, "draft is cached while editing")

	inc, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", inc.ID)
	require.Len(t, api.calls, 1)
	assert.Equal(t, "Checkout errors", api.calls[0].Title)

	assert.Equal(t, State{}, f.State())
	_, err = drafts.Load(context.Background())
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestForm_Submit_LocalValidation(t *testing.T) {
	api := &fakeFormAPI{}
	f := NewForm(api, nil)
	require.NoError(t, f.Dispatch(context.Background(), FieldChanged{Field: "level", Value: "L5"}))
	require.NoError(t, f.Dispatch(context.Background(), FieldChanged{Field: "scope", Value: "High"}))

	_, err := f.Submit(context.Background())
	fields, ok := IsFieldErrors(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Title is required"}, fields[domain.FieldTitle])
	assert.Equal(t, []string{"Please confirm L5 incident"}, fields[domain.FieldL5Confirmation])
	assert.Equal(t, []string{"Please acknowledge mitigation policies"}, fields[domain.FieldMitigationPolicyAcknowledgment])

	assert.Empty(t, api.calls, "no request on local validation failure")
	assert.True(t, f.State().Errors.Has(domain.FieldTitle))
}

func TestForm_Submit_DetectedBeforeStarted(t *testing.T) {
	api := &fakeFormAPI{}
	f := NewForm(api, nil)
	fillValidForm(t, f)
	require.NoError(t, f.Dispatch(context.Background(), FieldChanged{Field: "started_at", Value: "2024-03-01T10:00:00Z"}))
	require.NoError(t, f.Dispatch(context.Background(), FieldChanged{Field: "detected_at", Value: "2024-03-01T09:00:00Z"}))

	_, err := f.Submit(context.Background())
	fields, ok := IsFieldErrors(err)
	require.True(t, ok)
	assert.True(t, fields.Has(domain.FieldDetectedAt))
	assert.Empty(t, api.calls)
}

func TestForm_Submit_BackendFieldErrors(t *testing.T) {
	api := &fakeFormAPI{err: domain.FieldErrors{"incident_type": {"Invalid incident_type: Alien"}}}
	drafts := NewMemoryDraftStore()
	f := NewForm(api, drafts)
	fillValidForm(t, f)

	_, err := f.Submit(context.Background())
	require.Error(t, err)

	state := f.State()
	assert.Equal(t, []string{"Invalid incident_type: Alien"}, state.Errors["incident_type"])
	assert.Equal(t, "Checkout errors", state.Draft.Title, "form keeps its values")

	draft, err := drafts.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Checkout errors", draft.Title)

	// editing the field clears its backend error
	require.NoError(t, f.Dispatch(context.Background(), FieldChanged{Field: "incident_type", Value: "Outage"}))
	assert.False(t, f.State().Errors.Has("incident_type"))
}

func TestForm_Restore(t *testing.T) {
	drafts := NewMemoryDraftStore()
	require.NoError(t, drafts.Save(context.Background(), domain.IncidentDraft{
		Title:         "Saved",
		Level:         domain.LevelL4,
		Confirmations: domain.Confirmations{L5Confirmation: true},
	}))

	f := NewForm(&fakeFormAPI{}, drafts)
	require.True(t, f.Restore(context.Background()))

	state := f.State()
	assert.Equal(t, "Saved", state.Draft.Title)
	assert.False(t, state.Draft.L5Confirmation, "gating applies to restored drafts")
}

func TestForm_CacheFailuresAreAdvisory(t *testing.T) {
	api := &fakeFormAPI{}
	f := NewForm(api, failingDraftStore{})

	assert.False(t, f.Restore(context.Background()))
	fillValidForm(t, f)

	inc, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", inc.ID)
}
