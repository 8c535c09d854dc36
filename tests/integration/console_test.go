//go:build integration

package integration

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/bissquit/incident-console/internal/console"
	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsoleClient() *console.Client {
	return console.NewClient(console.ClientConfig{
		BaseURL: testServer.URL + "/api/v1",
		Timeout: 10 * time.Second,
	})
}

func TestConsole_CreateAndAdvanceToClosed(t *testing.T) {
	ctx := context.Background()
	client := newConsoleClient()

	form := console.NewForm(client, console.NewMemoryDraftStore())
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, a := range []console.FieldChanged{
		{Field: "title", Value: "Console flow"},
		{Field: "description", Value: "Created through the console"},
		{Field: "level", Value: "L5"},
		{Field: "scope", Value: "Low"},
		{Field: "l5_confirmation", Value: true},
		{Field: "started_at", Value: started},
		{Field: "detected_at", Value: started.Add(10 * time.Minute)},
		{Field: "incident_commander", Value: "commander@example.com"},
		{Field: "reporting_org", Value: "Payments"},
	} {
		require.NoError(t, form.Dispatch(ctx, a))
	}

	created, err := form.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReported, created.Status)

	detail := console.NewDetail(client)
	_, err = detail.Load(ctx, created.ID)
	require.NoError(t, err)

	for _, want := range []domain.Status{domain.StatusMitigating, domain.StatusResolved, domain.StatusPostmortem} {
		inc, err := detail.Advance(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, inc.Status)
	}

	pm, ok := detail.Postmortem()
	require.True(t, ok)
	assert.Equal(t, "2024-03-01T10:00:00Z", pm.StartedAt)

	_, err = detail.Advance(ctx)
	require.ErrorIs(t, err, console.ErrPostmortemMissing)

	pm.Author = "author@example.com"
	pm.Contributors = "ops@example.com"
	pm.Organisation = "Payments"
	pm.AccountableTeam = "Checkout"
	pm.Reviewers = "reviewer@example.com"
	pm.BarRaiser = "raiser@example.com"
	pm.ExecutiveSummary = "summary"
	pm.DetailedSummary = "details"
	pm.KeyLearnings = "learnings"
	pm.MitigationNotes = "rolled back"
	pm.MitigatedAt = "2024-03-01T11:00:00Z"
	pm.BusinessImpact = "orders"
	pm.CustomerImpact = "payments"
	pm.StakeholderImpact = "none"
	require.NoError(t, detail.SetPostmortem(pm))

	closed, err := detail.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Empty(t, detail.AdvanceLabel())

	_, err = detail.AddUpdate(ctx, console.UpdateRequest{Content: "late", Author: "ops@example.com"})
	require.ErrorIs(t, err, console.ErrIncidentClosed)
}

func TestConsole_SubmitBackendFieldErrors(t *testing.T) {
	ctx := context.Background()
	form := console.NewForm(newConsoleClient(), console.NewMemoryDraftStore())

	require.NoError(t, form.Dispatch(ctx, console.FieldChanged{Field: "title", Value: "Missing times"}))
	require.NoError(t, form.Dispatch(ctx, console.FieldChanged{Field: "description", Value: "No timestamps"}))

	_, err := form.Submit(ctx)
	require.Error(t, err)

	fields, ok := console.IsFieldErrors(err)
	require.True(t, ok)
	assert.True(t, fields.Has("started_at"))
	assert.True(t, fields.Has("detected_at"))
	assert.True(t, form.State().Errors.Has("incident_commander"))
	assert.Equal(t, "Missing times", form.State().Draft.Title)
}

func TestConsole_ListFilters(t *testing.T) {
	ctx := context.Background()
	created := createIncident(t, newTestClient(t), map[string]any{"impacted_parties": []string{"Merchants"}})

	list := console.NewList(newConsoleClient(), query.Filters{})
	require.NoError(t, list.Dispatch(console.SearchChanged{Search: created.Title}))
	require.NoError(t, list.Dispatch(console.FilterChanged{Param: query.ParamImpactedParties, Values: []string{"Merchants"}}))

	page, err := list.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	assert.Equal(t, created.ID, page.Results[0].ID)
}

func TestConsole_ExportCatalog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newConsoleClient().ExportCatalog(context.Background(), &buf))
	assert.Contains(t, buf.String(), "L5")
}
