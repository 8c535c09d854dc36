package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPublisher records published events.
type mockPublisher struct {
	name     string
	changes  []StatusChange
	messages []Message
	err      error
}

func (m *mockPublisher) Name() string { return m.name }

func (m *mockPublisher) Publish(_ context.Context, change StatusChange, msg Message) error {
	m.changes = append(m.changes, change)
	m.messages = append(m.messages, msg)
	return m.err
}

func testIncident() *domain.Incident {
	resolved := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	return &domain.Incident{
		ID:                     "inc-1",
		Title:                  "Checkout errors",
		Level:                  domain.LevelL5,
		Scope:                  domain.ScopeHigh,
		Status:                 domain.StatusResolved,
		IncidentCommander:      "ic@example.com",
		SendEmailNotifications: true,
		StartedAt:              time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		ResolvedAt:             &resolved,
	}
}

func TestNotifier_NotifyStatusChanged(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	first := &mockPublisher{name: "first"}
	second := &mockPublisher{name: "second"}
	n := NewNotifier(renderer, NewDispatcher(first, second), "https://console.example.com/")
	n.now = func() time.Time { return time.Date(2024, 3, 1, 12, 31, 0, 0, time.UTC) }

	err = n.NotifyStatusChanged(context.Background(), testIncident(), domain.StatusMitigating, "ic@example.com")
	require.NoError(t, err)

	require.Len(t, first.changes, 1)
	require.Len(t, second.changes, 1)
	assert.Equal(t, first.changes[0], second.changes[0])

	change := first.changes[0]
	_, err = uuid.Parse(change.EventID)
	assert.NoError(t, err)
	assert.Equal(t, EventStatusChanged, change.Type)
	assert.Equal(t, "mitigating", change.From)
	assert.Equal(t, "resolved", change.To)
	assert.Equal(t, "ic@example.com", change.Actor)
	assert.True(t, change.Incident.Critical)
	assert.True(t, change.Incident.SendEmailNotifications)
	assert.Equal(t, "https://console.example.com/incidents/inc-1", change.IncidentURL)

	msg := first.messages[0]
	assert.Equal(t, "[Critical incident Resolved] Checkout errors", msg.Subject)
	assert.Contains(t, msg.Body, "Mitigating → **Resolved**")
	assert.Contains(t, msg.Body, "Level: L5 / High")
	assert.Contains(t, msg.Body, "after 2h 30m")
	assert.Contains(t, msg.Body, "(https://console.example.com/incidents/inc-1)")
}

func TestNotifier_PublisherFailureDoesNotStopOthers(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	failing := &mockPublisher{name: "failing", err: errors.New("boom")}
	ok := &mockPublisher{name: "ok"}
	n := NewNotifier(renderer, NewDispatcher(failing, ok), "")

	err = n.NotifyStatusChanged(context.Background(), testIncident(), domain.StatusMitigating, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.Len(t, ok.changes, 1)
	assert.Empty(t, ok.changes[0].IncidentURL)
}

func TestDispatcher_Publishers(t *testing.T) {
	d := NewDispatcher(LogPublisher{}, &mockPublisher{name: "kafka"})
	assert.Equal(t, []string{"log", "kafka"}, d.Publishers())
	assert.NoError(t, d.Dispatch(context.Background(), StatusChange{}, Message{}))
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render(StatusChange{
		Type: EventStatusChanged,
		From: "reported",
		To:   "mitigating",
		Incident: IncidentData{
			Title:     "Login slow",
			StartedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "[Incident Mitigating] Login slow", msg.Subject)
	assert.Contains(t, msg.Body, "⚪ **Login slow**")
	assert.Contains(t, msg.Body, "Started: Mar 1, 2024 10:00 UTC")
	assert.NotContains(t, msg.Body, "Level:")
	assert.NotContains(t, msg.Body, "Resolved:")
}

func TestRenderer_UnknownEventType(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(StatusChange{Type: "incident.deleted"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template not found")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}
