package mattermost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/incident-console/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChange(to string, critical bool) notifications.StatusChange {
	return notifications.StatusChange{
		EventID: "evt-1",
		Type:    notifications.EventStatusChanged,
		Actor:   "ops@example.com",
		Incident: notifications.IncidentData{
			ID:                "inc-1",
			Title:             "Checkout errors",
			Level:             "L5",
			Scope:             "High",
			IncidentCommander: "ic@example.com",
			Critical:          critical,
		},
		From:        "reported",
		To:          to,
		IncidentURL: "https://console.example.com/incidents/inc-1",
	}
}

func webhook(t *testing.T, status int, got *webhookPayload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("  details  "))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewSender_Defaults(t *testing.T) {
	sender := NewSender(Config{})

	assert.Equal(t, defaultUsername, sender.config.Username)
	assert.Equal(t, defaultTimeout, sender.httpClient.Timeout)
	assert.Equal(t, "mattermost", sender.Name())
}

func TestSender_Publish(t *testing.T) {
	var got webhookPayload
	srv := webhook(t, http.StatusOK, &got)

	sender := NewSender(Config{WebhookURL: srv.URL, Channel: "incidents", MentionOnCritical: true})
	err := sender.Publish(context.Background(), testChange("mitigating", true), notifications.Message{
		Subject: "[Mitigating] Checkout errors",
		Body:    "Incident moved to mitigating",
	})
	require.NoError(t, err)

	assert.Equal(t, "incidents", got.Channel)
	assert.Equal(t, defaultUsername, got.Username)
	assert.Equal(t, "@channel critical incident update", got.Text)
	require.Len(t, got.Attachments, 1)

	a := got.Attachments[0]
	assert.Equal(t, "[Mitigating] Checkout errors", a.Title)
	assert.Equal(t, "https://console.example.com/incidents/inc-1", a.TitleLink)
	assert.Equal(t, "Incident moved to mitigating", a.Text)
	assert.Equal(t, colorCritical, a.Color)
	assert.Equal(t, []field{
		{Title: "Status", Value: "reported → mitigating", Short: true},
		{Title: "Classification", Value: "L5 High", Short: true},
		{Title: "Commander", Value: "ic@example.com", Short: true},
		{Title: "Changed by", Value: "ops@example.com", Short: true},
	}, a.Fields)
}

func TestSender_Publish_NoMentionWhenDisabled(t *testing.T) {
	var got webhookPayload
	srv := webhook(t, http.StatusOK, &got)

	sender := NewSender(Config{WebhookURL: srv.URL})
	require.NoError(t, sender.Publish(context.Background(), testChange("mitigating", true), notifications.Message{Body: "b"}))

	assert.Empty(t, got.Text)
	assert.Equal(t, "Checkout errors", got.Attachments[0].Title)
}

func TestAttachmentColor(t *testing.T) {
	assert.Equal(t, colorOpen, attachmentColor(testChange("mitigating", false)))
	assert.Equal(t, colorCritical, attachmentColor(testChange("mitigating", true)))
	assert.Equal(t, colorDone, attachmentColor(testChange("resolved", true)))
	assert.Equal(t, colorDone, attachmentColor(testChange("closed", false)))
}

func TestSender_Publish_EmptyWebhook(t *testing.T) {
	err := NewSender(Config{}).Publish(context.Background(), testChange("mitigating", false), notifications.Message{})

	var werr *WebhookError
	require.ErrorAs(t, err, &werr)
	assert.False(t, werr.Retryable)
}

func TestSender_Publish_ErrorStatuses(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		message   string
	}{
		{http.StatusBadRequest, false, "details"},
		{http.StatusUnauthorized, false, "invalid or expired webhook"},
		{http.StatusForbidden, false, "invalid or expired webhook"},
		{http.StatusNotFound, false, "webhook not found"},
		{http.StatusTooManyRequests, true, "rate limited"},
		{http.StatusBadGateway, true, "details"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := webhook(t, tt.status, nil)

			err := NewSender(Config{WebhookURL: srv.URL}).Publish(
				context.Background(), testChange("mitigating", false), notifications.Message{Body: "b"})

			var werr *WebhookError
			require.ErrorAs(t, err, &werr)
			assert.Equal(t, tt.status, werr.Status)
			assert.Equal(t, tt.retryable, werr.Retryable)
			assert.Equal(t, tt.message, werr.Message)
		})
	}
}

func TestSender_Publish_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewSender(Config{WebhookURL: url, Timeout: time.Second}).Publish(
		context.Background(), testChange("mitigating", false), notifications.Message{})

	var werr *WebhookError
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.Retryable)
	assert.NotNil(t, errors.Unwrap(werr))
}

func TestSender_Publish_ContextCancelled(t *testing.T) {
	srv := webhook(t, http.StatusOK, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSender(Config{WebhookURL: srv.URL}).Publish(ctx, testChange("mitigating", false), notifications.Message{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRedactWebhook(t *testing.T) {
	assert.Equal(t, "https://chat.example.com/hooks/…", redactWebhook("https://chat.example.com/hooks/abcdef123456"))
	assert.Equal(t, "<invalid>", redactWebhook("not a url"))
}

func TestWebhookError_Error(t *testing.T) {
	assert.Equal(t, "mattermost 404: webhook not found", (&WebhookError{Status: 404, Message: "webhook not found"}).Error())
	assert.Equal(t, "mattermost: send request: boom", (&WebhookError{Message: "send request", Err: errors.New("boom")}).Error())
}
