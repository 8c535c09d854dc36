// Package mattermost posts incident lifecycle events to a Mattermost incoming
// webhook as a colored attachment.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bissquit/incident-console/internal/notifications"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "Incident Console"

	// maxErrorBody bounds how much of a failed response ends up in an error.
	maxErrorBody = 512
)

// Attachment colors.
const (
	colorCritical = "#D0021B"
	colorOpen     = "#F5A623"
	colorDone     = "#2E7D32"
)

// Config holds Mattermost publisher configuration.
type Config struct {
	WebhookURL        string
	Username          string // default "Incident Console"
	IconURL           string
	Channel           string // overrides the webhook's channel when set
	MentionOnCritical bool
	Timeout           time.Duration
}

// Sender implements notifications.Publisher.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new Mattermost sender.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the publisher name.
func (s *Sender) Name() string {
	return "mattermost"
}

// Publish posts one message per status change.
func (s *Sender) Publish(ctx context.Context, change notifications.StatusChange, msg notifications.Message) error {
	if s.config.WebhookURL == "" {
		return &WebhookError{Message: "webhook URL is empty"}
	}

	body, err := json.Marshal(s.buildPayload(change, msg))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &WebhookError{Message: "send request", Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		ctxlog.FromContext(ctx).Debug("mattermost message sent",
			"webhook", redactWebhook(s.config.WebhookURL),
			"incident_id", change.Incident.ID,
		)
		return nil
	}
	return newStatusError(resp)
}

type webhookPayload struct {
	Text        string       `json:"text,omitempty"`
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Fallback  string  `json:"fallback"`
	Color     string  `json:"color"`
	Title     string  `json:"title"`
	TitleLink string  `json:"title_link,omitempty"`
	Text      string  `json:"text"`
	Fields    []field `json:"fields,omitempty"`
}

type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *Sender) buildPayload(change notifications.StatusChange, msg notifications.Message) webhookPayload {
	inc := change.Incident

	title := msg.Subject
	if title == "" {
		title = inc.Title
	}

	fields := []field{{Title: "Status", Value: change.From + " → " + change.To, Short: true}}
	if inc.Level != "" || inc.Scope != "" {
		fields = append(fields, field{Title: "Classification", Value: inc.Level + " " + inc.Scope, Short: true})
	}
	if inc.IncidentCommander != "" {
		fields = append(fields, field{Title: "Commander", Value: inc.IncidentCommander, Short: true})
	}
	if change.Actor != "" {
		fields = append(fields, field{Title: "Changed by", Value: change.Actor, Short: true})
	}

	p := webhookPayload{
		Channel:  s.config.Channel,
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
		Attachments: []attachment{{
			Fallback:  title,
			Color:     attachmentColor(change),
			Title:     title,
			TitleLink: change.IncidentURL,
			Text:      msg.Body,
			Fields:    fields,
		}},
	}
	if s.config.MentionOnCritical && inc.Critical {
		p.Text = "@channel critical incident update"
	}
	return p
}

func attachmentColor(change notifications.StatusChange) string {
	switch {
	case change.To == "resolved" || change.To == "postmortem" || change.To == "closed":
		return colorDone
	case change.Incident.Critical:
		return colorCritical
	}
	return colorOpen
}

// WebhookError is returned for undeliverable messages. Retryable marks
// failures worth another attempt: network errors, 429 and 5xx.
type WebhookError struct {
	Status    int
	Message   string
	Retryable bool
	Err       error
}

func (e *WebhookError) Error() string {
	msg := "mattermost: " + e.Message
	if e.Status > 0 {
		msg = fmt.Sprintf("mattermost %d: %s", e.Status, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WebhookError) Unwrap() error { return e.Err }

func newStatusError(resp *http.Response) *WebhookError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	e := &WebhookError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		e.Message = "invalid or expired webhook"
	case resp.StatusCode == http.StatusNotFound:
		e.Message = "webhook not found"
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Message = "rate limited"
		e.Retryable = true
	case resp.StatusCode >= http.StatusInternalServerError:
		e.Retryable = true
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// redactWebhook keeps scheme and host; the path holds the webhook secret.
func redactWebhook(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid>"
	}
	return u.Scheme + "://" + u.Host + "/hooks/…"
}
