// Package console is the client decision layer of the incident console: a
// REST client, a typed form reducer and controllers for the list and detail
// views.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/query"
	"github.com/bissquit/incident-console/internal/version"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 15 * time.Second
	requestIDHeader = "X-Request-Id"
)

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL   string // e.g. http://localhost:8080/api/v1
	Token     string // bearer token, optional
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
}

// Page is a page of incidents as returned by the list endpoint. Next and
// Previous are passed through unmodified.
type Page struct {
	Count    int                `json:"count"`
	Next     *string            `json:"next"`
	Previous *string            `json:"previous"`
	Results  []*domain.Incident `json:"results"`
}

// PostmortemView is the stored postmortem with its completeness.
type PostmortemView struct {
	Postmortem   domain.Postmortem   `json:"postmortem"`
	Completeness domain.Completeness `json:"completeness"`
	Editable     bool                `json:"editable"`
}

// UpdateRequest is the body of a new incident update.
type UpdateRequest struct {
	Content    string            `json:"content"`
	Author     string            `json:"author,omitempty"`
	UpdateType domain.UpdateType `json:"update_type,omitempty"`
}

// Client talks to the incidents REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new REST client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
	}
}

// ListIncidents fetches one page of incidents matching the filters.
func (c *Client) ListIncidents(ctx context.Context, f query.Filters) (*Page, error) {
	path := "/incidents/"
	if encoded := query.Encode(f); encoded != "" {
		path += "?" + encoded
	}

	var page Page
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetIncident fetches an incident with its updates.
func (c *Client) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	var inc domain.Incident
	if err := c.do(ctx, http.MethodGet, "/incidents/"+id+"/", nil, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// CreateIncident submits a creation form.
func (c *Client) CreateIncident(ctx context.Context, draft domain.IncidentDraft) (*domain.Incident, error) {
	var inc domain.Incident
	if err := c.do(ctx, http.MethodPost, "/incidents/", newCreateBody(draft), &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// PatchIncident sends a partial update and returns the server representation.
func (c *Client) PatchIncident(ctx context.Context, id string, fields map[string]any) (*domain.Incident, error) {
	var inc domain.Incident
	if err := c.do(ctx, http.MethodPatch, "/incidents/"+id+"/", fields, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// AddUpdate posts an update to an incident.
func (c *Client) AddUpdate(ctx context.Context, id string, req UpdateRequest) (*domain.Update, error) {
	var update domain.Update
	if err := c.do(ctx, http.MethodPost, "/incidents/"+id+"/updates/", req, &update); err != nil {
		return nil, err
	}
	return &update, nil
}

// GetPostmortem fetches the stored postmortem draft.
func (c *Client) GetPostmortem(ctx context.Context, id string) (*PostmortemView, error) {
	var view PostmortemView
	if err := c.do(ctx, http.MethodGet, "/incidents/"+id+"/postmortem/", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SavePostmortem stores a postmortem draft.
func (c *Client) SavePostmortem(ctx context.Context, id string, pm domain.Postmortem) (*PostmortemView, error) {
	var view PostmortemView
	if err := c.do(ctx, http.MethodPost, "/incidents/"+id+"/postmortem/", pm, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ExportCatalog writes the field catalog as YAML to w.
func (c *Client) ExportCatalog(ctx context.Context, w io.Writer) error {
	resp, requestID, err := c.send(ctx, http.MethodGet, "/catalog/export/", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return c.decodeError(ctx, resp, requestID)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return &TransportError{Op: "read catalog", Err: err}
	}
	return nil
}

// createBody omits unset timestamps so the backend reports them as missing.
type createBody struct {
	domain.IncidentDraft
	StartedAt  *time.Time `json:"started_at,omitempty"`
	DetectedAt *time.Time `json:"detected_at,omitempty"`
}

func newCreateBody(d domain.IncidentDraft) createBody {
	body := createBody{IncidentDraft: d}
	if !d.StartedAt.IsZero() {
		body.StartedAt = &d.StartedAt
	}
	if !d.DetectedAt.IsZero() {
		body.DetectedAt = &d.DetectedAt
	}
	return body
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	resp, requestID, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return c.decodeError(ctx, resp, requestID)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: "decode response", Err: err}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", &TransportError{Op: "rate limit", Err: err}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("request failed",
			"method", method,
			"path", path,
			"request_id", requestID,
			"error", err,
		)
		return nil, requestID, &TransportError{Op: method + " " + path, Err: err}
	}
	return resp, requestID, nil
}

// decodeError turns a non-2xx response into domain.FieldErrors for 400 bodies
// with a field map, and into *RequestError otherwise.
func (c *Client) decodeError(ctx context.Context, resp *http.Response, requestID string) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read error response", Err: err}
	}

	ctxlog.FromContext(ctx).Warn("request rejected",
		"status", resp.StatusCode,
		"request_id", requestID,
	)

	if resp.StatusCode == http.StatusBadRequest {
		if fields, ok := parseFieldErrors(data); ok {
			return fields
		}
	}

	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &detail); err != nil || detail.Detail == "" {
		detail.Detail = strings.TrimSpace(string(data))
	}
	return &RequestError{StatusCode: resp.StatusCode, Detail: detail.Detail, RequestID: requestID}
}

// parseFieldErrors accepts {"field": ["msg", ...]} and {"field": "msg"}.
func parseFieldErrors(data []byte) (domain.FieldErrors, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		return nil, false
	}
	if _, ok := raw["detail"]; ok && len(raw) == 1 {
		return nil, false
	}

	fields := domain.FieldErrors{}
	for name, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			for _, msg := range list {
				fields.Add(name, msg)
			}
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			fields.Add(name, single)
			continue
		}
		return nil, false
	}
	return fields, true
}

// IsFieldErrors reports whether err carries field errors.
func IsFieldErrors(err error) (domain.FieldErrors, bool) {
	var fields domain.FieldErrors
	if errors.As(err, &fields) {
		return fields, true
	}
	return nil, false
}
