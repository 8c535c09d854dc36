// Package testutil holds the HTTP client, contract checker and containers
// used by the integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

// maxReportedBody bounds the response excerpt in contract failures.
const maxReportedBody = 300

// Client sends JSON requests for one test and fails it on transport errors.
// With a contract, every exchange is checked against the OpenAPI document.
type Client struct {
	t          *testing.T
	baseURL    string
	token      string
	contract   *Contract
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithContract checks every exchange against c.
func WithContract(c *Contract) Option {
	return func(cl *Client) { cl.contract = c }
}

// WithToken sends a bearer token.
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// NewClient returns a client bound to t.
func NewClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c := &Client{t: t, baseURL: strings.TrimRight(baseURL, "/"), httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is a fully read response.
type Response struct {
	t          *testing.T
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v and fails the test on error.
func (r *Response) JSON(v any) {
	r.t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		r.t.Fatalf("decode response (%d %s): %v", r.StatusCode, r.String(), err)
	}
}

// String returns the body as text, for assertion messages.
func (r *Response) String() string {
	return string(r.Body)
}

// Get sends a GET request.
func (c *Client) Get(path string) *Response {
	c.t.Helper()
	return c.Do(http.MethodGet, path, nil)
}

// Post sends body as JSON.
func (c *Client) Post(path string, body any) *Response {
	c.t.Helper()
	return c.Do(http.MethodPost, path, body)
}

// Patch sends body as JSON.
func (c *Client) Patch(path string, body any) *Response {
	c.t.Helper()
	return c.Do(http.MethodPatch, path, body)
}

// Do sends a request with an optional JSON body.
func (c *Client) Do(method, path string, body any) *Response {
	c.t.Helper()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			c.t.Fatalf("marshal %s %s body: %v", method, path, err)
		}
	}

	req, err := http.NewRequestWithContext(c.t.Context(), method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("create request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read %s %s response: %v", method, path, err)
	}

	if c.contract != nil {
		if err := c.contract.Check(c.t.Context(), req, payload, resp.StatusCode, resp.Header, respBody); err != nil {
			c.t.Errorf("contract violation for %s %s: %v\nbody: %s", method, path, err, excerpt(respBody))
		}
	}

	return &Response{t: c.t, StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxReportedBody {
		return s[:maxReportedBody] + "..."
	}
	return s
}
