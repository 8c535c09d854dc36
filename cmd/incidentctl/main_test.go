package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bissquit/incident-console/internal/identity"
	"github.com/bissquit/incident-console/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runWith points the console at handler and runs the command line.
func runWith(t *testing.T, handler http.HandlerFunc, args ...string) (string, string, error) {
	t.Helper()
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		t.Setenv("INCIDENT_CONSOLE__API_URL", srv.URL+"/api/v1")
	}
	t.Setenv("INCIDENT_CONFIG", "")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_Usage(t *testing.T) {
	_, stderr, err := runWith(t, nil)
	require.ErrorIs(t, err, errUsage)
	for _, name := range commandOrder {
		assert.Contains(t, stderr, name)
	}

	_, stderr, err = runWith(t, nil, "frobnicate")
	require.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)
}

func TestRun_Version(t *testing.T) {
	stdout, _, err := runWith(t, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "incidentctl "))
}

func TestRun_List(t *testing.T) {
	var got query.Filters
	stdout, _, err := runWith(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/incidents/", r.URL.Path)
		var perr error
		got, perr = query.Parse(r.URL.Query())
		assert.NoError(t, perr)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"count":1,"next":null,"previous":null,"results":[
			{"id":"inc-1","title":"Payments down","status":"mitigating","level":"L5","scope":"High","started_at":"2024-03-01T10:00:00Z"}]}`)
	}, "list", "-status", "mitigating", "-status", "reported", "-location", "Berlin,Amsterdam", "-search", "payments")
	require.NoError(t, err)

	assert.Equal(t, []string{"mitigating", "reported"}, got.Status)
	assert.Equal(t, []string{"Amsterdam", "Berlin"}, got.ImpactedLocations)
	assert.Equal(t, "payments", got.Search)

	assert.Contains(t, stdout, "ID")
	assert.Contains(t, stdout, "inc-1")
	assert.Contains(t, stdout, "Payments down")
	assert.Contains(t, stdout, "2024-03-01 10:00 UTC")
	assert.Contains(t, stdout, "1 incident(s)")
}

func TestRun_Show(t *testing.T) {
	stdout, _, err := runWith(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/incidents/inc-1/", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"inc-1","title":"Payments down","status":"resolved","level":"L5","scope":"High",
			"started_at":"2024-03-01T10:00:00Z","detected_at":"2024-03-01T10:15:00Z",
			"updates":[{"id":"u1","content":"rolled back","author":"ops@example.com","update_type":"mitigation","created_at":"2024-03-01T11:00:00Z"}]}`)
	}, "show", "inc-1")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Payments down  [resolved]")
	assert.Contains(t, stdout, "CRITICAL")
	assert.Contains(t, stdout, "after 15m0s")
	assert.Contains(t, stdout, "rolled back")
	assert.Contains(t, stdout, "Next action: Start Postmortem")
}

func TestRun_Show_RequiresID(t *testing.T) {
	_, _, err := runWith(t, nil, "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly one incident id")
}

func TestRun_Create(t *testing.T) {
	var body map[string]any
	form := writeFile(t, "incident.yaml", `
title: Payments down
description: Card payments fail
level: L4
scope: Low
impacted_locations: [Berlin]
`)

	stdout, _, err := runWith(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"inc-9","status":"reported"}`)
	}, "create", "-f", form)
	require.NoError(t, err)

	assert.Equal(t, "Payments down", body["title"])
	assert.Equal(t, "L4", body["level"])
	assert.Contains(t, stdout, "created inc-9 [reported]")
}

func TestRun_Create_LocalValidation(t *testing.T) {
	form := writeFile(t, "incident.yaml", "title: Payments down\nlevel: L5\nscope: High\n")
	called := false

	_, stderr, err := runWith(t, func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusInternalServerError)
	}, "create", "-f", form)
	require.Error(t, err)

	assert.False(t, called)
	assert.Contains(t, stderr, "description: Description is required")
	assert.Contains(t, stderr, "l5_confirmation: Please confirm L5 incident")
}

func TestRun_Update_ClosedIncident(t *testing.T) {
	_, _, err := runWith(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{"id":"inc-1","status":"closed"}`)
	}, "update", "-m", "late note", "inc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incident is closed")
}

func TestRun_Postmortem(t *testing.T) {
	pm := writeFile(t, "pm.yaml", "author: ops@example.com\nkey_learnings: more alerts\n")
	var saved map[string]any

	stdout, _, err := runWith(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"id":"inc-1","status":"postmortem"}`)
		case http.MethodPost:
			assert.Equal(t, "/api/v1/incidents/inc-1/postmortem/", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			_, _ = io.WriteString(w, `{"postmortem":{},"completeness":{"is_valid":false,"missing_fields":["Organisation"]},"editable":true}`)
		}
	}, "postmortem", "-f", pm, "inc-1")
	require.NoError(t, err)

	assert.Equal(t, "ops@example.com", saved["author"])
	assert.Equal(t, "more alerts", saved["key_learnings"])
	assert.Contains(t, stdout, "missing: Organisation")
}

func TestRun_CatalogExport(t *testing.T) {
	stdout, _, err := runWith(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/catalog/export/", r.URL.Path)
		_, _ = io.WriteString(w, "level:\n  - L5\n")
	}, "catalog", "export")
	require.NoError(t, err)
	assert.Equal(t, "level:\n  - L5\n", stdout)
}

func TestRun_Token(t *testing.T) {
	t.Setenv("INCIDENT_AUTH__SECRET_KEY", "test-secret")

	stdout, _, err := runWith(t, nil, "token", "ops@example.com")
	require.NoError(t, err)

	v, err := identity.NewJWTValidator(identity.Config{SecretKey: "test-secret", Issuer: "incident-console"})
	require.NoError(t, err)
	actor, err := v.ValidateToken(context.Background(), strings.TrimSpace(stdout))
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", actor)
}
