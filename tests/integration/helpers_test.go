//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// validIncident returns a creation body that passes every backend check.
// Each call gets a unique title so list assertions can search for it.
func validIncident(overrides map[string]any) map[string]any {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	body := map[string]any{
		"title":              "Checkout errors " + uuid.NewString()[:8],
		"description":        "Card payments fail for a subset of customers",
		"level":              "L3",
		"scope":              "Low",
		"started_at":         started.Format(time.RFC3339),
		"detected_at":        started.Add(15 * time.Minute).Format(time.RFC3339),
		"incident_commander": "commander@example.com",
		"reporting_org":      "Payments",
		"impacted_locations": []string{"Berlin", "Amsterdam"},
	}
	for k, v := range overrides {
		body[k] = v
	}
	return body
}

// createIncident creates an incident and returns the server representation.
func createIncident(t *testing.T, client *testutil.Client, overrides map[string]any) domain.Incident {
	t.Helper()

	resp := client.Post("/api/v1/incidents/", validIncident(overrides))
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.String())

	var inc domain.Incident
	resp.JSON(&inc)
	require.NotEmpty(t, inc.ID)
	return inc
}

// advance moves an incident forward by one status.
func advance(t *testing.T, client *testutil.Client, id string, to domain.Status) domain.Incident {
	t.Helper()

	resp := client.Patch("/api/v1/incidents/"+id+"/", map[string]any{"status": to})
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.String())

	var inc domain.Incident
	resp.JSON(&inc)
	require.Equal(t, to, inc.Status)
	return inc
}

func completePostmortem() map[string]any {
	return map[string]any{
		"author":             "author@example.com",
		"contributors":       "ops@example.com",
		"organisation":       "Payments",
		"accountable_team":   "Checkout",
		"reviewers":          "reviewer@example.com",
		"bar_raiser":         "raiser@example.com",
		"executive_summary":  "Checkout was down",
		"detailed_summary":   "A bad deploy broke card payments",
		"key_learnings":      "Canary deploys",
		"mitigation_notes":   "Rolled back",
		"started_at":         "2024-03-01T10:00:00Z",
		"detected_at":        "2024-03-01T10:15:00Z",
		"mitigated_at":       "2024-03-01T11:00:00Z",
		"resolved_at":        "2024-03-01T12:00:00Z",
		"business_impact":    "Lost orders",
		"customer_impact":    "Failed payments",
		"stakeholder_impact": "None",
	}
}
