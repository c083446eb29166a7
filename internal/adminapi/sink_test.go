package adminapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ledamatch/internal/crossmatch"
)

// newTestServer stands up a fake admin API: it answers /auth/token once
// with a long-lived token, and records every body posted to
// /v1/set_crossmatch_results for the test to assert against.
func newTestServer(t *testing.T, recorded *[]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		expires := time.Now().Add(time.Hour)
		fmt.Fprintf(w, `{"data":{"token":"test-token","expires_at":%q}}`, expires.Format(time.RFC3339))
	})
	mux.HandleFunc("/v1/set_crossmatch_results", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		*recorded = body
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func ptr64(v int64) *int64 { return &v }

func TestSetCrossmatchResults_GroupsByStatus(t *testing.T) {
	var recorded []byte
	srv := newTestServer(t, &recorded)
	c := NewClient(Config{BaseURL: srv.URL, AgentID: "agent-1", APIKey: "key"})

	verdicts := []crossmatch.Verdict{
		{RecordID: "r1", Status: crossmatch.StatusNew, Triage: crossmatch.TriageResolved},
		{RecordID: "r2", Status: crossmatch.StatusExisting, Triage: crossmatch.TriageResolved, MatchedPGC: ptr64(42)},
		{RecordID: "r3", Status: crossmatch.StatusExisting, Triage: crossmatch.TriagePending, MatchedPGC: ptr64(7), Reason: crossmatch.ReasonPGCMismatch},
		{RecordID: "r4", Status: crossmatch.StatusColliding, Triage: crossmatch.TriagePending, CollidingPGCs: []int64{9, 3}, Reason: crossmatch.ReasonMultipleObjectsMatched},
	}

	err := c.SetCrossmatchResults(t.Context(), verdicts)
	require.NoError(t, err)
	require.NotNil(t, recorded)

	var got setCrossmatchResultsRequest
	require.NoError(t, json.Unmarshal(recorded, &got))

	require.NotNil(t, got.Statuses.New)
	assert.Equal(t, []string{"r1"}, got.Statuses.New.RecordIDs)
	assert.Equal(t, []string{"resolved"}, got.Statuses.New.Triage)

	require.NotNil(t, got.Statuses.Existing)
	assert.Equal(t, []string{"r2", "r3"}, got.Statuses.Existing.RecordIDs)
	assert.Equal(t, []int64{42, 7}, got.Statuses.Existing.PGCs)
	assert.Equal(t, []string{"resolved", "pending"}, got.Statuses.Existing.Triage)

	require.NotNil(t, got.Statuses.Collided)
	assert.Equal(t, []string{"r4"}, got.Statuses.Collided.RecordIDs)
	// possible_matches must come out sorted ascending regardless of
	// CollidingPGCs' encounter order.
	assert.Equal(t, [][]int64{{3, 9}}, got.Statuses.Collided.PossibleMatches)
}

func TestSetCrossmatchResults_SkipsCallWhenNoPayload(t *testing.T) {
	var recorded []byte
	srv := newTestServer(t, &recorded)
	c := NewClient(Config{BaseURL: srv.URL, AgentID: "agent-1", APIKey: "key"})

	// A colliding verdict with no colliding PGCs and an existing verdict
	// with no matched PGC are both malformed enough to be skipped rather
	// than sent; with no other verdicts, the whole call should be elided.
	verdicts := []crossmatch.Verdict{
		{RecordID: "r1", Status: crossmatch.StatusExisting, Triage: crossmatch.TriageResolved},
		{RecordID: "r2", Status: crossmatch.StatusColliding, Triage: crossmatch.TriagePending},
	}

	err := c.SetCrossmatchResults(t.Context(), verdicts)
	require.NoError(t, err)
	assert.Nil(t, recorded, "expected no HTTP call when every sub-payload is empty")
}

func TestSetCrossmatchResults_OnlyNewRecords(t *testing.T) {
	var recorded []byte
	srv := newTestServer(t, &recorded)
	c := NewClient(Config{BaseURL: srv.URL, AgentID: "agent-1", APIKey: "key"})

	verdicts := []crossmatch.Verdict{
		{RecordID: "r1", Status: crossmatch.StatusNew, Triage: crossmatch.TriageResolved},
		{RecordID: "r2", Status: crossmatch.StatusNew, Triage: crossmatch.TriageResolved},
	}

	err := c.SetCrossmatchResults(t.Context(), verdicts)
	require.NoError(t, err)
	require.NotNil(t, recorded)

	var got setCrossmatchResultsRequest
	require.NoError(t, json.Unmarshal(recorded, &got))
	require.NotNil(t, got.Statuses.New)
	assert.Nil(t, got.Statuses.Existing)
	assert.Nil(t, got.Statuses.Collided)
	assert.Equal(t, []string{"r1", "r2"}, got.Statuses.New.RecordIDs)
}
