package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/config"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/workflow"
)

// testEnv bundles a server with a seeded user and API key.
type testEnv struct {
	server *Server
	db     *db.DB
	ts     *httptest.Server
	apiKey string
	userID string
}

// engineScript is the SSE stream every fake engine run returns.
const engineScript = "event: block.start\n" +
	"data: {\"blockId\":\"start\",\"blockType\":\"starter\"}\n\n" +
	"event: block.end\n" +
	"data: {\"blockId\":\"start\",\"success\":true,\"durationMs\":3}\n\n" +
	"event: run.complete\n" +
	"data: {\"output\":{\"done\":true}}\n\n"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	d := db.NewTestDB(t)

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/cancel") {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, engineScript)
	}))
	t.Cleanup(engine.Close)

	plat := config.Default()
	plat.Engine.Endpoint = engine.URL
	plat.Copilot.Endpoint = engine.URL

	srv := New(&Config{
		DB:       d,
		Platform: plat,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	// Seed a user with an API key.
	userID := "user-1"
	db.SeedUser(t, d, userID)
	key, err := auth.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := d.SaveAPIKey(&db.APIKey{
		ID: uuid.New().String(), UserID: userID, Name: "test", KeyHash: auth.HashKey(key),
	}); err != nil {
		t.Fatalf("save api key: %v", err)
	}

	return &testEnv{server: srv, db: d, ts: ts, apiKey: key, userID: userID}
}

// request performs an authenticated request and decodes the JSON response
// into out (skipped when out is nil).
func (e *testEnv) request(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

// seedWorkflow creates a workspace and a workflow with a starter block
// through the API.
func (e *testEnv) seedWorkflow(t *testing.T) (workspaceID, workflowID string) {
	t.Helper()

	var ws workspaceResponse
	resp := e.request(t, http.MethodPost, "/api/workspaces", map[string]string{"name": "Test"}, &ws)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create workspace status = %d", resp.StatusCode)
	}

	var wf workflowResponse
	resp = e.request(t, http.MethodPost, "/api/workspaces/"+ws.ID+"/workflows",
		map[string]string{"name": "Pipeline"}, &wf)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create workflow status = %d", resp.StatusCode)
	}

	state := workflow.NewState()
	state.Blocks["start"] = &workflow.Block{
		ID: "start", Type: workflow.BlockTypeStarter, Name: "Start", Enabled: true,
	}
	resp = e.request(t, http.MethodPut, "/api/workflows/"+wf.ID+"/state", state, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save state status = %d", resp.StatusCode)
	}
	return ws.ID, wf.ID
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(e.ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(e.ts.URL + "/api/workspaces")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no-key status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/api/workspaces", nil)
	req.Header.Set("X-API-Key", "flowd_bogus")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad-key status = %d, want 401", resp2.StatusCode)
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	e := newTestEnv(t)

	var ws workspaceResponse
	e.request(t, http.MethodPost, "/api/workspaces", map[string]string{"name": "Team"}, &ws)
	if ws.OwnerID != e.userID {
		t.Errorf("owner = %q, want %q", ws.OwnerID, e.userID)
	}

	var list []workspaceResponse
	e.request(t, http.MethodGet, "/api/workspaces", nil, &list)
	if len(list) != 1 {
		t.Fatalf("list = %d workspaces, want 1", len(list))
	}

	var members []memberResponse
	e.request(t, http.MethodGet, "/api/workspaces/"+ws.ID+"/members", nil, &members)
	if len(members) != 1 || members[0].Role != "admin" {
		t.Errorf("members = %+v", members)
	}

	// Invite another user as writer.
	db.SeedUser(t, e.db, "user-2")
	resp := e.request(t, http.MethodPut, "/api/workspaces/"+ws.ID+"/members/user-2",
		map[string]string{"role": "write"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("upsert member status = %d", resp.StatusCode)
	}

	// The owner cannot be demoted.
	resp = e.request(t, http.MethodPut, "/api/workspaces/"+ws.ID+"/members/"+e.userID,
		map[string]string{"role": "read"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("demote owner status = %d, want 400", resp.StatusCode)
	}

	resp = e.request(t, http.MethodDelete, "/api/workspaces/"+ws.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
}

func TestWorkflowStateRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	_, wfID := e.seedWorkflow(t)

	var state workflow.State
	e.request(t, http.MethodGet, "/api/workflows/"+wfID+"/state", nil, &state)
	if _, ok := state.Blocks["start"]; !ok {
		t.Fatalf("state missing starter: %+v", state.Blocks)
	}

	// Saving an invalid graph is rejected whole.
	bad := workflow.NewState()
	bad.Blocks["a"] = &workflow.Block{ID: "a", Type: workflow.BlockTypeFunction, Enabled: true}
	resp := e.request(t, http.MethodPut, "/api/workflows/"+wfID+"/state", bad, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid state status = %d, want 400", resp.StatusCode)
	}

	// The stored state is untouched by the failed save.
	var after workflow.State
	e.request(t, http.MethodGet, "/api/workflows/"+wfID+"/state", nil, &after)
	if _, ok := after.Blocks["start"]; !ok {
		t.Error("stored state was clobbered by rejected save")
	}
}

func TestValidateEndpointReportsProblems(t *testing.T) {
	e := newTestEnv(t)
	_, wfID := e.seedWorkflow(t)

	bad := workflow.NewState()
	bad.Blocks["a"] = &workflow.Block{ID: "a", Type: workflow.BlockTypeFunction, Enabled: true}

	var result struct {
		Valid    bool     `json:"valid"`
		Problems []string `json:"problems"`
	}
	e.request(t, http.MethodPost, "/api/workflows/"+wfID+"/validate", bad, &result)
	if result.Valid || len(result.Problems) == 0 {
		t.Errorf("result = %+v, want invalid with problems", result)
	}
}

func TestUnknownWorkflow404(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorkflow(t)

	resp := e.request(t, http.MethodGet, "/api/workflows/missing", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
