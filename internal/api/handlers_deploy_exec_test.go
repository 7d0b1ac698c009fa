package api

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
)

func TestDeployActivateRollback(t *testing.T) {
	e := newTestEnv(t)
	_, wfID := e.seedWorkflow(t)

	var v1 deploymentResponse
	resp := e.request(t, http.MethodPost, "/api/workflows/"+wfID+"/deploy", nil, &v1)
	if resp.StatusCode != http.StatusCreated || v1.Version != 1 || !v1.IsActive {
		t.Fatalf("deploy v1 = %+v status %d", v1, resp.StatusCode)
	}

	var v2 deploymentResponse
	e.request(t, http.MethodPost, "/api/workflows/"+wfID+"/deploy", nil, &v2)
	if v2.Version != 2 {
		t.Fatalf("second deploy version = %d, want 2", v2.Version)
	}

	var versions []deploymentResponse
	e.request(t, http.MethodGet, "/api/workflows/"+wfID+"/deployments", nil, &versions)
	if len(versions) != 2 || !versions[0].IsActive || versions[1].IsActive {
		t.Errorf("versions = %+v", versions)
	}

	// Roll back to v1.
	resp = e.request(t, http.MethodPost, "/api/workflows/"+wfID+"/deployments/1/activate", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}

	var status struct {
		Deployed      bool `json:"isDeployed"`
		ActiveVersion int  `json:"activeVersion"`
	}
	e.request(t, http.MethodGet, "/api/workflows/"+wfID+"/deploy/status", nil, &status)
	if !status.Deployed || status.ActiveVersion != 1 {
		t.Errorf("status = %+v", status)
	}

	// Activating a missing version is 404.
	resp = e.request(t, http.MethodPost, "/api/workflows/"+wfID+"/deployments/9/activate", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing version status = %d, want 404", resp.StatusCode)
	}

	// Undeploy deactivates without deleting history.
	resp = e.request(t, http.MethodDelete, "/api/workflows/"+wfID+"/deploy", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("undeploy status = %d", resp.StatusCode)
	}
	e.request(t, http.MethodGet, "/api/workflows/"+wfID+"/deployments", nil, &versions)
	if len(versions) != 2 {
		t.Errorf("history lost after undeploy: %d versions", len(versions))
	}
}

func TestExecuteStreamsSSE(t *testing.T) {
	e := newTestEnv(t)
	_, wfID := e.seedWorkflow(t)
	e.request(t, http.MethodPost, "/api/workflows/"+wfID+"/deploy", nil, nil)

	req, _ := http.NewRequest(http.MethodPost, e.ts.URL+"/api/workflows/"+wfID+"/execute",
		strings.NewReader(`{"input":{"q":"hi"}}`))
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var eventNames []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventNames = append(eventNames, strings.TrimPrefix(line, "event: "))
		}
	}

	want := []string{"execution.started", "block.start", "block.end", "execution.completed"}
	if len(eventNames) != len(want) {
		t.Fatalf("events = %v, want %v", eventNames, want)
	}
	for i := range want {
		if eventNames[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, eventNames[i], want[i])
		}
	}

	// The run is in history now.
	var executions []executionResponse
	e.request(t, http.MethodGet, "/api/workflows/"+wfID+"/executions", nil, &executions)
	if len(executions) != 1 || executions[0].Status != "completed" {
		t.Fatalf("executions = %+v", executions)
	}

	var single executionResponse
	e.request(t, http.MethodGet, "/api/executions/"+executions[0].ID, nil, &single)
	if single.Version != 1 || len(single.BlockLogs) != 1 {
		t.Errorf("execution = %+v", single)
	}
}

func TestExecuteWithoutDeployment(t *testing.T) {
	e := newTestEnv(t)
	_, wfID := e.seedWorkflow(t)

	req, _ := http.NewRequest(http.MethodPost, e.ts.URL+"/api/workflows/"+wfID+"/execute", nil)
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	defer resp.Body.Close()

	// The stream opens and carries the failure as an event.
	body := new(strings.Builder)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		body.WriteString(scanner.Text())
		body.WriteString("\n")
	}
	if !strings.Contains(body.String(), "WORKFLOW_NOT_DEPLOYED") {
		t.Errorf("stream = %q, want WORKFLOW_NOT_DEPLOYED error event", body.String())
	}
}

func TestWebhookLifecycleAndTrigger(t *testing.T) {
	e := newTestEnv(t)
	_, wfID := e.seedWorkflow(t)
	e.request(t, http.MethodPost, "/api/workflows/"+wfID+"/deploy", nil, nil)

	var wh webhookResponse
	resp := e.request(t, http.MethodPost, "/api/workflows/"+wfID+"/webhooks",
		map[string]any{"provider": "github", "secret": "s3cret", "ratePerMinute": 60}, &wh)
	if resp.StatusCode != http.StatusCreated || wh.PathToken == "" {
		t.Fatalf("create webhook = %+v status %d", wh, resp.StatusCode)
	}

	// Public trigger with the right secret, no API key.
	req, _ := http.NewRequest(http.MethodPost, e.ts.URL+"/api/hooks/"+wh.PathToken,
		strings.NewReader(`{"ref":"main"}`))
	req.Header.Set("X-Webhook-Secret", "s3cret")
	triggerResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	defer triggerResp.Body.Close()
	if triggerResp.StatusCode != http.StatusAccepted {
		t.Errorf("trigger status = %d, want 202", triggerResp.StatusCode)
	}

	// Wrong secret is rejected.
	req2, _ := http.NewRequest(http.MethodPost, e.ts.URL+"/api/hooks/"+wh.PathToken, nil)
	req2.Header.Set("X-Webhook-Secret", "wrong")
	badResp, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	defer badResp.Body.Close()
	if badResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d, want 401", badResp.StatusCode)
	}

	resp = e.request(t, http.MethodDelete, "/api/webhooks/"+wh.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete webhook status = %d", resp.StatusCode)
	}
}

func TestTemplatePublishAndUse(t *testing.T) {
	e := newTestEnv(t)
	wsID, wfID := e.seedWorkflow(t)

	var tpl templateResponse
	resp := e.request(t, http.MethodPost, "/api/templates",
		map[string]string{"workflowId": wfID, "name": "Starter kit", "category": "basics"}, &tpl)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("publish status = %d", resp.StatusCode)
	}

	resp = e.request(t, http.MethodPost, "/api/templates/"+tpl.ID+"/star", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("star status = %d", resp.StatusCode)
	}
	resp = e.request(t, http.MethodPost, "/api/templates/"+tpl.ID+"/star", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double star status = %d, want 409", resp.StatusCode)
	}

	var wf workflowResponse
	resp = e.request(t, http.MethodPost, "/api/templates/"+tpl.ID+"/use",
		map[string]string{"workspaceId": wsID, "name": "From template"}, &wf)
	if resp.StatusCode != http.StatusCreated || wf.ID == wfID {
		t.Fatalf("use = %+v status %d", wf, resp.StatusCode)
	}

	var list []templateResponse
	e.request(t, http.MethodGet, "/api/templates?category=basics", nil, &list)
	if len(list) != 1 || list[0].Stars != 1 {
		t.Errorf("list = %+v", list)
	}
}
