// Package exec runs deployed workflows against the external execution
// engine and streams results back to callers.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/randalmurphal/flowd/internal/platerr"
	"github.com/randalmurphal/flowd/internal/workflow"
)

// EngineClient talks to the execution engine over HTTP.
type EngineClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewEngineClient creates a client for the engine at the given base URL.
// timeout bounds connecting and request setup; the response stream itself
// has no deadline.
func NewEngineClient(endpoint, apiKey string, timeout time.Duration) *EngineClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EngineClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

// runRequest is the payload the engine expects for a run.
type runRequest struct {
	ExecutionID string          `json:"executionId"`
	WorkflowID  string          `json:"workflowId"`
	State       *workflow.State `json:"state"`
	Input       map[string]any  `json:"input,omitempty"`
}

// StartRun submits a workflow run and returns the engine's SSE stream.
// The caller must close the returned body.
func (c *EngineClient) StartRun(ctx context.Context, executionID, workflowID string, state *workflow.State, input map[string]any) (io.ReadCloser, error) {
	body, err := json.Marshal(runRequest{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		State:       state,
		Input:       input,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/v1/runs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, platerr.ErrEngineUnavailable(err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, platerr.ErrEngineUnavailable(fmt.Errorf("engine returned %d: %s", resp.StatusCode, msg))
	}
	return resp.Body, nil
}

// CancelRun asks the engine to stop a running execution. Best effort:
// the engine may have already finished.
func (c *EngineClient) CancelRun(ctx context.Context, executionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/v1/runs/"+executionID+"/cancel", nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return platerr.ErrEngineUnavailable(err)
	}
	resp.Body.Close()
	return nil
}
