package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/exec"
	"github.com/randalmurphal/flowd/internal/platerr"
)

type executionResponse struct {
	ID            string        `json:"id"`
	WorkflowID    string        `json:"workflowId"`
	Version       int           `json:"version"`
	TriggerSource string        `json:"triggerSource"`
	Status        string        `json:"status"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty"`
	Output        any           `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
	BlockLogs     []db.BlockLog `json:"blockLogs,omitempty"`
}

func toExecutionResponse(e *db.Execution) executionResponse {
	resp := executionResponse{
		ID:            e.ID,
		WorkflowID:    e.WorkflowID,
		Version:       e.Version,
		TriggerSource: e.TriggerSource,
		Status:        e.Status,
		StartedAt:     e.StartedAt,
		FinishedAt:    e.FinishedAt,
		Error:         e.Error,
		BlockLogs:     e.BlockLogs,
	}
	if e.Output != "" {
		var out any
		if err := json.Unmarshal([]byte(e.Output), &out); err == nil {
			resp.Output = out
		} else {
			resp.Output = e.Output
		}
	}
	return resp
}

// handleExecuteWorkflow runs the active deployment and streams progress to
// the caller as server-sent events.
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleWrite, "execute workflow")
	if err != nil {
		s.handleError(w, err)
		return
	}

	var req struct {
		Input map[string]any `json:"input"`
	}
	if r.Body != nil {
		// Empty body runs with no input.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sink := exec.SinkFunc(func(event string, data []byte) error {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	if _, err := s.exec.Execute(r.Context(), exec.Request{
		WorkflowID:    wf.ID,
		UserID:        s.actor(r).UserID,
		TriggerSource: "manual",
		Input:         req.Input,
	}, sink); err != nil {
		// Headers are gone; surface the failure as a stream event.
		if pe := platerr.As(err); pe != nil {
			data, _ := json.Marshal(APIError{Error: pe.What, Code: string(pe.Code)})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleRead, "list executions")
	if err != nil {
		s.handleError(w, err)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	executions, err := s.db.ListExecutions(wf.ID, limit)
	if err != nil {
		s.handleError(w, err)
		return
	}
	out := make([]executionResponse, 0, len(executions))
	for _, e := range executions {
		out = append(out, toExecutionResponse(e))
	}
	s.jsonResponse(w, out)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.db.GetExecution(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if e == nil {
		s.handleError(w, platerr.ErrExecutionNotFound(id))
		return
	}
	if _, err := s.requireWorkflowRole(r, e.WorkflowID, auth.RoleRead, "view execution"); err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, toExecutionResponse(e))
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.db.GetExecution(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if e == nil {
		s.handleError(w, platerr.ErrExecutionNotFound(id))
		return
	}
	if _, err := s.requireWorkflowRole(r, e.WorkflowID, auth.RoleWrite, "cancel execution"); err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.exec.Cancel(id); err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, map[string]string{"id": id, "status": "cancelling"})
}
