package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/events"
	"github.com/randalmurphal/flowd/internal/platerr"
	"github.com/randalmurphal/flowd/internal/workflow"
)

type workflowResponse struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Color       string     `json:"color"`
	IsDeployed  bool       `json:"isDeployed"`
	DeployedAt  *time.Time `json:"deployedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toWorkflowResponse(wf *db.Workflow) workflowResponse {
	return workflowResponse{
		ID:          wf.ID,
		WorkspaceID: wf.WorkspaceID,
		Name:        wf.Name,
		Description: wf.Description,
		Color:       wf.Color,
		IsDeployed:  wf.IsDeployed,
		DeployedAt:  wf.DeployedAt,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if err := s.auth.Require(workspaceID, s.actor(r).UserID, auth.RoleRead, "list workflows"); err != nil {
		s.handleError(w, err)
		return
	}
	workflows, err := s.db.ListWorkflows(workspaceID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	out := make([]workflowResponse, 0, len(workflows))
	for _, wf := range workflows {
		out = append(out, toWorkflowResponse(wf))
	}
	s.jsonResponse(w, out)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if err := s.auth.Require(workspaceID, s.actor(r).UserID, auth.RoleWrite, "create workflow"); err != nil {
		s.handleError(w, err)
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Color       string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.jsonError(w, "name is required", http.StatusBadRequest)
		return
	}

	wf := &db.Workflow{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		State:       workflow.NewState(),
	}
	if err := s.db.SaveWorkflow(wf); err != nil {
		s.handleError(w, err)
		return
	}
	s.publisher.Publish(events.New(events.TypeWorkflowCreated, wf.ID, toWorkflowResponse(wf)))
	s.jsonResponseStatus(w, toWorkflowResponse(wf), http.StatusCreated)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleRead, "view workflow")
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, toWorkflowResponse(wf))
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleWrite, "update workflow")
	if err != nil {
		s.handleError(w, err)
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Color       *string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name != nil && *req.Name != "" {
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.Color != nil && *req.Color != "" {
		wf.Color = *req.Color
	}
	if err := s.db.SaveWorkflow(wf); err != nil {
		s.handleError(w, err)
		return
	}
	s.publisher.Publish(events.New(events.TypeWorkflowUpdated, wf.ID, toWorkflowResponse(wf)))
	s.jsonResponse(w, toWorkflowResponse(wf))
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleAdmin, "delete workflow")
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.db.DeleteWorkflow(wf.ID); err != nil {
		s.handleError(w, err)
		return
	}
	s.publisher.Publish(events.New(events.TypeWorkflowDeleted, wf.ID, nil))
	noContent(w)
}

func (s *Server) handleGetWorkflowState(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleRead, "view workflow state")
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, wf.State)
}

// handleSaveWorkflowState replaces the draft graph. The state is normalized
// before persisting; invalid graphs are rejected whole. Concurrent editors
// follow last-write-wins.
func (s *Server) handleSaveWorkflowState(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleWrite, "save workflow state")
	if err != nil {
		s.handleError(w, err)
		return
	}

	var state workflow.State
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		s.jsonError(w, "invalid state payload", http.StatusBadRequest)
		return
	}

	workflow.Normalize(&state)
	if err := workflow.Validate(&state); err != nil {
		s.handleError(w, platerr.ErrStateInvalid(err))
		return
	}
	state.Touch()

	if err := s.db.SaveWorkflowState(wf.ID, &state); err != nil {
		s.handleError(w, err)
		return
	}
	s.publisher.Publish(events.New(events.TypeStateSaved, wf.ID, map[string]any{
		"workflowId": wf.ID,
		"savedBy":    s.actor(r).UserID,
	}))
	s.jsonResponse(w, &state)
}

// handleValidateWorkflow dry-runs normalization and validation without
// persisting, so the editor can surface problems before saving.
func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleRead, "validate workflow"); err != nil {
		s.handleError(w, err)
		return
	}

	var state workflow.State
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		s.jsonError(w, "invalid state payload", http.StatusBadRequest)
		return
	}

	workflow.Normalize(&state)
	if err := workflow.Validate(&state); err != nil {
		var problems []string
		if ve, ok := err.(*workflow.ValidationError); ok {
			problems = ve.Problems
		} else {
			problems = []string{err.Error()}
		}
		s.jsonResponse(w, map[string]any{"valid": false, "problems": problems})
		return
	}
	s.jsonResponse(w, map[string]any{"valid": true})
}
