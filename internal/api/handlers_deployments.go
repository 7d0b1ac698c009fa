package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/events"
	"github.com/randalmurphal/flowd/internal/platerr"
)

type deploymentResponse struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflowId"`
	Version    int       `json:"version"`
	IsActive   bool      `json:"isActive"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toDeploymentResponse(v *db.DeploymentVersion) deploymentResponse {
	return deploymentResponse{
		ID: v.ID, WorkflowID: v.WorkflowID, Version: v.Version,
		IsActive: v.IsActive, CreatedBy: v.CreatedBy, CreatedAt: v.CreatedAt,
	}
}

// handleDeployWorkflow snapshots the draft as a new active version.
func (s *Server) handleDeployWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleWrite, "deploy workflow")
	if err != nil {
		s.handleError(w, err)
		return
	}

	version, err := s.deploy.Deploy(wf.ID, s.actor(r).UserID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.publisher.Publish(events.New(events.TypeDeploymentCreated, wf.ID, map[string]any{
		"workflowId": wf.ID,
		"version":    version.Version,
	}))
	s.jsonResponseStatus(w, toDeploymentResponse(version), http.StatusCreated)
}

func (s *Server) handleDeployStatus(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleRead, "view deploy status")
	if err != nil {
		s.handleError(w, err)
		return
	}
	status, err := s.deploy.GetStatus(wf.ID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, status)
}

// handleUndeployWorkflow deactivates the active version, leaving history
// intact.
func (s *Server) handleUndeployWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleWrite, "undeploy workflow")
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.deploy.Deactivate(wf.ID); err != nil {
		s.handleError(w, err)
		return
	}
	s.publisher.Publish(events.New(events.TypeDeploymentDeactivated, wf.ID, nil))
	noContent(w)
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleRead, "list deployments")
	if err != nil {
		s.handleError(w, err)
		return
	}
	versions, err := s.db.ListDeploymentVersions(wf.ID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	out := make([]deploymentResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, toDeploymentResponse(v))
	}
	s.jsonResponse(w, out)
}

// handleGetDeployment returns one version's metadata plus its frozen state.
func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleRead, "view deployment")
	if err != nil {
		s.handleError(w, err)
		return
	}
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || version < 1 {
		s.jsonError(w, "version must be a positive integer", http.StatusBadRequest)
		return
	}
	v, err := s.db.GetDeploymentVersion(wf.ID, version)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if v == nil {
		s.handleError(w, platerr.ErrVersionNotFound(wf.ID, version))
		return
	}
	s.jsonResponse(w, map[string]any{
		"id":         v.ID,
		"workflowId": v.WorkflowID,
		"version":    v.Version,
		"isActive":   v.IsActive,
		"createdBy":  v.CreatedBy,
		"createdAt":  v.CreatedAt,
		"state":      v.State,
	})
}

// handleActivateDeployment rolls the workflow to a prior version.
func (s *Server) handleActivateDeployment(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleWrite, "activate deployment")
	if err != nil {
		s.handleError(w, err)
		return
	}
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || version < 1 {
		s.jsonError(w, "version must be a positive integer", http.StatusBadRequest)
		return
	}
	if err := s.deploy.Activate(wf.ID, version); err != nil {
		s.handleError(w, err)
		return
	}
	s.publisher.Publish(events.New(events.TypeDeploymentActivated, wf.ID, map[string]any{
		"workflowId": wf.ID,
		"version":    version,
	}))
	s.jsonResponse(w, map[string]any{"workflowId": wf.ID, "activeVersion": version})
}
