package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/workflow"
)

type templateResponse struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflowId"`
	AuthorID    string          `json:"authorId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	Views       int             `json:"views"`
	Stars       int             `json:"stars"`
	State       *workflow.State `json:"state,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toTemplateResponse(t *db.Template, withState bool) templateResponse {
	resp := templateResponse{
		ID: t.ID, WorkflowID: t.WorkflowID, AuthorID: t.AuthorID,
		Name: t.Name, Description: t.Description, Category: t.Category,
		Views: t.Views, Stars: t.Stars,
		CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
	if withState {
		resp.State = t.State
	}
	return resp
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	templates, err := s.templates.List(q.Get("category"), q.Get("search"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	out := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, toTemplateResponse(t, false))
	}
	s.jsonResponse(w, out)
}

func (s *Server) handlePopularTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.templates.Popular()
	if err != nil {
		s.handleError(w, err)
		return
	}
	out := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, toTemplateResponse(t, false))
	}
	s.jsonResponse(w, out)
}

func (s *Server) handlePublishTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkflowID  string `json:"workflowId"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Category    string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkflowID == "" {
		s.jsonError(w, "workflowId is required", http.StatusBadRequest)
		return
	}
	if _, err := s.requireWorkflowRole(r, req.WorkflowID, auth.RoleWrite, "publish template"); err != nil {
		s.handleError(w, err)
		return
	}

	tpl, err := s.templates.Publish(req.WorkflowID, s.actor(r).UserID, req.Name, req.Description, req.Category)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponseStatus(w, toTemplateResponse(tpl, true), http.StatusCreated)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.templates.Get(r.PathValue("id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, toTemplateResponse(tpl, true))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Delete(r.PathValue("id"), s.actor(r).UserID); err != nil {
		s.handleError(w, err)
		return
	}
	noContent(w)
}

func (s *Server) handleStarTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Star(r.PathValue("id"), s.actor(r).UserID); err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, map[string]bool{"starred": true})
}

func (s *Server) handleUnstarTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Unstar(r.PathValue("id"), s.actor(r).UserID); err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, map[string]bool{"starred": false})
}

// handleUseTemplate instantiates a template into a workspace the caller
// can write to.
func (s *Server) handleUseTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceID string `json:"workspaceId"`
		Name        string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkspaceID == "" {
		s.jsonError(w, "workspaceId is required", http.StatusBadRequest)
		return
	}
	if err := s.auth.Require(req.WorkspaceID, s.actor(r).UserID, auth.RoleWrite, "use template"); err != nil {
		s.handleError(w, err)
		return
	}

	wf, err := s.templates.Use(r.PathValue("id"), req.WorkspaceID, s.actor(r).UserID, req.Name)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponseStatus(w, toWorkflowResponse(wf), http.StatusCreated)
}
