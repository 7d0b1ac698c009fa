package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/platerr"
)

type webhookResponse struct {
	ID            string    `json:"id"`
	WorkflowID    string    `json:"workflowId"`
	PathToken     string    `json:"pathToken"`
	Provider      string    `json:"provider"`
	IsActive      bool      `json:"isActive"`
	RatePerMinute int       `json:"ratePerMinute"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// The secret never leaves the server after creation.
func toWebhookResponse(wh *db.Webhook) webhookResponse {
	return webhookResponse{
		ID: wh.ID, WorkflowID: wh.WorkflowID, PathToken: wh.PathToken,
		Provider: wh.Provider, IsActive: wh.IsActive, RatePerMinute: wh.RatePerMinute,
		CreatedAt: wh.CreatedAt, UpdatedAt: wh.UpdatedAt,
	}
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleRead, "list webhooks")
	if err != nil {
		s.handleError(w, err)
		return
	}
	hooks, err := s.webhooks.List(wf.ID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	out := make([]webhookResponse, 0, len(hooks))
	for _, wh := range hooks {
		out = append(out, toWebhookResponse(wh))
	}
	s.jsonResponse(w, out)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	wf, err := s.requireWorkflowRole(r, r.PathValue("id"), auth.RoleWrite, "create webhook")
	if err != nil {
		s.handleError(w, err)
		return
	}

	var req struct {
		Provider      string `json:"provider"`
		Secret        string `json:"secret"`
		RatePerMinute int    `json:"ratePerMinute"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	wh, err := s.webhooks.Create(wf.ID, req.Provider, req.Secret, req.RatePerMinute)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponseStatus(w, toWebhookResponse(wh), http.StatusCreated)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.db.GetWebhook(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if existing == nil {
		s.handleError(w, platerr.ErrWebhookNotFound(id))
		return
	}
	if _, err := s.requireWorkflowRole(r, existing.WorkflowID, auth.RoleWrite, "update webhook"); err != nil {
		s.handleError(w, err)
		return
	}

	var req struct {
		Provider      *string `json:"provider"`
		Secret        *string `json:"secret"`
		IsActive      *bool   `json:"isActive"`
		RatePerMinute *int    `json:"ratePerMinute"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	wh, err := s.webhooks.Update(id, func(wh *db.Webhook) {
		if req.Provider != nil {
			wh.Provider = *req.Provider
		}
		if req.Secret != nil {
			wh.Secret = *req.Secret
		}
		if req.IsActive != nil {
			wh.IsActive = *req.IsActive
		}
		if req.RatePerMinute != nil {
			wh.RatePerMinute = *req.RatePerMinute
		}
	})
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, toWebhookResponse(wh))
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.db.GetWebhook(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if existing == nil {
		s.handleError(w, platerr.ErrWebhookNotFound(id))
		return
	}
	if _, err := s.requireWorkflowRole(r, existing.WorkflowID, auth.RoleWrite, "delete webhook"); err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.webhooks.Delete(id); err != nil {
		s.handleError(w, err)
		return
	}
	noContent(w)
}

// handleTriggerWebhook is the public inbound endpoint. The path token
// identifies the webhook; the secret arrives in X-Webhook-Secret.
func (s *Server) handleTriggerWebhook(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	execID, err := s.webhooks.Trigger(r.PathValue("token"), r.Header.Get("X-Webhook-Secret"), payload)
	if err != nil {
		s.handleError(w, err)
		return
	}
	resp := map[string]any{"accepted": true}
	if execID != "" {
		resp["executionId"] = execID
	}
	s.jsonResponseStatus(w, resp, http.StatusAccepted)
}
