package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/platerr"
)

type workspaceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toWorkspaceResponse(w *db.Workspace) workspaceResponse {
	return workspaceResponse{
		ID: w.ID, Name: w.Name, OwnerID: w.OwnerID,
		CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt,
	}
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := s.db.ListWorkspacesForUser(s.actor(r).UserID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	out := make([]workspaceResponse, 0, len(workspaces))
	for _, ws := range workspaces {
		out = append(out, toWorkspaceResponse(ws))
	}
	s.jsonResponse(w, out)
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.jsonError(w, "name is required", http.StatusBadRequest)
		return
	}

	ws := &db.Workspace{
		ID:      uuid.New().String(),
		Name:    req.Name,
		OwnerID: s.actor(r).UserID,
	}
	if err := s.db.SaveWorkspace(ws); err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponseStatus(w, toWorkspaceResponse(ws), http.StatusCreated)
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.auth.Require(id, s.actor(r).UserID, auth.RoleRead, "view workspace"); err != nil {
		s.handleError(w, err)
		return
	}
	ws, err := s.db.GetWorkspace(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if ws == nil {
		s.handleError(w, platerr.ErrWorkspaceNotFound(id))
		return
	}
	s.jsonResponse(w, toWorkspaceResponse(ws))
}

func (s *Server) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.auth.Require(id, s.actor(r).UserID, auth.RoleAdmin, "update workspace"); err != nil {
		s.handleError(w, err)
		return
	}
	ws, err := s.db.GetWorkspace(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if ws == nil {
		s.handleError(w, platerr.ErrWorkspaceNotFound(id))
		return
	}

	var req struct {
		Name *string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name != nil && *req.Name != "" {
		ws.Name = *req.Name
	}
	if err := s.db.SaveWorkspace(ws); err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, toWorkspaceResponse(ws))
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.auth.Require(id, s.actor(r).UserID, auth.RoleAdmin, "delete workspace"); err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.db.DeleteWorkspace(id); err != nil {
		s.handleError(w, err)
		return
	}
	noContent(w)
}

type memberResponse struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.auth.Require(id, s.actor(r).UserID, auth.RoleRead, "list members"); err != nil {
		s.handleError(w, err)
		return
	}
	members, err := s.db.ListMembers(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			WorkspaceID: m.WorkspaceID, UserID: m.UserID, Role: m.Role, CreatedAt: m.CreatedAt,
		})
	}
	s.jsonResponse(w, out)
}

func (s *Server) handleUpsertMember(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := r.PathValue("userId")
	if err := s.auth.Require(id, s.actor(r).UserID, auth.RoleAdmin, "manage members"); err != nil {
		s.handleError(w, err)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	role := auth.Role(req.Role)
	if !role.Valid() {
		s.jsonError(w, "role must be admin, write, or read", http.StatusBadRequest)
		return
	}

	// The owner's admin membership is not demotable.
	ws, err := s.db.GetWorkspace(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if ws == nil {
		s.handleError(w, platerr.ErrWorkspaceNotFound(id))
		return
	}
	if ws.OwnerID == userID && role != auth.RoleAdmin {
		s.jsonError(w, "workspace owner must stay admin", http.StatusBadRequest)
		return
	}

	m := &db.Member{WorkspaceID: id, UserID: userID, Role: string(role)}
	if err := s.db.SaveMember(m); err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, memberResponse{
		WorkspaceID: m.WorkspaceID, UserID: m.UserID, Role: m.Role, CreatedAt: m.CreatedAt,
	})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := r.PathValue("userId")
	if err := s.auth.Require(id, s.actor(r).UserID, auth.RoleAdmin, "manage members"); err != nil {
		s.handleError(w, err)
		return
	}
	ws, err := s.db.GetWorkspace(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if ws != nil && ws.OwnerID == userID {
		s.jsonError(w, "cannot remove the workspace owner", http.StatusBadRequest)
		return
	}
	if err := s.db.DeleteMember(id, userID); err != nil {
		s.handleError(w, err)
		return
	}
	noContent(w)
}
