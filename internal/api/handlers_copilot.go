package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/exec"
	"github.com/randalmurphal/flowd/internal/platerr"
)

type chatResponse struct {
	ID         string           `json:"id"`
	WorkflowID string           `json:"workflowId,omitempty"`
	Title      string           `json:"title"`
	Model      string           `json:"model,omitempty"`
	Messages   []db.ChatMessage `json:"messages,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

func toChatResponse(c *db.Chat, withMessages bool) chatResponse {
	resp := chatResponse{
		ID: c.ID, WorkflowID: c.WorkflowID, Title: c.Title, Model: c.Model,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
	if withMessages {
		resp.Messages = c.Messages
	}
	return resp
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.copilot.ListChats(s.actor(r).UserID, r.URL.Query().Get("workflowId"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	out := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, toChatResponse(c, false))
	}
	s.jsonResponse(w, out)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkflowID string `json:"workflowId"`
		Title      string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	chat, err := s.copilot.CreateChat(s.actor(r).UserID, req.WorkflowID, req.Title)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponseStatus(w, toChatResponse(chat, true), http.StatusCreated)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.copilot.GetChat(r.PathValue("id"), s.actor(r).UserID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, toChatResponse(chat, true))
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.copilot.DeleteChat(r.PathValue("id"), s.actor(r).UserID); err != nil {
		s.handleError(w, err)
		return
	}
	noContent(w)
}

// handleSendChatMessage streams the assistant's reply as server-sent
// events while persisting the transcript.
func (s *Server) handleSendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		s.jsonError(w, "content is required", http.StatusBadRequest)
		return
	}

	// Resolve the chat before committing to a stream so missing chats
	// still get a proper status code.
	if _, err := s.copilot.GetChat(r.PathValue("id"), s.actor(r).UserID); err != nil {
		s.handleError(w, err)
		return
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

	if _, err := s.copilot.SendMessage(r.Context(), r.PathValue("id"), s.actor(r).UserID, req.Content, sink); err != nil {
		if pe := platerr.As(err); pe != nil {
			data, _ := json.Marshal(APIError{Error: pe.What, Code: string(pe.Code)})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
