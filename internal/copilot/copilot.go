// Package copilot proxies chat conversations to the LLM backend and keeps
// a durable transcript per chat.
package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/events"
	"github.com/randalmurphal/flowd/internal/exec"
	"github.com/randalmurphal/flowd/internal/platerr"
)

// Service owns copilot chats: creation, listing, and the streaming
// message loop against the backend.
type Service struct {
	db       *db.DB
	events   events.Publisher
	logger   *slog.Logger
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewService wires a copilot service against the backend at endpoint.
func NewService(database *db.DB, pub events.Publisher, endpoint, apiKey, model string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       database,
		events:   pub,
		logger:   logger.With("component", "copilot"),
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 60 * time.Second},
		},
	}
}

// CreateChat starts a new conversation for a user, optionally pinned to a
// workflow so the backend receives graph context.
func (s *Service) CreateChat(userID, workflowID, title string) (*db.Chat, error) {
	if title == "" {
		title = "New chat"
	}
	chat := &db.Chat{
		ID:         uuid.New().String(),
		UserID:     userID,
		WorkflowID: workflowID,
		Title:      title,
		Model:      s.model,
	}
	if err := s.db.SaveChat(chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat loads a chat, enforcing ownership.
func (s *Service) GetChat(chatID, userID string) (*db.Chat, error) {
	chat, err := s.db.GetChat(chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil || chat.UserID != userID {
		return nil, platerr.ErrChatNotFound(chatID)
	}
	return chat, nil
}

// ListChats returns the user's chats, optionally filtered by workflow.
func (s *Service) ListChats(userID, workflowID string) ([]*db.Chat, error) {
	return s.db.ListChats(userID, workflowID)
}

// DeleteChat removes a chat the user owns.
func (s *Service) DeleteChat(chatID, userID string) error {
	if _, err := s.GetChat(chatID, userID); err != nil {
		return err
	}
	return s.db.DeleteChat(chatID)
}

// completionRequest is the payload sent to the backend.
type completionRequest struct {
	Model      string           `json:"model,omitempty"`
	WorkflowID string           `json:"workflowId,omitempty"`
	Messages   []db.ChatMessage `json:"messages"`
	Stream     bool             `json:"stream"`
}

// SendMessage appends the user's message, streams the assistant's reply
// through sink, and persists the transcript as chunks arrive so a dropped
// connection keeps the partial answer. Returns the completed assistant
// message.
func (s *Service) SendMessage(ctx context.Context, chatID, userID, content string, sink exec.Sink) (*db.ChatMessage, error) {
	chat, err := s.GetChat(chatID, userID)
	if err != nil {
		return nil, err
	}

	userMsg := db.ChatMessage{
		ID:        uuid.New().String(),
		Role:      "user",
		Content:   content,
		Timestamp: time.Now(),
	}
	chat.Messages = append(chat.Messages, userMsg)
	if chat.Title == "New chat" {
		chat.Title = deriveTitle(content)
	}
	if err := s.db.SaveChat(chat); err != nil {
		return nil, err
	}

	assistant := db.ChatMessage{
		ID:        uuid.New().String(),
		Role:      "assistant",
		Timestamp: time.Now(),
	}
	chat.Messages = append(chat.Messages, assistant)

	stream, err := s.startCompletion(ctx, chat)
	if err != nil {
		chat.Messages = chat.Messages[:len(chat.Messages)-1]
		return nil, err
	}
	defer stream.Close()

	last := &chat.Messages[len(chat.Messages)-1]
	persist := func() {
		if err := s.db.SaveChat(chat); err != nil {
			s.logger.Warn("persist chat failed", "chat", chat.ID, "error", err)
		}
	}

	streamErr := s.pipe(stream, last, sink, persist)
	persist()

	if s.events != nil {
		s.events.Publish(events.New(events.TypeChatMessage, chat.ID, map[string]any{
			"chatId":    chat.ID,
			"messageId": last.ID,
		}))
	}
	if streamErr != nil && last.Content == "" && len(last.ToolCalls) == 0 {
		return nil, platerr.ErrEngineUnavailable(streamErr)
	}
	return last, nil
}

// pipe reads the backend SSE stream, folding chunks into msg and mirroring
// each event to the client sink. persist is called after every tool-call
// transition and on content milestones.
func (s *Service) pipe(stream io.Reader, msg *db.ChatMessage, sink exec.Sink, persist func()) error {
	var since int
	return readSSE(stream, func(event, data string) error {
		switch event {
		case "content":
			msg.Content += gjson.Get(data, "delta").String()
			since++
			if since >= 20 {
				persist()
				since = 0
			}
		case "tool.call":
			msg.ToolCalls = append(msg.ToolCalls, db.ToolCall{
				ID:    gjson.Get(data, "id").String(),
				Name:  gjson.Get(data, "name").String(),
				Input: rawField(data, "input"),
				State: "pending",
			})
			persist()
		case "tool.result":
			id := gjson.Get(data, "id").String()
			for i := range msg.ToolCalls {
				if msg.ToolCalls[i].ID == id {
					msg.ToolCalls[i].Result = rawField(data, "result")
					msg.ToolCalls[i].State = gjson.Get(data, "state").String()
					break
				}
			}
			persist()
		case "done":
			persist()
		}
		if err := sink.Send(event, []byte(data)); err != nil {
			s.logger.Debug("client stream closed", "error", err)
		}
		return nil
	})
}

func (s *Service) startCompletion(ctx context.Context, chat *db.Chat) (io.ReadCloser, error) {
	// The trailing empty assistant message is local bookkeeping.
	history := chat.Messages[:len(chat.Messages)-1]
	body, err := json.Marshal(completionRequest{
		Model:      chat.Model,
		WorkflowID: chat.WorkflowID,
		Messages:   history,
		Stream:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, platerr.ErrEngineUnavailable(err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, platerr.ErrEngineUnavailable(fmt.Errorf("copilot backend returned %d: %s", resp.StatusCode, msg))
	}
	return resp.Body, nil
}

// deriveTitle builds a chat title from the first user message.
func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if utf8.RuneCountInString(title) > 60 {
		runes := []rune(title)
		title = string(runes[:57]) + "..."
	}
	if title == "" {
		title = "New chat"
	}
	return title
}

func rawField(data, path string) json.RawMessage {
	if v := gjson.Get(data, path); v.Exists() {
		return json.RawMessage(v.Raw)
	}
	return nil
}
