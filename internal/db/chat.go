package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ChatMessage is one turn in a copilot conversation. Tool calls emitted by
// the assistant are carried alongside the content.
type ChatMessage struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"` // user, assistant
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ToolCall records a tool invocation within an assistant message.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	State  string          `json:"state,omitempty"` // pending, success, error
}

// Chat is a copilot conversation owned by a user, optionally pinned to a
// workflow.
type Chat struct {
	ID         string
	UserID     string
	WorkflowID string
	Title      string
	Model      string
	Messages   []ChatMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveChat creates or updates a chat including its message array. The SSE
// proxy calls this incrementally, so partial conversations persist.
func (d *DB) SaveChat(c *Chat) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("marshal chat messages: %w", err)
	}

	var workflowID *string
	if c.WorkflowID != "" {
		workflowID = &c.WorkflowID
	}

	_, err = d.Exec(`
		INSERT INTO copilot_chats (id, user_id, workflow_id, title, model, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`, c.ID, c.UserID, workflowID, c.Title, c.Model, string(messages),
		fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

// GetChat loads a chat by ID. Returns nil when not found.
func (d *DB) GetChat(id string) (*Chat, error) {
	row := d.QueryRow(`
		SELECT id, user_id, workflow_id, title, model, messages, created_at, updated_at
		FROM copilot_chats WHERE id = ?
	`, id)

	c, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListChats returns a user's chats, most recently updated first. When
// workflowID is non-empty the list is restricted to that workflow.
func (d *DB) ListChats(userID, workflowID string) ([]*Chat, error) {
	query := `
		SELECT id, user_id, workflow_id, title, model, messages, created_at, updated_at
		FROM copilot_chats WHERE user_id = ?`
	args := []any{userID}
	if workflowID != "" {
		query += ` AND workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteChat removes a chat.
func (d *DB) DeleteChat(id string) error {
	_, err := d.Exec(`DELETE FROM copilot_chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func scanChat(r rowScanner) (*Chat, error) {
	var c Chat
	var workflowID *string
	var messages, createdAt, updatedAt string
	if err := r.Scan(&c.ID, &c.UserID, &workflowID, &c.Title, &c.Model, &messages, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	if workflowID != nil {
		c.WorkflowID = *workflowID
	}
	if messages != "" {
		if err := json.Unmarshal([]byte(messages), &c.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal chat messages: %w", err)
		}
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
