package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Webhook binds an inbound trigger URL to a workflow.
type Webhook struct {
	ID            string
	WorkflowID    string
	PathToken     string
	Provider      string
	Secret        string
	IsActive      bool
	RatePerMinute int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SaveWebhook creates or updates a webhook.
func (d *DB) SaveWebhook(w *Webhook) error {
	now := time.Now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	if w.Provider == "" {
		w.Provider = "generic"
	}
	if w.RatePerMinute <= 0 {
		w.RatePerMinute = 60
	}

	_, err := d.Exec(`
		INSERT INTO webhooks (id, workflow_id, path_token, provider, secret, is_active, rate_per_minute, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			provider = excluded.provider,
			secret = excluded.secret,
			is_active = excluded.is_active,
			rate_per_minute = excluded.rate_per_minute,
			updated_at = excluded.updated_at
	`, w.ID, w.WorkflowID, w.PathToken, w.Provider, w.Secret,
		boolToInt(w.IsActive), w.RatePerMinute, fmtTime(w.CreatedAt), fmtTime(w.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save webhook: %w", err)
	}
	return nil
}

// GetWebhook loads a webhook by ID. Returns nil when not found.
func (d *DB) GetWebhook(id string) (*Webhook, error) {
	return d.getWebhook(`WHERE id = ?`, id)
}

// GetWebhookByToken loads a webhook by its public path token.
func (d *DB) GetWebhookByToken(token string) (*Webhook, error) {
	return d.getWebhook(`WHERE path_token = ?`, token)
}

func (d *DB) getWebhook(where string, arg any) (*Webhook, error) {
	row := d.QueryRow(`
		SELECT id, workflow_id, path_token, provider, secret, is_active, rate_per_minute, created_at, updated_at
		FROM webhooks `+where, arg)

	w, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// ListWebhooks returns the webhooks of a workflow.
func (d *DB) ListWebhooks(workflowID string) ([]*Webhook, error) {
	rows, err := d.Query(`
		SELECT id, workflow_id, path_token, provider, secret, is_active, rate_per_minute, created_at, updated_at
		FROM webhooks WHERE workflow_id = ? ORDER BY created_at
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWebhook removes a webhook.
func (d *DB) DeleteWebhook(id string) error {
	_, err := d.Exec(`DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

func scanWebhook(r rowScanner) (*Webhook, error) {
	var w Webhook
	var isActive int
	var createdAt, updatedAt string
	if err := r.Scan(&w.ID, &w.WorkflowID, &w.PathToken, &w.Provider, &w.Secret,
		&isActive, &w.RatePerMinute, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan webhook: %w", err)
	}
	w.IsActive = isActive != 0
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}
