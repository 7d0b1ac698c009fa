package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/flowd/internal/workflow"
)

// Template is a published workflow snapshot in the marketplace.
type Template struct {
	ID          string
	WorkflowID  string
	WorkspaceID string
	AuthorID    string
	Name        string
	Description string
	Category    string
	State       *workflow.State
	Views       int
	Stars       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SaveTemplate creates or updates a template.
func (d *DB) SaveTemplate(t *Template) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Category == "" {
		t.Category = "general"
	}

	stateJSON, err := json.Marshal(t.State)
	if err != nil {
		return fmt.Errorf("marshal template state: %w", err)
	}

	_, err = d.Exec(`
		INSERT INTO templates (id, workflow_id, workspace_id, author_id, name, description, category, state, views, stars, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, t.ID, t.WorkflowID, t.WorkspaceID, t.AuthorID, t.Name, t.Description,
		t.Category, string(stateJSON), t.Views, t.Stars, fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

// GetTemplate loads a template by ID. Returns nil when not found.
func (d *DB) GetTemplate(id string) (*Template, error) {
	row := d.QueryRow(`
		SELECT id, workflow_id, workspace_id, author_id, name, description, category, state, views, stars, created_at, updated_at
		FROM templates WHERE id = ?
	`, id)

	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// ListTemplates returns templates, optionally filtered by category and a
// name/description search term, ordered by star count.
func (d *DB) ListTemplates(category, search string) ([]*Template, error) {
	query := `
		SELECT id, workflow_id, workspace_id, author_id, name, description, category, state, views, stars, created_at, updated_at
		FROM templates WHERE 1=1`
	var args []any
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	if search != "" {
		query += ` AND (name LIKE ? OR description LIKE ?)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY stars DESC, views DESC`

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// IncrementTemplateViews bumps the view counter.
func (d *DB) IncrementTemplateViews(id string) error {
	_, err := d.Exec(`UPDATE templates SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

// StarTemplate records a star. Returns false when the user already starred
// the template.
func (d *DB) StarTemplate(templateID, userID string) (bool, error) {
	ctx, tx, err := beginTx(d)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, d.Rebind(`
		INSERT INTO template_stars (template_id, user_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (template_id, user_id) DO NOTHING
	`), templateID, userID, fmtTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("star template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, d.Rebind(`
		UPDATE templates SET stars = stars + 1 WHERE id = ?
	`), templateID); err != nil {
		return false, fmt.Errorf("bump stars: %w", err)
	}

	return true, tx.Commit()
}

// UnstarTemplate removes a star. No-op when not starred.
func (d *DB) UnstarTemplate(templateID, userID string) error {
	ctx, tx, err := beginTx(d)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, d.Rebind(`
		DELETE FROM template_stars WHERE template_id = ? AND user_id = ?
	`), templateID, userID)
	if err != nil {
		return fmt.Errorf("unstar template: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, d.Rebind(`
			UPDATE templates SET stars = stars - 1 WHERE id = ? AND stars > 0
		`), templateID); err != nil {
			return fmt.Errorf("drop stars: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteTemplate removes a template; stars cascade.
func (d *DB) DeleteTemplate(id string) error {
	_, err := d.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

func scanTemplate(r rowScanner) (*Template, error) {
	var t Template
	var workflowID, workspaceID *string
	var state, createdAt, updatedAt string
	if err := r.Scan(&t.ID, &workflowID, &workspaceID, &t.AuthorID, &t.Name,
		&t.Description, &t.Category, &state, &t.Views, &t.Stars, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	if workflowID != nil {
		t.WorkflowID = *workflowID
	}
	if workspaceID != nil {
		t.WorkspaceID = *workspaceID
	}
	t.State = workflow.NewState()
	if err := json.Unmarshal([]byte(state), t.State); err != nil {
		return nil, fmt.Errorf("unmarshal template state: %w", err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}
