package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Workspace is the tenancy unit: workflows, members and templates hang off a
// workspace.
type Workspace struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member links a user to a workspace with a role ("admin", "write", "read").
type Member struct {
	WorkspaceID string
	UserID      string
	Role        string
	CreatedAt   time.Time
}

// SaveWorkspace creates or updates a workspace. The owner is upserted as an
// admin member in the same transaction.
func (d *DB) SaveWorkspace(w *Workspace) error {
	now := time.Now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	ctx, tx, err := beginTx(d)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, d.Rebind(`
		INSERT INTO workspaces (id, name, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
	`), w.ID, w.Name, w.OwnerID, fmtTime(w.CreatedAt), fmtTime(w.UpdatedAt)); err != nil {
		return fmt.Errorf("save workspace: %w", err)
	}

	if _, err := tx.ExecContext(ctx, d.Rebind(`
		INSERT INTO workspace_members (workspace_id, user_id, role, created_at)
		VALUES (?, ?, 'admin', ?)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = 'admin'
	`), w.ID, w.OwnerID, fmtTime(now)); err != nil {
		return fmt.Errorf("save workspace owner membership: %w", err)
	}

	return tx.Commit()
}

// GetWorkspace loads a workspace by ID. Returns nil when not found.
func (d *DB) GetWorkspace(id string) (*Workspace, error) {
	row := d.QueryRow(`
		SELECT id, name, owner_id, created_at, updated_at
		FROM workspaces WHERE id = ?
	`, id)

	var w Workspace
	var createdAt, updatedAt string
	if err := row.Scan(&w.ID, &w.Name, &w.OwnerID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}

// ListWorkspacesForUser returns the workspaces a user is a member of.
func (d *DB) ListWorkspacesForUser(userID string) ([]*Workspace, error) {
	rows, err := d.Query(`
		SELECT w.id, w.name, w.owner_id, w.created_at, w.updated_at
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = ?
		ORDER BY w.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Workspace
	for rows.Next() {
		var w Workspace
		var createdAt, updatedAt string
		if err := rows.Scan(&w.ID, &w.Name, &w.OwnerID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		w.CreatedAt = parseTime(createdAt)
		w.UpdatedAt = parseTime(updatedAt)
		out = append(out, &w)
	}
	return out, rows.Err()
}

// DeleteWorkspace removes a workspace; workflows and memberships cascade.
func (d *DB) DeleteWorkspace(id string) error {
	_, err := d.Exec(`DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

// SaveMember adds or updates a workspace membership.
func (d *DB) SaveMember(m *Member) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := d.Exec(`
		INSERT INTO workspace_members (workspace_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = excluded.role
	`, m.WorkspaceID, m.UserID, m.Role, fmtTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("save member: %w", err)
	}
	return nil
}

// GetMember loads a membership. Returns nil when the user is not a member.
func (d *DB) GetMember(workspaceID, userID string) (*Member, error) {
	row := d.QueryRow(`
		SELECT workspace_id, user_id, role, created_at
		FROM workspace_members WHERE workspace_id = ? AND user_id = ?
	`, workspaceID, userID)

	var m Member
	var createdAt string
	if err := row.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

// ListMembers returns all memberships of a workspace.
func (d *DB) ListMembers(workspaceID string) ([]*Member, error) {
	rows, err := d.Query(`
		SELECT workspace_id, user_id, role, created_at
		FROM workspace_members WHERE workspace_id = ? ORDER BY created_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Member
	for rows.Next() {
		var m Member
		var createdAt string
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &createdAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteMember removes a workspace membership.
func (d *DB) DeleteMember(workspaceID, userID string) error {
	_, err := d.Exec(`
		DELETE FROM workspace_members WHERE workspace_id = ? AND user_id = ?
	`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}
