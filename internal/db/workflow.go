package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/flowd/internal/workflow"
)

// Workflow represents a stored workflow. State holds the serialized graph;
// use LoadWorkflowState/SaveWorkflowState when only the graph is needed.
type Workflow struct {
	ID          string
	WorkspaceID string
	Name        string
	Description string
	Color       string
	State       *workflow.State
	IsDeployed  bool
	DeployedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SaveWorkflow creates or updates a workflow including its graph state.
func (d *DB) SaveWorkflow(w *Workflow) error {
	now := time.Now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	if w.Color == "" {
		w.Color = "#3972F6"
	}

	state := w.State
	if state == nil {
		state = workflow.NewState()
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	_, err = d.Exec(`
		INSERT INTO workflows (id, workspace_id, name, description, color, state, is_deployed, deployed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			color = excluded.color,
			state = excluded.state,
			is_deployed = excluded.is_deployed,
			deployed_at = excluded.deployed_at,
			updated_at = excluded.updated_at
	`, w.ID, w.WorkspaceID, w.Name, w.Description, w.Color, string(stateJSON),
		boolToInt(w.IsDeployed), fmtTimePtr(w.DeployedAt), fmtTime(w.CreatedAt), fmtTime(w.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// GetWorkflow loads a workflow by ID including its state. Returns nil when
// not found.
func (d *DB) GetWorkflow(id string) (*Workflow, error) {
	row := d.QueryRow(`
		SELECT id, workspace_id, name, description, color, state, is_deployed, deployed_at, created_at, updated_at
		FROM workflows WHERE id = ?
	`, id)
	return scanWorkflow(row)
}

// ListWorkflows returns the workflows of a workspace, states included.
func (d *DB) ListWorkflows(workspaceID string) ([]*Workflow, error) {
	rows, err := d.Query(`
		SELECT id, workspace_id, name, description, color, state, is_deployed, deployed_at, created_at, updated_at
		FROM workflows WHERE workspace_id = ? ORDER BY created_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Workflow
	for rows.Next() {
		w, err := scanWorkflowRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SaveWorkflowState persists only the graph state of a workflow.
func (d *DB) SaveWorkflowState(id string, s *workflow.State) error {
	stateJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}
	res, err := d.Exec(`
		UPDATE workflows SET state = ?, updated_at = ? WHERE id = ?
	`, string(stateJSON), fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("save workflow state: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkDeployed flips the deployment flag and timestamp on a workflow.
func (d *DB) MarkDeployed(id string, deployed bool) error {
	var deployedAt *string
	if deployed {
		s := fmtTime(time.Now())
		deployedAt = &s
	}
	_, err := d.Exec(`
		UPDATE workflows SET is_deployed = ?, deployed_at = ?, updated_at = ? WHERE id = ?
	`, boolToInt(deployed), deployedAt, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark deployed: %w", err)
	}
	return nil
}

// DeleteWorkflow removes a workflow; versions, executions and webhooks
// cascade.
func (d *DB) DeleteWorkflow(id string) error {
	_, err := d.Exec(`DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row *sql.Row) (*Workflow, error) {
	w, err := scanWorkflowFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

func scanWorkflowRows(rows *sql.Rows) (*Workflow, error) {
	return scanWorkflowFrom(rows)
}

func scanWorkflowFrom(r rowScanner) (*Workflow, error) {
	var w Workflow
	var state, createdAt, updatedAt string
	var deployedAt *string
	var isDeployed int
	if err := r.Scan(&w.ID, &w.WorkspaceID, &w.Name, &w.Description, &w.Color,
		&state, &isDeployed, &deployedAt, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	w.State = workflow.NewState()
	if state != "" && state != "{}" {
		if err := json.Unmarshal([]byte(state), w.State); err != nil {
			return nil, fmt.Errorf("unmarshal workflow state: %w", err)
		}
	}
	w.IsDeployed = isDeployed != 0
	w.DeployedAt = parseTimePtr(deployedAt)
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
