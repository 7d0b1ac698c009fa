package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/flowd/internal/workflow"
)

// ErrDuplicateVersion reports that a concurrent deployment claimed the same
// version number first.
var ErrDuplicateVersion = errors.New("deployment version already exists")

// DeploymentVersion is a frozen snapshot of a workflow's state. At most one
// version per workflow is active at a time.
type DeploymentVersion struct {
	ID         string
	WorkflowID string
	Version    int
	State      *workflow.State
	IsActive   bool
	CreatedBy  string
	CreatedAt  time.Time
}

// CreateDeploymentVersion inserts a snapshot as version max+1 and activates
// it, deactivating any prior active version in the same transaction.
func (d *DB) CreateDeploymentVersion(v *DeploymentVersion) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	stateJSON, err := json.Marshal(v.State)
	if err != nil {
		return fmt.Errorf("marshal deployment state: %w", err)
	}

	ctx, tx, err := beginTx(d)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var maxVersion sql.NullInt64
	row := tx.QueryRowContext(ctx, d.Rebind(`
		SELECT MAX(version) FROM workflow_deployment_versions WHERE workflow_id = ?
	`), v.WorkflowID)
	if err := row.Scan(&maxVersion); err != nil {
		return fmt.Errorf("query max version: %w", err)
	}
	v.Version = int(maxVersion.Int64) + 1

	if _, err := tx.ExecContext(ctx, d.Rebind(`
		UPDATE workflow_deployment_versions SET is_active = 0 WHERE workflow_id = ?
	`), v.WorkflowID); err != nil {
		return fmt.Errorf("deactivate versions: %w", err)
	}

	v.IsActive = true
	if _, err := tx.ExecContext(ctx, d.Rebind(`
		INSERT INTO workflow_deployment_versions (id, workflow_id, version, state, is_active, created_by, created_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`), v.ID, v.WorkflowID, v.Version, string(stateJSON), v.CreatedBy, fmtTime(v.CreatedAt)); err != nil {
		// Two deploys can race between the MAX(version) read and this
		// insert; UNIQUE (workflow_id, version) catches the loser.
		if isUniqueViolation(err) {
			return ErrDuplicateVersion
		}
		return fmt.Errorf("insert deployment version: %w", err)
	}

	return tx.Commit()
}

// GetDeploymentVersion loads one version of a workflow. Returns nil when not
// found.
func (d *DB) GetDeploymentVersion(workflowID string, version int) (*DeploymentVersion, error) {
	row := d.QueryRow(`
		SELECT id, workflow_id, version, state, is_active, created_by, created_at
		FROM workflow_deployment_versions WHERE workflow_id = ? AND version = ?
	`, workflowID, version)
	return scanDeploymentVersion(row)
}

// GetActiveDeployment loads the active version of a workflow, or nil when
// the workflow has never been deployed (or is deactivated).
func (d *DB) GetActiveDeployment(workflowID string) (*DeploymentVersion, error) {
	row := d.QueryRow(`
		SELECT id, workflow_id, version, state, is_active, created_by, created_at
		FROM workflow_deployment_versions WHERE workflow_id = ? AND is_active = 1
	`, workflowID)
	return scanDeploymentVersion(row)
}

// ListDeploymentVersions returns all versions of a workflow, newest first.
// States are loaded; callers listing many workflows should page upstream.
func (d *DB) ListDeploymentVersions(workflowID string) ([]*DeploymentVersion, error) {
	rows, err := d.Query(`
		SELECT id, workflow_id, version, state, is_active, created_by, created_at
		FROM workflow_deployment_versions WHERE workflow_id = ? ORDER BY version DESC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list deployment versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*DeploymentVersion
	for rows.Next() {
		v, err := scanDeploymentVersionFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetActiveVersion activates the given version and deactivates the rest.
// Returns sql.ErrNoRows when the version does not exist.
func (d *DB) SetActiveVersion(workflowID string, version int) error {
	ctx, tx, err := beginTx(d)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, d.Rebind(`
		UPDATE workflow_deployment_versions SET is_active = 0 WHERE workflow_id = ?
	`), workflowID); err != nil {
		return fmt.Errorf("deactivate versions: %w", err)
	}

	res, err := tx.ExecContext(ctx, d.Rebind(`
		UPDATE workflow_deployment_versions SET is_active = 1 WHERE workflow_id = ? AND version = ?
	`), workflowID, version)
	if err != nil {
		return fmt.Errorf("activate version: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// DeactivateDeployments clears the active flag for a workflow. No-op when
// nothing is active.
func (d *DB) DeactivateDeployments(workflowID string) error {
	_, err := d.Exec(`
		UPDATE workflow_deployment_versions SET is_active = 0 WHERE workflow_id = ?
	`, workflowID)
	if err != nil {
		return fmt.Errorf("deactivate deployments: %w", err)
	}
	return nil
}

func scanDeploymentVersion(row *sql.Row) (*DeploymentVersion, error) {
	v, err := scanDeploymentVersionFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func scanDeploymentVersionFrom(r rowScanner) (*DeploymentVersion, error) {
	var v DeploymentVersion
	var state, createdAt string
	var isActive int
	if err := r.Scan(&v.ID, &v.WorkflowID, &v.Version, &state, &isActive, &v.CreatedBy, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan deployment version: %w", err)
	}
	v.State = workflow.NewState()
	if err := json.Unmarshal([]byte(state), v.State); err != nil {
		return nil, fmt.Errorf("unmarshal deployment state: %w", err)
	}
	v.IsActive = isActive != 0
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}
