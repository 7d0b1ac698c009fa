package db

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedDeployable(t *testing.T, d *DB) {
	t.Helper()
	SeedUser(t, d, "u1")
	SeedWorkspace(t, d, "ws1", "u1")
	require.NoError(t, d.SaveWorkflow(&Workflow{ID: "wf1", WorkspaceID: "ws1", Name: "wf", State: testState()}))
}

func TestDeploymentVersionNumbering(t *testing.T) {
	t.Parallel()

	d := NewTestDB(t)
	seedDeployable(t, d)

	v1 := &DeploymentVersion{ID: "dv1", WorkflowID: "wf1", State: testState(), CreatedBy: "u1"}
	require.NoError(t, d.CreateDeploymentVersion(v1))
	require.Equal(t, 1, v1.Version)
	require.True(t, v1.IsActive)

	v2 := &DeploymentVersion{ID: "dv2", WorkflowID: "wf1", State: testState(), CreatedBy: "u1"}
	require.NoError(t, d.CreateDeploymentVersion(v2))
	require.Equal(t, 2, v2.Version)

	// Creating a version deactivates the previous active one.
	active, err := d.GetActiveDeployment("wf1")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, 2, active.Version)

	old, err := d.GetDeploymentVersion("wf1", 1)
	require.NoError(t, err)
	require.False(t, old.IsActive)
}

func TestDuplicateVersionDetected(t *testing.T) {
	t.Parallel()

	d := NewTestDB(t)
	seedDeployable(t, d)
	require.NoError(t, d.CreateDeploymentVersion(&DeploymentVersion{ID: "dv1", WorkflowID: "wf1", State: testState()}))

	// A racing deploy that read the same MAX(version) collides on the
	// UNIQUE (workflow_id, version) constraint.
	_, err := d.Exec(`
		INSERT INTO workflow_deployment_versions (id, workflow_id, version, state, is_active, created_by, created_at)
		VALUES ('dv-race', 'wf1', 1, '{}', 0, 'u1', '2026-01-01T00:00:00Z')
	`)
	require.Error(t, err)
	require.True(t, isUniqueViolation(err), "err = %v", err)
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("UNIQUE constraint failed: workflow_deployment_versions.workflow_id, workflow_deployment_versions.version"), true},
		{errors.New(`duplicate key value violates unique constraint "workflow_deployment_versions_workflow_id_version_key"`), true},
		{errors.New("database is locked"), false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, isUniqueViolation(tt.err), "err = %v", tt.err)
	}
}

func TestSetActiveVersionRollback(t *testing.T) {
	t.Parallel()

	d := NewTestDB(t)
	seedDeployable(t, d)
	require.NoError(t, d.CreateDeploymentVersion(&DeploymentVersion{ID: "dv1", WorkflowID: "wf1", State: testState()}))
	require.NoError(t, d.CreateDeploymentVersion(&DeploymentVersion{ID: "dv2", WorkflowID: "wf1", State: testState()}))

	// Roll back to version 1.
	require.NoError(t, d.SetActiveVersion("wf1", 1))

	active, err := d.GetActiveDeployment("wf1")
	require.NoError(t, err)
	require.Equal(t, 1, active.Version)

	// Exactly one active version at a time.
	versions, err := d.ListDeploymentVersions("wf1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	activeCount := 0
	for _, v := range versions {
		if v.IsActive {
			activeCount++
		}
	}
	require.Equal(t, 1, activeCount)
}

func TestSetActiveVersionMissing(t *testing.T) {
	t.Parallel()

	d := NewTestDB(t)
	seedDeployable(t, d)

	err := d.SetActiveVersion("wf1", 42)
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestDeactivateDeploymentsNoop(t *testing.T) {
	t.Parallel()

	d := NewTestDB(t)
	seedDeployable(t, d)

	// Nothing active yet; deactivation must not fail.
	require.NoError(t, d.DeactivateDeployments("wf1"))

	require.NoError(t, d.CreateDeploymentVersion(&DeploymentVersion{ID: "dv1", WorkflowID: "wf1", State: testState()}))
	require.NoError(t, d.DeactivateDeployments("wf1"))

	active, err := d.GetActiveDeployment("wf1")
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestListDeploymentVersionsNewestFirst(t *testing.T) {
	t.Parallel()

	d := NewTestDB(t)
	seedDeployable(t, d)
	for _, id := range []string{"dv1", "dv2", "dv3"} {
		require.NoError(t, d.CreateDeploymentVersion(&DeploymentVersion{ID: id, WorkflowID: "wf1", State: testState()}))
	}

	versions, err := d.ListDeploymentVersions("wf1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, 3, versions[0].Version)
	require.Equal(t, 1, versions[2].Version)
}
