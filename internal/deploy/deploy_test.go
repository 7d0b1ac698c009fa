package deploy

import (
	"errors"
	"testing"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/platerr"
	"github.com/randalmurphal/flowd/internal/workflow"
)

func draftState() *workflow.State {
	s := workflow.NewState()
	s.Blocks["start"] = &workflow.Block{ID: "start", Type: workflow.BlockTypeStarter, Name: "Start", Enabled: true}
	s.Blocks["agent"] = &workflow.Block{ID: "agent", Type: workflow.BlockTypeAgent, Name: "Agent", Enabled: true}
	s.Edges = []workflow.Edge{{ID: "e1", Source: "start", Target: "agent"}}
	workflow.Normalize(s)
	return s
}

func setup(t *testing.T) (*Service, *db.DB) {
	t.Helper()

	d := db.NewTestDB(t)
	db.SeedUser(t, d, "u1")
	db.SeedWorkspace(t, d, "ws1", "u1")
	if err := d.SaveWorkflow(&db.Workflow{ID: "wf1", WorkspaceID: "ws1", Name: "wf", State: draftState()}); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	return NewService(d, nil), d
}

func TestDeployCreatesActiveVersion(t *testing.T) {
	t.Parallel()

	svc, d := setup(t)

	v, err := svc.Deploy("wf1", "u1")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if v.Version != 1 || !v.IsActive {
		t.Errorf("expected active version 1, got v%d active=%v", v.Version, v.IsActive)
	}

	wf, err := d.GetWorkflow("wf1")
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if !wf.IsDeployed || wf.DeployedAt == nil {
		t.Error("workflow should be flagged deployed")
	}
}

func TestDeployRejectsInvalidState(t *testing.T) {
	t.Parallel()

	svc, d := setup(t)

	// Remove the starter so the draft cannot validate.
	wf, _ := d.GetWorkflow("wf1")
	delete(wf.State.Blocks, "start")
	if err := d.SaveWorkflowState("wf1", wf.State); err != nil {
		t.Fatalf("save state: %v", err)
	}

	_, err := svc.Deploy("wf1", "u1")
	if err == nil {
		t.Fatal("expected validation failure")
	}
	var pe *platerr.Error
	if !errors.As(err, &pe) || pe.Code != platerr.CodeStateInvalid {
		t.Errorf("expected WORKFLOW_STATE_INVALID, got %v", err)
	}
}

func TestDeployMissingWorkflow(t *testing.T) {
	t.Parallel()

	svc, _ := setup(t)
	_, err := svc.Deploy("ghost", "u1")
	var pe *platerr.Error
	if !errors.As(err, &pe) || pe.Code != platerr.CodeWorkflowNotFound {
		t.Errorf("expected WORKFLOW_NOT_FOUND, got %v", err)
	}
}

func TestStatusNeedsRedeployment(t *testing.T) {
	t.Parallel()

	svc, d := setup(t)

	st, err := svc.GetStatus("wf1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Deployed {
		t.Error("fresh workflow should not be deployed")
	}

	if _, err := svc.Deploy("wf1", "u1"); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	st, err = svc.GetStatus("wf1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Deployed || st.NeedsRedeployment {
		t.Errorf("just-deployed workflow should be in sync, got %+v", st)
	}

	// Cosmetic edit: move a block. Should NOT need redeployment.
	wf, _ := d.GetWorkflow("wf1")
	wf.State.Blocks["agent"].Position = workflow.Position{X: 999, Y: 1}
	if err := d.SaveWorkflowState("wf1", wf.State); err != nil {
		t.Fatalf("save state: %v", err)
	}
	st, _ = svc.GetStatus("wf1")
	if st.NeedsRedeployment {
		t.Error("moving a block must not require redeployment")
	}

	// Semantic edit: rename a block. Should need redeployment.
	wf, _ = d.GetWorkflow("wf1")
	wf.State.Blocks["agent"].Name = "Renamed"
	if err := d.SaveWorkflowState("wf1", wf.State); err != nil {
		t.Fatalf("save state: %v", err)
	}
	st, _ = svc.GetStatus("wf1")
	if !st.NeedsRedeployment {
		t.Error("semantic change must require redeployment")
	}
}

func TestActivateRollbackAndDeactivate(t *testing.T) {
	t.Parallel()

	svc, d := setup(t)

	if _, err := svc.Deploy("wf1", "u1"); err != nil {
		t.Fatalf("deploy v1: %v", err)
	}

	// Change and redeploy as v2.
	wf, _ := d.GetWorkflow("wf1")
	wf.State.Blocks["agent"].Name = "V2 agent"
	if err := d.SaveWorkflowState("wf1", wf.State); err != nil {
		t.Fatalf("save state: %v", err)
	}
	v2, err := svc.Deploy("wf1", "u1")
	if err != nil {
		t.Fatalf("deploy v2: %v", err)
	}
	if v2.Version != 2 {
		t.Fatalf("expected version 2, got %d", v2.Version)
	}

	// Roll back.
	if err := svc.Activate("wf1", 1); err != nil {
		t.Fatalf("activate v1: %v", err)
	}
	active, _ := d.GetActiveDeployment("wf1")
	if active.Version != 1 {
		t.Errorf("expected v1 active, got v%d", active.Version)
	}

	// Rolled-back state differs from the draft, so redeployment is needed.
	st, _ := svc.GetStatus("wf1")
	if !st.NeedsRedeployment {
		t.Error("rollback should flag the draft as drifted")
	}

	// Activating a missing version is a not-found platform error.
	err = svc.Activate("wf1", 99)
	var pe *platerr.Error
	if !errors.As(err, &pe) || pe.Code != platerr.CodeVersionNotFound {
		t.Errorf("expected DEPLOYMENT_VERSION_NOT_FOUND, got %v", err)
	}

	// Deactivate takes the workflow offline.
	if err := svc.Deactivate("wf1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	wf, _ = d.GetWorkflow("wf1")
	if wf.IsDeployed {
		t.Error("workflow should be offline after deactivation")
	}
}
