// Package deploy implements workflow deployment versioning: snapshotting a
// draft graph into an immutable version, activating versions, and deciding
// whether the live draft has drifted from what is deployed.
package deploy

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/platerr"
	"github.com/randalmurphal/flowd/internal/workflow"
)

// Service coordinates deployment operations for workflows.
type Service struct {
	db     *db.DB
	logger *slog.Logger
}

// NewService creates a deployment service.
func NewService(d *db.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: d, logger: logger}
}

// Status describes a workflow's deployment situation for the editor.
type Status struct {
	Deployed          bool `json:"isDeployed"`
	ActiveVersion     int  `json:"activeVersion,omitempty"`
	NeedsRedeployment bool `json:"needsRedeployment"`
}

// Deploy snapshots the workflow's current state as a new active version.
// The draft is validated and normalized before freezing so a broken graph
// can never become the live version.
func (s *Service) Deploy(workflowID, userID string) (*db.DeploymentVersion, error) {
	wf, err := s.db.GetWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, platerr.ErrWorkflowNotFound(workflowID)
	}

	workflow.Normalize(wf.State)
	if err := workflow.Validate(wf.State); err != nil {
		return nil, platerr.ErrStateInvalid(err)
	}

	v := &db.DeploymentVersion{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		State:      wf.State,
		CreatedBy:  userID,
	}
	if err := s.db.CreateDeploymentVersion(v); err != nil {
		if errors.Is(err, db.ErrDuplicateVersion) {
			return nil, platerr.ErrVersionConflict(workflowID)
		}
		return nil, fmt.Errorf("create deployment version: %w", err)
	}
	if err := s.db.MarkDeployed(workflowID, true); err != nil {
		return nil, fmt.Errorf("mark deployed: %w", err)
	}

	s.logger.Info("workflow deployed", "workflow", workflowID, "version", v.Version, "by", userID)
	return v, nil
}

// Activate makes an existing version the live one (rollback is activating an
// older version).
func (s *Service) Activate(workflowID string, version int) error {
	err := s.db.SetActiveVersion(workflowID, version)
	if errors.Is(err, sql.ErrNoRows) {
		return platerr.ErrVersionNotFound(workflowID, version)
	}
	if err != nil {
		return err
	}
	if err := s.db.MarkDeployed(workflowID, true); err != nil {
		return err
	}
	s.logger.Info("deployment activated", "workflow", workflowID, "version", version)
	return nil
}

// Deactivate takes a workflow offline. No-op when nothing is active.
func (s *Service) Deactivate(workflowID string) error {
	if err := s.db.DeactivateDeployments(workflowID); err != nil {
		return err
	}
	if err := s.db.MarkDeployed(workflowID, false); err != nil {
		return err
	}
	s.logger.Info("deployment deactivated", "workflow", workflowID)
	return nil
}

// GetStatus reports whether the workflow is deployed and whether its draft
// state differs from the active version.
func (s *Service) GetStatus(workflowID string) (*Status, error) {
	wf, err := s.db.GetWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, platerr.ErrWorkflowNotFound(workflowID)
	}

	active, err := s.db.GetActiveDeployment(workflowID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return &Status{}, nil
	}

	return &Status{
		Deployed:          true,
		ActiveVersion:     active.Version,
		NeedsRedeployment: NeedsRedeployment(wf.State, active.State),
	}, nil
}

// NeedsRedeployment reports whether the draft state semantically differs
// from the deployed state. Cosmetic changes (positions, timestamps) do not
// count; the comparison is over canonical state hashes.
func NeedsRedeployment(draft, deployed *workflow.State) bool {
	if draft == nil || deployed == nil {
		return draft != deployed
	}
	return workflow.Hash(draft) != workflow.Hash(deployed)
}
