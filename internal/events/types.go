// Package events provides event types and publishing infrastructure for
// real-time updates: workflow edits, deployment changes, execution progress
// and collaboration traffic.
package events

import (
	"time"
)

// Type defines the type of event.
type Type string

const (
	// Workflow lifecycle
	TypeWorkflowCreated Type = "workflow_created"
	TypeWorkflowUpdated Type = "workflow_updated"
	TypeWorkflowDeleted Type = "workflow_deleted"
	// TypeStateSaved fires when a workflow's graph state is persisted;
	// collaborative editors reload from it.
	TypeStateSaved Type = "state_saved"

	// Deployment lifecycle
	TypeDeploymentCreated     Type = "deployment_created"
	TypeDeploymentActivated   Type = "deployment_activated"
	TypeDeploymentDeactivated Type = "deployment_deactivated"

	// Execution progress
	TypeExecutionStarted   Type = "execution_started"
	TypeExecutionBlockDone Type = "execution_block_done"
	TypeExecutionCompleted Type = "execution_completed"
	TypeExecutionFailed    Type = "execution_failed"
	TypeExecutionCancelled Type = "execution_cancelled"

	// Copilot
	TypeChatMessage Type = "chat_message"

	// Collaboration (advisory broadcasts between connected editors)
	TypePresence Type = "presence"
	TypeCursor   Type = "cursor"
)

// Event represents a published event. Subject is the fan-out key: a
// workflow ID for graph and execution events, a workspace ID for workspace
// scoped ones.
type Event struct {
	Type    Type      `json:"type"`
	Subject string    `json:"subject"`
	Data    any       `json:"data,omitempty"`
	Time    time.Time `json:"time"`
}

// New creates an event with the current timestamp.
func New(t Type, subject string, data any) Event {
	return Event{Type: t, Subject: subject, Data: data, Time: time.Now()}
}
