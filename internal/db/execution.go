package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Execution statuses.
const (
	ExecStatusRunning   = "running"
	ExecStatusCompleted = "completed"
	ExecStatusFailed    = "failed"
	ExecStatusCancelled = "cancelled"
)

// BlockLog records one block's outcome within an execution.
type BlockLog struct {
	BlockID    string `json:"blockId"`
	BlockName  string `json:"blockName,omitempty"`
	BlockType  string `json:"blockType,omitempty"`
	Success    bool   `json:"success"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// Execution is a single run of a workflow, live or historical.
type Execution struct {
	ID            string
	WorkflowID    string
	Version       int // deployment version executed, 0 for draft runs
	TriggerSource string
	Status        string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Output        string
	Error         string
	BlockLogs     []BlockLog
}

// SaveExecution creates or updates an execution row. Called on start and
// again as the stream progresses, so it upserts.
func (d *DB) SaveExecution(e *Execution) error {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = ExecStatusRunning
	}
	logs, err := json.Marshal(e.BlockLogs)
	if err != nil {
		return fmt.Errorf("marshal block logs: %w", err)
	}

	_, err = d.Exec(`
		INSERT INTO executions (id, workflow_id, version, trigger_source, status, started_at, finished_at, output, error, block_logs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			output = excluded.output,
			error = excluded.error,
			block_logs = excluded.block_logs
	`, e.ID, e.WorkflowID, e.Version, e.TriggerSource, e.Status,
		fmtTime(e.StartedAt), fmtTimePtr(e.FinishedAt), e.Output, e.Error, string(logs))
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

// GetExecution loads an execution by ID. Returns nil when not found.
func (d *DB) GetExecution(id string) (*Execution, error) {
	row := d.QueryRow(`
		SELECT id, workflow_id, version, trigger_source, status, started_at, finished_at, output, error, block_logs
		FROM executions WHERE id = ?
	`, id)

	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// ListExecutions returns a workflow's executions, newest first, up to limit
// (0 means a default of 50).
func (d *DB) ListExecutions(workflowID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.Query(`
		SELECT id, workflow_id, version, trigger_source, status, started_at, finished_at, output, error, block_logs
		FROM executions WHERE workflow_id = ? ORDER BY started_at DESC LIMIT ?
	`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(r rowScanner) (*Execution, error) {
	var e Execution
	var startedAt, logs string
	var finishedAt *string
	if err := r.Scan(&e.ID, &e.WorkflowID, &e.Version, &e.TriggerSource, &e.Status,
		&startedAt, &finishedAt, &e.Output, &e.Error, &logs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	e.StartedAt = parseTime(startedAt)
	e.FinishedAt = parseTimePtr(finishedAt)
	if logs != "" {
		if err := json.Unmarshal([]byte(logs), &e.BlockLogs); err != nil {
			return nil, fmt.Errorf("unmarshal block logs: %w", err)
		}
	}
	return &e, nil
}
