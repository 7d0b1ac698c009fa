package exec

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/events"
	"github.com/randalmurphal/flowd/internal/platerr"
)

// Sink receives the normalized event stream of a run. The API layer backs
// it with an SSE response; tests back it with a buffer.
type Sink interface {
	Send(event string, data []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event string, data []byte) error

func (f SinkFunc) Send(event string, data []byte) error { return f(event, data) }

// Request describes one workflow run.
type Request struct {
	WorkflowID    string
	UserID        string
	TriggerSource string         // "manual", "webhook", "api"
	Input         map[string]any // starter block input
}

// Service executes deployed workflows through the engine and records the
// results. One Service instance tracks all in-flight runs of the process.
type Service struct {
	db     *db.DB
	engine *EngineClient
	events events.Publisher
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewService creates an execution service.
func NewService(database *db.DB, engine *EngineClient, pub events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:      database,
		engine:  engine,
		events:  pub,
		logger:  logger.With("component", "exec"),
		running: make(map[string]context.CancelFunc),
	}
}

// Execute runs the workflow's active deployment, streaming normalized
// events into sink and persisting progress as it happens. It blocks until
// the run finishes and returns the final execution record. Partial results
// are kept even when the stream dies mid-run.
func (s *Service) Execute(ctx context.Context, req Request, sink Sink) (*db.Execution, error) {
	wf, err := s.db.GetWorkflow(req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, platerr.ErrWorkflowNotFound(req.WorkflowID)
	}
	active, err := s.db.GetActiveDeployment(req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, platerr.ErrNotDeployed(req.WorkflowID)
	}

	execution := &db.Execution{
		ID:            uuid.New().String(),
		WorkflowID:    req.WorkflowID,
		Version:       active.Version,
		TriggerSource: req.TriggerSource,
		Status:        db.ExecStatusRunning,
		StartedAt:     time.Now(),
	}
	if err := s.db.SaveExecution(execution); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.register(execution.ID, cancel)
	defer s.unregister(execution.ID)

	s.publish(events.TypeExecutionStarted, execution)
	s.sendJSON(sink, "execution.started", map[string]any{
		"executionId": execution.ID,
		"workflowId":  execution.WorkflowID,
		"version":     execution.Version,
	})

	stream, err := s.engine.StartRun(runCtx, execution.ID, req.WorkflowID, active.State, req.Input)
	if err != nil {
		// A registry cancel can race the engine dial; that is a
		// cancellation, not an engine failure.
		if runCtx.Err() != nil && ctx.Err() == nil {
			s.cancelUpstream(execution.ID)
			s.finish(execution, db.ExecStatusCancelled, "", "")
			s.sendJSON(sink, "execution.cancelled", map[string]any{"executionId": execution.ID})
			return execution, nil
		}
		s.finish(execution, db.ExecStatusFailed, "", errString(err))
		s.sendJSON(sink, "execution.failed", map[string]any{
			"executionId": execution.ID,
			"error":       errString(err),
		})
		return execution, err
	}
	defer stream.Close()

	streamErr := readSSE(stream, func(ev sseEvent) error {
		s.apply(execution, ev, sink)
		return runCtx.Err()
	})

	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		// Cancelled through the registry, not by the caller leaving.
		s.cancelUpstream(execution.ID)
		s.finish(execution, db.ExecStatusCancelled, execution.Output, "")
		s.sendJSON(sink, "execution.cancelled", map[string]any{"executionId": execution.ID})
	case execution.Status == db.ExecStatusRunning:
		// Stream ended without a terminal event.
		reason := "engine stream ended unexpectedly"
		if streamErr != nil {
			reason = streamErr.Error()
		}
		s.finish(execution, db.ExecStatusFailed, execution.Output, reason)
		s.sendJSON(sink, "execution.failed", map[string]any{
			"executionId": execution.ID,
			"error":       reason,
		})
	}
	return execution, nil
}

// Cancel stops a run started by this process. Unknown IDs mean the run
// already finished or never existed here.
func (s *Service) Cancel(executionID string) error {
	s.mu.Lock()
	cancel, ok := s.running[executionID]
	s.mu.Unlock()
	if !ok {
		return platerr.ErrExecutionNotFound(executionID)
	}
	cancel()
	return nil
}

// Running reports whether an execution is in flight in this process.
func (s *Service) Running(executionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[executionID]
	return ok
}

// apply folds one engine event into the execution record and forwards it.
func (s *Service) apply(e *db.Execution, ev sseEvent, sink Sink) {
	data := gjson.Parse(ev.Data)

	switch ev.Event {
	case "block.start":
		e.BlockLogs = append(e.BlockLogs, db.BlockLog{
			BlockID:   data.Get("blockId").String(),
			BlockName: data.Get("blockName").String(),
			BlockType: data.Get("blockType").String(),
		})
	case "block.end":
		id := data.Get("blockId").String()
		log := s.blockLog(e, id)
		log.Success = data.Get("success").Bool()
		log.DurationMs = data.Get("durationMs").Int()
		log.Error = data.Get("error").String()
		if out := data.Get("output"); out.Exists() {
			log.Output = out.Value()
		}
		if err := s.db.SaveExecution(e); err != nil {
			s.logger.Warn("persist block log failed", "execution", e.ID, "error", err)
		}
		s.publish(events.TypeExecutionBlockDone, e)
	case "run.complete":
		output := data.Get("output").Raw
		s.finish(e, db.ExecStatusCompleted, output, "")
		s.publish(events.TypeExecutionCompleted, e)
	case "run.error":
		// finish publishes the failed event.
		s.finish(e, db.ExecStatusFailed, "", data.Get("error").String())
	}

	if err := sink.Send(normalizeEventName(ev.Event), []byte(ev.Data)); err != nil {
		s.logger.Debug("client stream closed", "execution", e.ID, "error", err)
	}
}

// blockLog returns the log entry for a block, creating one if the engine
// never sent block.start for it.
func (s *Service) blockLog(e *db.Execution, blockID string) *db.BlockLog {
	for i := range e.BlockLogs {
		if e.BlockLogs[i].BlockID == blockID {
			return &e.BlockLogs[i]
		}
	}
	e.BlockLogs = append(e.BlockLogs, db.BlockLog{BlockID: blockID})
	return &e.BlockLogs[len(e.BlockLogs)-1]
}

func (s *Service) finish(e *db.Execution, status, output, errMsg string) {
	now := time.Now()
	e.Status = status
	e.FinishedAt = &now
	if output != "" {
		e.Output = output
	}
	if errMsg != "" {
		e.Error = errMsg
	}
	if err := s.db.SaveExecution(e); err != nil {
		s.logger.Error("persist execution failed", "execution", e.ID, "error", err)
	}
	switch status {
	case db.ExecStatusFailed:
		s.publish(events.TypeExecutionFailed, e)
	case db.ExecStatusCancelled:
		s.publish(events.TypeExecutionCancelled, e)
	}
}

func (s *Service) cancelUpstream(executionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.engine.CancelRun(ctx, executionID); err != nil {
		s.logger.Warn("engine cancel failed", "execution", executionID, "error", err)
	}
}

func (s *Service) register(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()
}

func (s *Service) unregister(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Service) publish(t events.Type, e *db.Execution) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.New(t, e.WorkflowID, map[string]any{
		"executionId": e.ID,
		"status":      e.Status,
	}))
}

func (s *Service) sendJSON(sink Sink, event string, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := sink.Send(event, buf); err != nil {
		s.logger.Debug("client stream closed", "event", event, "error", err)
	}
}

// normalizeEventName maps engine event names onto the public stream names.
// Unknown engine events pass through untouched so new block types keep
// working without a server release.
func normalizeEventName(name string) string {
	switch name {
	case "run.complete":
		return "execution.completed"
	case "run.error":
		return "execution.failed"
	default:
		return name
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	if pe := platerr.As(err); pe != nil {
		return pe.What
	}
	return err.Error()
}
