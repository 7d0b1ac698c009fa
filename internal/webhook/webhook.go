// Package webhook handles inbound trigger URLs that start workflow runs.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/exec"
	"github.com/randalmurphal/flowd/internal/platerr"
)

// Runner starts workflow executions. Satisfied by *exec.Service.
type Runner interface {
	Execute(ctx context.Context, req exec.Request, sink exec.Sink) (*db.Execution, error)
}

// Service registers webhooks and turns inbound requests into runs.
type Service struct {
	db     *db.DB
	runner Runner
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService creates a webhook service.
func NewService(database *db.DB, runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       database,
		runner:   runner,
		logger:   logger.With("component", "webhook"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Create registers a webhook for a workflow with a random path token.
func (s *Service) Create(workflowID, provider, secret string, ratePerMinute int) (*db.Webhook, error) {
	wf, err := s.db.GetWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, platerr.ErrWorkflowNotFound(workflowID)
	}

	wh := &db.Webhook{
		ID:            uuid.New().String(),
		WorkflowID:    workflowID,
		PathToken:     newPathToken(),
		Provider:      provider,
		Secret:        secret,
		IsActive:      true,
		RatePerMinute: ratePerMinute,
	}
	if err := s.db.SaveWebhook(wh); err != nil {
		return nil, err
	}
	return wh, nil
}

// List returns a workflow's webhooks.
func (s *Service) List(workflowID string) ([]*db.Webhook, error) {
	return s.db.ListWebhooks(workflowID)
}

// Update changes a webhook's provider, secret, active flag, or rate.
func (s *Service) Update(id string, mutate func(*db.Webhook)) (*db.Webhook, error) {
	wh, err := s.db.GetWebhook(id)
	if err != nil {
		return nil, err
	}
	if wh == nil {
		return nil, platerr.ErrWebhookNotFound(id)
	}
	mutate(wh)
	if err := s.db.SaveWebhook(wh); err != nil {
		return nil, err
	}
	s.dropLimiter(wh.PathToken)
	return wh, nil
}

// Delete removes a webhook.
func (s *Service) Delete(id string) error {
	wh, err := s.db.GetWebhook(id)
	if err != nil {
		return err
	}
	if wh == nil {
		return platerr.ErrWebhookNotFound(id)
	}
	if err := s.db.DeleteWebhook(id); err != nil {
		return err
	}
	s.dropLimiter(wh.PathToken)
	return nil
}

// Trigger handles an inbound request on a path token: verifies the secret,
// applies the rate limit, requires an active deployment, and starts the run
// in the background. Returns the execution ID of the started run.
func (s *Service) Trigger(token, providedSecret string, payload map[string]any) (string, error) {
	wh, err := s.db.GetWebhookByToken(token)
	if err != nil {
		return "", err
	}
	if wh == nil || !wh.IsActive {
		return "", platerr.ErrWebhookNotFound(token)
	}
	if wh.Secret != "" && subtle.ConstantTimeCompare([]byte(wh.Secret), []byte(providedSecret)) != 1 {
		return "", platerr.ErrUnauthenticated()
	}
	if !s.limiter(wh).Allow() {
		return "", platerr.ErrRateLimited(token)
	}

	active, err := s.db.GetActiveDeployment(wh.WorkflowID)
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", platerr.ErrNotDeployed(wh.WorkflowID)
	}

	// The started event fires before the engine is contacted, so the
	// caller gets the execution ID without waiting for the run.
	started := make(chan string, 1)
	sink := exec.SinkFunc(func(event string, data []byte) error {
		if event == "execution.started" {
			select {
			case started <- gjson.GetBytes(data, "executionId").String():
			default:
			}
		}
		return nil
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := s.runner.Execute(ctx, exec.Request{
			WorkflowID:    wh.WorkflowID,
			TriggerSource: "webhook",
			Input:         payload,
		}, sink); err != nil {
			s.logger.Warn("webhook run failed", "webhook", wh.ID, "error", err)
		}
	}()

	select {
	case id := <-started:
		return id, nil
	case <-time.After(2 * time.Second):
		// Accepted but the run never surfaced a start event in time.
		return "", nil
	}
}

// limiter returns the token-bucket limiter for a webhook, creating it at
// the webhook's configured rate on first use.
func (s *Service) limiter(wh *db.Webhook) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[wh.PathToken]
	if !ok {
		perMinute := wh.RatePerMinute
		if perMinute <= 0 {
			perMinute = 60
		}
		l = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		s.limiters[wh.PathToken] = l
	}
	return l
}

func (s *Service) dropLimiter(token string) {
	s.mu.Lock()
	delete(s.limiters, token)
	s.mu.Unlock()
}

func newPathToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(buf)
}
