// Package api provides the REST API, SSE streams, and WebSocket server for
// flowd.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/config"
	"github.com/randalmurphal/flowd/internal/copilot"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/deploy"
	"github.com/randalmurphal/flowd/internal/events"
	"github.com/randalmurphal/flowd/internal/exec"
	"github.com/randalmurphal/flowd/internal/template"
	"github.com/randalmurphal/flowd/internal/webhook"
)

// Server is the flowd API server.
type Server struct {
	addr           string
	mux            *http.ServeMux
	logger         *slog.Logger
	allowedOrigins []string

	db        *db.DB
	auth      *auth.Service
	deploy    *deploy.Service
	exec      *exec.Service
	copilot   *copilot.Service
	templates *template.Service
	webhooks  *webhook.Service

	publisher events.Publisher
	wsHandler *WSHandler
}

// Config holds server wiring.
type Config struct {
	Addr      string
	Logger    *slog.Logger
	DB        *db.DB
	Publisher events.Publisher
	Platform  *config.Config
}

// New creates a new API server with its services wired against the
// database and the platform config.
func New(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = events.NewMemoryPublisher()
	}
	plat := cfg.Platform
	if plat == nil {
		plat = config.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = plat.Addr()
	}

	engine := exec.NewEngineClient(plat.Engine.Endpoint, plat.Engine.APIKey,
		time.Duration(plat.Engine.TimeoutSeconds)*time.Second)
	execSvc := exec.NewService(cfg.DB, engine, pub, logger)

	s := &Server{
		addr:           addr,
		mux:            http.NewServeMux(),
		logger:         logger,
		allowedOrigins: plat.Server.AllowedOrigins,
		db:             cfg.DB,
		auth:           auth.NewService(cfg.DB),
		deploy:         deploy.NewService(cfg.DB, logger),
		exec:           execSvc,
		copilot:        copilot.NewService(cfg.DB, pub, plat.Copilot.Endpoint, plat.Copilot.APIKey, plat.Copilot.Model, logger),
		templates:      template.NewService(cfg.DB, logger),
		webhooks:       webhook.NewService(cfg.DB, execSvc, logger),
		publisher:      pub,
	}
	s.wsHandler = NewWSHandler(pub, plat.Server.AllowedOrigins, logger)

	s.registerRoutes()
	return s
}

// Start runs the server until the listener fails.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}

// StartContext runs the server and shuts it down gracefully when the
// context is cancelled.
func (s *Server) StartContext(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", s.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		s.wsHandler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"})
}
