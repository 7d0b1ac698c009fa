package api

import (
	"net/http"
	"strings"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/platerr"
)

// cors wraps a handler with CORS headers and OPTIONS handling. The allowed
// origin list comes from config; "*" allows any origin.
func (s *Server) cors(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := allowOrigin(s.allowedOrigins, r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h(w, r)
	}
}

// allowOrigin returns the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not allowed.
func allowOrigin(allowed []string, origin string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if a == origin && origin != "" {
			return origin
		}
	}
	return ""
}

// authed resolves the caller's API key and attaches the actor to the
// request context. Requests without a valid key get 401.
func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFrom(r)
		if key == "" {
			s.handleError(w, platerr.ErrUnauthenticated())
			return
		}
		actor, err := s.auth.Authenticate(key)
		if err != nil {
			s.handleError(w, err)
			return
		}
		h(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	}
}

// apiKeyFrom extracts the API key from the Authorization bearer header or
// the X-API-Key header.
func apiKeyFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// actor returns the authenticated actor. Handlers behind authed always
// have one.
func (s *Server) actor(r *http.Request) *auth.Actor {
	return auth.ActorFrom(r.Context())
}

// requireWorkflowRole checks the caller's role in the workflow's workspace
// and returns the workflow when allowed.
func (s *Server) requireWorkflowRole(r *http.Request, workflowID string, min auth.Role, action string) (*db.Workflow, error) {
	wf, err := s.db.GetWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, platerr.ErrWorkflowNotFound(workflowID)
	}
	if err := s.auth.Require(wf.WorkspaceID, s.actor(r).UserID, min, action); err != nil {
		return nil, err
	}
	return wf, nil
}
