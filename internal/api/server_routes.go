package api

import "net/http"

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	cors := s.cors
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return cors(s.authed(h))
	}

	// Health check
	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))

	// Workspaces and membership
	s.mux.HandleFunc("GET /api/workspaces", authed(s.handleListWorkspaces))
	s.mux.HandleFunc("POST /api/workspaces", authed(s.handleCreateWorkspace))
	s.mux.HandleFunc("GET /api/workspaces/{id}", authed(s.handleGetWorkspace))
	s.mux.HandleFunc("PATCH /api/workspaces/{id}", authed(s.handleUpdateWorkspace))
	s.mux.HandleFunc("DELETE /api/workspaces/{id}", authed(s.handleDeleteWorkspace))
	s.mux.HandleFunc("GET /api/workspaces/{id}/members", authed(s.handleListMembers))
	s.mux.HandleFunc("PUT /api/workspaces/{id}/members/{userId}", authed(s.handleUpsertMember))
	s.mux.HandleFunc("DELETE /api/workspaces/{id}/members/{userId}", authed(s.handleRemoveMember))

	// Workflows
	s.mux.HandleFunc("GET /api/workspaces/{id}/workflows", authed(s.handleListWorkflows))
	s.mux.HandleFunc("POST /api/workspaces/{id}/workflows", authed(s.handleCreateWorkflow))
	s.mux.HandleFunc("GET /api/workflows/{id}", authed(s.handleGetWorkflow))
	s.mux.HandleFunc("PATCH /api/workflows/{id}", authed(s.handleUpdateWorkflow))
	s.mux.HandleFunc("DELETE /api/workflows/{id}", authed(s.handleDeleteWorkflow))

	// Workflow graph state
	s.mux.HandleFunc("GET /api/workflows/{id}/state", authed(s.handleGetWorkflowState))
	s.mux.HandleFunc("PUT /api/workflows/{id}/state", authed(s.handleSaveWorkflowState))
	s.mux.HandleFunc("POST /api/workflows/{id}/validate", authed(s.handleValidateWorkflow))

	// Deployments
	s.mux.HandleFunc("POST /api/workflows/{id}/deploy", authed(s.handleDeployWorkflow))
	s.mux.HandleFunc("GET /api/workflows/{id}/deploy/status", authed(s.handleDeployStatus))
	s.mux.HandleFunc("DELETE /api/workflows/{id}/deploy", authed(s.handleUndeployWorkflow))
	s.mux.HandleFunc("GET /api/workflows/{id}/deployments", authed(s.handleListDeployments))
	s.mux.HandleFunc("GET /api/workflows/{id}/deployments/{version}", authed(s.handleGetDeployment))
	s.mux.HandleFunc("POST /api/workflows/{id}/deployments/{version}/activate", authed(s.handleActivateDeployment))

	// Execution
	s.mux.HandleFunc("POST /api/workflows/{id}/execute", authed(s.handleExecuteWorkflow))
	s.mux.HandleFunc("GET /api/workflows/{id}/executions", authed(s.handleListExecutions))
	s.mux.HandleFunc("GET /api/executions/{id}", authed(s.handleGetExecution))
	s.mux.HandleFunc("POST /api/executions/{id}/cancel", authed(s.handleCancelExecution))

	// Copilot
	s.mux.HandleFunc("GET /api/copilot/chats", authed(s.handleListChats))
	s.mux.HandleFunc("POST /api/copilot/chats", authed(s.handleCreateChat))
	s.mux.HandleFunc("GET /api/copilot/chats/{id}", authed(s.handleGetChat))
	s.mux.HandleFunc("DELETE /api/copilot/chats/{id}", authed(s.handleDeleteChat))
	s.mux.HandleFunc("POST /api/copilot/chats/{id}/messages", authed(s.handleSendChatMessage))

	// Templates
	s.mux.HandleFunc("GET /api/templates", authed(s.handleListTemplates))
	s.mux.HandleFunc("GET /api/templates/popular", authed(s.handlePopularTemplates))
	s.mux.HandleFunc("POST /api/templates", authed(s.handlePublishTemplate))
	s.mux.HandleFunc("GET /api/templates/{id}", authed(s.handleGetTemplate))
	s.mux.HandleFunc("DELETE /api/templates/{id}", authed(s.handleDeleteTemplate))
	s.mux.HandleFunc("POST /api/templates/{id}/star", authed(s.handleStarTemplate))
	s.mux.HandleFunc("DELETE /api/templates/{id}/star", authed(s.handleUnstarTemplate))
	s.mux.HandleFunc("POST /api/templates/{id}/use", authed(s.handleUseTemplate))

	// Webhook management
	s.mux.HandleFunc("GET /api/workflows/{id}/webhooks", authed(s.handleListWebhooks))
	s.mux.HandleFunc("POST /api/workflows/{id}/webhooks", authed(s.handleCreateWebhook))
	s.mux.HandleFunc("PATCH /api/webhooks/{id}", authed(s.handleUpdateWebhook))
	s.mux.HandleFunc("DELETE /api/webhooks/{id}", authed(s.handleDeleteWebhook))

	// Public webhook trigger: authenticated by the path token and the
	// webhook secret, not by an API key.
	s.mux.HandleFunc("POST /api/hooks/{token}", cors(s.handleTriggerWebhook))

	// WebSocket for collaborative editing and live updates
	s.mux.HandleFunc("GET /api/ws", s.wsHandler.ServeHTTP)
}
