// Package platerr provides structured error types for the platform API.
package platerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes surfaced by the platform.
const (
	// Auth errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"

	// Workspace errors
	CodeWorkspaceNotFound Code = "WORKSPACE_NOT_FOUND"

	// Workflow errors
	CodeWorkflowNotFound Code = "WORKFLOW_NOT_FOUND"
	CodeStateInvalid     Code = "WORKFLOW_STATE_INVALID"

	// Deployment errors
	CodeVersionNotFound Code = "DEPLOYMENT_VERSION_NOT_FOUND"
	CodeNotDeployed     Code = "WORKFLOW_NOT_DEPLOYED"
	CodeVersionConflict Code = "DEPLOYMENT_VERSION_CONFLICT"

	// Execution errors
	CodeExecutionNotFound Code = "EXECUTION_NOT_FOUND"
	CodeEngineUnavailable Code = "ENGINE_UNAVAILABLE"

	// Copilot errors
	CodeChatNotFound Code = "CHAT_NOT_FOUND"

	// Template errors
	CodeTemplateNotFound Code = "TEMPLATE_NOT_FOUND"
	CodeAlreadyStarred   Code = "TEMPLATE_ALREADY_STARRED"

	// Webhook errors
	CodeWebhookNotFound Code = "WEBHOOK_NOT_FOUND"
	CodeRateLimited     Code = "RATE_LIMITED"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryUnauthenticated
	CategoryForbidden
	CategoryConflict
	CategoryRateLimited
	CategoryUnavailable
	CategoryInternal
)

var codeCategories = map[Code]Category{
	CodeUnauthenticated:   CategoryUnauthenticated,
	CodeForbidden:         CategoryForbidden,
	CodeWorkspaceNotFound: CategoryNotFound,
	CodeWorkflowNotFound:  CategoryNotFound,
	CodeStateInvalid:      CategoryBadRequest,
	CodeVersionNotFound:   CategoryNotFound,
	CodeNotDeployed:       CategoryBadRequest,
	CodeVersionConflict:   CategoryConflict,
	CodeExecutionNotFound: CategoryNotFound,
	CodeEngineUnavailable: CategoryUnavailable,
	CodeChatNotFound:      CategoryNotFound,
	CodeTemplateNotFound:  CategoryNotFound,
	CodeAlreadyStarred:    CategoryConflict,
	CodeWebhookNotFound:   CategoryNotFound,
	CodeRateLimited:       CategoryRateLimited,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryBadRequest:
		return http.StatusBadRequest
	case CategoryUnauthenticated:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryConflict:
		return http.StatusConflict
	case CategoryRateLimited:
		return http.StatusTooManyRequests
	case CategoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error type for the platform.
type Error struct {
	Code  Code   `json:"code"`
	What  string `json:"error"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Category returns the error category for HTTP status mapping.
func (e *Error) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON includes the cause message when present.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{alias: (*alias)(e)}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a platform Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause attached.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, What: e.What, Why: e.Why, Fix: e.Fix, Cause: err}
}

// As attempts to convert an error to a platform Error, returning nil when the
// chain contains none.
func As(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

// --- Constructors ---

// ErrUnauthenticated returns an error for missing or invalid credentials.
func ErrUnauthenticated() *Error {
	return &Error{
		Code: CodeUnauthenticated,
		What: "authentication required",
		Why:  "No valid API key or session token was supplied",
		Fix:  "Pass an X-API-Key header or a Bearer session token",
	}
}

// ErrForbidden returns an error for insufficient workspace permissions.
func ErrForbidden(action string) *Error {
	return &Error{
		Code: CodeForbidden,
		What: fmt.Sprintf("permission denied for %s", action),
		Why:  "Your workspace role does not allow this operation",
		Fix:  "Ask a workspace admin to raise your role",
	}
}

// ErrWorkspaceNotFound returns an error for a missing workspace.
func ErrWorkspaceNotFound(id string) *Error {
	return &Error{
		Code: CodeWorkspaceNotFound,
		What: fmt.Sprintf("workspace %s not found", id),
	}
}

// ErrWorkflowNotFound returns an error for a missing workflow.
func ErrWorkflowNotFound(id string) *Error {
	return &Error{
		Code: CodeWorkflowNotFound,
		What: fmt.Sprintf("workflow %s not found", id),
	}
}

// ErrStateInvalid returns an error for a workflow state that failed
// validation.
func ErrStateInvalid(reason error) *Error {
	return &Error{
		Code:  CodeStateInvalid,
		What:  "workflow state is invalid",
		Why:   reason.Error(),
		Fix:   "Fix the listed graph problems and save again",
		Cause: reason,
	}
}

// ErrVersionNotFound returns an error for a missing deployment version.
func ErrVersionNotFound(workflowID string, version int) *Error {
	return &Error{
		Code: CodeVersionNotFound,
		What: fmt.Sprintf("deployment version %d of workflow %s not found", version, workflowID),
	}
}

// ErrNotDeployed returns an error when an operation needs an active
// deployment.
func ErrNotDeployed(workflowID string) *Error {
	return &Error{
		Code: CodeNotDeployed,
		What: fmt.Sprintf("workflow %s has no active deployment", workflowID),
		Fix:  "Deploy the workflow before triggering it externally",
	}
}

// ErrVersionConflict returns an error when concurrent deployment writes
// collide.
func ErrVersionConflict(workflowID string) *Error {
	return &Error{
		Code: CodeVersionConflict,
		What: fmt.Sprintf("concurrent deployment of workflow %s", workflowID),
		Why:  "Another deployment was created while this one was in flight",
		Fix:  "Reload the deployment list and retry",
	}
}

// ErrExecutionNotFound returns an error for a missing execution.
func ErrExecutionNotFound(id string) *Error {
	return &Error{
		Code: CodeExecutionNotFound,
		What: fmt.Sprintf("execution %s not found", id),
	}
}

// ErrEngineUnavailable returns an error when the execution engine cannot be
// reached.
func ErrEngineUnavailable(cause error) *Error {
	return &Error{
		Code:  CodeEngineUnavailable,
		What:  "execution engine is unavailable",
		Why:   "The agent service did not accept the run request",
		Fix:   "Check the engine endpoint in flowd.yaml and the service's health",
		Cause: cause,
	}
}

// ErrChatNotFound returns an error for a missing copilot chat.
func ErrChatNotFound(id string) *Error {
	return &Error{
		Code: CodeChatNotFound,
		What: fmt.Sprintf("chat %s not found", id),
	}
}

// ErrTemplateNotFound returns an error for a missing template.
func ErrTemplateNotFound(id string) *Error {
	return &Error{
		Code: CodeTemplateNotFound,
		What: fmt.Sprintf("template %s not found", id),
	}
}

// ErrAlreadyStarred returns an error for a duplicate star.
func ErrAlreadyStarred(templateID string) *Error {
	return &Error{
		Code: CodeAlreadyStarred,
		What: fmt.Sprintf("template %s is already starred", templateID),
	}
}

// ErrWebhookNotFound returns an error for a missing webhook.
func ErrWebhookNotFound(id string) *Error {
	return &Error{
		Code: CodeWebhookNotFound,
		What: fmt.Sprintf("webhook %s not found", id),
	}
}

// ErrRateLimited returns an error when a webhook trigger exceeds its rate.
func ErrRateLimited(token string) *Error {
	return &Error{
		Code: CodeRateLimited,
		What: fmt.Sprintf("webhook %s is being triggered too fast", token),
		Fix:  "Slow the caller down or raise the webhook's rate limit",
	}
}
