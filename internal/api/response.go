package api

import (
	"encoding/json"
	"net/http"

	"github.com/randalmurphal/flowd/internal/platerr"
)

// APIError is the standard error response format.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// jsonResponseStatus writes a JSON response with a specific status code.
func (s *Server) jsonResponseStatus(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError writes a simple error response.
func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{Error: message})
}

// handleError inspects the error type and writes the matching response.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	if pe := platerr.As(err); pe != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(pe.HTTPStatus())
		_ = json.NewEncoder(w).Encode(APIError{Error: pe.What, Code: string(pe.Code)})
		return
	}
	s.jsonError(w, err.Error(), http.StatusInternalServerError)
}

// noContent writes a 204 No Content response.
func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
