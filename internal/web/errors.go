package web

// errors.go provides unified error response handling for the web layer.
// Technical detail goes to the server log with the request id; the
// client receives the mapped user message and a stable code.

import (
	"errors"
	"net/http"

	"github.com/fabworks/fabtrack/internal/core"
	"github.com/fabworks/fabtrack/internal/logging"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the user-facing
// rendering with a status derived from the error's type.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// respondBadRequest is for request-shape problems the engine never saw:
// missing headers, malformed JSON, absent route params.
func (s *Server) respondBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	logging.FromContext(r.Context()).Warn("bad request",
		"path", r.URL.Path,
		"method", r.Method,
		"reason", message,
	)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   message,
		Message: message,
		Code:    "REQ400",
	})
}

// statusForError maps engine errors to HTTP status codes.
func statusForError(err error) int {
	var inv *core.InvalidTransitionError
	var parse *core.ParseError

	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &inv):
		return http.StatusUnprocessableEntity
	case errors.As(err, &parse):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStoreConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
