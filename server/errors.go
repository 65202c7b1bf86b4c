package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hupe1980/agentroute/core"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// badRequest marks errors caused by the request itself.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

// statusFor maps an error to its HTTP status: 400 for malformed input,
// 404 for unknown agents and 500 for everything else.
func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br),
		errors.Is(err, core.ErrInvalidCall),
		errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrAgentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) ErrorResponse {
	status := statusFor(err)

	var msg string
	switch status {
	case http.StatusBadRequest:
		msg = "invalid request"
	case http.StatusNotFound:
		msg = "agent not found"
	default:
		msg = "agent execution failed"
	}

	return ErrorResponse{Status: status, Error: msg, Details: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse(err)
	writeJSON(w, resp.Status, resp)
}
