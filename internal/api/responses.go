package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/cs2hvh/cryptocloud/internal/provision"
	"github.com/cs2hvh/cryptocloud/internal/proxmox"
	"github.com/cs2hvh/cryptocloud/internal/repository"
)

// ErrorResponse is the uniform failure shape for every endpoint.
type ErrorResponse struct {
	OK           bool          `json:"ok"`
	Error        string        `json:"error"`
	ErrorDetails *ErrorDetails `json:"errorDetails,omitempty"`
}

// ErrorDetails carries a classified view of an internal failure. Credentials
// never appear here; Cause is the next error down the chain, not the full
// stack.
type ErrorDetails struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeProvisionError maps the provisioning error taxonomy onto HTTP
// statuses: bad input 400, unknown host 404, lost address race 409,
// everything after the reservation 500.
func writeProvisionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provision.ErrValidation), errors.Is(err, provision.ErrConfiguration):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, provision.ErrHostNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, http.StatusConflict, "IP already in use")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:        err.Error(),
			ErrorDetails: serializeError(err),
		})
	}
}

func serializeError(err error) *ErrorDetails {
	if err == nil {
		return nil
	}
	details := &ErrorDetails{
		Name:    errorName(err),
		Message: err.Error(),
	}
	var httpErr *proxmox.HTTPError
	if errors.As(err, &httpErr) {
		details.Code = httpErr.Status
	}
	if cause := errors.Unwrap(err); cause != nil && cause.Error() != err.Error() {
		details.Cause = cause.Error()
	}
	return details
}

func errorName(err error) string {
	var httpErr *proxmox.HTTPError
	var taskErr *proxmox.TaskError
	switch {
	case errors.Is(err, proxmox.ErrAuthFailed):
		return "AuthError"
	case errors.Is(err, proxmox.ErrTaskTimeout):
		return "TimeoutError"
	case errors.As(err, &httpErr):
		return "HttpError"
	case errors.As(err, &taskErr):
		return "TaskError"
	case errors.Is(err, provision.ErrValidation):
		return "ValidationError"
	case errors.Is(err, provision.ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, repository.ErrDuplicate):
		return "ConflictError"
	default:
		return "Error"
	}
}
