package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/provision"
	"github.com/cs2hvh/cryptocloud/internal/repository"
)

// ServerResponse is the wire form of a server record. Details is the last
// status payload read from the hypervisor, passed through as-is.
type ServerResponse struct {
	ID         int64           `json:"id"`
	VMID       int             `json:"vmid"`
	Node       string          `json:"node"`
	Name       string          `json:"name"`
	IP         string          `json:"ip"`
	OS         string          `json:"os"`
	HostID     string          `json:"hostId"`
	CPUCores   int             `json:"cpuCores"`
	MemoryMB   int             `json:"memoryMB"`
	DiskGB     int             `json:"diskGB,omitempty"`
	Status     string          `json:"status"`
	Details    json.RawMessage `json:"details,omitempty"`
	Error      string          `json:"error,omitempty"`
	OwnerID    string          `json:"ownerId,omitempty"`
	OwnerEmail string          `json:"ownerEmail,omitempty"`
	CreatedAt  string          `json:"createdAt"`
}

func toServerResponse(s domain.Server) ServerResponse {
	resp := ServerResponse{
		ID:         s.ID,
		VMID:       s.VMID,
		Node:       s.Node,
		Name:       s.Name,
		IP:         s.IP,
		OS:         s.OS,
		HostID:     s.HostID,
		CPUCores:   s.CPUCores,
		MemoryMB:   s.MemoryMB,
		DiskGB:     s.DiskGB,
		Status:     s.Status,
		Error:      s.Error,
		OwnerID:    s.OwnerID,
		OwnerEmail: s.OwnerEmail,
		CreatedAt:  s.CreatedAt,
	}
	if json.Valid([]byte(s.Details)) {
		resp.Details = json.RawMessage(s.Details)
	}
	return resp
}

// provisionServerHandler handles POST /api/v0/servers.
//
// Request: a provisioning order (host id, sizing, OS label, cloud-init
// password). Runs the full clone/configure/start sequence synchronously and
// responds with the guest's identity and bookkeeping state.
func (a *API) provisionServerHandler(w http.ResponseWriter, r *http.Request) {
	var req provision.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := a.provisioner.Provision(r.Context(), req)
	if err != nil {
		writeProvisionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) listServersHandler(w http.ResponseWriter, r *http.Request) {
	var servers []domain.Server
	var err error
	if ownerID := r.URL.Query().Get("ownerId"); ownerID != "" {
		servers, err = a.serverRepo.FindByOwnerID(r.Context(), ownerID)
	} else {
		servers, err = a.serverRepo.FindAll(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list servers")
		return
	}

	response := make([]ServerResponse, len(servers))
	for i, s := range servers {
		response[i] = toServerResponse(s)
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) getServerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid server ID")
		return
	}

	server, err := a.serverRepo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get server")
		return
	}

	writeJSON(w, http.StatusOK, toServerResponse(server))
}

// deleteServerHandler removes the record and releases its address. The guest
// itself is not touched on the hypervisor; releasing a half-created guest's
// address is an explicit operator decision.
func (a *API) deleteServerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid server ID")
		return
	}

	if err := a.serverRepo.DeleteByID(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete server")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type powerRequest struct {
	Action  string `json:"action"`
	OwnerID string `json:"ownerId"`
}

// powerServerHandler handles POST /api/v0/servers/{id}/power with a body of
// {"action": "start"|"stop"|"shutdown"|"reboot"}. When ownerId is present
// the server must belong to that owner; otherwise the record does not exist
// as far as the caller is concerned.
func (a *API) powerServerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid server ID")
		return
	}

	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := a.provisioner.Power(r.Context(), id, req.Action, req.OwnerID)
	if err != nil {
		writeProvisionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
