package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/proxmox"
	"github.com/cs2hvh/cryptocloud/internal/repository"
)

type HostRequest struct {
	Name             string `json:"name"`
	HostURL          string `json:"hostUrl"`
	AllowInsecureTLS bool   `json:"allowInsecureTls"`
	TokenID          string `json:"tokenId"`
	TokenSecret      string `json:"tokenSecret"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	Node             string `json:"node"`
	Storage          string `json:"storage"`
	Bridge           string `json:"bridge"`
	GatewayIP        string `json:"gatewayIp"`
	DNSPrimary       string `json:"dnsPrimary"`
	DNSSecondary     string `json:"dnsSecondary"`
	TemplateVMID     int    `json:"templateVmid"`
	Active           *bool  `json:"active"`
}

// HostResponse never carries the token secret or password; only whether a
// credential of each kind is on file.
type HostResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	HostURL          string `json:"hostUrl"`
	AllowInsecureTLS bool   `json:"allowInsecureTls"`
	TokenID          string `json:"tokenId,omitempty"`
	HasToken         bool   `json:"hasToken"`
	HasPassword      bool   `json:"hasPassword"`
	Node             string `json:"node"`
	Storage          string `json:"storage"`
	Bridge           string `json:"bridge"`
	GatewayIP        string `json:"gatewayIp"`
	DNSPrimary       string `json:"dnsPrimary"`
	DNSSecondary     string `json:"dnsSecondary,omitempty"`
	TemplateVMID     int    `json:"templateVmid,omitempty"`
	Active           bool   `json:"active"`
	CreatedAt        string `json:"createdAt"`
}

func toHostResponse(h domain.Host) HostResponse {
	return HostResponse{
		ID:               h.ID,
		Name:             h.Name,
		HostURL:          h.HostURL,
		AllowInsecureTLS: h.AllowInsecureTLS,
		TokenID:          h.TokenID,
		HasToken:         h.TokenID != "" && h.TokenSecret != "",
		HasPassword:      h.Username != "" && h.Password != "",
		Node:             h.Node,
		Storage:          h.Storage,
		Bridge:           h.Bridge,
		GatewayIP:        h.GatewayIP,
		DNSPrimary:       h.DNSPrimary,
		DNSSecondary:     h.DNSSecondary,
		TemplateVMID:     h.TemplateVMID,
		Active:           h.Active,
		CreatedAt:        h.CreatedAt,
	}
}

func (req HostRequest) toDomain(existing domain.Host) domain.Host {
	host := existing
	host.Name = req.Name
	host.HostURL = req.HostURL
	host.AllowInsecureTLS = req.AllowInsecureTLS
	host.Node = req.Node
	host.Storage = req.Storage
	host.Bridge = req.Bridge
	host.GatewayIP = req.GatewayIP
	host.DNSPrimary = req.DNSPrimary
	host.DNSSecondary = req.DNSSecondary
	host.TemplateVMID = req.TemplateVMID
	// Omitted credentials keep their stored values so an edit does not
	// require re-entering secrets.
	if req.TokenID != "" {
		host.TokenID = req.TokenID
	}
	if req.TokenSecret != "" {
		host.TokenSecret = req.TokenSecret
	}
	if req.Username != "" {
		host.Username = req.Username
	}
	if req.Password != "" {
		host.Password = req.Password
	}
	if req.Active != nil {
		host.Active = *req.Active
	}
	return host
}

func (a *API) listHostsHandler(w http.ResponseWriter, r *http.Request) {
	hosts, err := a.hostRepo.FindAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hosts")
		return
	}

	response := make([]HostResponse, len(hosts))
	for i, h := range hosts {
		response[i] = toHostResponse(h)
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) createHostHandler(w http.ResponseWriter, r *http.Request) {
	var req HostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" || req.HostURL == "" || req.Node == "" {
		writeError(w, http.StatusBadRequest, "Name, HostURL, and Node are required")
		return
	}

	host := req.toDomain(domain.Host{Active: true})
	created, err := a.hostRepo.Save(r.Context(), host)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidEntity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create host")
		return
	}

	writeJSON(w, http.StatusCreated, toHostResponse(created))
}

func (a *API) getHostHandler(w http.ResponseWriter, r *http.Request) {
	host, ok := a.findHost(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toHostResponse(host))
}

func (a *API) updateHostHandler(w http.ResponseWriter, r *http.Request) {
	host, ok := a.findHost(w, r)
	if !ok {
		return
	}

	var req HostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" || req.HostURL == "" || req.Node == "" {
		writeError(w, http.StatusBadRequest, "Name, HostURL, and Node are required")
		return
	}

	updated, err := a.hostRepo.Save(r.Context(), req.toDomain(host))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidEntity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update host")
		return
	}

	writeJSON(w, http.StatusOK, toHostResponse(updated))
}

func (a *API) deleteHostHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.hostRepo.DeleteByID(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Host not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete host")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HostHealthResponse reports reachability and credential state for one host.
type HostHealthResponse struct {
	OK        bool              `json:"ok"`
	Host      string            `json:"host"`
	Reachable bool              `json:"reachable"`
	Version   *proxmox.Version  `json:"version,omitempty"`
	Auth      HostHealthAuth    `json:"auth"`
	Nodes     []proxmox.Node    `json:"nodes,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type HostHealthAuth struct {
	Method        string `json:"method,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// hostHealthHandler probes a host in three steps: an unauthenticated version
// read for reachability, then authentication, then an authenticated node
// listing. Each step's failure is reported rather than aborting the probe.
func (a *API) hostHealthHandler(w http.ResponseWriter, r *http.Request) {
	host, ok := a.findHost(w, r)
	if !ok {
		return
	}

	client := a.newClient(host)
	result := HostHealthResponse{Host: host.HostURL}

	version, err := client.GetVersion(r.Context())
	if err != nil {
		var httpErr *proxmox.HTTPError
		// Any HTTP response means the host is reachable, even a 401.
		if errors.As(err, &httpErr) {
			result.Reachable = true
		}
		result.Error = err.Error()
	} else {
		result.Reachable = true
		result.Version = &version
	}

	auth, err := client.Authenticate(r.Context(), proxmox.Credentials{
		TokenID:     host.TokenID,
		TokenSecret: host.TokenSecret,
		Username:    host.Username,
		Password:    host.Password,
	})
	if err != nil {
		if result.Error == "" {
			result.Error = err.Error()
		}
		writeJSON(w, http.StatusOK, result)
		return
	}
	result.Auth = HostHealthAuth{Method: auth.Method(), Authenticated: true}

	if nodes, err := client.Nodes(r.Context(), auth); err == nil {
		result.Nodes = nodes
	}
	result.OK = result.Reachable && result.Auth.Authenticated

	writeJSON(w, http.StatusOK, result)
}

// HostVMsResponse is the live guest inventory of one host.
type HostVMsResponse struct {
	OK   bool         `json:"ok"`
	Host string       `json:"host"`
	VMs  []proxmox.VM `json:"vms"`
}

// hostVMsHandler lists qemu and lxc guests on the host's node, fetched
// concurrently.
func (a *API) hostVMsHandler(w http.ResponseWriter, r *http.Request) {
	host, ok := a.findHost(w, r)
	if !ok {
		return
	}

	client := a.newClient(host)
	auth, err := client.Authenticate(r.Context(), proxmox.Credentials{
		TokenID:     host.TokenID,
		TokenSecret: host.TokenSecret,
		Username:    host.Username,
		Password:    host.Password,
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:        err.Error(),
			ErrorDetails: serializeError(err),
		})
		return
	}

	var qemu, lxc []proxmox.VM
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		qemu, err = client.ListQemu(ctx, auth, host.Node)
		return err
	})
	g.Go(func() error {
		var err error
		lxc, err = client.ListLXC(ctx, auth, host.Node)
		return err
	})
	if err := g.Wait(); err != nil {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:        err.Error(),
			ErrorDetails: serializeError(err),
		})
		return
	}

	vms := make([]proxmox.VM, 0, len(qemu)+len(lxc))
	for _, vm := range qemu {
		vm.Type = "qemu"
		vms = append(vms, vm)
	}
	for _, vm := range lxc {
		vm.Type = "lxc"
		vms = append(vms, vm)
	}

	writeJSON(w, http.StatusOK, HostVMsResponse{OK: true, Host: host.HostURL, VMs: vms})
}

// findHost resolves the {id} URL parameter to a host, writing the error
// response itself when resolution fails.
func (a *API) findHost(w http.ResponseWriter, r *http.Request) (domain.Host, bool) {
	host, err := a.hostRepo.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Host not found")
			return domain.Host{}, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get host")
		return domain.Host{}, false
	}
	return host, true
}

type PoolEntryRequest struct {
	IP   string `json:"ip"`
	MAC  string `json:"mac"`
	Pool string `json:"pool"`
}

type PoolEntryResponse struct {
	ID        int64  `json:"id"`
	HostID    string `json:"hostId"`
	IP        string `json:"ip"`
	MAC       string `json:"mac"`
	Pool      string `json:"pool"`
	CreatedAt string `json:"createdAt"`
}

func (a *API) listPoolEntriesHandler(w http.ResponseWriter, r *http.Request) {
	host, ok := a.findHost(w, r)
	if !ok {
		return
	}

	entries, err := a.poolRepo.FindByHostID(r.Context(), host.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pool entries")
		return
	}

	response := make([]PoolEntryResponse, len(entries))
	for i, e := range entries {
		response[i] = PoolEntryResponse{
			ID: e.ID, HostID: e.HostID, IP: e.IP, MAC: e.MAC, Pool: e.Pool, CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) createPoolEntryHandler(w http.ResponseWriter, r *http.Request) {
	host, ok := a.findHost(w, r)
	if !ok {
		return
	}

	var req PoolEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	entry, err := a.poolRepo.Save(r.Context(), domain.IPPoolEntry{
		HostID: host.ID,
		IP:     req.IP,
		MAC:    req.MAC,
		Pool:   req.Pool,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidEntity):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrDuplicate):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Failed to create pool entry")
		}
		return
	}

	writeJSON(w, http.StatusCreated, PoolEntryResponse{
		ID: entry.ID, HostID: entry.HostID, IP: entry.IP, MAC: entry.MAC, Pool: entry.Pool, CreatedAt: entry.CreatedAt,
	})
}

func (a *API) deletePoolEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pool entry ID")
		return
	}

	if err := a.poolRepo.DeleteByID(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Pool entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete pool entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type TemplateRequest struct {
	Name   string `json:"name"`
	VMID   int    `json:"vmid"`
	Active *bool  `json:"active"`
}

type TemplateResponse struct {
	ID     int64  `json:"id"`
	HostID string `json:"hostId"`
	Name   string `json:"name"`
	VMID   int    `json:"vmid"`
	Active bool   `json:"active"`
}

func (a *API) listTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	host, ok := a.findHost(w, r)
	if !ok {
		return
	}

	templates, err := a.templateRepo.FindByHostID(r.Context(), host.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	response := make([]TemplateResponse, len(templates))
	for i, t := range templates {
		response[i] = TemplateResponse{ID: t.ID, HostID: t.HostID, Name: t.Name, VMID: t.VMID, Active: t.Active}
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) createTemplateHandler(w http.ResponseWriter, r *http.Request) {
	host, ok := a.findHost(w, r)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" || req.VMID <= 0 {
		writeError(w, http.StatusBadRequest, "Name and a positive VMID are required")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	tpl, err := a.templateRepo.Save(r.Context(), domain.Template{
		HostID: host.ID,
		Name:   req.Name,
		VMID:   req.VMID,
		Active: active,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	writeJSON(w, http.StatusCreated, TemplateResponse{ID: tpl.ID, HostID: tpl.HostID, Name: tpl.Name, VMID: tpl.VMID, Active: tpl.Active})
}

func (a *API) deleteTemplateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "templateID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid template ID")
		return
	}

	if err := a.templateRepo.DeleteByID(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Template not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
