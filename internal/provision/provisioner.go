package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/metrics"
	"github.com/cs2hvh/cryptocloud/internal/proxmox"
	"github.com/cs2hvh/cryptocloud/internal/repository"
)

const (
	defaultCPUCores = 2
	defaultMemoryMB = 2048

	cloudInitUser = "ubuntu"
	sshPort       = 22

	// powerPollTimeout bounds the single best-effort task check after a
	// power action; power is fire-and-check, not fire-and-wait.
	powerPollTimeout = 8 * time.Second
)

// Request is a provisioning order as accepted on the wire.
type Request struct {
	HostID      string `json:"hostId"`
	Hostname    string `json:"hostname"`
	OS          string `json:"os"`
	CPUCores    int    `json:"cpuCores"`
	MemoryMB    int    `json:"memoryMB"`
	DiskGB      int    `json:"diskGB"`
	SSHPassword string `json:"sshPassword"`
	IPPrimary   string `json:"ipPrimary"`
	MAC         string `json:"mac"`
	OwnerID     string `json:"ownerId"`
	OwnerEmail  string `json:"ownerEmail"`
}

// Specs echoes the requested sizing back to the caller.
type Specs struct {
	CPUCores int `json:"cpuCores"`
	MemoryMB int `json:"memoryMB"`
	DiskGB   int `json:"diskGB,omitempty"`
}

// SSHInfo tells the caller how to reach the guest.
type SSHInfo struct {
	Username string `json:"username"`
	Port     int    `json:"port"`
}

// DBInfo reports whether the final bookkeeping write landed. Saved false
// with a populated Error means the guest exists on the hypervisor but the
// record still shows the reservation-time state.
type DBInfo struct {
	Saved bool   `json:"saved"`
	ID    int64  `json:"id"`
	Error string `json:"error,omitempty"`
}

// Result is the success payload of a provisioning run.
type Result struct {
	OK       bool           `json:"ok"`
	Node     string         `json:"node"`
	VMID     int            `json:"vmid"`
	Name     string         `json:"name"`
	IP       string         `json:"ip"`
	OS       string         `json:"os"`
	Location string         `json:"location"`
	Specs    Specs          `json:"specs"`
	Status   string         `json:"status"`
	Details  map[string]any `json:"details"`
	SSH      SSHInfo        `json:"ssh"`
	DB       DBInfo         `json:"db"`
}

// PowerResult is the payload of a power action.
type PowerResult struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
	VMID   int    `json:"vmid"`
	Node   string `json:"node"`
	Status string `json:"status,omitempty"`
}

// ClientFactory builds a hypervisor client for a host profile.
type ClientFactory func(host domain.Host) *proxmox.Client

// Provisioner sequences a provisioning request from validation to a terminal
// record state. One Provisioner serves all requests; each run is independent
// and the only cross-request arbitration is the datastore's unique address
// constraint.
type Provisioner struct {
	hosts     repository.HostRepository
	servers   repository.ServerRepository
	allocator *Allocator
	resolver  *Resolver
	metrics   *metrics.Metrics
	newClient ClientFactory

	cloneTimeout time.Duration
	startTimeout time.Duration
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithClientFactory replaces how hypervisor clients are built. Used by tests
// to point hosts at a stub server.
func WithClientFactory(f ClientFactory) ProvisionerOption {
	return func(p *Provisioner) { p.newClient = f }
}

// WithTaskTimeouts overrides the clone and start task deadlines.
func WithTaskTimeouts(clone, start time.Duration) ProvisionerOption {
	return func(p *Provisioner) {
		p.cloneTimeout = clone
		p.startTimeout = start
	}
}

func NewProvisioner(
	hosts repository.HostRepository,
	servers repository.ServerRepository,
	allocator *Allocator,
	resolver *Resolver,
	mx *metrics.Metrics,
	opts ...ProvisionerOption,
) *Provisioner {
	p := &Provisioner{
		hosts:     hosts,
		servers:   servers,
		allocator: allocator,
		resolver:  resolver,
		metrics:   mx,
		newClient: func(host domain.Host) *proxmox.Client {
			return proxmox.New(host.HostURL, host.AllowInsecureTLS)
		},
		cloneTimeout: 180 * time.Second,
		startTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision runs the full sequence: validate, reserve an address, then
// authenticate, resolve a template, clone, configure, optionally resize,
// start, and finalize the record. Failures between reservation and start
// mark the record failed with the triggering error before returning.
func (p *Provisioner) Provision(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	res, err := p.provision(ctx, req)
	p.metrics.ObserveProvisionDuration(time.Since(started))
	p.metrics.IncProvision(provisionOutcome(err))
	return res, err
}

func provisionOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, repository.ErrDuplicate):
		return "conflict"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrHostNotFound):
		return "rejected"
	default:
		return "failed"
	}
}

func (p *Provisioner) provision(ctx context.Context, req Request) (Result, error) {
	req = applyDefaults(req)
	if req.SSHPassword == "" {
		return Result{}, fmt.Errorf("%w: sshPassword is required", ErrValidation)
	}
	if req.HostID == "" {
		return Result{}, fmt.Errorf("%w: hostId is required", ErrValidation)
	}

	host, err := p.hosts.FindActiveByID(ctx, req.HostID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrHostNotFound, req.HostID)
		}
		return Result{}, fmt.Errorf("load host: %w", err)
	}
	if host.Node == "" {
		return Result{}, fmt.Errorf("%w: host %s has no node configured", ErrConfiguration, host.Name)
	}
	if host.GatewayIP == "" {
		return Result{}, fmt.Errorf("%w: host %s has no gateway configured", ErrConfiguration, host.Name)
	}

	record := domain.Server{
		Node:       host.Node,
		Name:       req.Hostname,
		IP:         req.IPPrimary,
		OS:         req.OS,
		HostID:     host.ID,
		CPUCores:   req.CPUCores,
		MemoryMB:   req.MemoryMB,
		DiskGB:     req.DiskGB,
		OwnerID:    req.OwnerID,
		OwnerEmail: req.OwnerEmail,
	}
	record, mac, err := p.allocator.Reserve(ctx, host, record, req.MAC)
	if err != nil {
		return Result{}, err
	}

	// From here on the reservation row exists and must not be left in
	// provisioning on failure.
	client := p.newClient(host)

	auth, err := client.Authenticate(ctx, proxmox.Credentials{
		TokenID:     host.TokenID,
		TokenSecret: host.TokenSecret,
		Username:    host.Username,
		Password:    host.Password,
	})
	if err != nil {
		return Result{}, p.fail(ctx, record.ID, err)
	}

	templateID, err := p.resolver.Resolve(ctx, client, auth, host, req.OS)
	if err != nil {
		return Result{}, p.fail(ctx, record.ID, err)
	}

	vmid, err := client.NextID(ctx, auth)
	if err != nil {
		return Result{}, p.fail(ctx, record.ID, err)
	}

	upid, err := client.Clone(ctx, auth, host.Node, templateID, vmid, req.Hostname, host.Storage)
	if err != nil {
		return Result{}, p.fail(ctx, record.ID, err)
	}
	if err := client.WaitTask(ctx, host.Node, upid, auth, p.cloneTimeout); err != nil {
		return Result{}, p.fail(ctx, record.ID, err)
	}

	if err := client.SetConfig(ctx, auth, host.Node, vmid, guestConfig(host, req, record.IP, mac)); err != nil {
		return Result{}, p.fail(ctx, record.ID, err)
	}

	// Resize is best-effort sizing on top of the template's native disk;
	// a failure never fails the provision.
	if req.DiskGB > 0 {
		if err := client.Resize(ctx, auth, host.Node, vmid, "scsi0", fmt.Sprintf("+%dG", req.DiskGB)); err != nil {
			log.Printf("provision: resize of vm %d ignored: %v", vmid, err)
		}
	}

	// A guest that does not start in time is still a successful provision;
	// it can be started manually and reports as "starting".
	if startUpid, err := client.Power(ctx, auth, host.Node, vmid, "start", nil); err != nil {
		log.Printf("provision: start of vm %d ignored: %v", vmid, err)
	} else if startUpid != "" {
		if err := client.WaitTask(ctx, host.Node, startUpid, auth, p.startTimeout); err != nil {
			log.Printf("provision: start wait of vm %d ignored: %v", vmid, err)
		}
	}

	status := domain.StatusStarting
	details, err := client.CurrentStatus(ctx, auth, host.Node, vmid)
	if err != nil {
		log.Printf("provision: status read of vm %d ignored: %v", vmid, err)
		details = nil
	}
	if s, ok := details["status"].(string); ok && s != "" {
		status = s
	}

	db := DBInfo{ID: record.ID}
	if err := p.servers.Finalize(ctx, record.ID, vmid, status, encodeDetails(details)); err != nil {
		db.Error = err.Error()
	} else {
		db.Saved = true
	}

	return Result{
		OK:       true,
		Node:     host.Node,
		VMID:     vmid,
		Name:     req.Hostname,
		IP:       record.IP,
		OS:       req.OS,
		Location: host.Name,
		Specs:    Specs{CPUCores: req.CPUCores, MemoryMB: req.MemoryMB, DiskGB: req.DiskGB},
		Status:   status,
		Details:  details,
		SSH:      SSHInfo{Username: cloudInitUser, Port: sshPort},
		DB:       db,
	}, nil
}

// Power executes start, stop, shutdown, or reboot on an existing guest. When
// ownerID is non-empty the record must belong to that owner; a mismatch is
// indistinguishable from a missing record. The task is checked once with a
// short deadline rather than awaited, then the record's status is refreshed
// best-effort from the hypervisor.
func (p *Provisioner) Power(ctx context.Context, serverID int64, action, ownerID string) (PowerResult, error) {
	action = strings.ToLower(action)
	switch action {
	case "start", "stop", "shutdown", "reboot":
	default:
		// Unvalidated input must not mint metric label values.
		p.metrics.IncPowerAction("invalid", "rejected")
		return PowerResult{}, fmt.Errorf("%w: action must be start, stop, shutdown, or reboot", ErrValidation)
	}

	res, err := p.power(ctx, serverID, action, ownerID)
	if err != nil {
		p.metrics.IncPowerAction(action, "error")
	} else {
		p.metrics.IncPowerAction(action, "success")
	}
	return res, err
}

func (p *Provisioner) power(ctx context.Context, serverID int64, action, ownerID string) (PowerResult, error) {
	server, err := p.servers.FindByID(ctx, serverID)
	if err != nil {
		return PowerResult{}, err
	}
	if ownerID != "" && server.OwnerID != ownerID {
		return PowerResult{}, repository.ErrNotFound
	}
	if server.VMID == 0 {
		return PowerResult{}, fmt.Errorf("%w: server %d has no hypervisor guest", ErrValidation, serverID)
	}

	host, err := p.hosts.FindByID(ctx, server.HostID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return PowerResult{}, fmt.Errorf("%w: %s", ErrHostNotFound, server.HostID)
		}
		return PowerResult{}, fmt.Errorf("load host: %w", err)
	}

	client := p.newClient(host)
	auth, err := client.Authenticate(ctx, proxmox.Credentials{
		TokenID:     host.TokenID,
		TokenSecret: host.TokenSecret,
		Username:    host.Username,
		Password:    host.Password,
	})
	if err != nil {
		return PowerResult{}, err
	}

	// stop maps to a graceful guest shutdown, not a hard power-off.
	apiAction := action
	if action == "stop" {
		apiAction = "shutdown"
	}
	form := url.Values{}
	form.Set("timeout", strconv.Itoa(60))

	upid, err := client.Power(ctx, auth, server.Node, server.VMID, apiAction, form)
	if err != nil {
		return PowerResult{}, err
	}
	if upid != "" {
		if err := client.WaitTask(ctx, server.Node, upid, auth, powerPollTimeout); err != nil {
			log.Printf("power: %s wait of vm %d ignored: %v", action, server.VMID, err)
		}
	}

	status := ""
	if details, err := client.CurrentStatus(ctx, auth, server.Node, server.VMID); err == nil {
		if s, ok := details["status"].(string); ok {
			status = s
		}
	}
	if status != "" {
		if err := p.servers.UpdateStatus(ctx, serverID, status); err != nil {
			log.Printf("power: status update of server %d ignored: %v", serverID, err)
		}
	}

	return PowerResult{OK: true, Action: action, VMID: server.VMID, Node: server.Node, Status: status}, nil
}

// fail marks the reservation failed with the triggering error and returns
// that error. The bookkeeping write is best-effort; losing it is logged but
// never masks the original failure.
func (p *Provisioner) fail(ctx context.Context, id int64, cause error) error {
	if err := p.servers.MarkFailed(ctx, id, cause.Error()); err != nil {
		log.Printf("provision: failed to mark server %d failed: %v", id, err)
	}
	return cause
}

func applyDefaults(req Request) Request {
	if req.Hostname == "" {
		req.Hostname = fmt.Sprintf("vm-%d", time.Now().UnixMilli())
	}
	if req.CPUCores <= 0 {
		req.CPUCores = defaultCPUCores
	}
	if req.MemoryMB <= 0 {
		req.MemoryMB = defaultMemoryMB
	}
	return req
}

// guestConfig builds the cloud-init and sizing form for the config call.
// The address directive always uses a /32 host route with an explicit
// gateway; the guest's traffic is routed, not bridged onto a subnet.
func guestConfig(host domain.Host, req Request, ip, mac string) url.Values {
	nameservers := host.DNSPrimary
	if host.DNSSecondary != "" {
		nameservers += " " + host.DNSSecondary
	}

	form := url.Values{}
	form.Set("cores", strconv.Itoa(req.CPUCores))
	form.Set("memory", strconv.Itoa(req.MemoryMB))
	form.Set("onboot", "1")
	form.Set("ciuser", cloudInitUser)
	form.Set("cipassword", req.SSHPassword)
	form.Set("ide2", host.Storage+":cloudinit")
	form.Set("nameserver", nameservers)
	form.Set("net0", fmt.Sprintf("virtio=%s,bridge=%s", mac, host.Bridge))
	form.Set("ipconfig0", fmt.Sprintf("ip=%s/32,gw=%s", ip, host.GatewayIP))
	return form
}

func encodeDetails(details map[string]any) string {
	if details == nil {
		return ""
	}
	b, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(b)
}
