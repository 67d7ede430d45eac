package domain

// Server lifecycle status values. A record is created in StatusProvisioning
// before any hypervisor call is made and moves to a hypervisor-reported
// status (running, starting, stopped, ...) or StatusFailed.
const (
	StatusProvisioning = "provisioning"
	StatusStarting     = "starting"
	StatusFailed       = "failed"
	StatusStopped      = "stopped"
)

// Host is a Proxmox endpoint servers can be provisioned against
type Host struct {
	ID               string // UUID
	Name             string // Display name (e.g., "us-east-1")
	HostURL          string // Base URL (e.g., "https://pve1.example.com:8006")
	AllowInsecureTLS bool   // Skip certificate verification
	TokenID          string // API token id (user@realm!tokenid)
	TokenSecret      string // API token secret
	Username         string // Password-auth fallback username
	Password         string // Password-auth fallback password
	Node             string // Target node name
	Storage          string // Default storage for clones
	Bridge           string // Default network bridge (e.g., "vmbr0")
	GatewayIP        string // Gateway for provisioned guests
	DNSPrimary       string // Primary nameserver
	DNSSecondary     string // Secondary nameserver
	TemplateVMID     int    // Default template vmid (0 = unset)
	Active           bool   // Inactive hosts are unselectable for provisioning
	CreatedAt        string // When the host was registered
}

// IPPoolEntry is one candidate address+MAC pair bound to a host
type IPPoolEntry struct {
	ID        int64  // Unique identifier
	HostID    string // Owning host
	IP        string // Candidate address
	MAC       string // MAC the address is routed to
	Pool      string // Owning pool label (e.g., "public")
	CreatedAt string // When the entry was added
}

// Template maps an OS label to a template vmid on a host
type Template struct {
	ID     int64  // Unique identifier
	HostID string // Owning host
	Name   string // OS label (e.g., "Ubuntu 24.04 LTS"), matched case-insensitively
	VMID   int    // Template vmid on the host's node
	Active bool   // Inactive entries are skipped during resolution
}

// Server is the persisted record of a provisioned (or provisioning, or
// failed) guest. IP is unique at the datastore level; that constraint is
// what prevents double allocation under concurrent requests.
type Server struct {
	ID         int64  // Unique identifier
	VMID       int    // Hypervisor guest id; 0 while the reservation is pending
	Node       string // Node the guest lives on
	Name       string // Guest display name
	IP         string // Assigned address (unique)
	OS         string // Requested OS label
	HostID     string // Host the guest was provisioned on
	CPUCores   int    // Core count
	MemoryMB   int    // Memory in megabytes
	DiskGB     int    // Requested disk in gigabytes (0 = template default)
	Status     string // Lifecycle status, see Status* constants
	Details    string // Opaque hypervisor status payload (JSON text)
	Error      string // Failure detail when Status is failed
	OwnerID    string // Owning user id (empty for admin-created)
	OwnerEmail string // Owning user email
	CreatedAt  string // When the reservation was created
}
