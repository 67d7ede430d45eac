package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Node is one entry from GET /nodes.
type Node struct {
	Node   string `json:"node"`
	Status string `json:"status"`
}

// Version is the payload of GET /version.
type Version struct {
	Version string `json:"version"`
	Release string `json:"release"`
	RepoID  string `json:"repoid"`
}

// VM is one guest from a node's qemu or lxc listing.
type VM struct {
	VMID   int    `json:"vmid"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Type   string `json:"type,omitempty"`
}

// GetVersion fetches the hypervisor version. Works unauthenticated and is
// used as a reachability probe.
func (c *Client) GetVersion(ctx context.Context) (Version, error) {
	var v Version
	err := c.GetJSON(ctx, "/api2/json/version", nil, &v)
	return v, err
}

// Nodes lists the compute nodes visible to the authenticated caller.
func (c *Client) Nodes(ctx context.Context, auth *Auth) ([]Node, error) {
	var nodes []Node
	if err := c.GetJSON(ctx, "/api2/json/nodes", auth, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// ListQemu lists qemu guests on a node.
func (c *Client) ListQemu(ctx context.Context, auth *Auth, node string) ([]VM, error) {
	var vms []VM
	path := fmt.Sprintf("/api2/json/nodes/%s/qemu", url.PathEscape(node))
	if err := c.GetJSON(ctx, path, auth, &vms); err != nil {
		return nil, err
	}
	return vms, nil
}

// ListLXC lists lxc containers on a node.
func (c *Client) ListLXC(ctx context.Context, auth *Auth, node string) ([]VM, error) {
	var vms []VM
	path := fmt.Sprintf("/api2/json/nodes/%s/lxc", url.PathEscape(node))
	if err := c.GetJSON(ctx, path, auth, &vms); err != nil {
		return nil, err
	}
	return vms, nil
}

// NextID asks the cluster for the next free guest id. The API reports the
// id as a JSON string.
func (c *Client) NextID(ctx context.Context, auth *Auth) (int, error) {
	var raw json.RawMessage
	if err := c.GetJSON(ctx, "/api2/json/cluster/nextid", auth, &raw); err != nil {
		return 0, err
	}

	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse nextid %q: %w", s, err)
	}
	return id, nil
}

// Clone POSTs a full clone of a template into a new guest id and returns
// the task handle.
func (c *Client) Clone(ctx context.Context, auth *Auth, node string, template, newID int, name, storage string) (string, error) {
	form := url.Values{}
	form.Set("newid", strconv.Itoa(newID))
	form.Set("name", name)
	form.Set("full", "1")
	form.Set("target", node)
	form.Set("storage", storage)

	var upid string
	path := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d/clone", url.PathEscape(node), template)
	if err := c.PostForm(ctx, path, form, auth, &upid); err != nil {
		return "", err
	}
	if upid == "" {
		return "", fmt.Errorf("clone did not return task id")
	}
	return upid, nil
}

// SetConfig POSTs guest configuration. The call is synchronous on the
// hypervisor side; only the HTTP status signals success.
func (c *Client) SetConfig(ctx context.Context, auth *Auth, node string, vmid int, form url.Values) error {
	path := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d/config", url.PathEscape(node), vmid)
	return c.PostForm(ctx, path, form, auth, nil)
}

// Resize POSTs a disk resize. size uses Proxmox delta syntax, e.g. "+20G".
func (c *Client) Resize(ctx context.Context, auth *Auth, node string, vmid int, disk, size string) error {
	form := url.Values{}
	form.Set("disk", disk)
	form.Set("size", size)

	path := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d/resize", url.PathEscape(node), vmid)
	return c.PostForm(ctx, path, form, auth, nil)
}

// Power posts a lifecycle action (start, shutdown, stop, reboot) and returns
// the task handle, which may be empty for a no-op.
func (c *Client) Power(ctx context.Context, auth *Auth, node string, vmid int, action string, form url.Values) (string, error) {
	var upid string
	path := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d/status/%s", url.PathEscape(node), vmid, url.PathEscape(action))
	if err := c.PostForm(ctx, path, form, auth, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// CurrentStatus fetches a guest's status/current payload as an opaque map.
func (c *Client) CurrentStatus(ctx context.Context, auth *Auth, node string, vmid int) (map[string]any, error) {
	var details map[string]any
	path := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d/status/current", url.PathEscape(node), vmid)
	if err := c.GetJSON(ctx, path, auth, &details); err != nil {
		return nil, err
	}
	return details, nil
}
