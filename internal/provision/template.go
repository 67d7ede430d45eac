package provision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/proxmox"
	"github.com/cs2hvh/cryptocloud/internal/repository"
)

// Resolver maps an OS label to a template vmid on a host. Resolution order:
// the host's template table (case-insensitive name match, active entries
// only), then the host profile's default template id, then a best-effort
// scan of guest names on the node.
type Resolver struct {
	templates repository.TemplateRepository
}

func NewResolver(templates repository.TemplateRepository) *Resolver {
	return &Resolver{templates: templates}
}

var majorVersionPattern = regexp.MustCompile(`\d+`)

// Resolve returns the template vmid to clone for osLabel on host, or
// ErrConfiguration when none of the three sources yields a positive id.
func (r *Resolver) Resolve(ctx context.Context, client *proxmox.Client, auth *proxmox.Auth, host domain.Host, osLabel string) (int, error) {
	tpl, err := r.templates.FindActiveByName(ctx, host.ID, osLabel)
	if err == nil && tpl.VMID > 0 {
		return tpl.VMID, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("lookup template %q: %w", osLabel, err)
	}

	if host.TemplateVMID > 0 {
		return host.TemplateVMID, nil
	}

	if vmid := r.guessFromGuests(ctx, client, auth, host.Node, osLabel); vmid > 0 {
		return vmid, nil
	}

	return 0, fmt.Errorf("%w: no usable template for %q on host %s", ErrConfiguration, osLabel, host.Name)
}

// guessFromGuests scans guest names on node for one that mentions both the
// distribution token and the major version of osLabel, e.g. "Ubuntu 24.04
// LTS" matches a guest named "ubuntu-24-template". Errors are treated as no
// match; this path is a last resort.
func (r *Resolver) guessFromGuests(ctx context.Context, client *proxmox.Client, auth *proxmox.Auth, node, osLabel string) int {
	fields := strings.Fields(strings.ToLower(osLabel))
	if len(fields) == 0 {
		return 0
	}
	distro := fields[0]
	major := majorVersionPattern.FindString(osLabel)

	vms, err := client.ListQemu(ctx, auth, node)
	if err != nil {
		return 0
	}
	for _, vm := range vms {
		name := strings.ToLower(vm.Name)
		if strings.Contains(name, distro) && (major == "" || strings.Contains(name, major)) {
			return vm.VMID
		}
	}
	return 0
}
