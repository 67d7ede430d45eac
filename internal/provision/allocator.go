package provision

import (
	"context"
	"fmt"

	"github.com/cs2hvh/cryptocloud/internal/domain"
	"github.com/cs2hvh/cryptocloud/internal/repository"
)

// Allocator reserves one free address per provisioning request. The free set
// is recomputed from the datastore on every call; the UNIQUE constraint on
// the servers ip column is what actually arbitrates concurrent claims, the
// allocator only keeps conflicts rare.
type Allocator struct {
	servers repository.ServerRepository
	pool    repository.IPPoolRepository
}

func NewAllocator(servers repository.ServerRepository, pool repository.IPPoolRepository) *Allocator {
	return &Allocator{servers: servers, pool: pool}
}

// Reserve picks an address for record and persists it with status
// provisioning. record.IP, when set, is treated as a caller override and is
// claimed as-is; mac overrides the pool entry's MAC. A lost race surfaces as
// repository.ErrDuplicate from the insert.
func (a *Allocator) Reserve(ctx context.Context, host domain.Host, record domain.Server, mac string) (domain.Server, string, error) {
	used, err := a.servers.UsedIPs(ctx)
	if err != nil {
		return domain.Server{}, "", fmt.Errorf("load used addresses: %w", err)
	}

	entries, err := a.pool.FindByHostID(ctx, host.ID)
	if err != nil {
		return domain.Server{}, "", fmt.Errorf("load ip pool: %w", err)
	}

	if record.IP == "" {
		for _, entry := range entries {
			if used[entry.IP] {
				continue
			}
			record.IP = entry.IP
			if mac == "" {
				mac = entry.MAC
			}
			break
		}
		if record.IP == "" {
			return domain.Server{}, "", fmt.Errorf("%w: no free IP addresses on host %s", ErrConfiguration, host.Name)
		}
	} else if mac == "" {
		for _, entry := range entries {
			if entry.IP == record.IP {
				mac = entry.MAC
				break
			}
		}
	}

	if mac == "" {
		return domain.Server{}, "", fmt.Errorf("%w: no MAC address for IP %s", ErrConfiguration, record.IP)
	}

	record.Status = domain.StatusProvisioning
	record.VMID = 0

	saved, err := a.servers.Reserve(ctx, record)
	if err != nil {
		return domain.Server{}, "", err
	}
	return saved, mac, nil
}
