package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/cs2hvh/cryptocloud/internal/domain"
)

// HostRepository defines domain-specific operations for Proxmox host profiles
type HostRepository interface {
	Repository[domain.Host, string]
	FindActive(ctx context.Context) ([]domain.Host, error)
	FindActiveByID(ctx context.Context, id string) (domain.Host, error)
}

// hostRepositoryImpl implements HostRepository
type hostRepositoryImpl struct {
	db *sql.DB
}

// NewHostRepository creates a new host repository
func NewHostRepository(db *sql.DB) HostRepository {
	return &hostRepositoryImpl{
		db: db,
	}
}

const hostColumns = `id, name, host_url, allow_insecure_tls, token_id, token_secret,
	username, password, node, storage, bridge, gateway_ip, dns_primary,
	dns_secondary, template_vmid, active, created_at`

// Save creates or updates a host profile
func (r *hostRepositoryImpl) Save(ctx context.Context, host domain.Host) (domain.Host, error) {
	if host.HostURL == "" {
		return domain.Host{}, fmt.Errorf("%w: host URL is required", ErrInvalidEntity)
	}
	if host.Name == "" {
		return domain.Host{}, fmt.Errorf("%w: host name is required", ErrInvalidEntity)
	}
	// A host must carry at least one usable credential pair
	if (host.TokenID == "" || host.TokenSecret == "") && (host.Username == "" || host.Password == "") {
		return domain.Host{}, fmt.Errorf("%w: token or username/password credentials are required", ErrInvalidEntity)
	}

	if host.ID == "" {
		return r.createHost(ctx, host)
	}
	return r.updateHost(ctx, host)
}

func (r *hostRepositoryImpl) createHost(ctx context.Context, host domain.Host) (domain.Host, error) {
	host.ID = uuid.NewString()

	query := `
		INSERT INTO hosts (id, name, host_url, allow_insecure_tls, token_id, token_secret,
			username, password, node, storage, bridge, gateway_ip, dns_primary,
			dns_secondary, template_vmid, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		host.ID, host.Name, host.HostURL, host.AllowInsecureTLS, host.TokenID, host.TokenSecret,
		host.Username, host.Password, host.Node, host.Storage, host.Bridge, host.GatewayIP,
		host.DNSPrimary, host.DNSSecondary, host.TemplateVMID, host.Active)
	if err != nil {
		return domain.Host{}, fmt.Errorf("failed to create host: %w", err)
	}

	return host, nil
}

func (r *hostRepositoryImpl) updateHost(ctx context.Context, host domain.Host) (domain.Host, error) {
	query := `
		UPDATE hosts
		SET name = ?, host_url = ?, allow_insecure_tls = ?, token_id = ?, token_secret = ?,
			username = ?, password = ?, node = ?, storage = ?, bridge = ?, gateway_ip = ?,
			dns_primary = ?, dns_secondary = ?, template_vmid = ?, active = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		host.Name, host.HostURL, host.AllowInsecureTLS, host.TokenID, host.TokenSecret,
		host.Username, host.Password, host.Node, host.Storage, host.Bridge, host.GatewayIP,
		host.DNSPrimary, host.DNSSecondary, host.TemplateVMID, host.Active, host.ID)
	if err != nil {
		return domain.Host{}, fmt.Errorf("failed to update host: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return domain.Host{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.Host{}, ErrNotFound
	}

	return host, nil
}

// FindByID finds a host profile by ID
func (r *hostRepositoryImpl) FindByID(ctx context.Context, id string) (domain.Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts WHERE id = ?`
	return r.scanHost(r.db.QueryRowContext(ctx, query, id))
}

// FindActiveByID finds a host profile by ID, restricted to active hosts.
// Deactivated hosts are invisible to new provisioning but keep serving
// already-provisioned guests through FindByID.
func (r *hostRepositoryImpl) FindActiveByID(ctx context.Context, id string) (domain.Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts WHERE id = ? AND active = 1`
	return r.scanHost(r.db.QueryRowContext(ctx, query, id))
}

// FindAll finds all host profiles
func (r *hostRepositoryImpl) FindAll(ctx context.Context) ([]domain.Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts ORDER BY created_at ASC`
	return r.queryHosts(ctx, query)
}

// FindActive finds all active host profiles
func (r *hostRepositoryImpl) FindActive(ctx context.Context) ([]domain.Host, error) {
	query := `SELECT ` + hostColumns + ` FROM hosts WHERE active = 1 ORDER BY created_at ASC`
	return r.queryHosts(ctx, query)
}

// DeleteByID deletes a host profile by ID
func (r *hostRepositoryImpl) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM hosts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete host: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ExistsByID checks if a host exists by ID
func (r *hostRepositoryImpl) ExistsByID(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hosts WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check host existence: %w", err)
	}
	return count > 0, nil
}

func (r *hostRepositoryImpl) queryHosts(ctx context.Context, query string, args ...any) ([]domain.Host, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find hosts: %w", err)
	}
	defer rows.Close()

	var hosts []domain.Host
	for rows.Next() {
		var h domain.Host
		err := rows.Scan(
			&h.ID, &h.Name, &h.HostURL, &h.AllowInsecureTLS, &h.TokenID, &h.TokenSecret,
			&h.Username, &h.Password, &h.Node, &h.Storage, &h.Bridge, &h.GatewayIP,
			&h.DNSPrimary, &h.DNSSecondary, &h.TemplateVMID, &h.Active, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, h)
	}

	return hosts, rows.Err()
}

func (r *hostRepositoryImpl) scanHost(row *sql.Row) (domain.Host, error) {
	var h domain.Host
	err := row.Scan(
		&h.ID, &h.Name, &h.HostURL, &h.AllowInsecureTLS, &h.TokenID, &h.TokenSecret,
		&h.Username, &h.Password, &h.Node, &h.Storage, &h.Bridge, &h.GatewayIP,
		&h.DNSPrimary, &h.DNSSecondary, &h.TemplateVMID, &h.Active, &h.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Host{}, ErrNotFound
		}
		return domain.Host{}, fmt.Errorf("failed to find host: %w", err)
	}
	return h, nil
}
