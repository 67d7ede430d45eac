package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net"

	"github.com/cs2hvh/cryptocloud/internal/domain"
)

// ServerRepository defines domain-specific operations for server records
type ServerRepository interface {
	Repository[domain.Server, int64]
	FindByOwnerID(ctx context.Context, ownerID string) ([]domain.Server, error)
	FindByIP(ctx context.Context, ip string) (domain.Server, error)

	// UsedIPs returns every address currently referenced by any server
	// record regardless of status. Failed records keep their address
	// reserved until the record is deleted.
	UsedIPs(ctx context.Context) (map[string]bool, error)

	// Reserve inserts a new record in provisioning status with vmid 0,
	// claiming its IP address. Returns ErrDuplicate when another record
	// already holds the address; the insert is guarded by the UNIQUE
	// constraint on the ip column, not by a prior availability check.
	Reserve(ctx context.Context, server domain.Server) (domain.Server, error)

	// MarkFailed transitions a record to failed status with the
	// triggering error attached. The IP stays reserved.
	MarkFailed(ctx context.Context, id int64, errMsg string) error

	// Finalize records the hypervisor-assigned vmid, reported status and
	// opaque status payload once provisioning succeeded.
	Finalize(ctx context.Context, id int64, vmid int, status, details string) error

	// UpdateStatus refreshes the reported status for an existing record.
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// serverRepositoryImpl implements ServerRepository
type serverRepositoryImpl struct {
	db *sql.DB
}

// NewServerRepository creates a new server repository
func NewServerRepository(db *sql.DB) ServerRepository {
	return &serverRepositoryImpl{
		db: db,
	}
}

const serverColumns = `id, vmid, node, name, ip, os, host_id, cpu_cores, memory_mb,
	disk_gb, status, details, error, owner_id, owner_email, created_at`

// Save creates or updates a server record
func (r *serverRepositoryImpl) Save(ctx context.Context, server domain.Server) (domain.Server, error) {
	if server.ID == 0 {
		return r.Reserve(ctx, server)
	}
	return r.updateServer(ctx, server)
}

// Reserve claims the record's IP address by inserting a provisioning row
func (r *serverRepositoryImpl) Reserve(ctx context.Context, server domain.Server) (domain.Server, error) {
	if server.Name == "" {
		return domain.Server{}, fmt.Errorf("%w: server name is required", ErrInvalidEntity)
	}
	if server.IP == "" {
		return domain.Server{}, fmt.Errorf("%w: server IP is required", ErrInvalidEntity)
	}
	if net.ParseIP(server.IP) == nil {
		return domain.Server{}, fmt.Errorf("%w: invalid IP address format: %s", ErrInvalidEntity, server.IP)
	}
	if server.Status == "" {
		server.Status = domain.StatusProvisioning
	}

	query := `
		INSERT INTO servers (vmid, node, name, ip, os, host_id, cpu_cores, memory_mb,
			disk_gb, status, details, error, owner_id, owner_email)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		server.VMID, server.Node, server.Name, server.IP, server.OS, server.HostID,
		server.CPUCores, server.MemoryMB, server.DiskGB, server.Status,
		server.Details, server.Error, server.OwnerID, server.OwnerEmail)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Server{}, fmt.Errorf("%w: IP %s already in use", ErrDuplicate, server.IP)
		}
		return domain.Server{}, fmt.Errorf("failed to create server record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Server{}, fmt.Errorf("failed to get server ID: %w", err)
	}

	server.ID = id
	return server, nil
}

func (r *serverRepositoryImpl) updateServer(ctx context.Context, server domain.Server) (domain.Server, error) {
	query := `
		UPDATE servers
		SET vmid = ?, node = ?, name = ?, ip = ?, os = ?, host_id = ?, cpu_cores = ?,
			memory_mb = ?, disk_gb = ?, status = ?, details = ?, error = ?,
			owner_id = ?, owner_email = ?
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query,
		server.VMID, server.Node, server.Name, server.IP, server.OS, server.HostID,
		server.CPUCores, server.MemoryMB, server.DiskGB, server.Status,
		server.Details, server.Error, server.OwnerID, server.OwnerEmail, server.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Server{}, fmt.Errorf("%w: IP %s already in use", ErrDuplicate, server.IP)
		}
		return domain.Server{}, fmt.Errorf("failed to update server record: %w", err)
	}

	return server, nil
}

// MarkFailed transitions a record to failed status with error detail
func (r *serverRepositoryImpl) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := `UPDATE servers SET status = ?, error = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, domain.StatusFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark server failed: %w", err)
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

// Finalize records the real vmid and reported status after provisioning
func (r *serverRepositoryImpl) Finalize(ctx context.Context, id int64, vmid int, status, details string) error {
	query := `UPDATE servers SET vmid = ?, status = ?, details = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, vmid, status, details, id)
	if err != nil {
		return fmt.Errorf("failed to finalize server record: %w", err)
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

// UpdateStatus refreshes the reported status
func (r *serverRepositoryImpl) UpdateStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE servers SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update server status: %w", err)
	}
	return nil
}

// UsedIPs returns all addresses referenced by server records
func (r *serverRepositoryImpl) UsedIPs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ip FROM servers`)
	if err != nil {
		return nil, fmt.Errorf("failed to load used IPs: %w", err)
	}
	defer rows.Close()

	used := make(map[string]bool)
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("failed to scan used IP: %w", err)
		}
		used[ip] = true
	}

	return used, rows.Err()
}

// FindByID finds a server record by ID
func (r *serverRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE id = ?`
	return r.scanServer(r.db.QueryRowContext(ctx, query, id))
}

// FindByIP finds a server record by address
func (r *serverRepositoryImpl) FindByIP(ctx context.Context, ip string) (domain.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE ip = ?`
	return r.scanServer(r.db.QueryRowContext(ctx, query, ip))
}

// FindAll finds all server records
func (r *serverRepositoryImpl) FindAll(ctx context.Context) ([]domain.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers ORDER BY created_at DESC`
	return r.queryServers(ctx, query)
}

// FindByOwnerID finds all server records owned by a user
func (r *serverRepositoryImpl) FindByOwnerID(ctx context.Context, ownerID string) ([]domain.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE owner_id = ? ORDER BY created_at DESC`
	return r.queryServers(ctx, query, ownerID)
}

// DeleteByID deletes a server record by ID, releasing its IP address
func (r *serverRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete server record: %w", err)
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

// ExistsByID checks if a server record exists by ID
func (r *serverRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM servers WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check server existence: %w", err)
	}
	return count > 0, nil
}

func (r *serverRepositoryImpl) queryServers(ctx context.Context, query string, args ...any) ([]domain.Server, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find servers: %w", err)
	}
	defer rows.Close()

	var servers []domain.Server
	for rows.Next() {
		var s domain.Server
		err := rows.Scan(
			&s.ID, &s.VMID, &s.Node, &s.Name, &s.IP, &s.OS, &s.HostID,
			&s.CPUCores, &s.MemoryMB, &s.DiskGB, &s.Status, &s.Details,
			&s.Error, &s.OwnerID, &s.OwnerEmail, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		servers = append(servers, s)
	}

	return servers, rows.Err()
}

func (r *serverRepositoryImpl) scanServer(row *sql.Row) (domain.Server, error) {
	var s domain.Server
	err := row.Scan(
		&s.ID, &s.VMID, &s.Node, &s.Name, &s.IP, &s.OS, &s.HostID,
		&s.CPUCores, &s.MemoryMB, &s.DiskGB, &s.Status, &s.Details,
		&s.Error, &s.OwnerID, &s.OwnerEmail, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Server{}, ErrNotFound
		}
		return domain.Server{}, fmt.Errorf("failed to find server: %w", err)
	}
	return s, nil
}
