package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net"

	"github.com/cs2hvh/cryptocloud/internal/domain"
)

// IPPoolRepository defines domain-specific operations for IP pool entries
type IPPoolRepository interface {
	Repository[domain.IPPoolEntry, int64]
	FindByHostID(ctx context.Context, hostID string) ([]domain.IPPoolEntry, error)
	FindByIP(ctx context.Context, ip string) (domain.IPPoolEntry, error)
}

// ipPoolRepositoryImpl implements IPPoolRepository
type ipPoolRepositoryImpl struct {
	db *sql.DB
}

// NewIPPoolRepository creates a new IP pool repository
func NewIPPoolRepository(db *sql.DB) IPPoolRepository {
	return &ipPoolRepositoryImpl{
		db: db,
	}
}

// Save creates or updates a pool entry
func (r *ipPoolRepositoryImpl) Save(ctx context.Context, entry domain.IPPoolEntry) (domain.IPPoolEntry, error) {
	if entry.HostID == "" {
		return domain.IPPoolEntry{}, fmt.Errorf("%w: host ID is required", ErrInvalidEntity)
	}
	if entry.IP == "" {
		return domain.IPPoolEntry{}, fmt.Errorf("%w: IP address is required", ErrInvalidEntity)
	}
	if net.ParseIP(entry.IP) == nil {
		return domain.IPPoolEntry{}, fmt.Errorf("%w: invalid IP address format: %s", ErrInvalidEntity, entry.IP)
	}

	if entry.ID == 0 {
		return r.createEntry(ctx, entry)
	}
	return r.updateEntry(ctx, entry)
}

func (r *ipPoolRepositoryImpl) createEntry(ctx context.Context, entry domain.IPPoolEntry) (domain.IPPoolEntry, error) {
	if entry.Pool == "" {
		entry.Pool = "public"
	}

	query := `
		INSERT INTO ip_pool (host_id, ip, mac, pool)
		VALUES (?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, entry.HostID, entry.IP, entry.MAC, entry.Pool)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.IPPoolEntry{}, fmt.Errorf("%w: IP %s already in pool", ErrDuplicate, entry.IP)
		}
		return domain.IPPoolEntry{}, fmt.Errorf("failed to create pool entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.IPPoolEntry{}, fmt.Errorf("failed to get pool entry ID: %w", err)
	}

	entry.ID = id
	return entry, nil
}

func (r *ipPoolRepositoryImpl) updateEntry(ctx context.Context, entry domain.IPPoolEntry) (domain.IPPoolEntry, error) {
	query := `
		UPDATE ip_pool
		SET host_id = ?, ip = ?, mac = ?, pool = ?
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, entry.HostID, entry.IP, entry.MAC, entry.Pool, entry.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.IPPoolEntry{}, fmt.Errorf("%w: IP %s already in pool", ErrDuplicate, entry.IP)
		}
		return domain.IPPoolEntry{}, fmt.Errorf("failed to update pool entry: %w", err)
	}

	return entry, nil
}

// FindByID finds a pool entry by ID
func (r *ipPoolRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.IPPoolEntry, error) {
	query := `
		SELECT id, host_id, ip, mac, pool, created_at
		FROM ip_pool
		WHERE id = ?`

	var entry domain.IPPoolEntry
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID, &entry.HostID, &entry.IP, &entry.MAC, &entry.Pool, &entry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.IPPoolEntry{}, ErrNotFound
		}
		return domain.IPPoolEntry{}, fmt.Errorf("failed to find pool entry: %w", err)
	}

	return entry, nil
}

// FindAll finds all pool entries
func (r *ipPoolRepositoryImpl) FindAll(ctx context.Context) ([]domain.IPPoolEntry, error) {
	query := `
		SELECT id, host_id, ip, mac, pool, created_at
		FROM ip_pool
		ORDER BY id ASC`
	return r.queryEntries(ctx, query)
}

// FindByHostID finds all pool entries for a host, in insertion order.
// The allocator depends on this ordering being deterministic.
func (r *ipPoolRepositoryImpl) FindByHostID(ctx context.Context, hostID string) ([]domain.IPPoolEntry, error) {
	query := `
		SELECT id, host_id, ip, mac, pool, created_at
		FROM ip_pool
		WHERE host_id = ?
		ORDER BY id ASC`
	return r.queryEntries(ctx, query, hostID)
}

// FindByIP finds a pool entry by address
func (r *ipPoolRepositoryImpl) FindByIP(ctx context.Context, ip string) (domain.IPPoolEntry, error) {
	query := `
		SELECT id, host_id, ip, mac, pool, created_at
		FROM ip_pool
		WHERE ip = ?`

	var entry domain.IPPoolEntry
	err := r.db.QueryRowContext(ctx, query, ip).Scan(
		&entry.ID, &entry.HostID, &entry.IP, &entry.MAC, &entry.Pool, &entry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.IPPoolEntry{}, ErrNotFound
		}
		return domain.IPPoolEntry{}, fmt.Errorf("failed to find pool entry by IP: %w", err)
	}

	return entry, nil
}

// DeleteByID deletes a pool entry by ID
func (r *ipPoolRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ip_pool WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pool entry: %w", err)
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

// ExistsByID checks if a pool entry exists by ID
func (r *ipPoolRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ip_pool WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check pool entry existence: %w", err)
	}
	return count > 0, nil
}

func (r *ipPoolRepositoryImpl) queryEntries(ctx context.Context, query string, args ...any) ([]domain.IPPoolEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find pool entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.IPPoolEntry
	for rows.Next() {
		var entry domain.IPPoolEntry
		err := rows.Scan(&entry.ID, &entry.HostID, &entry.IP, &entry.MAC, &entry.Pool, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
