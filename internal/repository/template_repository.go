package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cs2hvh/cryptocloud/internal/domain"
)

// TemplateRepository defines domain-specific operations for template mappings
type TemplateRepository interface {
	Repository[domain.Template, int64]
	FindByHostID(ctx context.Context, hostID string) ([]domain.Template, error)
	FindActiveByName(ctx context.Context, hostID, name string) (domain.Template, error)
}

// templateRepositoryImpl implements TemplateRepository
type templateRepositoryImpl struct {
	db *sql.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB) TemplateRepository {
	return &templateRepositoryImpl{
		db: db,
	}
}

// Save creates or updates a template mapping
func (r *templateRepositoryImpl) Save(ctx context.Context, tpl domain.Template) (domain.Template, error) {
	if tpl.HostID == "" {
		return domain.Template{}, fmt.Errorf("%w: host ID is required", ErrInvalidEntity)
	}
	if tpl.Name == "" {
		return domain.Template{}, fmt.Errorf("%w: template name is required", ErrInvalidEntity)
	}
	if tpl.VMID <= 0 {
		return domain.Template{}, fmt.Errorf("%w: template vmid must be positive", ErrInvalidEntity)
	}

	if tpl.ID == 0 {
		return r.createTemplate(ctx, tpl)
	}
	return r.updateTemplate(ctx, tpl)
}

func (r *templateRepositoryImpl) createTemplate(ctx context.Context, tpl domain.Template) (domain.Template, error) {
	query := `
		INSERT INTO templates (host_id, name, vmid, active)
		VALUES (?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, tpl.HostID, tpl.Name, tpl.VMID, tpl.Active)
	if err != nil {
		return domain.Template{}, fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Template{}, fmt.Errorf("failed to get template ID: %w", err)
	}

	tpl.ID = id
	return tpl, nil
}

func (r *templateRepositoryImpl) updateTemplate(ctx context.Context, tpl domain.Template) (domain.Template, error) {
	query := `
		UPDATE templates
		SET host_id = ?, name = ?, vmid = ?, active = ?
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, tpl.HostID, tpl.Name, tpl.VMID, tpl.Active, tpl.ID)
	if err != nil {
		return domain.Template{}, fmt.Errorf("failed to update template: %w", err)
	}

	return tpl, nil
}

// FindByID finds a template mapping by ID
func (r *templateRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Template, error) {
	query := `
		SELECT id, host_id, name, vmid, active
		FROM templates
		WHERE id = ?`

	var tpl domain.Template
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tpl.ID, &tpl.HostID, &tpl.Name, &tpl.VMID, &tpl.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Template{}, ErrNotFound
		}
		return domain.Template{}, fmt.Errorf("failed to find template: %w", err)
	}

	return tpl, nil
}

// FindAll finds all template mappings
func (r *templateRepositoryImpl) FindAll(ctx context.Context) ([]domain.Template, error) {
	return r.queryTemplates(ctx, `SELECT id, host_id, name, vmid, active FROM templates ORDER BY id ASC`)
}

// FindByHostID finds all template mappings for a host
func (r *templateRepositoryImpl) FindByHostID(ctx context.Context, hostID string) ([]domain.Template, error) {
	query := `
		SELECT id, host_id, name, vmid, active
		FROM templates
		WHERE host_id = ?
		ORDER BY id ASC`
	return r.queryTemplates(ctx, query, hostID)
}

// FindActiveByName finds the active template whose name matches the given
// OS label case-insensitively on the given host. Returns ErrNotFound when
// no such mapping is configured.
func (r *templateRepositoryImpl) FindActiveByName(ctx context.Context, hostID, name string) (domain.Template, error) {
	query := `
		SELECT id, host_id, name, vmid, active
		FROM templates
		WHERE host_id = ? AND active = 1 AND name = ? COLLATE NOCASE
		ORDER BY id ASC
		LIMIT 1`

	var tpl domain.Template
	err := r.db.QueryRowContext(ctx, query, hostID, name).Scan(
		&tpl.ID, &tpl.HostID, &tpl.Name, &tpl.VMID, &tpl.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Template{}, ErrNotFound
		}
		return domain.Template{}, fmt.Errorf("failed to find template by name: %w", err)
	}

	return tpl, nil
}

// DeleteByID deletes a template mapping by ID
func (r *templateRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
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

// ExistsByID checks if a template mapping exists by ID
func (r *templateRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check template existence: %w", err)
	}
	return count > 0, nil
}

func (r *templateRepositoryImpl) queryTemplates(ctx context.Context, query string, args ...any) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		var tpl domain.Template
		if err := rows.Scan(&tpl.ID, &tpl.HostID, &tpl.Name, &tpl.VMID, &tpl.Active); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tpl)
	}

	return templates, rows.Err()
}
