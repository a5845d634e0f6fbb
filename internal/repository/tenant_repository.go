package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/franchise-hub/internal/models"
)

type TenantRepository interface {
	// EnsureTenant returns the tenant with the given name, creating it first if needed.
	EnsureTenant(ctx context.Context, name string) (models.Tenant, error)
	GetTenantByID(ctx context.Context, id string) (models.Tenant, error)
}

type tenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) EnsureTenant(ctx context.Context, name string) (models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Tenant{}, errors.New("tenant name is required")
	}
	// The no-op update makes RETURNING yield the existing row on conflict.
	const query = `
		INSERT INTO tenant.tenants (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at, updated_at;
	`
	var tenant models.Tenant
	err := r.db.QueryRowContext(ctx, query, name).Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return models.Tenant{}, errors.Wrap(err, "ensure tenant")
	}
	return tenant, nil
}

func (r *tenantRepository) GetTenantByID(ctx context.Context, id string) (models.Tenant, error) {
	const query = `
		SELECT id, name, created_at, updated_at
		FROM tenant.tenants
		WHERE id = $1;
	`
	var tenant models.Tenant
	err := r.db.QueryRowContext(ctx, query, id).Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Tenant{}, ErrNotFound
		}
		return models.Tenant{}, errors.Wrap(err, "load tenant")
	}
	return tenant, nil
}
