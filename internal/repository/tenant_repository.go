package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/model"
)

type TenantRepositoryInterface interface {
	Create(ctx context.Context, t *model.Tenant) error
	Get(ctx context.Context, name string) (*model.Tenant, error)
	RolesFor(ctx context.Context, username, tenant string) (model.RoleSet, error)
	AssignRole(ctx context.Context, username, tenant string, role model.Role) error
}

type TenantRepository struct {
	DB *sql.DB
}

func (r *TenantRepository) Create(ctx context.Context, t *model.Tenant) error {
	t.CreatedAt = time.Now()
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO tenants (name, description, created_by_username, created_at)
        VALUES ($1, $2, $3, $4)
    `, t.Name, t.Description, t.CreatedBy, t.CreatedAt)
	if isUniqueViolation(err) {
		return appErrors.NewValidation("name", "tenant "+t.Name+" already exists")
	}
	return err
}

func (r *TenantRepository) Get(ctx context.Context, name string) (*model.Tenant, error) {
	var t model.Tenant
	err := r.DB.QueryRowContext(ctx, `
        SELECT name, description, created_by_username, created_at FROM tenants WHERE name=$1
    `, name).Scan(&t.Name, &t.Description, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("tenant", name)
		}
		return nil, err
	}
	return &t, nil
}

// RolesFor is the authorization gate's data source.
func (r *TenantRepository) RolesFor(ctx context.Context, username, tenant string) (model.RoleSet, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT role FROM user_tenant_roles WHERE username=$1 AND tenant_name=$2
    `, username, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := model.RoleSet{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles[model.Role(role)] = true
	}
	return roles, rows.Err()
}

func (r *TenantRepository) AssignRole(ctx context.Context, username, tenant string, role model.Role) error {
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO user_tenant_roles (username, tenant_name, role)
        VALUES ($1, $2, $3)
        ON CONFLICT DO NOTHING
    `, username, tenant, role)
	return err
}

var _ TenantRepositoryInterface = (*TenantRepository)(nil)
