package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-tally/tally/internal/shared"
)

// Repository provides PostgreSQL backed permission lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DirectPermissions returns permissions assigned straight to the principal.
func (r *Repository) DirectPermissions(ctx context.Context, principalID int64) ([]shared.Permission, error) {
	return r.queryPermissions(ctx, `
SELECT p.name, p.description, p.action
FROM user_permissions up
JOIN permissions p ON p.id = up.permission_id
WHERE up.user_id = $1 AND p.deleted_at IS NULL
ORDER BY p.name`, principalID)
}

// RolePermissions returns permissions granted through the principal's live roles.
// Duplicates across roles are left to the caller.
func (r *Repository) RolePermissions(ctx context.Context, principalID int64) ([]shared.Permission, error) {
	return r.queryPermissions(ctx, `
SELECT p.name, p.description, p.action
FROM user_roles ur
JOIN roles ro ON ro.id = ur.role_id AND ro.deleted_at IS NULL
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id AND p.deleted_at IS NULL
WHERE ur.user_id = $1
ORDER BY p.name`, principalID)
}

// ListPermissions returns all live permissions.
func (r *Repository) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, name, description, action FROM permissions WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[PermissionRecord])
}

func (r *Repository) queryPermissions(ctx context.Context, query string, principalID int64) ([]shared.Permission, error) {
	rows, err := r.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := []shared.Permission{}
	for rows.Next() {
		var p shared.Permission
		if err := rows.Scan(&p.Name, &p.Description, &p.Action); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
