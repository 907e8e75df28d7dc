package roles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-tally/tally/internal/platform/db"
	"github.com/civic-tally/tally/internal/shared"
)

const roleColumns = `id, name, description, session_timeout_min, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all live roles.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		return scanRole(row)
	})
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO roles (name, description) VALUES ($1, $2)
RETURNING `+roleColumns, name, description)
	role, err := scanRole(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("role %q already exists: %w", name, shared.ErrConflict)
		}
		return Role{}, err
	}
	return role, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role    Role
		timeout *int32
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &timeout, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	if timeout != nil {
		v := int(*timeout)
		role.SessionTimeout = &v
	}
	return role, nil
}
