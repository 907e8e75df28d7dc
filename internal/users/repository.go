package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-tally/tally/internal/platform/db"
	"github.com/civic-tally/tally/internal/shared"
)

const userColumns = `id, username, status, session_timeout_min, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser inserts an active principal.
func (r *Repository) CreateUser(ctx context.Context, in NewUser) (User, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (username, username_key, password_hash, status)
VALUES ($1, $2, $3, 'active')
RETURNING `+userColumns, in.Identifier, in.IdentifierKey, in.SecretHash)
	user, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, fmt.Errorf("identifier already taken: %w", shared.ErrConflict)
		}
		return User{}, err
	}
	return user, nil
}

// UpdateStatus sets the lifecycle status of a principal.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status shared.PrincipalStatus) (User, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE users SET status = $2, updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns, id, string(status))
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return user, err
}

// Purge removes a deleted principal that holds no active session.
func (r *Repository) Purge(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return err
		}
		var active bool
		if err := tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM sessions WHERE principal_id = $1 AND status = 'active' AND expires_at > NOW())`,
			id).Scan(&active); err != nil {
			return err
		}
		if err := purgeAllowed(shared.PrincipalStatus(status), active); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return err
	})
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user    User
		status  string
		timeout *int32
	)
	if err := row.Scan(&user.ID, &user.Identifier, &status, &timeout, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	user.Status = shared.PrincipalStatus(status)
	if timeout != nil {
		v := int(*timeout)
		user.SessionTimeout = &v
	}
	return user, nil
}
