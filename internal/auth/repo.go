package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-tally/tally/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByIdentifier(ctx context.Context, key string) (*Principal, error)
	RecordLogin(ctx context.Context, record LoginRecord) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByIdentifier fetches a principal by its folded identifier.
func (r *PGRepository) FindByIdentifier(ctx context.Context, key string) (*Principal, error) {
	var (
		p      Principal
		status string
	)
	err := r.pool.QueryRow(ctx, `
SELECT id, username, password_hash, status
FROM users
WHERE username_key = $1`, key).Scan(&p.ID, &p.Identifier, &p.SecretHash, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	p.Status = shared.PrincipalStatus(status)
	return &p, nil
}

// RecordLogin appends to login_logs.
func (r *PGRepository) RecordLogin(ctx context.Context, record LoginRecord) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO login_logs (principal_id, identifier, source_addr, outcome, occurred_at)
VALUES (NULLIF($1, 0), $2, $3, $4, $5)`,
		record.PrincipalID, record.Identifier, record.SourceAddr, string(record.Outcome), record.At)
	return err
}

var _ Repository = (*PGRepository)(nil)
