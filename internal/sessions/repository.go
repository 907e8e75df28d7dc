package sessions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-tally/tally/internal/platform/db"
	"github.com/civic-tally/tally/internal/shared"
)

// Repository provides PostgreSQL backed persistence for sessions, the token
// blacklist and timeout settings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TimeoutSources loads the principal override and the overrides of its live roles.
func (r *Repository) TimeoutSources(ctx context.Context, principalID int64) (TimeoutSources, error) {
	const query = `
SELECT COALESCE(u.session_timeout_min, 0),
       ARRAY(
           SELECT r.session_timeout_min
           FROM user_roles ur
           JOIN roles r ON r.id = ur.role_id
           WHERE ur.user_id = u.id
             AND r.deleted_at IS NULL
             AND r.session_timeout_min IS NOT NULL
       )
FROM users u
WHERE u.id = $1`
	var (
		principal int32
		roles     []int32
	)
	if err := r.pool.QueryRow(ctx, query, principalID).Scan(&principal, &roles); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TimeoutSources{}, shared.ErrNotFound
		}
		return TimeoutSources{}, err
	}
	src := TimeoutSources{Principal: int(principal), Roles: make([]int, len(roles))}
	for i, v := range roles {
		src.Roles[i] = int(v)
	}
	return src, nil
}

// CreateSession inserts an active session row.
func (r *Repository) CreateSession(ctx context.Context, session Session) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO sessions (id, principal_id, issued_at, expires_at, status)
VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.PrincipalID, session.IssuedAt, session.ExpiresAt, string(StatusActive))
	return err
}

// SessionStatus returns the status of a session.
func (r *Repository) SessionStatus(ctx context.Context, sessionID string) (Status, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1`, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return Status(status), nil
}

// CloseSession closes the session if it is active and records the blacklist entry.
func (r *Repository) CloseSession(ctx context.Context, req CloseRequest) (bool, error) {
	var closed bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE sessions SET status = $2, closed_at = NOW()
WHERE id = $1 AND status = 'active'`, req.SessionID, string(req.Reason))
		if err != nil {
			return err
		}
		closed = tag.RowsAffected() > 0

		_, err = tx.Exec(ctx, `
INSERT INTO blacklisted_tokens (token_id, expires_at)
VALUES ($1, $2)
ON CONFLICT (token_id) DO NOTHING`, req.SessionID, req.ExpiresAt)
		return err
	})
	return closed, err
}

// CloseActiveSessions closes every active session of a principal.
func (r *Repository) CloseActiveSessions(ctx context.Context, principalID int64, reason Status) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE sessions SET status = $2, closed_at = NOW()
WHERE principal_id = $1 AND status = 'active'`, principalID, string(reason))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsBlacklisted reports whether a live blacklist entry exists.
func (r *Repository) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM blacklisted_tokens WHERE token_id = $1 AND expires_at > NOW()
)`, tokenID).Scan(&exists)
	return exists, err
}

// PruneBlacklist deletes entries whose copied expiry has passed.
func (r *Repository) PruneBlacklist(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM blacklisted_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExpireSessions marks active sessions past their expiry.
func (r *Repository) ExpireSessions(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE sessions SET status = 'expired', closed_at = expires_at
WHERE status = 'active' AND expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GlobalTimeout returns the persisted global timeout, or 0 when unset.
func (r *Repository) GlobalTimeout(ctx context.Context) (int, error) {
	var minutes int32
	err := r.pool.QueryRow(ctx, `SELECT global_timeout FROM session_settings WHERE id = 1`).Scan(&minutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return int(minutes), nil
}

// SetGlobalTimeout upserts the singleton settings row.
func (r *Repository) SetGlobalTimeout(ctx context.Context, minutes int) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO session_settings (id, global_timeout, updated_at)
VALUES (1, $1, NOW())
ON CONFLICT (id) DO UPDATE SET global_timeout = EXCLUDED.global_timeout, updated_at = NOW()`, minutes)
	return err
}

// SetPrincipalTimeout sets a principal-level override.
func (r *Repository) SetPrincipalTimeout(ctx context.Context, principalID int64, minutes int) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE users SET session_timeout_min = $2, updated_at = NOW() WHERE id = $1`, principalID, minutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetRoleTimeout sets a role-level override.
func (r *Repository) SetRoleTimeout(ctx context.Context, roleID int64, minutes int) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE roles SET session_timeout_min = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, roleID, minutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
