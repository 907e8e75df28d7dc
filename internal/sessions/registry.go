package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/civic-tally/tally/internal/shared"
	"github.com/civic-tally/tally/internal/token"
)

// RevocationStore is the durable side of the revocation registry.
type RevocationStore interface {
	// CloseSession closes the session if still active and blacklists its
	// token id in one transaction. Both steps tolerate repeats.
	CloseSession(ctx context.Context, req CloseRequest) (bool, error)
	CloseActiveSessions(ctx context.Context, principalID int64, reason Status) (int64, error)
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
	SessionStatus(ctx context.Context, sessionID string) (Status, error)
}

// CloseRequest describes a logout. ExpiresAt is copied from the token and
// bounds how long the blacklist entry is kept.
type CloseRequest struct {
	SessionID string
	Reason    Status
	ExpiresAt time.Time
}

// Blacklist is a fast lookup in front of the durable blacklist.
type Blacklist interface {
	Add(ctx context.Context, tokenID string, expiresAt time.Time) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

// Registry answers "is this token revoked" and "is this session open", and
// performs logout and forced logout.
type Registry struct {
	codec  *token.Codec
	store  RevocationStore
	cache  Blacklist
	logger *slog.Logger
}

// NewRegistry constructs a Registry. cache may be nil.
func NewRegistry(codec *token.Codec, store RevocationStore, cache Blacklist, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{codec: codec, store: store, cache: cache, logger: logger}
}

// Logout closes the session a token belongs to and blacklists the token.
// Expired tokens are accepted; repeated logouts succeed without effect.
func (r *Registry) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return shared.ErrTokenMissing
	}
	claims, err := r.codec.Decode(raw)
	if err != nil {
		return err
	}

	closed, err := r.store.CloseSession(ctx, CloseRequest{
		SessionID: claims.ID,
		Reason:    StatusClosedLogout,
		ExpiresAt: claims.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("sessions: logout: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Add(ctx, claims.ID, claims.ExpiresAt); err != nil {
			r.logger.Warn("blacklist cache write failed", slog.String("session_id", claims.ID), slog.Any("error", err))
		}
	}

	r.logger.Info("session logout",
		slog.String("session_id", claims.ID),
		slog.Int64("principal_id", claims.PrincipalID),
		slog.Bool("was_active", closed),
	)
	return nil
}

// ForceLogout closes every active session of a principal and returns how many
// were closed. Already-issued tokens fail the session check from then on.
func (r *Registry) ForceLogout(ctx context.Context, principalID int64) (int64, error) {
	if principalID <= 0 {
		return 0, fmt.Errorf("%w: principal id required", shared.ErrInvalidInput)
	}
	count, err := r.store.CloseActiveSessions(ctx, principalID, StatusClosedForced)
	if err != nil {
		return 0, fmt.Errorf("sessions: force logout: %w", err)
	}
	r.logger.Info("forced logout", slog.Int64("principal_id", principalID), slog.Int64("sessions", count))
	return count, nil
}

// IsBlacklisted reports whether the token id was revoked and its copied expiry
// has not passed. Cache hits short-circuit; misses and cache errors go to the store.
func (r *Registry) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	if r.cache != nil {
		hit, err := r.cache.Contains(ctx, tokenID)
		if err == nil {
			if hit {
				return true, nil
			}
		} else {
			r.logger.Warn("blacklist cache read failed", slog.Any("error", err))
		}
	}
	return r.store.IsBlacklisted(ctx, tokenID)
}

// SessionOpen reports whether the session is still active. Unknown sessions are closed.
func (r *Registry) SessionOpen(ctx context.Context, sessionID string) (bool, error) {
	status, err := r.store.SessionStatus(ctx, sessionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return status == StatusActive, nil
}
