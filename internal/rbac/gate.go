package rbac

import (
	"context"
	"fmt"

	"github.com/civic-tally/tally/internal/shared"
	"github.com/civic-tally/tally/internal/token"
)

// Revocations answers the per-request revocation questions.
type Revocations interface {
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
	SessionOpen(ctx context.Context, sessionID string) (bool, error)
}

// Resolver computes effective permissions.
type Resolver interface {
	EffectivePermissions(ctx context.Context, principalID int64) ([]shared.Permission, error)
}

// Gate turns a presented bearer token into a Grant. The checks run in a
// fixed order and the first failure ends the request; nothing is mutated.
type Gate struct {
	codec       *token.Codec
	revocations Revocations
	resolver    Resolver
}

// NewGate constructs a Gate.
func NewGate(codec *token.Codec, revocations Revocations, resolver Resolver) *Gate {
	return &Gate{codec: codec, revocations: revocations, resolver: resolver}
}

// Authorize verifies raw and resolves the permissions of its principal.
func (g *Gate) Authorize(ctx context.Context, raw string) (*shared.Grant, error) {
	if raw == "" {
		return nil, shared.ErrTokenMissing
	}
	claims, err := g.codec.Verify(raw)
	if err != nil {
		return nil, err
	}

	revoked, err := g.revocations.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("rbac: blacklist lookup: %w", err)
	}
	if revoked {
		return nil, shared.ErrTokenRevoked
	}

	open, err := g.revocations.SessionOpen(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("rbac: session lookup: %w", err)
	}
	if !open {
		return nil, shared.ErrSessionClosed
	}

	perms, err := g.resolver.EffectivePermissions(ctx, claims.PrincipalID)
	if err != nil {
		return nil, err
	}
	return &shared.Grant{
		PrincipalID: claims.PrincipalID,
		SessionID:   claims.ID,
		Permissions: perms,
	}, nil
}

// Check authorizes raw and requires action to be among the granted permissions.
func (g *Gate) Check(ctx context.Context, raw, action string) (*shared.Grant, error) {
	grant, err := g.Authorize(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !Allows(grant.Permissions, action) {
		return nil, shared.ErrForbidden
	}
	return grant, nil
}
