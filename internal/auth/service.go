package auth

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/civic-tally/tally/internal/sessions"
	"github.com/civic-tally/tally/internal/shared"
)

// SessionIssuer issues a session for a verified principal.
type SessionIssuer interface {
	Issue(ctx context.Context, principalID int64) (sessions.Issued, error)
}

// PermissionResolver computes effective permissions.
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, principalID int64) ([]shared.Permission, error)
}

// Revoker ends sessions.
type Revoker interface {
	Logout(ctx context.Context, raw string) error
	ForceLogout(ctx context.Context, principalID int64) (int64, error)
}

// AuditRecorder stores privileged actions.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LoginResult is what a successful login hands back.
type LoginResult struct {
	PrincipalID int64
	Token       string
	ExpiresAt   time.Time
	Permissions []shared.Permission
}

// Service wraps the login, logout and forced logout flows.
type Service struct {
	verifier *Verifier
	issuer   SessionIssuer
	resolver PermissionResolver
	revoker  Revoker
	audit    AuditRecorder
	logger   *slog.Logger
}

// NewService constructs a new Service. audit may be nil.
func NewService(verifier *Verifier, issuer SessionIssuer, resolver PermissionResolver, revoker Revoker, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{verifier: verifier, issuer: issuer, resolver: resolver, revoker: revoker, audit: audit, logger: logger}
}

// Login verifies credentials, issues a session and resolves permissions.
func (s *Service) Login(ctx context.Context, identifier, secret, sourceAddr string) (LoginResult, error) {
	principalID, err := s.verifier.Verify(ctx, identifier, secret, sourceAddr)
	if err != nil {
		return LoginResult{}, err
	}
	issued, err := s.issuer.Issue(ctx, principalID)
	if err != nil {
		return LoginResult{}, err
	}
	perms, err := s.resolver.EffectivePermissions(ctx, principalID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		PrincipalID: principalID,
		Token:       issued.Token,
		ExpiresAt:   issued.ExpiresAt,
		Permissions: perms,
	}, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, raw string) error {
	return s.revoker.Logout(ctx, raw)
}

// ForceLogout closes every active session of principalID. actorID is zero
// when the caller was not authenticated.
func (s *Service) ForceLogout(ctx context.Context, principalID, actorID int64) (int64, error) {
	count, err := s.revoker.ForceLogout(ctx, principalID)
	if err != nil {
		return 0, err
	}
	if s.audit != nil {
		entry := shared.AuditLog{
			ActorID:  actorID,
			Action:   "force_logout",
			Entity:   shared.EntityPrincipal,
			EntityID: strconv.FormatInt(principalID, 10),
			Meta:     map[string]any{"sessions_closed": count},
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("audit force logout", slog.Any("error", err))
		}
	}
	return count, nil
}
