package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/civic-tally/tally/internal/auth"
	"github.com/civic-tally/tally/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, in NewUser) (User, error)
	UpdateStatus(ctx context.Context, id int64, status shared.PrincipalStatus) (User, error)
	Purge(ctx context.Context, id int64) error
}

// Revoker closes every active session of a principal.
type Revoker interface {
	ForceLogout(ctx context.Context, principalID int64) (int64, error)
}

// AuditRecorder stores privileged actions.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles principal lifecycle.
type Service struct {
	repo    RepositoryPort
	revoker Revoker
	audit   AuditRecorder
	logger  *slog.Logger
	cost    int
}

// NewService builds Service instance. audit may be nil.
func NewService(repo RepositoryPort, revoker Revoker, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, revoker: revoker, audit: audit, logger: logger, cost: bcrypt.DefaultCost}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// CreateUser provisions an active principal with a bcrypt hashed secret.
func (s *Service) CreateUser(ctx context.Context, actorID int64, identifier, secret string) (User, error) {
	identifier = strings.TrimSpace(identifier)
	key := auth.NormalizeIdentifier(identifier)
	if key == "" {
		return User{}, fmt.Errorf("identifier required: %w", shared.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash secret: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, NewUser{Identifier: identifier, IdentifierKey: key, SecretHash: string(hash)})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "create_user", user.ID, nil)
	return user, nil
}

// UpdateStatus moves a principal to status. Suspension and deletion close
// the principal's active sessions after the status is stored, so no new
// login can slip in between.
func (s *Service) UpdateStatus(ctx context.Context, actorID, id int64, status shared.PrincipalStatus) (StatusChange, error) {
	if !status.Valid() {
		return StatusChange{}, fmt.Errorf("unknown status %q: %w", status, shared.ErrInvalidInput)
	}
	user, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return StatusChange{}, err
	}
	change := StatusChange{User: user}
	if endsSessions(status) {
		closed, err := s.revoker.ForceLogout(ctx, id)
		if err != nil {
			return change, fmt.Errorf("users: close sessions: %w", err)
		}
		change.SessionsClosed = closed
	}
	s.record(ctx, actorID, "update_user_status", id, map[string]any{
		"status":          string(status),
		"sessions_closed": change.SessionsClosed,
	})
	return change, nil
}

// Purge hard-deletes a principal. Only deleted principals without an
// active session may be purged.
func (s *Service) Purge(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Purge(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "delete_user_permanently", id, nil)
	return nil
}

func purgeAllowed(status shared.PrincipalStatus, hasActiveSession bool) error {
	if status != shared.PrincipalDeleted {
		return fmt.Errorf("principal must be deleted before purge: %w", shared.ErrConflict)
	}
	if hasActiveSession {
		return fmt.Errorf("principal still holds an active session: %w", shared.ErrConflict)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityPrincipal,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit principal change", slog.String("action", action), slog.Any("error", err))
	}
}
