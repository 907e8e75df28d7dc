package sessions

import (
	"context"
	"fmt"
	"log/slog"
)

// SweepStore prunes state that has outlived its tokens.
type SweepStore interface {
	PruneBlacklist(ctx context.Context) (int64, error)
	ExpireSessions(ctx context.Context) (int64, error)
}

// Sweeper drops blacklist rows past their copied expiry and marks lapsed
// active sessions as expired. Neither affects authorization outcomes.
type Sweeper struct {
	store  SweepStore
	logger *slog.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(store SweepStore, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, logger: logger}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	pruned, err := s.store.PruneBlacklist(ctx)
	if err != nil {
		return result, fmt.Errorf("sessions: prune blacklist: %w", err)
	}
	result.BlacklistPruned = pruned

	expired, err := s.store.ExpireSessions(ctx)
	if err != nil {
		return result, fmt.Errorf("sessions: expire sessions: %w", err)
	}
	result.SessionsExpired = expired

	s.logger.Info("session sweep complete",
		slog.Int64("blacklist_pruned", result.BlacklistPruned),
		slog.Int64("sessions_expired", result.SessionsExpired),
	)
	return result, nil
}
