package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/civic-tally/tally/internal/shared"
)

// SettingsStore persists timeout overrides.
type SettingsStore interface {
	GlobalTimeout(ctx context.Context) (int, error)
	SetGlobalTimeout(ctx context.Context, minutes int) error
	SetPrincipalTimeout(ctx context.Context, principalID int64, minutes int) error
	SetRoleTimeout(ctx context.Context, roleID int64, minutes int) error
}

// MaxTimeoutMinutes bounds every timeout level to one year.
const MaxTimeoutMinutes = 525600

// Settings holds the process-wide default timeout and writes overrides.
type Settings struct {
	store  SettingsStore
	global atomic.Int64
}

// NewSettings seeds the global default from configuration.
func NewSettings(store SettingsStore, defaultMinutes int) (*Settings, error) {
	if !inRange(defaultMinutes) {
		return nil, ErrNoGlobalTimeout
	}
	s := &Settings{store: store}
	s.global.Store(int64(defaultMinutes))
	return s, nil
}

// Load replaces the configured default with a persisted value, if one is in range.
func (s *Settings) Load(ctx context.Context) error {
	minutes, err := s.store.GlobalTimeout(ctx)
	if err != nil {
		return fmt.Errorf("sessions: load global timeout: %w", err)
	}
	if inRange(minutes) {
		s.global.Store(int64(minutes))
	}
	return nil
}

// GlobalTimeout returns the current process-wide default in minutes.
func (s *Settings) GlobalTimeout() int {
	return int(s.global.Load())
}

// SetGlobalTimeout persists and then publishes a new default.
func (s *Settings) SetGlobalTimeout(ctx context.Context, minutes int) error {
	if err := validateMinutes(minutes); err != nil {
		return err
	}
	if err := s.store.SetGlobalTimeout(ctx, minutes); err != nil {
		return err
	}
	s.global.Store(int64(minutes))
	return nil
}

// SetPrincipalTimeout stores a principal-level override.
func (s *Settings) SetPrincipalTimeout(ctx context.Context, principalID int64, minutes int) error {
	if err := validateMinutes(minutes); err != nil {
		return err
	}
	return s.store.SetPrincipalTimeout(ctx, principalID, minutes)
}

// SetRoleTimeout stores a role-level override.
func (s *Settings) SetRoleTimeout(ctx context.Context, roleID int64, minutes int) error {
	if err := validateMinutes(minutes); err != nil {
		return err
	}
	return s.store.SetRoleTimeout(ctx, roleID, minutes)
}

func validateMinutes(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, errTimeoutNotPositive)
	}
	if minutes > MaxTimeoutMinutes {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, errTimeoutTooLong)
	}
	return nil
}

func inRange(minutes int) bool {
	return minutes > 0 && minutes <= MaxTimeoutMinutes
}

var (
	errTimeoutNotPositive = errors.New("timeout must be a positive number")
	errTimeoutTooLong     = errors.New("timeout must not exceed one year")
)
