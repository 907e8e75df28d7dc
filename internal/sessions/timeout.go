package sessions

import (
	"context"
	"errors"
	"fmt"
)

// TimeoutLevel names the hierarchy level an effective timeout came from.
type TimeoutLevel string

const (
	LevelPrincipal TimeoutLevel = "principal"
	LevelRole      TimeoutLevel = "role"
	LevelGlobal    TimeoutLevel = "global"
)

// Timeout is an effective session lifetime and where it was resolved.
type Timeout struct {
	Minutes int
	Level   TimeoutLevel
}

// ErrNoGlobalTimeout means the process-wide default is missing.
var ErrNoGlobalTimeout = errors.New("sessions: global timeout not configured")

// TimeoutStore loads the per-principal override levels.
type TimeoutStore interface {
	TimeoutSources(ctx context.Context, principalID int64) (TimeoutSources, error)
}

// GlobalTimeoutSource exposes the process-wide default in minutes.
type GlobalTimeoutSource interface {
	GlobalTimeout() int
}

// timeoutRules is the resolution order; the first in-range value wins.
var timeoutRules = []struct {
	level TimeoutLevel
	pick  func(src TimeoutSources, global int) int
}{
	{LevelPrincipal, func(src TimeoutSources, _ int) int { return src.Principal }},
	{LevelRole, func(src TimeoutSources, _ int) int { return maxInRange(src.Roles) }},
	{LevelGlobal, func(_ TimeoutSources, global int) int { return global }},
}

// TimeoutPolicy resolves the effective session lifetime for a principal.
type TimeoutPolicy struct {
	store  TimeoutStore
	global GlobalTimeoutSource
}

// NewTimeoutPolicy constructs a TimeoutPolicy.
func NewTimeoutPolicy(store TimeoutStore, global GlobalTimeoutSource) *TimeoutPolicy {
	return &TimeoutPolicy{store: store, global: global}
}

// EffectiveTimeout walks principal override, highest role override, then the global default.
func (p *TimeoutPolicy) EffectiveTimeout(ctx context.Context, principalID int64) (Timeout, error) {
	src, err := p.store.TimeoutSources(ctx, principalID)
	if err != nil {
		return Timeout{}, fmt.Errorf("sessions: timeout sources: %w", err)
	}
	global := 0
	if p.global != nil {
		global = p.global.GlobalTimeout()
	}
	return resolveTimeout(src, global)
}

func resolveTimeout(src TimeoutSources, global int) (Timeout, error) {
	for _, rule := range timeoutRules {
		if minutes := rule.pick(src, global); inRange(minutes) {
			return Timeout{Minutes: minutes, Level: rule.level}, nil
		}
	}
	return Timeout{}, ErrNoGlobalTimeout
}

func maxInRange(values []int) int {
	best := 0
	for _, v := range values {
		if inRange(v) && v > best {
			best = v
		}
	}
	return best
}
