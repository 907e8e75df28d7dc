package stats

import (
	"context"
	"log/slog"
	"sync"
)

// Invalidator bumps the cache version whenever a change event arrives.
// It registers with the change feed like any other subscriber; bursts of
// events collapse into a single pending bump.
type Invalidator struct {
	cache  *Cache
	logger *slog.Logger
	kick   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewInvalidator constructs an Invalidator. Call Run to start bumping.
func NewInvalidator(cache *Cache, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{
		cache:  cache,
		logger: logger,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID identifies the invalidator in the subscriber registry.
func (i *Invalidator) ID() string { return "stats-cache-invalidator" }

// Send schedules a bump without blocking.
func (i *Invalidator) Send([]byte) bool {
	select {
	case <-i.done:
		return false
	default:
	}
	select {
	case i.kick <- struct{}{}:
	default:
	}
	return true
}

// Close stops Run.
func (i *Invalidator) Close() {
	i.once.Do(func() { close(i.done) })
}

// Run applies pending bumps until ctx is cancelled or the invalidator is closed.
func (i *Invalidator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.done:
			return
		case <-i.kick:
			ver, err := i.cache.Bump(ctx)
			if err != nil {
				i.logger.Warn("stats cache bump failed", slog.Any("error", err))
				continue
			}
			i.logger.Debug("stats cache bumped", slog.Int64("version", ver))
		}
	}
}
