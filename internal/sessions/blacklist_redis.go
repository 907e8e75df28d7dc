package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "tally:revoked:"

// RedisBlacklist mirrors blacklist entries into Redis with a TTL equal to the
// remaining token lifetime, so entries disappear on their own.
type RedisBlacklist struct {
	client *redis.Client
	clock  clock.Clock
}

// NewRedisBlacklist constructs a RedisBlacklist.
func NewRedisBlacklist(client *redis.Client, clk clock.Clock) *RedisBlacklist {
	if clk == nil {
		clk = clock.WallClock
	}
	return &RedisBlacklist{client: client, clock: clk}
}

// Add records tokenID until expiresAt. Already-expired tokens are skipped.
func (b *RedisBlacklist) Add(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(b.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, blacklistKeyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("sessions: redis blacklist add: %w", err)
	}
	return nil
}

// Contains reports whether tokenID has a live entry.
func (b *RedisBlacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("sessions: redis blacklist lookup: %w", err)
	}
	return n > 0, nil
}
