package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/civic-tally/tally/internal/platform/db"
)

// Source opens an upstream subscription to one change channel.
type Source interface {
	Subscribe(ctx context.Context, channel string) (Stream, error)
}

// Stream yields raw event payloads until the subscription breaks.
type Stream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// PGSource listens on a Postgres notification channel over a dedicated connection.
type PGSource struct {
	dsn string
}

// NewPGSource constructs a PGSource.
func NewPGSource(dsn string) *PGSource {
	return &PGSource{dsn: dsn}
}

// Subscribe implements Source.
func (s *PGSource) Subscribe(ctx context.Context, channel string) (Stream, error) {
	conn, err := db.Connect(ctx, s.dsn)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, listenStatement(channel)); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("feed: listen %s: %w", channel, err)
	}
	return &pgStream{conn: conn}, nil
}

func listenStatement(channel string) string {
	return "LISTEN " + pgx.Identifier{channel}.Sanitize()
}

type pgStream struct {
	conn *pgx.Conn
}

func (s *pgStream) Next(ctx context.Context) ([]byte, error) {
	n, err := s.conn.WaitForNotification(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(n.Payload), nil
}

func (s *pgStream) Close() error {
	return s.conn.Close(context.Background())
}

// RedisSource subscribes to a Redis pub/sub channel.
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource constructs a RedisSource.
func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

// Subscribe implements Source. It returns only once the server confirmed the subscription.
func (s *RedisSource) Subscribe(ctx context.Context, channel string) (Stream, error) {
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("feed: subscribe %s: %w", channel, err)
	}
	return &redisStream{ps: ps}, nil
}

type redisStream struct {
	ps *redis.PubSub
}

func (s *redisStream) Next(ctx context.Context) ([]byte, error) {
	for {
		msg, err := s.ps.Receive(ctx)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *redis.Message:
			return []byte(m.Payload), nil
		case *redis.Subscription:
			if m.Kind == "unsubscribe" {
				return nil, errors.New("feed: unsubscribed by server")
			}
		}
	}
}

func (s *redisStream) Close() error {
	return s.ps.Close()
}
