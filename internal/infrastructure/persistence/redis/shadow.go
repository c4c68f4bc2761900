// Package redis implements the shared pending-visit shadow for deployments
// where several kiosks front one academy. A visit queued on one kiosk must
// hold the cooldown on all of them, and Redis is the cheapest thing the
// kiosks already share.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dojo-hub/dojo-attendance-hub/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return client, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PENDING SHADOW
// ══════════════════════════════════════════════════════════════════════════════

const shadowKeyPrefix = "kiosk:pending:"

// Shadow is a Redis-backed command.PendingShadow. Keys carry a TTL equal to
// the cooldown window, so Redis expires entries the moment they stop
// mattering.
type Shadow struct {
	client *redis.Client
	ttl    time.Duration
}

// NewShadow creates a Shadow with the given entry TTL.
func NewShadow(client *redis.Client, ttl time.Duration) *Shadow {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Shadow{client: client, ttl: ttl}
}

var _ command.PendingShadow = (*Shadow)(nil)

// MarkPending records that a visit for code happened at the given time.
func (s *Shadow) MarkPending(ctx context.Context, code string, at time.Time) error {
	key := shadowKeyPrefix + code

	// Keep the freshest timestamp if two kiosks race.
	existing, err := s.client.Get(ctx, key).Result()
	if err == nil {
		if prev, parseErr := time.Parse(time.RFC3339Nano, existing); parseErr == nil && prev.After(at) {
			return nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("shadow: get %s: %w", key, err)
	}

	if err := s.client.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), s.ttl).Err(); err != nil {
		return fmt.Errorf("shadow: set %s: %w", key, err)
	}
	return nil
}

// LastPending returns the latest recorded pending visit time for code.
func (s *Shadow) LastPending(ctx context.Context, code string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, shadowKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("shadow: get %s: %w", shadowKeyPrefix+code, err)
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("shadow: parse %q: %w", val, err)
	}
	return at, true, nil
}
