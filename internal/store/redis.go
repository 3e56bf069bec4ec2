package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/PratikDhanave/trigger-contract-service/internal/pipeline"
)

const defaultTombstoneTTL = 10 * time.Minute

// RedisTombstones records closed sessions in Redis so every replica can tell a
// late update from one for a session that never existed. Each tombstone holds
// the close reason and expires after ttl.
type RedisTombstones struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ pipeline.Tombstones = (*RedisTombstones)(nil)

func NewRedisTombstones(client *backend.Client, prefix string, ttl time.Duration) *RedisTombstones {
	if ttl <= 0 {
		ttl = defaultTombstoneTTL
	}
	return &RedisTombstones{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*backend.Client, error) {
	opts, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := backend.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisTombstones) key(session string) string {
	return r.prefix + "closed:" + session
}

// MarkClosed writes the tombstone. A session closes once, so the first
// reason is kept.
func (r *RedisTombstones) MarkClosed(ctx context.Context, key string, reason pipeline.CloseReason) error {
	if err := r.client.SetNX(ctx, r.key(key), string(reason), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis error writing tombstone: %w", err)
	}
	return nil
}

func (r *RedisTombstones) IsClosed(ctx context.Context, key string) (bool, error) {
	err := r.client.Get(ctx, r.key(key)).Err()
	if errors.Is(err, backend.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis error reading tombstone: %w", err)
	}
	return true, nil
}
