package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "caseplan:delivery:"

// RedisDeduper records processed delivery ids in Redis so duplicates are
// dropped across worker instances. Entries expire after the retention window;
// the engines tolerate a replay past that point.
type RedisDeduper struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisDeduper creates a deduper with the given retention window.
func NewRedisDeduper(client *redis.Client, retention time.Duration) *RedisDeduper {
	if retention <= 0 {
		retention = 14 * 24 * time.Hour
	}
	return &RedisDeduper{client: client, retention: retention}
}

// Seen reports whether the delivery id was already processed.
func (d *RedisDeduper) Seen(ctx context.Context, deliveryID string) (bool, error) {
	n, err := d.client.Exists(ctx, keyPrefix+deliveryID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records the delivery id.
func (d *RedisDeduper) MarkProcessed(ctx context.Context, deliveryID string) error {
	if err := d.client.Set(ctx, keyPrefix+deliveryID, "1", d.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
