package prisoner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "caseplan:prisoner:"

// Lookup is the read interface the schedule engines consume.
type Lookup interface {
	ReleaseDate(ctx context.Context, personID string) (*time.Time, error)
	CurrentPrison(ctx context.Context, personID string) (string, error)
}

// CachedLookup caches search records in Redis for a short TTL. Schedule
// decisions tolerate slightly stale demographics; the cache mostly absorbs
// the burst of lookups a prison-wide event sweep generates. Cache failures
// fall through to the live client.
type CachedLookup struct {
	client *Client
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedLookup wraps a client with a Redis read-through cache.
func NewCachedLookup(client *Client, redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLookup {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLookup{client: client, redis: redisClient, ttl: ttl, logger: logger}
}

// ReleaseDate returns the person's planned release date, from cache when
// fresh.
func (l *CachedLookup) ReleaseDate(ctx context.Context, personID string) (*time.Time, error) {
	d, err := l.get(ctx, personID)
	if err != nil {
		return nil, err
	}
	return d.ReleaseDate, nil
}

// CurrentPrison returns the person's current prison code, from cache when
// fresh.
func (l *CachedLookup) CurrentPrison(ctx context.Context, personID string) (string, error) {
	d, err := l.get(ctx, personID)
	if err != nil {
		return "", err
	}
	return d.PrisonID, nil
}

func (l *CachedLookup) get(ctx context.Context, personID string) (*Details, error) {
	key := cacheKeyPrefix + personID

	raw, err := l.redis.Get(ctx, key).Bytes()
	if err == nil {
		var d Details
		if err := json.Unmarshal(raw, &d); err == nil {
			return &d, nil
		}
		l.logger.Warn("discarding corrupt prisoner cache entry", "person_id", personID)
	} else if !errors.Is(err, redis.Nil) {
		l.logger.Warn("prisoner cache read failed", "person_id", personID, "error", err)
	}

	d, err := l.client.Get(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("prisoner lookup %s: %w", personID, err)
	}

	if raw, err := json.Marshal(d); err == nil {
		if err := l.redis.Set(ctx, key, raw, l.ttl).Err(); err != nil {
			l.logger.Warn("prisoner cache write failed", "person_id", personID, "error", err)
		}
	}
	return d, nil
}
