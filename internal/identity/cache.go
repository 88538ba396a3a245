package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"castboard/internal/observability"
)

const (
	defaultCacheTTL = time.Hour
	cacheKeyPrefix  = "castboard:identity:"
)

// CachedDirectory caches verified addresses per handle in Redis.
// Empty results are not cached so new verifications show up immediately.
// Redis failures fall through to the wrapped directory.
type CachedDirectory struct {
	next   Directory
	rdb    redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedDirectory wraps next with a Redis cache.
func NewCachedDirectory(next Directory, rdb redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedDirectory{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(handle string) string {
	return cacheKeyPrefix + handle
}

// VerifiedAddresses implements Directory.
func (c *CachedDirectory) VerifiedAddresses(ctx context.Context, handle string) ([]string, error) {
	key := cacheKey(handle)

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var addrs []string
		if jsonErr := json.Unmarshal([]byte(raw), &addrs); jsonErr == nil && len(addrs) > 0 {
			observability.RecordIdentityCache("hit")
			return addrs, nil
		}
		observability.RecordIdentityCache("corrupt")
	case errors.Is(err, redis.Nil):
		observability.RecordIdentityCache("miss")
	default:
		observability.RecordIdentityCache("error")
		c.logger.Warn().Err(err).Str("handle", handle).Msg("identity cache read failed")
	}

	addrs, err := c.next.VerifiedAddresses(ctx, handle)
	if err != nil || len(addrs) == 0 {
		return addrs, err
	}

	data, err := json.Marshal(addrs)
	if err != nil {
		return addrs, nil
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("handle", handle).Msg("identity cache write failed")
	}
	return addrs, nil
}
