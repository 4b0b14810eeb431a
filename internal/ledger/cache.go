package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "proofstamp:ledger:"

// CachedRawReader serves raw ledger reads from Redis for a short TTL and
// falls through to the wrapped reader on a miss. Redis failures are logged
// and treated as misses, so the cache never turns a readable ledger into an
// unreadable one.
type CachedRawReader struct {
	next   RawReader
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRawReader wraps next with a Redis cache. ttl defaults to 30s.
func NewCachedRawReader(next RawReader, rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedRawReader {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedRawReader{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(path, branch string) string {
	return cacheKeyPrefix + branch + ":" + path
}

// ReadRaw implements RawReader.
func (c *CachedRawReader) ReadRaw(ctx context.Context, path, branch string) (string, error) {
	key := cacheKey(path, branch)
	v, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return v, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("ledger cache read failed", zap.String("key", key), zap.Error(err))
	}

	body, err := c.next.ReadRaw(ctx, path, branch)
	if err != nil {
		return "", err
	}
	if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil {
		c.logger.Warn("ledger cache write failed", zap.String("key", key), zap.Error(err))
	}
	return body, nil
}

// Invalidate drops the cached copy of path on branch. It is called after a
// successful append so the next verification sees the new line.
func (c *CachedRawReader) Invalidate(ctx context.Context, path, branch string) {
	if err := c.rdb.Del(ctx, cacheKey(path, branch)).Err(); err != nil {
		c.logger.Warn("ledger cache invalidate failed", zap.String("path", path), zap.Error(err))
	}
}

// CommitURL implements CommitLinker when the wrapped reader does.
func (c *CachedRawReader) CommitURL(writeID string) string {
	if l, ok := c.next.(CommitLinker); ok {
		return l.CommitURL(writeID)
	}
	return ""
}
