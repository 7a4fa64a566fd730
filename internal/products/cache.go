package product

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// ListCache stores browse results. Invalidate drops every cached page at once.
type ListCache interface {
	Get(ctx context.Context, q ListQuery) (*ListResult, bool)
	Set(ctx context.Context, q ListQuery, result *ListResult)
	Invalidate(ctx context.Context)
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	CacheKey(parts ...string) string
}

// RedisListCache namespaces entries by a generation counter; bumping the
// counter orphans old entries, which then age out through their TTL.
type RedisListCache struct {
	store cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewRedisListCache(store cacheStore, ttl time.Duration, logg *logger.Logger) *RedisListCache {
	if logg == nil {
		logg = logger.Nop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisListCache{store: store, ttl: ttl, logg: logg}
}

func (c *RedisListCache) Get(ctx context.Context, q ListQuery) (*ListResult, bool) {
	key, err := c.key(ctx, q)
	if err != nil {
		return nil, false
	}
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !redis.IsNil(err) {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "product list cache read failed")
		}
		return nil, false
	}
	var out ListResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}
	return &out, true
}

func (c *RedisListCache) Set(ctx context.Context, q ListQuery, result *ListResult) {
	if result == nil {
		return
	}
	key, err := c.key(ctx, q)
	if err != nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, payload, c.ttl); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "product list cache write failed")
	}
}

func (c *RedisListCache) Invalidate(ctx context.Context) {
	if _, err := c.store.Incr(ctx, c.versionKey()); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "product list cache invalidation failed")
	}
}

func (c *RedisListCache) key(ctx context.Context, q ListQuery) (string, error) {
	version := "0"
	raw, err := c.store.Get(ctx, c.versionKey())
	switch {
	case err == nil:
		if _, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
			version = raw
		}
	case redis.IsNil(err):
	default:
		return "", err
	}
	return c.store.CacheKey("products", "v"+version, q.fingerprint()), nil
}

func (c *RedisListCache) versionKey() string {
	return c.store.CacheKey("products", "version")
}

type nopCache struct{}

func (nopCache) Get(context.Context, ListQuery) (*ListResult, bool) { return nil, false }
func (nopCache) Set(context.Context, ListQuery, *ListResult)        {}
func (nopCache) Invalidate(context.Context)                        {}
