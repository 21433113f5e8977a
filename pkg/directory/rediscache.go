// pkg/directory/rediscache.go
package directory

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cachedSchools decorates a Schools lookup with a short-TTL Redis cache.
// Descriptors are read-only here, so staleness is bounded by the TTL and a
// cache miss is always recoverable by falling through to the inner lookup.
type cachedSchools struct {
	inner Schools
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.SugaredLogger
}

func NewCachedSchools(inner Schools, rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) Schools {
	if rdb == nil || ttl <= 0 {
		return inner
	}
	return &cachedSchools{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func (c *cachedSchools) FindByID(ctx context.Context, id string) (School, error) {
	return c.lookup(ctx, "school:id:"+id, func() (School, error) { return c.inner.FindByID(ctx, id) })
}

func (c *cachedSchools) FindByDomain(ctx context.Context, domain string) (School, error) {
	key := "school:domain:" + strings.ToLower(domain)
	return c.lookup(ctx, key, func() (School, error) { return c.inner.FindByDomain(ctx, domain) })
}

func (c *cachedSchools) lookup(ctx context.Context, key string, fetch func() (School, error)) (School, error) {
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var s School
		if json.Unmarshal(raw, &s) == nil {
			return s, nil
		}
	}
	s, err := fetch()
	if err != nil {
		return School{}, err
	}
	if raw, err := json.Marshal(s); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warnw("school cache set", "key", key, "err", err)
		}
	}
	return s, nil
}
