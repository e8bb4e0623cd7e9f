package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// DefaultTTL 图片列表与单链接图片的统一过期时间
const DefaultTTL = 3600 * time.Second

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehub_cache_hits_total",
		Help: "Number of cache lookups served from the cache",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehub_cache_misses_total",
		Help: "Number of cache lookups that had to be computed",
	})
)

// Cache 带 TTL 的 KV 存储，过期淘汰由具体实现负责
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Remember get-or-compute：命中直接返回；未命中则计算、以 JSON 写入并返回。
// 缓存读写失败只记日志，不影响计算结果；compute 出错时不写缓存。
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if v, ok := lookup[T](ctx, c, key); ok {
		cacheHits.Inc()
		return v, nil
	}
	cacheMisses.Inc()

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	Store(ctx, c, key, ttl, v)
	return v, nil
}

// Store 无条件覆盖写入
func Store[T any](ctx context.Context, c Cache, key string, ttl time.Duration, v T) {
	bs, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("cache: encode value failed")
		return
	}
	if err := c.Set(ctx, key, bs, ttl); err != nil {
		log.WithError(err).WithField("key", key).Warn("cache: write failed")
	}
}

func lookup[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var v T
	bs, ok, err := c.Get(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("cache: read failed, recomputing")
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(bs, &v); err != nil {
		log.WithError(err).WithField("key", key).Warn("cache: stale entry with unexpected format")
		return v, false
	}
	return v, true
}
