package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"lesson-forge-api/pkg/logger"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 规则集镜像的读穿缓存；调用方传入逻辑键，落盘时追加命名空间
type Cache struct {
	client *Client
	group  singleflight.Group
}

func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// GetOrLoadSafe 未命中时调用 loader 并以 JSON 写回，同键并发加载只执行一次。
// ttl 为 0 表示永不过期；写回失败只记日志。
func (c *Cache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	full := c.client.Key(key)
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoad", trace.WithAttributes(attribute.String("cache.key", full)))
	defer span.End()

	if raw, hit, err := c.get(ctx, full); err != nil {
		span.RecordError(err)
		return nil, err
	} else if hit {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return raw, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	v, err, shared := c.group.Do(full, func() (interface{}, error) {
		if raw, hit, err := c.get(ctx, full); err == nil && hit {
			return raw, nil
		}
		data, err := loader()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode cache value %s: %w", key, err)
		}
		if err := c.client.rdb.Set(ctx, full, raw, ttl).Err(); err != nil {
			logger.Warn(ctx, "cache write failed", "key", full, "error", err.Error())
		}
		return raw, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) get(ctx context.Context, full string) ([]byte, bool, error) {
	raw, err := c.client.rdb.Get(ctx, full).Bytes()
	switch {
	case err == nil:
		return raw, true, nil
	case IsNil(err):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Delete 删除逻辑键
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.client.Key(k)
	}
	return c.client.rdb.Del(ctx, full...).Err()
}
