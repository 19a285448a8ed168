// Package redis 提供规则集缓存、生成接口限流与复核事件流共用的 Redis 连接
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"lesson-forge-api/internal/config"
)

var tracer = otel.Tracer("redis")

const defaultKeyPrefix = "lesson-forge"

// Client 带命名空间的 Redis 连接
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient 建立连接并在 DialTimeout 内完成一次 PING
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	c := Wrap(rdb, cfg.KeyPrefix)
	if err := c.HealthCheck(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

// Wrap 包装已有连接；prefix 为空时使用 "lesson-forge"
func Wrap(rdb *redis.Client, prefix string) *Client {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Client{rdb: rdb, prefix: prefix}
}

// Key 拼接带命名空间的键，如 lesson-forge:ratelimit:lessons.generate:10.0.0.7
func (c *Client) Key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

// Redis 底层客户端，消息流直接使用
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck 供就绪探针调用
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.Ping")
	defer span.End()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// IsNil 键不存在
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
