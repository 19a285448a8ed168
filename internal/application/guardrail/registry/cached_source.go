package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"lesson-forge-api/internal/domain/entity"
	"lesson-forge-api/pkg/logger"
	"lesson-forge-api/pkg/metrics"
)

// KVCache 读穿缓存，loader 的返回值以 JSON 编码写入
type KVCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// CachedSource 在另一个来源前加一层 Redis 镜像。
// 具体版本不可变，永不过期；latest/default 指针带 TTL，发布新版本时显式失效。
type CachedSource struct {
	inner Source
	cache KVCache
	ttl   time.Duration
}

// NewCachedSource 创建缓存来源
func NewCachedSource(inner Source, cache KVCache, ttl time.Duration) *CachedSource {
	return &CachedSource{inner: inner, cache: cache, ttl: ttl}
}

func versionCacheKey(category entity.RuleCategory, key string, version int) string {
	return fmt.Sprintf("ruleset:%s:%s:v%d", category, key, version)
}

func latestCacheKey(category entity.RuleCategory, key string) string {
	return fmt.Sprintf("ruleset:latest:%s:%s", category, key)
}

func defaultCacheKey(category entity.RuleCategory) string {
	return fmt.Sprintf("ruleset:default:%s", category)
}

// Load 见 Source
func (s *CachedSource) Load(ctx context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSet, error) {
	if version == 0 {
		v, err := s.latestVersion(ctx, category, key)
		if err != nil {
			return nil, err
		}
		version = v
	}

	raw, err := s.lookup(ctx, versionCacheKey(category, key, version), 0, func() (interface{}, error) {
		rs, err := s.inner.Load(ctx, category, key, version)
		if err != nil {
			return nil, err
		}
		return entity.NewRuleSetDocument(rs), nil
	})
	if err != nil {
		return nil, err
	}

	var doc entity.RuleSetDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Warn(ctx, "cached rule set is corrupt, reloading from source",
			"category", string(category), "key", key, "version", version, "error", err.Error())
		_ = s.cache.Delete(ctx, versionCacheKey(category, key, version))
		return s.inner.Load(ctx, category, key, version)
	}
	return doc.ToRuleSet()
}

func (s *CachedSource) latestVersion(ctx context.Context, category entity.RuleCategory, key string) (int, error) {
	raw, err := s.lookup(ctx, latestCacheKey(category, key), s.ttl, func() (interface{}, error) {
		rs, err := s.inner.Load(ctx, category, key, 0)
		if err != nil {
			return nil, err
		}
		return rs.Version, nil
	})
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(string(raw))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("corrupt latest pointer for %s:%s: %q", category, key, raw)
	}
	return v, nil
}

// DefaultKey 见 Source
func (s *CachedSource) DefaultKey(ctx context.Context, category entity.RuleCategory) (string, error) {
	raw, err := s.lookup(ctx, defaultCacheKey(category), s.ttl, func() (interface{}, error) {
		return s.inner.DefaultKey(ctx, category)
	})
	if err != nil {
		return "", err
	}

	var key string
	if err := json.Unmarshal(raw, &key); err != nil {
		return "", fmt.Errorf("corrupt default pointer for %s: %w", category, err)
	}
	return key, nil
}

// sourceError 来自底层来源的错误，与缓存自身故障区分
type sourceError struct {
	err error
}

func (e *sourceError) Error() string { return e.err.Error() }

func (e *sourceError) Unwrap() error { return e.err }

// lookup 经缓存读取。来源错误原样返回；缓存故障时记录告警并直接回源。
func (s *CachedSource) lookup(ctx context.Context, cacheKey string, ttl time.Duration, load func() (interface{}, error)) ([]byte, error) {
	loaded := false
	raw, err := s.cache.GetOrLoadSafe(ctx, cacheKey, ttl, func() (interface{}, error) {
		loaded = true
		v, err := load()
		if err != nil {
			return nil, &sourceError{err: err}
		}
		return v, nil
	})
	if err == nil {
		observeLookup(loaded)
		return raw, nil
	}

	var srcErr *sourceError
	if errors.As(err, &srcErr) {
		return nil, srcErr.err
	}

	metrics.RuleCacheLookups.WithLabelValues("error").Inc()
	logger.Warn(ctx, "rule cache unavailable, reading from source",
		"cache_key", cacheKey, "error", err.Error())
	v, err := load()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Invalidate 发布新版本后失效 latest/default 指针；具体版本缓存保持不变
func (s *CachedSource) Invalidate(ctx context.Context, category entity.RuleCategory, key string) error {
	return s.cache.Delete(ctx, latestCacheKey(category, key), defaultCacheKey(category))
}

func observeLookup(loaded bool) {
	if loaded {
		metrics.RuleCacheLookups.WithLabelValues("miss").Inc()
		return
	}
	metrics.RuleCacheLookups.WithLabelValues("hit").Inc()
}
