package wire

import (
	"context"
	"fmt"
	"os"

	"lesson-forge-api/internal/application/guardrail"
	"lesson-forge-api/internal/application/guardrail/assembler"
	"lesson-forge-api/internal/application/guardrail/registry"
	"lesson-forge-api/internal/application/guardrail/scanner"
	"lesson-forge-api/internal/config"
	"lesson-forge-api/internal/domain/repository"
	"lesson-forge-api/internal/infrastructure/llm"
	"lesson-forge-api/internal/infrastructure/messaging"
	"lesson-forge-api/internal/infrastructure/persistence/postgres"
	"lesson-forge-api/internal/infrastructure/persistence/redis"
	"lesson-forge-api/internal/interfaces/http/handler"
	"lesson-forge-api/internal/interfaces/http/router"
	"lesson-forge-api/internal/workflow/chain"
	"lesson-forge-api/pkg/logger"
)

// RuleAdmin 规则管理依赖；Cache 在 Redis 不可达时为 nil
type RuleAdmin struct {
	PgClient    *postgres.Client
	RuleSetRepo repository.RuleSetRepository
	Cache       *redis.Cache
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(ctx, &cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Postgres.AutoMigrate {
		if err := client.AutoMigrate(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(ctx, &cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClientOptional Redis 不可达时返回 nil，规则发布后跳过缓存失效
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func()) {
	client, err := redis.NewClient(ctx, &cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, rule cache invalidation disabled", "error", err.Error())
		return nil, func() {}
	}
	return client, func() { client.Close() }
}

// ProvideCacheOptional 可选缓存
func ProvideCacheOptional(client *redis.Client) *redis.Cache {
	if client == nil {
		return nil
	}
	return redis.NewCache(client)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen), cfg.Messaging.RedisStream.ReviewStream)
}

// ProvideReviewNotifier 复核事件经 Redis Stream 发布
func ProvideReviewNotifier(p *messaging.Producer) guardrail.ReviewNotifier {
	return p
}

// ProvideRuleSource 按配置选择规则来源：file 读取 YAML 目录，postgres 读取版本表并经 Redis 缓存
func ProvideRuleSource(ctx context.Context, cfg *config.Config, repo repository.RuleSetRepository, cache registry.KVCache) (registry.Source, error) {
	gc := cfg.Guardrail
	switch gc.RuleSource {
	case "file":
		src, err := registry.LoadFileSource(os.DirFS(gc.RuleDir), ".")
		if err != nil {
			return nil, fmt.Errorf("failed to load rule sets from %s: %w", gc.RuleDir, err)
		}
		logger.Info(ctx, "rule sets loaded from files", "dir", gc.RuleDir)
		return src, nil
	case "postgres":
		return registry.NewCachedSource(registry.NewRepositorySource(repo), cache, gc.CacheTTL), nil
	default:
		return nil, fmt.Errorf("unknown rule source %q", gc.RuleSource)
	}
}

// ProvideScanner 违规扫描器
func ProvideScanner(reg *registry.Registry, cfg *config.Config) *scanner.Scanner {
	return scanner.New(reg, scanner.WithConcurrency(cfg.Guardrail.ScanConcurrency))
}

// ProvideLessonChain 课程生成链
func ProvideLessonChain(factory *llm.EinoFactory, cfg *config.Config) *chain.LessonChain {
	return chain.NewLessonChain(factory, cfg.Guardrail.Provider, cfg.Guardrail.Model)
}

// ProvidePipeline 护栏流水线
func ProvidePipeline(asm *assembler.Assembler, client *chain.LessonChain, sc *scanner.Scanner, gate *guardrail.PersistenceGate, cfg *config.Config) *guardrail.Pipeline {
	return guardrail.NewPipeline(asm, client, sc, gate, guardrail.Options{
		MaxAttempts:    cfg.Guardrail.MaxAttempts,
		OverallTimeout: cfg.Guardrail.OverallTimeout,
		RetryBackoff:   cfg.Guardrail.TransportRetryBackoff,
	})
}

// ProvideHealthHandler 健康检查处理器
func ProvideHealthHandler(pg *postgres.Client, rc *redis.Client, cfg *config.Config) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version).
		Depends("postgres", pg).
		Depends("redis", rc)
}

// ProvideRouter 路由器，生成接口使用 Redis 滑动窗口限流
func ProvideRouter(cfg *config.Config, handlers router.Handlers, limiter *redis.RateLimiter) *router.Router {
	return router.New(cfg, handlers, limiter, limiter.Key)
}
