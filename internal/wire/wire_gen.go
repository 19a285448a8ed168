//go:build !wireinject
// +build !wireinject

// wire_gen.go 按 wire.go 中的 provider 集手工维护，新增 provider 时需同步两处

package wire

import (
	"context"

	"lesson-forge-api/internal/application/guardrail"
	"lesson-forge-api/internal/application/guardrail/assembler"
	"lesson-forge-api/internal/application/guardrail/registry"
	"lesson-forge-api/internal/config"
	"lesson-forge-api/internal/infrastructure/llm"
	"lesson-forge-api/internal/infrastructure/persistence/postgres"
	"lesson-forge-api/internal/infrastructure/persistence/redis"
	"lesson-forge-api/internal/interfaces/http/handler"
	"lesson-forge-api/internal/interfaces/http/router"
)

// Injectors from wire.go:

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	client, cleanup, err := ProvidePostgresClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	redisClient, cleanup2, err := ProvideRedisClient(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	healthHandler := ProvideHealthHandler(client, redisClient, cfg)
	ruleSetRepository := postgres.NewRuleSetRepository(client)
	cache := redis.NewCache(redisClient)
	source, err := ProvideRuleSource(ctx, cfg, ruleSetRepository, cache)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	registryRegistry := registry.New(source)
	assemblerAssembler := assembler.New(registryRegistry)
	einoFactory := llm.NewEinoFactory(cfg)
	lessonChain := ProvideLessonChain(einoFactory, cfg)
	scanner := ProvideScanner(registryRegistry, cfg)
	lessonRepository := postgres.NewLessonRepository(client)
	txManager := postgres.NewTxManager(client)
	producer := ProvideMessagingProducer(redisClient, cfg)
	reviewNotifier := ProvideReviewNotifier(producer)
	persistenceGate := guardrail.NewPersistenceGate(lessonRepository, txManager, reviewNotifier)
	pipeline := ProvidePipeline(assemblerAssembler, lessonChain, scanner, persistenceGate, cfg)
	lessonHandler := handler.NewLessonHandler(pipeline, lessonRepository)
	ruleSetHandler := handler.NewRuleSetHandler(registryRegistry, assemblerAssembler)
	handlers := router.Handlers{
		Health:  healthHandler,
		Lesson:  lessonHandler,
		RuleSet: ruleSetHandler,
	}
	rateLimiter := redis.NewRateLimiter(redisClient)
	routerRouter := ProvideRouter(cfg, handlers, rateLimiter)
	return routerRouter, func() {
		cleanup2()
		cleanup()
	}, nil
}

// InitializeRuleAdmin 初始化规则管理所需依赖（用于 rulectl）
func InitializeRuleAdmin(ctx context.Context, cfg *config.Config) (*RuleAdmin, func(), error) {
	client, cleanup, err := ProvidePostgresClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	ruleSetRepository := postgres.NewRuleSetRepository(client)
	redisClient, cleanup2 := ProvideRedisClientOptional(ctx, cfg)
	cache := ProvideCacheOptional(redisClient)
	ruleAdmin := &RuleAdmin{
		PgClient:    client,
		RuleSetRepo: ruleSetRepository,
		Cache:       cache,
	}
	return ruleAdmin, func() {
		cleanup2()
		cleanup()
	}, nil
}
