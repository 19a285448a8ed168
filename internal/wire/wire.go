//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"lesson-forge-api/internal/application/guardrail"
	"lesson-forge-api/internal/application/guardrail/assembler"
	"lesson-forge-api/internal/application/guardrail/registry"
	"lesson-forge-api/internal/config"
	"lesson-forge-api/internal/domain/repository"
	"lesson-forge-api/internal/infrastructure/llm"
	"lesson-forge-api/internal/infrastructure/persistence/postgres"
	"lesson-forge-api/internal/infrastructure/persistence/redis"
	"lesson-forge-api/internal/interfaces/http/handler"
	"lesson-forge-api/internal/interfaces/http/router"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		GuardrailSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeRuleAdmin 初始化规则管理所需依赖（用于 rulectl）
func InitializeRuleAdmin(ctx context.Context, cfg *config.Config) (*RuleAdmin, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		postgres.NewRuleSetRepository,
		wire.Bind(new(repository.RuleSetRepository), new(*postgres.RuleSetRepository)),
		ProvideRedisClientOptional,
		ProvideCacheOptional,
		wire.Struct(new(RuleAdmin), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewRuleSetRepository,
	postgres.NewLessonRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.RuleSetRepository), new(*postgres.RuleSetRepository)),
	wire.Bind(new(repository.LessonRepository), new(*postgres.LessonRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	wire.Bind(new(registry.KVCache), new(*redis.Cache)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	ProvideReviewNotifier,
)

// GuardrailSet 规则注册表、组装、扫描、生成与持久化闸门
var GuardrailSet = wire.NewSet(
	ProvideRuleSource,
	registry.New,
	assembler.New,
	wire.Bind(new(assembler.Resolver), new(*registry.Registry)),
	ProvideScanner,
	llm.NewEinoFactory,
	ProvideLessonChain,
	guardrail.NewPersistenceGate,
	ProvidePipeline,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewLessonHandler,
	wire.Bind(new(handler.LessonPipeline), new(*guardrail.Pipeline)),
	handler.NewRuleSetHandler,
	wire.Bind(new(handler.RuleResolver), new(*registry.Registry)),
	wire.Bind(new(handler.DirectiveAssembler), new(*assembler.Assembler)),
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)
