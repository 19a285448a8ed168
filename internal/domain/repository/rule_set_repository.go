package repository

import (
	"context"

	"lesson-forge-api/internal/domain/entity"
)

// RuleSetRepository 规则集版本仓储接口，版本只追加不修改
type RuleSetRepository interface {
	// GetVersion 获取指定版本，不存在返回 nil
	GetVersion(ctx context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSetVersion, error)
	// GetLatest 获取某 key 的最新版本，不存在返回 nil
	GetLatest(ctx context.Context, category entity.RuleCategory, key string) (*entity.RuleSetVersion, error)
	// GetDefaultKey 获取类别的默认 key，未配置返回空串
	GetDefaultKey(ctx context.Context, category entity.RuleCategory) (string, error)
	// KeyExists key 是否存在任意版本
	KeyExists(ctx context.Context, category entity.RuleCategory, key string) (bool, error)
	// GetLatestVersionNo 获取最新版本号，不存在返回 0
	GetLatestVersionNo(ctx context.Context, category entity.RuleCategory, key string) (int, error)
	// CreateVersion 追加新版本
	CreateVersion(ctx context.Context, v *entity.RuleSetVersion) error
	// ListLatest 列出每个 key 的最新版本
	ListLatest(ctx context.Context, category entity.RuleCategory) ([]*entity.RuleSetVersion, error)
}
